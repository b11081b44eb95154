package compiler

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/aferrante/typekg/schema"
)

const testSchema = `
entity person;
entity country;
attribute name value string;
attribute birth-date value date;
attribute population value integer;
attribute occupation value string;
attribute embedding value string;
relation marriage;
relation citizenship;
person owns name;
person owns birth-date;
person owns occupation;
person owns embedding;
country owns name;
country owns population;
marriage relates wife;
marriage relates husband;
citizenship relates citizen;
citizenship relates nation;
person plays marriage:wife;
person plays marriage:husband;
person plays citizenship:citizen;
country plays citizenship:nation;
`

func testCompiler(t *testing.T, resolver Resolver) *Compiler {
	t.Helper()
	m, err := schema.Parse(testSchema)
	if err != nil {
		t.Fatalf("parsing schema: %v", err)
	}
	return New(m, resolver)
}

func compile(t *testing.T, c *Compiler, raw string) *Result {
	t.Helper()
	res, err := c.Compile(context.Background(), raw)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

func texts(res *Result) []string {
	out := make([]string, len(res.Statements))
	for i, s := range res.Statements {
		out[i] = s.Text
	}
	return out
}

func TestCompileBasic(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|person|Marie Curie
entity|e2|country|Poland
property|e1|birth-date|1867-11-07
property|e2|population|38000000
relation|citizenship|e1,e2
`)

	if len(res.Malformed) != 0 || len(res.Unknown) != 0 {
		t.Fatalf("unexpected rejections: %+v %+v", res.Malformed, res.Unknown)
	}
	want := []string{
		`put $person-marie-curie isa person, has name "marie curie";`,
		`put $person-marie-curie has birth-date 1867-11-07;`,
		`put $country-poland isa country, has name "poland";`,
		`put $country-poland has population 38000000;`,
		`put $r1 isa citizenship, links (citizen: $person-marie-curie, nation: $country-poland);`,
	}
	if got := texts(res); !reflect.DeepEqual(got, want) {
		t.Errorf("statements mismatch:\ngot  %q\nwant %q", got, want)
	}
	if res.NewEntities != 2 {
		t.Errorf("NewEntities = %d, want 2", res.NewEntities)
	}
}

func TestEntitiesPrecedeRelations(t *testing.T) {
	c := testCompiler(t, nil)
	// Relation line appears before its entities in the input.
	res := compile(t, c, `
relation|marriage|e1,e2
entity|e1|person|A
entity|e2|person|B
`)
	stmts := texts(res)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %v", stmts)
	}
	if !strings.Contains(stmts[2], "marriage") {
		t.Errorf("relation must come after entity statements: %q", stmts)
	}
}

func TestDuplicateMentionSelfRelationDropped(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|person|Marie Curie
entity|e2|person|Marie  curie
relation|marriage|e1,e2
`)

	if res.NewEntities != 1 {
		t.Errorf("NewEntities = %d, want 1 (duplicate mention must collapse)", res.NewEntities)
	}
	if res.SelfRelationsDropped != 1 {
		t.Errorf("SelfRelationsDropped = %d, want 1", res.SelfRelationsDropped)
	}
	for _, s := range res.Statements {
		if strings.Contains(s.Text, "marriage") {
			t.Errorf("collapsed self-relation was emitted: %q", s.Text)
		}
	}
	if len(res.Statements) != 1 {
		t.Errorf("expected one entity statement, got %q", texts(res))
	}
}

func TestAllowReflexive(t *testing.T) {
	c := testCompiler(t, nil)
	c.AllowReflexive = true
	res := compile(t, c, `
entity|e1|person|Ouroboros
entity|e2|person|ouroboros
relation|marriage|e1,e2
`)
	if res.SelfRelationsDropped != 0 {
		t.Errorf("reflexive relation dropped despite AllowReflexive")
	}
	found := false
	for _, s := range res.Statements {
		if strings.Contains(s.Text, "wife: $person-ouroboros, husband: $person-ouroboros") {
			found = true
		}
	}
	if !found {
		t.Errorf("reflexive relation missing: %q", texts(res))
	}
}

func TestExplicitRoleBindings(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|person|Pierre Curie
entity|e2|person|Marie Curie
relation|marriage|husband:e1,wife:e2
`)
	if len(res.Unknown) != 0 {
		t.Fatalf("unexpected unknowns: %+v", res.Unknown)
	}
	last := res.Statements[len(res.Statements)-1].Text
	if !strings.Contains(last, "husband: $person-pierre-curie") ||
		!strings.Contains(last, "wife: $person-marie-curie") {
		t.Errorf("explicit bindings not honored: %q", last)
	}
}

func TestMalformedLinesRecovered(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|person|Good One
this is not a line
entity||person|no id
entity|e2|person|
relation|marriage|wife:e1,e9
entity|e1|person|Duplicate Id
property|e1|birth-date|yesterday
`)

	if len(res.Malformed) != 6 {
		t.Fatalf("expected 6 malformed lines, got %d: %+v", len(res.Malformed), res.Malformed)
	}
	for _, m := range res.Malformed {
		if m.Reason == "" || m.Line == 0 {
			t.Errorf("malformed record missing detail: %+v", m)
		}
	}
	if len(res.Statements) != 1 || !strings.Contains(res.Statements[0].Text, "good-one") {
		t.Errorf("expected the one good entity to survive, got %q", texts(res))
	}
}

func TestUnknownReferences(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|starship|Enterprise
entity|e2|person|Marie Curie
property|e2|shoe-size|42
property|e2|population|1
property|e9|name|ghost
relation|friendship|e2,e2
relation|marriage|pilot:e2
relation|marriage|e2,e9
`)

	if len(res.Unknown) != 7 {
		t.Fatalf("expected 7 unknown references, got %d: %+v", len(res.Unknown), res.Unknown)
	}
	for _, u := range res.Unknown {
		if u.Ref == "" || u.Reason == "" {
			t.Errorf("unknown record missing detail: %+v", u)
		}
	}
	// Nothing unknown may leak into output.
	for _, s := range res.Statements {
		for _, bad := range []string{"starship", "shoe-size", "population", "friendship", "pilot"} {
			if strings.Contains(s.Text, bad) {
				t.Errorf("unknown reference leaked into output: %q", s.Text)
			}
		}
	}
}

func TestPositionalBindingFollowsDeclarationOrder(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|person|A
entity|e2|person|B
relation|marriage|e1,e2
`)
	last := res.Statements[len(res.Statements)-1].Text
	if !strings.Contains(last, "wife: $person-a, husband: $person-b") {
		t.Errorf("positional bindings must follow declared role order: %q", last)
	}
}

func TestTooManyPositionalBindings(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|person|A
entity|e2|person|B
entity|e3|person|C
relation|marriage|e1,e2,e3
`)
	if len(res.Malformed) != 1 {
		t.Fatalf("expected over-bound relation to be malformed, got %+v", res.Malformed)
	}
}

func TestPropertyValueDedup(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|person|Marie Curie
property|e1|occupation|physicist
property|e1|occupation|Physicist
property|e1|occupation|chemist
`)
	// Exact-value dedup only: "physicist" and "Physicist" are distinct values.
	count := 0
	for _, s := range res.Statements {
		if strings.Contains(s.Text, "occupation") {
			count++
		}
	}
	if count != 3 {
		t.Errorf("expected 3 distinct occupation values, got %d: %q", count, texts(res))
	}

	res = compile(t, testCompiler(t, nil), `
entity|e1|person|Marie Curie
property|e1|occupation|physicist
property|e1|occupation|physicist
`)
	count = 0
	for _, s := range res.Statements {
		if strings.Contains(s.Text, "occupation") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("exact duplicate value not deduplicated: %q", texts(res))
	}
}

func TestDeclaredValueTypes(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
entity|e1|country|Poland
property|e1|population|not-a-number
`)
	if len(res.Malformed) != 1 {
		t.Fatalf("expected non-integer population to be malformed, got %+v", res.Malformed)
	}

	res = compile(t, testCompiler(t, nil), `
entity|e1|person|Marie Curie
property|e1|birth-date|1867-11-07
`)
	if len(res.Malformed) != 0 {
		t.Fatalf("valid date rejected: %+v", res.Malformed)
	}
	if !strings.Contains(res.Statements[1].Text, "has birth-date 1867-11-07;") {
		t.Errorf("date must render unquoted: %q", res.Statements[1].Text)
	}
}

func TestSourceOrigin(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
source|Marie Curie
entity|e1|person|Marie Curie
source|Poland
entity|e2|country|Poland
relation|citizenship|e1,e2
`)
	byVar := make(map[string]string)
	for _, s := range res.Statements {
		byVar[s.Text] = s.Origin
	}
	for text, origin := range byVar {
		switch {
		case strings.Contains(text, "isa person"):
			if origin != "Marie Curie" {
				t.Errorf("entity origin = %q, want Marie Curie", origin)
			}
		case strings.Contains(text, "isa citizenship"):
			if origin != "Poland" {
				t.Errorf("relation origin = %q, want Poland", origin)
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	raw := `
entity|e1|person|Marie Curie
entity|e2|country|Poland
entity|e3|person|Pierre Curie
property|e1|occupation|physicist
relation|citizenship|e1,e2
relation|marriage|wife:e1,husband:e3
`
	a := texts(compile(t, testCompiler(t, nil), raw))
	b := texts(compile(t, testCompiler(t, nil), raw))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same input produced different output:\n%q\n%q", a, b)
	}
}

func TestCrossBatchDedup(t *testing.T) {
	resolver := NewMemoryResolver()
	c := testCompiler(t, resolver)

	first := compile(t, c, `entity|e1|person|Marie Curie`)
	if first.NewEntities != 1 || first.MergedEntities != 0 {
		t.Fatalf("first batch: new=%d merged=%d", first.NewEntities, first.MergedEntities)
	}
	second := compile(t, c, `entity|e1|person|MARIE   CURIE`)
	if second.NewEntities != 0 || second.MergedEntities != 1 {
		t.Errorf("second batch: new=%d merged=%d, want merge", second.NewEntities, second.MergedEntities)
	}
	if resolver.Len() != 1 {
		t.Errorf("resolver tracked %d keys, want 1", resolver.Len())
	}
}

func TestVarCollisionSuffix(t *testing.T) {
	c := testCompiler(t, nil)
	// Different raw keys normalizing to different canonical keys but the same
	// sanitized variable base.
	res := compile(t, c, `
entity|e1|person|a b
entity|e2|person|a.b
`)
	stmts := texts(res)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %q", stmts)
	}
	if stmts[0] == stmts[1] {
		t.Errorf("colliding variables not disambiguated: %q", stmts)
	}
	if !strings.Contains(stmts[1], "$person-a-b-2") {
		t.Errorf("expected suffixed variable, got %q", stmts[1])
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Marie Curie", "marie curie"},
		{"  MARIE   CURIE  ", "marie curie"},
		{"\tmarie\ncurie", "marie curie"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCommentsAndBlanksIgnored(t *testing.T) {
	c := testCompiler(t, nil)
	res := compile(t, c, `
# extraction follows

entity|e1|person|Marie Curie
# done
`)
	if len(res.Malformed) != 0 {
		t.Errorf("comments counted as malformed: %+v", res.Malformed)
	}
	if len(res.Statements) != 1 {
		t.Errorf("expected 1 statement, got %q", texts(res))
	}
}

func TestEmbedAttributeStatements(t *testing.T) {
	c := testCompiler(t, nil)
	c.EmbedAttr = "embedding"
	c.EmbedText = func(_ context.Context, text string) (string, error) {
		return "enc:" + text, nil
	}
	res := compile(t, c, `
entity|e1|person|Marie Curie
property|e1|occupation|physicist
`)
	if len(res.Unknown) != 0 {
		t.Fatalf("unexpected unknowns: %+v", res.Unknown)
	}
	want := []string{
		`put $person-marie-curie isa person, has name "marie curie";`,
		`put $person-marie-curie has embedding "enc:marie curie";`,
		`put $person-marie-curie has occupation "physicist";`,
	}
	if got := texts(res); !reflect.DeepEqual(got, want) {
		t.Errorf("statements = %q, want %q", got, want)
	}
}

func TestEmbedAttributeNotOwned(t *testing.T) {
	c := testCompiler(t, nil)
	c.EmbedAttr = "embedding"
	c.EmbedText = func(_ context.Context, text string) (string, error) {
		return "enc:" + text, nil
	}
	// country does not own embedding; the entity still renders, the
	// embedding attachment is recorded as an unknown reference.
	res := compile(t, c, `entity|e1|country|Poland`)
	if len(res.Statements) != 1 {
		t.Fatalf("statements = %q", texts(res))
	}
	if len(res.Unknown) != 1 || !strings.Contains(res.Unknown[0].Reason, "embedding") {
		t.Errorf("unknowns = %+v, want one embedding-attribute record", res.Unknown)
	}
}

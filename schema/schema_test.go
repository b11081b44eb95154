package schema

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
define
entity person;
entity country;
attribute name value string;
attribute birth-date value date;
attribute population value integer;
relation marriage;
relation citizenship;
person owns name;
person owns birth-date;
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

func mustParse(t *testing.T) *Model {
	t.Helper()
	m, err := Parse(testSchema)
	if err != nil {
		t.Fatalf("parsing test schema: %v", err)
	}
	return m
}

func TestParseResolve(t *testing.T) {
	m := mustParse(t)

	person, ok := m.Entity("person")
	if !ok {
		t.Fatal("person entity not resolved")
	}
	if !person.HasOwns("name") || !person.HasOwns("birth-date") {
		t.Errorf("person owns = %v, want name and birth-date", person.Owns)
	}

	marriage, ok := m.Relation("marriage")
	if !ok {
		t.Fatal("marriage relation not resolved")
	}
	// Role order must follow declaration order (positional binding depends on it).
	if len(marriage.Roles) != 2 || marriage.Roles[0] != "wife" || marriage.Roles[1] != "husband" {
		t.Errorf("marriage roles = %v, want [wife husband]", marriage.Roles)
	}

	if attr, ok := m.Attribute("birth-date"); !ok || attr.ValueType != ValueDate {
		t.Errorf("birth-date value type = %q, want date", attr.ValueType)
	}

	if _, ok := m.ResolveType("starship"); ok {
		t.Error("resolved undeclared type starship")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty schema", "define\n"},
		{"owns undeclared attribute", "entity person;\nperson owns nothing;"},
		{"relates on entity", "entity person;\nperson relates friend;"},
		{"plays missing role", "entity person;\nrelation marriage;\nmarriage relates wife;\nperson plays marriage:husband;"},
		{"bad value type", "attribute name value blob;"},
		{"gibberish line", "entity person;\nfrobnicate the schema;"},
		{"kind conflict", "entity person;\nrelation person;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected parse error, got nil")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
		})
	}
}

func TestKeyAttribute(t *testing.T) {
	m := mustParse(t)
	person, _ := m.Entity("person")
	key, ok := m.KeyAttribute(person)
	if !ok || key != "name" {
		t.Errorf("key attribute = %q, want name", key)
	}
}

func TestValidate(t *testing.T) {
	m := mustParse(t)

	tests := []struct {
		name    string
		stmt    string
		wantOK  bool
		token   string
	}{
		{
			name:   "valid entity put",
			stmt:   `put $p isa person, has name "marie curie";`,
			wantOK: true,
		},
		{
			name:   "valid relation with roles",
			stmt:   `put $m isa marriage, links (wife: $a, husband: $b);`,
			wantOK: true,
		},
		{
			name:   "valid match",
			stmt:   `match $x isa person, has name $n;`,
			wantOK: true,
		},
		{
			name:  "unknown type",
			stmt:  `put $s isa starship, has name "enterprise";`,
			token: "starship",
		},
		{
			name:  "unknown attribute",
			stmt:  `put $p isa person, has shoe-size "42";`,
			token: "shoe-size",
		},
		{
			name:  "role not on relation",
			stmt:  `put $m isa marriage, links (captain: $a, husband: $b);`,
			token: "captain",
		},
		{
			name:  "attribute after isa",
			stmt:  `put $n isa name;`,
			token: "name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := m.Validate(tt.stmt)
			if tt.wantOK {
				if v != nil {
					t.Fatalf("expected valid, got violation: %v", v)
				}
				return
			}
			if v == nil {
				t.Fatal("expected violation, got nil")
			}
			if v.Token != tt.token {
				t.Errorf("violation token = %q, want %q", v.Token, tt.token)
			}
		})
	}
}

func TestValidateIgnoresStringContents(t *testing.T) {
	m := mustParse(t)
	// "isa starship" inside a quoted value must not trip the scanner.
	stmt := `put $p isa person, has name "she isa starship pilot";`
	if v := m.Validate(stmt); v != nil {
		t.Errorf("unexpected violation: %v", v)
	}
}

func TestDefineRoundTrip(t *testing.T) {
	m := mustParse(t)
	rendered := m.Define()

	m2, err := Parse(rendered)
	if err != nil {
		t.Fatalf("re-parsing rendered define: %v", err)
	}
	if m2.Define() != rendered {
		t.Error("define rendering is not stable across a round trip")
	}
	if _, ok := m2.Relation("citizenship"); !ok {
		t.Error("round-tripped model lost citizenship relation")
	}
}

func TestCompact(t *testing.T) {
	m := mustParse(t)
	compact := m.Compact()

	for _, want := range []string{
		"person has birth-date | name;",
		"marriage links (wife: person, husband: person);",
		"citizenship links (citizen: person, nation: country);",
	} {
		if !strings.Contains(compact, want) {
			t.Errorf("compact rendering missing %q:\n%s", want, compact)
		}
	}
}

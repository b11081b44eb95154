package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/aferrante/typekg/llm"
)

// fakeProvider records the last request and returns a canned completion.
type fakeProvider struct {
	lastReq llm.CompletionRequest
	text    string
	tokens  int
	err     error
}

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{
		Text:             f.text,
		PromptTokens:     f.tokens,
		CompletionTokens: f.tokens,
		TotalTokens:      2 * f.tokens,
	}, nil
}

func (f *fakeProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

func TestTemplateRender(t *testing.T) {
	tpl := Template("schema: {schema}, question: {question}, missing: {nope}")
	got := tpl.Render(map[string]string{"schema": "S", "question": "Q"})
	want := "schema: S, question: Q, missing: {nope}"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestFormatParagraphs(t *testing.T) {
	got := FormatParagraphs([]Document{
		{Title: "A", Text: "first."},
		{Title: "B", Text: "second."},
	})
	want := "- Title: A\n  Sentences: first.\n- Title: B\n  Sentences: second."
	if got != want {
		t.Errorf("FormatParagraphs = %q", got)
	}
}

func TestFormatDocuments(t *testing.T) {
	got := FormatDocuments([]Document{{Title: "A", Text: "body"}})
	if got != "- Title: A\n  Content: body" {
		t.Errorf("FormatDocuments = %q", got)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", "entity|e1|person|X", "entity|e1|person|X"},
		{"trailing backticks", "entity|e1|person|X\n```", "entity|e1|person|X"},
		{
			"fenced with tag",
			"Here you go:\n```text\nentity|e1|person|X\n```\nDone.",
			"entity|e1|person|X",
		},
		{
			"fenced without tag",
			"```\nentity|e1|person|X\nproperty|e1|name|X\n```",
			"entity|e1|person|X\nproperty|e1|name|X",
		},
		{
			"unclosed fence",
			"```\nentity|e1|person|X",
			"entity|e1|person|X",
		},
		{
			"payload on fence line",
			"```entity|e1|person|X\n```",
			"entity|e1|person|X",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Errorf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractTypeQL(t *testing.T) {
	in := "Sure:\n```typeql\ninsert\n$p isa person;\n```\nthanks"
	want := "insert\n$p isa person;"
	if got := ExtractTypeQL(in); got != want {
		t.Errorf("ExtractTypeQL = %q, want %q", got, want)
	}

	// No fence: trimmed pass-through.
	if got := ExtractTypeQL("  $p isa person;  "); got != "$p isa person;" {
		t.Errorf("unfenced = %q", got)
	}
}

func TestExtractDirectReattachesHead(t *testing.T) {
	fp := &fakeProvider{text: `$p isa person, has name "marie curie";` + "\n"}
	r := NewRequester(fp)

	got, err := r.ExtractDirect(context.Background(), "entity person;", []Document{
		{Title: "Marie Curie", Text: "Marie Curie was a physicist."},
	})
	if err != nil {
		t.Fatalf("ExtractDirect: %v", err)
	}
	if !strings.HasPrefix(got, "insert\n") {
		t.Errorf("insert head not reattached: %q", got)
	}
	if !strings.Contains(got, "marie curie") {
		t.Errorf("completion lost: %q", got)
	}

	// Prompt carries schema and paragraphs, and primes the statement block.
	if !strings.Contains(fp.lastReq.Prompt, "entity person;") {
		t.Error("schema missing from prompt")
	}
	if !strings.Contains(fp.lastReq.Prompt, "- Title: Marie Curie") {
		t.Error("paragraphs missing from prompt")
	}
	if !strings.HasSuffix(fp.lastReq.Prompt, "```typeql\ninsert\n") {
		t.Errorf("prompt does not prime the statement block: %q", fp.lastReq.Prompt[len(fp.lastReq.Prompt)-30:])
	}
}

func TestRequesterStopSequences(t *testing.T) {
	fp := &fakeProvider{text: "x"}
	r := NewRequester(fp)

	if _, err := r.ExtractLines(context.Background(), []Document{{Title: "T", Text: "t"}}); err != nil {
		t.Fatalf("ExtractLines: %v", err)
	}
	if len(fp.lastReq.Stop) != 3 || fp.lastReq.Stop[0] != "```" {
		t.Errorf("stop sequences = %v", fp.lastReq.Stop)
	}
	if fp.lastReq.MaxTokens != 4096 {
		t.Errorf("max tokens = %d", fp.lastReq.MaxTokens)
	}
	if fp.lastReq.Temperature != 0.1 {
		t.Errorf("temperature = %v", fp.lastReq.Temperature)
	}
}

func TestExtractLinesStripsFences(t *testing.T) {
	fp := &fakeProvider{text: "entity|e1|person|Marie Curie\n```"}
	r := NewRequester(fp)

	got, err := r.ExtractLines(context.Background(), []Document{{Title: "T", Text: "t"}})
	if err != nil {
		t.Fatalf("ExtractLines: %v", err)
	}
	if got != "entity|e1|person|Marie Curie" {
		t.Errorf("lines = %q", got)
	}
}

func TestGenerateQueryReattachesMatch(t *testing.T) {
	fp := &fakeProvider{text: "$p isa person, has name $n;\n```\nleftover"}
	r := NewRequester(fp)

	got, _, err := r.GenerateQuery(context.Background(), "entity person;", "Who?")
	if err != nil {
		t.Fatalf("GenerateQuery: %v", err)
	}
	want := "match\n$p isa person, has name $n;"
	if got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
}

func TestAnswerTrims(t *testing.T) {
	fp := &fakeProvider{text: "  Warsaw\n", tokens: 12}
	r := NewRequester(fp)

	got, usage, err := r.Answer(context.Background(), []Document{{Title: "D", Text: "x"}}, "Where?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "Warsaw" {
		t.Errorf("answer = %q", got)
	}
	if usage.PromptTokens != 12 || usage.CompletionTokens != 12 || usage.TotalTokens != 24 {
		t.Errorf("usage = %+v", usage)
	}
	if !strings.Contains(fp.lastReq.Prompt, "- Title: D\n  Content: x") {
		t.Error("documents missing from answer prompt")
	}
}

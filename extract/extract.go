// Package extract drives the model side of knowledge-graph construction and
// question answering: prompt assembly, completion requests, and the fence
// stripping needed to recover usable text from model output. Exactly one
// completion call happens per operation; retries live in the llm client.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/aferrante/typekg/llm"
)

// Document is one titled source paragraph fed into a prompt.
type Document struct {
	Title string
	Text  string
}

// DefaultStop are the stop sequences used for all completions: the closing
// code fence, a new markdown section, and the start of another question.
var DefaultStop = []string{"```", "##", "Question:"}

// Requester performs extraction and answering calls against a provider.
type Requester struct {
	provider llm.Provider

	MaxTokens   int
	Temperature float64
	Stop        []string

	ConstructTemplate Template
	LinesTemplate     Template
	QueryTemplate     Template
	AnswerTemplate    Template
}

// NewRequester creates a Requester with the default prompts and sampling
// settings.
func NewRequester(provider llm.Provider) *Requester {
	return &Requester{
		provider:          provider,
		MaxTokens:         4096,
		Temperature:       0.1,
		Stop:              DefaultStop,
		ConstructTemplate: DefaultConstructTemplate,
		LinesTemplate:     DefaultLinesTemplate,
		QueryTemplate:     DefaultQueryTemplate,
		AnswerTemplate:    DefaultAnswerTemplate,
	}
}

// Usage is the provider-accounted token consumption of one completion call.
// All zero when the provider reports nothing.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func (r *Requester) complete(ctx context.Context, prompt string) (string, Usage, error) {
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		Stop:        r.Stop,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("completion request: %w", err)
	}
	usage := Usage{
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	return resp.Text, usage, nil
}

// ExtractDirect asks the model for formal graph statements covering the
// given paragraphs. The prompt primes an open statement block ending in
// "insert", and generation stops at the closing fence, so the head is
// reattached here before the result goes to validation.
func (r *Requester) ExtractDirect(ctx context.Context, schema string, docs []Document) (string, error) {
	prompt := r.ConstructTemplate.Render(map[string]string{
		"schema":     schema,
		"paragraphs": FormatParagraphs(docs),
	})
	text, _, err := r.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return ExtractTypeQL("```typeql\ninsert\n" + text), nil
}

// ExtractLines asks the model for simplified line-format output covering the
// given paragraphs. The result goes to the line compiler unparsed; bad lines
// are the compiler's problem, not ours.
func (r *Requester) ExtractLines(ctx context.Context, docs []Document) (string, error) {
	prompt := r.LinesTemplate.Render(map[string]string{
		"paragraphs": FormatParagraphs(docs),
	})
	text, _, err := r.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return StripFences(text), nil
}

// GenerateQuery asks the model to translate a natural-language question into
// a graph match query. The prompt primes a block opening with "match", which
// is reattached to the completion. Token usage is returned for the query log.
func (r *Requester) GenerateQuery(ctx context.Context, schema, question string) (string, Usage, error) {
	prompt := r.QueryTemplate.Render(map[string]string{
		"schema":   schema,
		"question": question,
	})
	text, usage, err := r.complete(ctx, prompt)
	if err != nil {
		return "", Usage{}, err
	}
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return "match\n" + text, usage, nil
}

// Answer feeds retrieved documents and the question to the model and returns
// the trimmed answer text with the call's token usage.
func (r *Requester) Answer(ctx context.Context, docs []Document, question string) (string, Usage, error) {
	prompt := r.AnswerTemplate.Render(map[string]string{
		"documents": FormatDocuments(docs),
		"question":  question,
	})
	text, usage, err := r.complete(ctx, prompt)
	if err != nil {
		return "", Usage{}, err
	}
	return strings.TrimSpace(text), usage, nil
}

// FormatParagraphs renders titled paragraphs in the construction prompts'
// list format.
func FormatParagraphs(docs []Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("- Title: %s\n  Sentences: %s", d.Title, d.Text)
	}
	return strings.Join(parts, "\n")
}

// FormatDocuments renders retrieved documents in the answer prompt's list
// format.
func FormatDocuments(docs []Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("- Title: %s\n  Content: %s", d.Title, d.Text)
	}
	return strings.Join(parts, "\n")
}

// StripFences recovers the payload from model output that may be wrapped in
// a markdown code fence, with or without a language tag. Without fences the
// text is returned with surrounding backticks and whitespace trimmed.
func StripFences(response string) string {
	text := strings.TrimSpace(response)
	open := strings.Index(text, "```")
	if open == -1 {
		return strings.Trim(text, "` \n")
	}
	block := text[open+3:]
	if end := strings.Index(block, "```"); end >= 0 {
		block = block[:end]
	} else if strings.TrimSpace(block) == "" {
		// A lone trailing fence: the payload precedes it.
		return strings.TrimSpace(text[:open])
	}
	// Drop a language tag on the fence line. Payload lines contain pipes, a
	// bare tag never does.
	if nl := strings.Index(block, "\n"); nl >= 0 && !strings.Contains(block[:nl], "|") {
		block = block[nl+1:]
	}
	return strings.TrimSpace(block)
}

// ExtractTypeQL locates the last ```typeql fence in a response and returns
// its contents. Without a fence the trimmed response is returned as is.
func ExtractTypeQL(response string) string {
	text := strings.TrimSpace(response)
	start := strings.LastIndex(text, "```typeql")
	if start == -1 {
		return text
	}
	start += len("```typeql")
	end := strings.Index(text[start:], "```")
	if end == -1 {
		end = len(text) - start
	}
	return strings.TrimSpace(text[start : start+end])
}

package extract

import (
	"fmt"
	"os"
	"strings"
)

// Template is a prompt template with {name} placeholders. Unknown
// placeholders are left in place so a missing value is visible in the prompt
// rather than silently blank.
type Template string

// Render substitutes the given placeholder values.
func (t Template) Render(vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(string(t))
}

// LoadTemplate reads a prompt template from a file.
func LoadTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loading prompt template: %w", err)
	}
	return Template(data), nil
}

// DefaultConstructTemplate prompts for formal graph statements. It ends with
// an open typeql fence and the insert head, so the completion continues the
// statement block and stops at the closing fence.
const DefaultConstructTemplate Template = `You are building a knowledge graph from text.

Read the paragraphs below and express every fact they state as TypeQL put
statements. Use only the entity, relation, and attribute types declared in
the schema. Identify each entity by its key attribute. Do not invent facts
that the paragraphs do not state.

## Schema

` + "```typeql\n{schema}\n```" + `

## Paragraphs

{paragraphs}

## Statements

` + "```typeql\ninsert\n"

// DefaultLinesTemplate prompts for the simplified line format. The example
// block doubles as the format specification for small models.
const DefaultLinesTemplate Template = `You are extracting a knowledge graph from text.

Read the paragraphs below and emit one line per extracted fact, using
exactly this pipe-delimited format:

` + "```" + `
source|<paragraph title>
entity|<local-id>|<entity-type>|<name>
property|<local-id>|<attribute>|<value>
relation|<relation-type>|<local-id>,<local-id>
` + "```" + `

Rules:
- Give every entity a short local id (e1, e2, ...) and introduce it with an
  entity line before referencing it.
- Emit a source line before the facts extracted from each paragraph.
- Dates are written YYYY-MM-DD.
- Do not invent facts that the paragraphs do not state.

## Paragraphs

{paragraphs}

## Extraction

` + "```\n"

// DefaultQueryTemplate prompts for a graph match query answering a
// question. It ends with the match head, reattached to the completion.
const DefaultQueryTemplate Template = `You translate questions into TypeQL match queries.

Use only the entity, relation, and attribute types declared in the schema.
Select the attributes that answer the question.

## Schema

` + "```typeql\n{schema}\n```" + `

## Question

{question}

## Query

` + "```typeql\nmatch\n"

// DefaultAnswerTemplate prompts for a short answer grounded in the
// retrieved documents.
const DefaultAnswerTemplate Template = `Answer the question using only the documents below.
Reply with the answer itself, as briefly as possible, and nothing else.

## Documents

{documents}

## Question

{question}

## Answer

`

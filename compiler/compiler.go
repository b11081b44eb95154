// Package compiler turns the simplified line format emitted by the model
// into schema-valid graph-write statements. It is a strict two-stage
// pipeline: an untrusted-text parser producing tagged mention records,
// followed by a canonicalizing, schema-checking renderer. A bad line never
// aborts a batch, and nothing schema-invalid is ever papered over: every
// rejection is recorded and countable.
package compiler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aferrante/typekg/schema"
)

// MalformedLineError records one intermediate-format line that could not be
// parsed or carried an unusable value. Recovered: the line is skipped.
type MalformedLineError struct {
	Line   int
	Text   string
	Reason string
}

func (e MalformedLineError) Error() string {
	return fmt.Sprintf("malformed line %d: %s (%q)", e.Line, e.Reason, e.Text)
}

// UnknownReferenceError records a mention that referenced an undeclared
// schema type, attribute, or role, or an undefined local id. Recovered: the
// mention is excluded from output, never substituted with a guess.
type UnknownReferenceError struct {
	Line   int
	Ref    string
	Reason string
}

func (e UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown reference at line %d: %s (%q)", e.Line, e.Reason, e.Ref)
}

// EntityMention is one entity occurrence in a batch, scoped to a local id.
type EntityMention struct {
	LocalID  string
	Type     string
	KeyValue string
	Line     int
}

// PropertyMention attaches an attribute value to a local id.
type PropertyMention struct {
	LocalID   string
	Attribute string
	Value     string
	Line      int
}

// RoleBinding binds one role of a relation mention to a local id.
type RoleBinding struct {
	Role    string // empty = positional
	LocalID string
}

// RelationMention is one relation occurrence between local ids.
type RelationMention struct {
	Type     string
	Bindings []RoleBinding
	Line     int
}

// Statement is a rendered, schema-valid write statement, tagged with its
// origin for traceability. Immutable once rendered.
type Statement struct {
	Text   string
	Origin string   // source title active when the mention appeared
	Keys   []string // canonical keys the statement binds
}

// Result is the full, observable outcome of compiling one batch.
type Result struct {
	Statements []Statement
	Malformed  []MalformedLineError
	Unknown    []UnknownReferenceError

	// NewEntities and MergedEntities count canonical entities created vs
	// merged into existing graph nodes during this batch.
	NewEntities    int
	MergedEntities int

	// SelfRelationsDropped counts relation mentions whose bindings all
	// collapsed to a single canonical entity and were dropped.
	SelfRelationsDropped int
}

// Compiler compiles raw line-format model output into write statements.
type Compiler struct {
	model    *schema.Model
	resolver Resolver

	// AllowReflexive permits a relation whose role bindings collapse to a
	// single canonical entity. Off by default: a duplicated entity mention
	// must not manufacture a self-relation.
	AllowReflexive bool

	// EmbedAttr, when set together with EmbedText, attaches an embedding of
	// each canonical entity's normalized key to the entity as this attribute.
	// EmbedText returns the encoded literal text for one key.
	EmbedAttr string
	EmbedText func(ctx context.Context, text string) (string, error)
}

// New creates a Compiler. resolver may be nil, in which case a fresh
// in-memory resolver is used (single-batch dedup only).
func New(model *schema.Model, resolver Resolver) *Compiler {
	if resolver == nil {
		resolver = NewMemoryResolver()
	}
	return &Compiler{model: model, resolver: resolver}
}

// Normalize produces the canonical form of a key attribute value: lowercase,
// whitespace collapsed and trimmed. Construction and query time must both go
// through this function or cross-batch dedup silently fails.
func Normalize(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

// CanonicalKey builds the canonical identity of an entity mention.
func CanonicalKey(entityType, keyValue string) string {
	return entityType + "\x1f" + Normalize(keyValue)
}

// batch holds the parsed mention set for one compilation.
type batch struct {
	entities   []EntityMention
	properties []PropertyMention
	relations  []RelationMention
	sources    map[int]string // line -> active source title
}

// Compile is a deterministic, total function from raw model output to a
// Result. It never fails on bad content, only on resolver errors (the
// resolver may touch the store).
func (c *Compiler) Compile(ctx context.Context, raw string) (*Result, error) {
	res := &Result{}
	b := c.parse(raw, res)
	if err := c.render(ctx, b, res); err != nil {
		return nil, err
	}
	return res, nil
}

// parse classifies each non-blank line by its leading tag and builds the
// mention set. Stage one: no schema knowledge, no trust.
func (c *Compiler) parse(raw string, res *Result) *batch {
	b := &batch{sources: make(map[int]string)}
	currentSource := ""
	localIDs := make(map[string]int) // local id -> defining line

	for i, line := range strings.Split(raw, "\n") {
		lineNo := i + 1
		text := strings.TrimSpace(line)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, "|")
		for j := range fields {
			fields[j] = strings.TrimSpace(fields[j])
		}
		tag := fields[0]

		switch tag {
		case "source":
			if len(fields) < 2 || unquote(fields[1]) == "" {
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: lineNo, Text: text, Reason: "source line needs a title",
				})
				continue
			}
			currentSource = unquote(strings.Join(fields[1:], "|"))

		case "entity":
			if len(fields) < 4 {
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: lineNo, Text: text, Reason: "entity line needs local-id, type, and key value",
				})
				continue
			}
			key := unquote(strings.Join(fields[3:], "|"))
			if Normalize(key) == "" {
				// An empty key is not a wildcard.
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: lineNo, Text: text, Reason: "empty key attribute value",
				})
				continue
			}
			id := fields[1]
			if id == "" {
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: lineNo, Text: text, Reason: "empty local id",
				})
				continue
			}
			if prev, dup := localIDs[id]; dup {
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: lineNo, Text: text,
					Reason: fmt.Sprintf("local id %q already defined at line %d", id, prev),
				})
				continue
			}
			localIDs[id] = lineNo
			b.entities = append(b.entities, EntityMention{
				LocalID: id, Type: fields[2], KeyValue: key, Line: lineNo,
			})
			b.sources[lineNo] = currentSource

		case "property":
			if len(fields) < 4 {
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: lineNo, Text: text, Reason: "property line needs local-id, attribute, and value",
				})
				continue
			}
			b.properties = append(b.properties, PropertyMention{
				LocalID:   fields[1],
				Attribute: fields[2],
				Value:     unquote(strings.Join(fields[3:], "|")),
				Line:      lineNo,
			})
			b.sources[lineNo] = currentSource

		case "relation":
			if len(fields) < 3 {
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: lineNo, Text: text, Reason: "relation line needs type and role bindings",
				})
				continue
			}
			bindings, reason := parseBindings(fields[2])
			if reason != "" {
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: lineNo, Text: text, Reason: reason,
				})
				continue
			}
			b.relations = append(b.relations, RelationMention{
				Type: fields[1], Bindings: bindings, Line: lineNo,
			})
			b.sources[lineNo] = currentSource

		default:
			res.Malformed = append(res.Malformed, MalformedLineError{
				Line: lineNo, Text: text, Reason: "unrecognized line tag " + strconv.Quote(tag),
			})
		}
	}
	return b
}

// parseBindings parses "e1,e2" or "wife:e1,husband:e2" binding lists.
func parseBindings(s string) ([]RoleBinding, string) {
	parts := strings.Split(s, ",")
	bindings := make([]RoleBinding, 0, len(parts))
	explicit := 0
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, "empty role binding"
		}
		if role, id, ok := strings.Cut(p, ":"); ok {
			role, id = strings.TrimSpace(role), strings.TrimSpace(id)
			if role == "" || id == "" {
				return nil, "role binding needs both role and local id"
			}
			bindings = append(bindings, RoleBinding{Role: role, LocalID: id})
			explicit++
		} else {
			bindings = append(bindings, RoleBinding{LocalID: p})
		}
	}
	if explicit != 0 && explicit != len(bindings) {
		return nil, "role bindings must be all positional or all explicit"
	}
	if len(bindings) == 0 {
		return nil, "relation needs at least one binding"
	}
	return bindings, ""
}

// unquote strips one pair of matching double quotes.
func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

var varSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// varFor derives a deterministic statement variable from a canonical key.
func varFor(entityType, normKey string, taken map[string]string, canonKey string) string {
	base := "$" + strings.Trim(varSanitizer.ReplaceAllString(
		strings.ToLower(entityType+"-"+normKey), "-"), "-")
	if base == "$" {
		base = "$e"
	}
	v := base
	for n := 2; ; n++ {
		owner, exists := taken[v]
		if !exists {
			taken[v] = canonKey
			return v
		}
		if owner == canonKey {
			return v
		}
		v = base + "-" + strconv.Itoa(n)
	}
}

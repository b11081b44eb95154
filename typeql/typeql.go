// Package typeql handles formal graph statements as opaque-but-checkable
// text: splitting model output into individual statements, escaping string
// literals, and validating statements against the schema model. It is
// deliberately conservative: statements are accepted verbatim or rejected
// with a reason, never repaired, since silent repair could insert
// semantically wrong graph content.
package typeql

import (
	"strings"

	"github.com/aferrante/typekg/schema"
)

// Rejection pairs a rejected statement with the reason it failed validation.
type Rejection struct {
	Statement string
	Reason    string
}

// Result is the outcome of validating a raw block of statements.
type Result struct {
	Accepted []string
	Rejected []Rejection
}

// keywords that begin a query head rather than a data pattern. Heads are
// carried through to the first statement they govern.
var headKeywords = map[string]bool{
	"insert": true,
	"match":  true,
	"put":    true,
	"define": true,
}

// Split divides raw statement text on ';' terminators, ignoring terminators
// inside string literals. Returned statements keep their terminator and are
// whitespace-trimmed; empty fragments are dropped.
func Split(raw string) []string {
	var stmts []string
	var cur strings.Builder
	inString := false
	escaped := false

	for _, r := range raw {
		cur.WriteRune(r)
		if inString {
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case ';':
			if s := strings.TrimSpace(cur.String()); s != ";" && s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		// Trailing fragment without a terminator still counts as a statement.
		stmts = append(stmts, s)
	}
	return stmts
}

// Validate splits raw model output into statements and checks every
// referenced type, attribute, and role name against the schema model.
// Accepted statements are returned verbatim; each rejected statement carries
// the first violation found.
func Validate(m *schema.Model, raw string) Result {
	var res Result
	for _, stmt := range Split(raw) {
		body := stripHead(stmt)
		if strings.TrimSpace(body) == "" {
			continue
		}
		if v := m.Validate(body); v != nil {
			res.Rejected = append(res.Rejected, Rejection{Statement: stmt, Reason: v.Error()})
			continue
		}
		res.Accepted = append(res.Accepted, stmt)
	}
	return res
}

// stripHead removes a leading query-head keyword (insert/match/put/define)
// so the schema scanner only sees the data pattern. "put" doubles as a
// pattern keyword in single-statement form, so it is kept.
func stripHead(stmt string) string {
	trimmed := strings.TrimSpace(stmt)
	word, rest, found := strings.Cut(trimmed, "\n")
	if !found {
		word, rest, found = strings.Cut(trimmed, " ")
	}
	if found && headKeywords[strings.TrimSpace(word)] && strings.TrimSpace(word) != "put" {
		return rest
	}
	return trimmed
}

// Escape backslash-escapes quotes and backslashes for embedding a value in a
// statement string literal.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// Quote renders s as a statement string literal.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}

package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// Violation reports a statement token that does not resolve against the model.
type Violation struct {
	Reason string
	Token  string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("schema violation: %s (%q)", v.Reason, v.Token)
}

// Validate scans a single data statement (put/insert/match body) and checks
// that every referenced type, attribute, and role name resolves in the model.
// It returns nil when the statement is schema-valid. Validation is purely
// name-level: it never rewrites or repairs the statement.
func (m *Model) Validate(statement string) *Violation {
	tokens := tokenize(statement)

	// First pass: find the relation context (isa <relation>) so role names
	// can be checked against the right relation when one is named.
	var relCtx *Type
	for i := 0; i < len(tokens)-1; i++ {
		if tokens[i].text == "isa" {
			if t, ok := m.types[tokens[i+1].text]; ok && t.Kind == KindRelation {
				relCtx = t
			}
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.text {
		case "isa":
			if i+1 >= len(tokens) {
				return &Violation{Reason: "dangling isa", Token: "isa"}
			}
			name := tokens[i+1].text
			t, ok := m.types[name]
			if !ok {
				return &Violation{Reason: "unknown type after isa", Token: name}
			}
			if t.Kind == KindAttribute {
				return &Violation{Reason: "attribute type used after isa", Token: name}
			}
			i++
		case "has":
			if i+1 >= len(tokens) {
				return &Violation{Reason: "dangling has", Token: "has"}
			}
			name := tokens[i+1].text
			if _, ok := m.Attribute(name); !ok {
				return &Violation{Reason: "unknown attribute after has", Token: name}
			}
			i++
		case "relates":
			if relCtx == nil || i+1 >= len(tokens) || !relCtx.HasRole(tokens[i+1].text) {
				tokenText := "relates"
				if i+1 < len(tokens) {
					tokenText = tokens[i+1].text
				}
				return &Violation{Reason: "relates role does not resolve", Token: tokenText}
			}
			i++
		case "plays":
			if i+1 >= len(tokens) {
				return &Violation{Reason: "dangling plays", Token: "plays"}
			}
			name := tokens[i+1].text
			rel, role, ok := strings.Cut(name, ":")
			if !ok {
				return &Violation{Reason: "plays target must be relation:role", Token: name}
			}
			rt, found := m.Relation(rel)
			if !found || !rt.HasRole(role) {
				return &Violation{Reason: "unknown relation role in plays", Token: name}
			}
			i++
		default:
			// Role bindings inside parentheses: "wife:" before a variable.
			if tok.inParens && strings.HasSuffix(tok.text, ":") {
				role := strings.TrimSuffix(tok.text, ":")
				if role == "" {
					return &Violation{Reason: "empty role name", Token: tok.text}
				}
				if relCtx != nil {
					if !relCtx.HasRole(role) {
						return &Violation{
							Reason: "role not declared by relation " + relCtx.Name,
							Token:  role,
						}
					}
				} else if !m.roleDeclared(role) {
					return &Violation{Reason: "role not declared by any relation", Token: role}
				}
			}
		}
	}
	return nil
}

// roleDeclared reports whether any relation declares the role.
func (m *Model) roleDeclared(role string) bool {
	for _, t := range m.types {
		if t.Kind == KindRelation && t.HasRole(role) {
			return true
		}
	}
	return false
}

type token struct {
	text     string
	inParens bool
}

// tokenize splits a statement into word tokens, skipping string literals and
// variables, tracking parenthesis depth so role bindings can be recognized.
func tokenize(statement string) []token {
	var tokens []token
	depth := 0
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, token{text: cur.String(), inParens: depth > 0})
			cur.Reset()
		}
	}

	inString := false
	escaped := false
	skipVar := false

	for _, r := range statement {
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
		switch {
		case r == '"':
			flush()
			inString = true
		case r == '$':
			flush()
			skipVar = true
		case r == '(':
			flush()
			depth++
			skipVar = false
		case r == ')':
			flush()
			if depth > 0 {
				depth--
			}
			skipVar = false
		case r == ',' || r == ';' || unicode.IsSpace(r):
			flush()
			skipVar = false
		default:
			if skipVar {
				continue // variable names are not schema references
			}
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// Package schema holds the in-memory model of the declared entity, relation,
// and attribute types. Every other component treats it as the validation
// oracle: a statement or mention that references a name this model cannot
// resolve is rejected, never silently dropped.
package schema

import (
	"fmt"
	"os"
	"strings"
)

// Kind classifies a declared type.
type Kind string

const (
	KindEntity    Kind = "entity"
	KindRelation  Kind = "relation"
	KindAttribute Kind = "attribute"
)

// Attribute value types. Unspecified attributes accept any literal.
const (
	ValueString  = "string"
	ValueInteger = "integer"
	ValueDouble  = "double"
	ValueBoolean = "boolean"
	ValueDate    = "date"
)

// Type is one declared schema type.
type Type struct {
	Kind Kind
	Name string

	// Owns lists attribute names in declaration order (entities and relations).
	Owns []string

	// Roles lists role names in declaration order (relations only). The
	// order matters: the line compiler binds bare relation arguments to
	// roles positionally.
	Roles []string

	// Plays lists "relation:role" pairs this type may play (entities).
	Plays []string

	// ValueType is the declared value type (attributes only, may be empty).
	ValueType string
}

// HasOwns reports whether the type owns the named attribute.
func (t *Type) HasOwns(attr string) bool {
	for _, a := range t.Owns {
		if a == attr {
			return true
		}
	}
	return false
}

// HasRole reports whether the relation declares the named role.
func (t *Type) HasRole(role string) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Model is the immutable set of declared types. Safe for concurrent reads.
type Model struct {
	types map[string]*Type
	order []string // declaration order, for stable iteration
}

// ParseError reports a malformed schema declaration. It is fatal: a schema
// that cannot be fully parsed aborts the run.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("schema: line %d: %s (%q)", e.Line, e.Reason, e.Text)
}

// Load reads and parses a schema source file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema source: %w", err)
	}
	return Parse(string(data))
}

// Parse builds a Model from declarative schema text. The accepted grammar is
// the flat form produced by the fetch-schema command:
//
//	define
//	entity person;
//	attribute name value string;
//	relation marriage;
//	person owns name;
//	marriage relates wife;
//	person plays marriage:wife;
//
// Comment lines (# or //) and blank lines are skipped. Any other line is a
// ParseError.
func Parse(src string) (*Model, error) {
	m := &Model{types: make(map[string]*Type)}

	for i, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if line == "define" {
			continue
		}
		line = strings.TrimSuffix(line, ";")
		line = strings.ReplaceAll(line, ",", " ")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, &ParseError{Line: lineNo, Text: raw, Reason: "incomplete declaration"}
		}

		switch fields[0] {
		case "entity":
			if err := m.declare(KindEntity, fields[1], lineNo, raw); err != nil {
				return nil, err
			}
		case "relation":
			if err := m.declare(KindRelation, fields[1], lineNo, raw); err != nil {
				return nil, err
			}
		case "attribute":
			if err := m.declare(KindAttribute, fields[1], lineNo, raw); err != nil {
				return nil, err
			}
			// Optional trailing "value <type>".
			if len(fields) >= 4 && fields[2] == "value" {
				vt := fields[3]
				switch vt {
				case ValueString, ValueInteger, ValueDouble, ValueBoolean, ValueDate:
					m.types[fields[1]].ValueType = vt
				default:
					return nil, &ParseError{Line: lineNo, Text: raw, Reason: "unknown value type " + vt}
				}
			}
		default:
			// Attachment declarations: <name> owns|relates|plays <target>.
			if len(fields) != 3 {
				return nil, &ParseError{Line: lineNo, Text: raw, Reason: "unrecognized declaration"}
			}
			subject, verb, object := fields[0], fields[1], fields[2]
			t, ok := m.types[subject]
			if !ok {
				return nil, &ParseError{Line: lineNo, Text: raw, Reason: "undeclared type " + subject}
			}
			switch verb {
			case "owns":
				if at, ok := m.types[object]; !ok || at.Kind != KindAttribute {
					return nil, &ParseError{Line: lineNo, Text: raw, Reason: "owns target is not a declared attribute: " + object}
				}
				t.Owns = append(t.Owns, object)
			case "relates":
				if t.Kind != KindRelation {
					return nil, &ParseError{Line: lineNo, Text: raw, Reason: subject + " is not a relation"}
				}
				t.Roles = append(t.Roles, object)
			case "plays":
				rel, role, ok := strings.Cut(object, ":")
				if !ok {
					return nil, &ParseError{Line: lineNo, Text: raw, Reason: "plays target must be relation:role"}
				}
				rt, found := m.types[rel]
				if !found || rt.Kind != KindRelation {
					return nil, &ParseError{Line: lineNo, Text: raw, Reason: "plays target is not a declared relation: " + rel}
				}
				if !rt.HasRole(role) {
					return nil, &ParseError{Line: lineNo, Text: raw, Reason: "relation " + rel + " does not relate " + role}
				}
				t.Plays = append(t.Plays, object)
			default:
				return nil, &ParseError{Line: lineNo, Text: raw, Reason: "unrecognized declaration verb " + verb}
			}
		}
	}

	if len(m.types) == 0 {
		return nil, &ParseError{Line: 0, Text: "", Reason: "schema declares no types"}
	}
	return m, nil
}

func (m *Model) declare(kind Kind, name string, lineNo int, raw string) error {
	if name == "" {
		return &ParseError{Line: lineNo, Text: raw, Reason: "empty type name"}
	}
	if existing, ok := m.types[name]; ok {
		if existing.Kind != kind {
			return &ParseError{Line: lineNo, Text: raw, Reason: "type " + name + " redeclared with a different kind"}
		}
		return nil // harmless duplicate
	}
	m.types[name] = &Type{Kind: kind, Name: name}
	m.order = append(m.order, name)
	return nil
}

// ResolveType looks up a declared type by name.
func (m *Model) ResolveType(name string) (*Type, bool) {
	t, ok := m.types[name]
	return t, ok
}

// Entity resolves name to an entity type.
func (m *Model) Entity(name string) (*Type, bool) {
	t, ok := m.types[name]
	if !ok || t.Kind != KindEntity {
		return nil, false
	}
	return t, true
}

// Relation resolves name to a relation type.
func (m *Model) Relation(name string) (*Type, bool) {
	t, ok := m.types[name]
	if !ok || t.Kind != KindRelation {
		return nil, false
	}
	return t, true
}

// Attribute resolves name to an attribute type.
func (m *Model) Attribute(name string) (*Type, bool) {
	t, ok := m.types[name]
	if !ok || t.Kind != KindAttribute {
		return nil, false
	}
	return t, true
}

// Types returns all declared types in declaration order.
func (m *Model) Types() []*Type {
	out := make([]*Type, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.types[name])
	}
	return out
}

// KeyAttribute returns the key attribute for an entity type: the first owned
// attribute in declaration order. Entity mentions in the line format carry
// exactly this attribute's value as their identity.
func (m *Model) KeyAttribute(entity *Type) (string, bool) {
	if len(entity.Owns) == 0 {
		return "", false
	}
	return entity.Owns[0], true
}

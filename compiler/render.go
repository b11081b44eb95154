package compiler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aferrante/typekg/schema"
	"github.com/aferrante/typekg/typeql"
)

// attrValue is one deduplicated attribute literal attached to a canonical entity.
type attrValue struct {
	attribute string
	literal   string // rendered statement literal
}

// canonicalEntity accumulates the batch-local view of one graph node.
type canonicalEntity struct {
	canonKey string
	typeName string
	normKey  string
	keyAttr  string
	keyLit   string
	variable string
	origin   string
	line     int // first-mention line
	attrs    []attrValue
	seen     map[string]bool // attribute + literal, exact-value dedup
}

// render is stage two: canonicalize entity mentions, rewrite local ids to
// canonical identities, and emit schema-valid statements. Entities render
// before relations, so no relation ever precedes the entities it binds.
func (c *Compiler) render(ctx context.Context, b *batch, res *Result) error {
	byLocal := make(map[string]*canonicalEntity)
	byKey := make(map[string]*canonicalEntity)
	varsTaken := make(map[string]string)
	var order []*canonicalEntity

	// Canonicalization pass over entity mentions.
	for _, em := range b.entities {
		t, ok := c.model.Entity(em.Type)
		if !ok {
			res.Unknown = append(res.Unknown, UnknownReferenceError{
				Line: em.Line, Ref: em.Type, Reason: "undeclared entity type",
			})
			continue
		}
		keyAttr, ok := c.model.KeyAttribute(t)
		if !ok {
			res.Unknown = append(res.Unknown, UnknownReferenceError{
				Line: em.Line, Ref: em.Type, Reason: "entity type owns no key attribute",
			})
			continue
		}

		norm := Normalize(em.KeyValue)
		ck := CanonicalKey(em.Type, em.KeyValue)
		ce, exists := byKey[ck]
		if !exists {
			at, _ := c.model.Attribute(keyAttr)
			keyLit, reason := renderValue(at, norm)
			if reason != "" {
				res.Malformed = append(res.Malformed, MalformedLineError{
					Line: em.Line, Text: em.KeyValue, Reason: reason,
				})
				continue
			}

			existed, err := c.resolver.ResolveEntity(ctx, em.Type, norm)
			if err != nil {
				return fmt.Errorf("resolving canonical entity %s %q: %w", em.Type, norm, err)
			}
			if existed {
				res.MergedEntities++
			} else {
				res.NewEntities++
			}

			ce = &canonicalEntity{
				canonKey: ck,
				typeName: em.Type,
				normKey:  norm,
				keyAttr:  keyAttr,
				keyLit:   keyLit,
				variable: varFor(em.Type, norm, varsTaken, ck),
				origin:   b.sources[em.Line],
				line:     em.Line,
				seen:     make(map[string]bool),
			}
			byKey[ck] = ce
			order = append(order, ce)
		}
		byLocal[em.LocalID] = ce
	}

	// Attach property mentions, deduplicated by exact value. Multi-valued
	// attributes keep distinct values.
	for _, pm := range b.properties {
		ce, ok := byLocal[pm.LocalID]
		if !ok {
			res.Unknown = append(res.Unknown, UnknownReferenceError{
				Line: pm.Line, Ref: pm.LocalID, Reason: "property references undefined local id",
			})
			continue
		}
		at, ok := c.model.Attribute(pm.Attribute)
		if !ok {
			res.Unknown = append(res.Unknown, UnknownReferenceError{
				Line: pm.Line, Ref: pm.Attribute, Reason: "undeclared attribute type",
			})
			continue
		}
		t, _ := c.model.Entity(ce.typeName)
		if t != nil && !t.HasOwns(pm.Attribute) {
			res.Unknown = append(res.Unknown, UnknownReferenceError{
				Line: pm.Line, Ref: pm.Attribute,
				Reason: "entity type " + ce.typeName + " does not own attribute",
			})
			continue
		}
		lit, reason := renderValue(at, pm.Value)
		if reason != "" {
			res.Malformed = append(res.Malformed, MalformedLineError{
				Line: pm.Line, Text: pm.Value, Reason: reason,
			})
			continue
		}
		dedup := pm.Attribute + "\x1f" + lit
		if ce.seen[dedup] {
			continue
		}
		ce.seen[dedup] = true
		ce.attrs = append(ce.attrs, attrValue{attribute: pm.Attribute, literal: lit})
	}

	// Emit entity statements in first-mention order: creation first, then
	// one statement per attached attribute value.
	for _, ce := range order {
		res.Statements = append(res.Statements, Statement{
			Text: fmt.Sprintf("put %s isa %s, has %s %s;",
				ce.variable, ce.typeName, ce.keyAttr, ce.keyLit),
			Origin: ce.origin,
			Keys:   []string{ce.canonKey},
		})
		if err := c.attachEmbedding(ctx, ce, res); err != nil {
			return err
		}
		for _, av := range ce.attrs {
			res.Statements = append(res.Statements, Statement{
				Text:   fmt.Sprintf("put %s has %s %s;", ce.variable, av.attribute, av.literal),
				Origin: ce.origin,
				Keys:   []string{ce.canonKey},
			})
		}
	}

	// Relations last, in input order. Local ids are rewritten to canonical
	// identities first, so two local ids naming the same real-world entity
	// collapse before rendering.
	relIndex := 0
	for _, rm := range b.relations {
		rt, ok := c.model.Relation(rm.Type)
		if !ok {
			res.Unknown = append(res.Unknown, UnknownReferenceError{
				Line: rm.Line, Ref: rm.Type, Reason: "undeclared relation type",
			})
			continue
		}

		bindings, problem := c.bindRoles(rt, rm)
		if problem != nil {
			if u, ok := problem.(UnknownReferenceError); ok {
				res.Unknown = append(res.Unknown, u)
			} else if m, ok := problem.(MalformedLineError); ok {
				res.Malformed = append(res.Malformed, m)
			}
			continue
		}

		players := make([]*canonicalEntity, len(bindings))
		unknown := false
		for i, rb := range bindings {
			ce, ok := byLocal[rb.LocalID]
			if !ok {
				res.Unknown = append(res.Unknown, UnknownReferenceError{
					Line: rm.Line, Ref: rb.LocalID, Reason: "relation references undefined local id",
				})
				unknown = true
				break
			}
			players[i] = ce
		}
		if unknown {
			continue
		}

		// Canonical collapse: distinct keys after rewriting.
		keys := make([]string, 0, len(players))
		distinct := make(map[string]bool)
		for _, ce := range players {
			if !distinct[ce.canonKey] {
				distinct[ce.canonKey] = true
				keys = append(keys, ce.canonKey)
			}
		}
		if len(distinct) == 1 && len(players) > 1 && !c.AllowReflexive {
			res.SelfRelationsDropped++
			continue
		}

		relIndex++
		parts := make([]string, len(bindings))
		for i, rb := range bindings {
			parts[i] = rb.Role + ": " + players[i].variable
		}
		res.Statements = append(res.Statements, Statement{
			Text: fmt.Sprintf("put $r%d isa %s, links (%s);",
				relIndex, rm.Type, strings.Join(parts, ", ")),
			Origin: b.sources[rm.Line],
			Keys:   keys,
		})
	}

	return nil
}

// attachEmbedding emits the encoded key embedding as an attribute statement
// for one canonical entity, when the compiler is configured for it. Entity
// types that do not own the attribute are recorded, not guessed around.
func (c *Compiler) attachEmbedding(ctx context.Context, ce *canonicalEntity, res *Result) error {
	if c.EmbedAttr == "" || c.EmbedText == nil {
		return nil
	}
	t, _ := c.model.Entity(ce.typeName)
	if t == nil || !t.HasOwns(c.EmbedAttr) {
		res.Unknown = append(res.Unknown, UnknownReferenceError{
			Line: ce.line, Ref: c.EmbedAttr,
			Reason: "entity type " + ce.typeName + " does not own embedding attribute",
		})
		return nil
	}
	enc, err := c.EmbedText(ctx, ce.normKey)
	if err != nil {
		return fmt.Errorf("embedding entity key %q: %w", ce.normKey, err)
	}
	res.Statements = append(res.Statements, Statement{
		Text:   fmt.Sprintf("put %s has %s %s;", ce.variable, c.EmbedAttr, typeql.Quote(enc)),
		Origin: ce.origin,
		Keys:   []string{ce.canonKey},
	})
	return nil
}

// bindRoles resolves a relation mention's bindings to declared role names:
// explicit role names must all resolve; bare ids bind to the relation's
// declared roles in order.
func (c *Compiler) bindRoles(rt *schema.Type, rm RelationMention) ([]RoleBinding, error) {
	explicit := rm.Bindings[0].Role != ""
	if explicit {
		out := make([]RoleBinding, len(rm.Bindings))
		for i, rb := range rm.Bindings {
			if !rt.HasRole(rb.Role) {
				return nil, UnknownReferenceError{
					Line: rm.Line, Ref: rb.Role,
					Reason: "role not declared by relation " + rt.Name,
				}
			}
			out[i] = rb
		}
		return out, nil
	}

	if len(rm.Bindings) > len(rt.Roles) {
		return nil, MalformedLineError{
			Line: rm.Line, Text: rm.Type,
			Reason: fmt.Sprintf("%d bindings but relation %s declares %d roles",
				len(rm.Bindings), rt.Name, len(rt.Roles)),
		}
	}
	out := make([]RoleBinding, len(rm.Bindings))
	for i, rb := range rm.Bindings {
		out[i] = RoleBinding{Role: rt.Roles[i], LocalID: rb.LocalID}
	}
	return out, nil
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// renderValue renders a raw mention value as a statement literal according
// to the attribute's declared value type, or by detection when the schema
// leaves the type open. The non-empty second return is a rejection reason.
func renderValue(at *schema.Type, raw string) (string, string) {
	declared := ""
	if at != nil {
		declared = at.ValueType
	}

	switch declared {
	case schema.ValueString:
		return typeql.Quote(raw), ""
	case schema.ValueDate:
		if !dateRe.MatchString(raw) {
			return "", "value is not an ISO date for date attribute"
		}
		return raw, ""
	case schema.ValueBoolean:
		lower := strings.ToLower(raw)
		if lower != "true" && lower != "false" {
			return "", "value is not a boolean for boolean attribute"
		}
		return lower, ""
	case schema.ValueInteger:
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return "", "value is not an integer for integer attribute"
		}
		return raw, ""
	case schema.ValueDouble:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return "", "value is not a number for double attribute"
		}
		return raw, ""
	}

	// Undeclared value type: detect, in fixed order.
	if dateRe.MatchString(raw) {
		return raw, ""
	}
	if lower := strings.ToLower(raw); lower == "true" || lower == "false" {
		return lower, ""
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return raw, ""
	}
	return typeql.Quote(raw), ""
}

package schema

import (
	"sort"
	"strings"
)

// Define renders the model as a full define query. Output is sorted so the
// rendering is deterministic regardless of declaration order.
func (m *Model) Define() string {
	var entities, attributes, relations []string
	var owns, relates, plays []string

	for _, t := range m.types {
		switch t.Kind {
		case KindEntity:
			entities = append(entities, "entity "+t.Name+";")
		case KindAttribute:
			if t.ValueType != "" {
				attributes = append(attributes, "attribute "+t.Name+" value "+t.ValueType+";")
			} else {
				attributes = append(attributes, "attribute "+t.Name+";")
			}
		case KindRelation:
			relations = append(relations, "relation "+t.Name+";")
		}
		for _, a := range t.Owns {
			owns = append(owns, t.Name+" owns "+a+";")
		}
		for _, r := range t.Roles {
			relates = append(relates, t.Name+" relates "+r+";")
		}
		for _, p := range t.Plays {
			plays = append(plays, t.Name+" plays "+p+";")
		}
	}

	lines := []string{"define"}
	for _, group := range [][]string{entities, attributes, relations, owns, relates, plays} {
		sort.Strings(group)
		lines = append(lines, group...)
	}
	return strings.Join(lines, "\n")
}

// Compact renders a condensed schema representation for small-context models:
//
//	$var isa person | marriage;
//	# Has
//	person has name | birth-date;
//	# Links
//	marriage links (wife: person, husband: person);
func (m *Model) Compact() string {
	var instantiable []string
	ownsByOwner := make(map[string][]string)
	relations := make([]string, 0)
	playersByRole := make(map[string][]string) // "relation:role" -> players

	for _, t := range m.types {
		switch t.Kind {
		case KindEntity, KindRelation:
			instantiable = append(instantiable, t.Name)
			if t.Kind == KindRelation {
				relations = append(relations, t.Name)
			}
		}
		if len(t.Owns) > 0 {
			ownsByOwner[t.Name] = append([]string(nil), t.Owns...)
		}
		for _, p := range t.Plays {
			playersByRole[p] = append(playersByRole[p], t.Name)
		}
	}
	sort.Strings(instantiable)
	sort.Strings(relations)

	var b strings.Builder
	b.WriteString("$var isa " + strings.Join(instantiable, " | ") + ";\n")

	b.WriteString("# Has\n")
	for _, owner := range instantiable {
		attrs := ownsByOwner[owner]
		if len(attrs) == 0 {
			continue
		}
		sorted := append([]string(nil), attrs...)
		sort.Strings(sorted)
		b.WriteString(owner + " has " + strings.Join(sorted, " | ") + ";\n")
	}

	b.WriteString("\n# Links\n")
	for _, rel := range relations {
		t := m.types[rel]
		if len(t.Roles) == 0 {
			continue
		}
		parts := make([]string, 0, len(t.Roles))
		for _, role := range t.Roles {
			players := playersByRole[rel+":"+role]
			if len(players) > 0 {
				sort.Strings(players)
				parts = append(parts, role+": "+strings.Join(players, " | "))
			} else {
				parts = append(parts, role)
			}
		}
		b.WriteString(rel + " links (" + strings.Join(parts, ", ") + ");\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

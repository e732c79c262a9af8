package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphbrain/kgqa/internal/domain"
)

// generateSchemaText is C8's generate_schema_text, implemented purely in
// code rather than via the model per spec.md §4.8. It follows
// original_source's generate_schema_text: a sorted, deduplicated block of
// "start -> relation -> end" relationship lines, followed by a sorted block
// of "name: description" lines built from each node's original sentences
// (or a bare "name:" when it has none).
func generateSchemaText(nodes, relatedNodes []domain.Node, relationships []domain.Edge) string {
	all := make(map[string]domain.Node, len(nodes)+len(relatedNodes))
	for _, n := range nodes {
		if n.Name == "" {
			continue
		}
		all[n.Name] = n
	}
	for _, n := range relatedNodes {
		if n.Name == "" {
			continue
		}
		if _, ok := all[n.Name]; !ok {
			all[n.Name] = n
		}
	}

	relSeen := make(map[string]struct{}, len(relationships))
	var relLines []string
	for _, e := range relationships {
		line := fmt.Sprintf("%s -> %s -> %s", normalizeSpace(e.Source), normalizeSpace(e.Relation), normalizeSpace(e.Target))
		if _, dup := relSeen[line]; dup {
			continue
		}
		relSeen[line] = struct{}{}
		relLines = append(relLines, line)
	}
	sort.Strings(relLines)

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	nodeLines := make([]string, 0, len(names))
	for _, name := range names {
		desc := nodeDescriptionText(all[name])
		if desc != "" {
			nodeLines = append(nodeLines, fmt.Sprintf("%s: %s", name, desc))
		} else {
			nodeLines = append(nodeLines, name+":")
		}
	}

	top := strings.Join(relLines, "\n")
	bottom := strings.Join(nodeLines, "\n")
	switch {
	case top != "" && bottom != "":
		return top + "\n\n" + bottom
	case top != "":
		return top
	case bottom != "":
		return bottom
	default:
		return "no information was found in this context."
	}
}

// nodeDescriptionText joins a node's distinct original sentences into one
// space-normalized string, the same source generate_schema_text reads from.
func nodeDescriptionText(n domain.Node) string {
	seen := make(map[string]struct{}, len(n.OriginalSentences))
	var pieces []string
	for _, rec := range n.OriginalSentences {
		t := normalizeSpace(rec.OriginalSentence)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		pieces = append(pieces, t)
	}
	return strings.Join(pieces, " ")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

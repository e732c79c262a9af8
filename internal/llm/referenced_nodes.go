package llm

import (
	"encoding/json"
	"strings"
)

type referencedNodesPayload struct {
	ReferencedNodes []string `json:"referenced_nodes"`
}

// extractReferencedNodes parses the EOF-delimited JSON tail a generateAnswer
// response carries and strips any "label-name" prefix down to the bare name,
// following original_source's `node.split("-", 1)[1] if "-" in node else
// node`: everything up to and including the first "-" is a label tag, not
// part of the name.
func extractReferencedNodes(response string) []string {
	parts := strings.SplitN(response, "EOF", 2)
	if len(parts) < 2 {
		return nil
	}
	tail := strings.TrimSpace(parts[1])

	var payload referencedNodesPayload
	if err := json.Unmarshal([]byte(tail), &payload); err != nil {
		return nil
	}

	out := make([]string, 0, len(payload.ReferencedNodes))
	for _, raw := range payload.ReferencedNodes {
		out = append(out, stripLabelPrefix(raw))
	}
	return out
}

func stripLabelPrefix(node string) string {
	if idx := strings.Index(node, "-"); idx >= 0 {
		return node[idx+1:]
	}
	return node
}

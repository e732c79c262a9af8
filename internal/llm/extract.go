package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
)

const extractionPrompt = `Analyze the following text and extract nodes and edges.
Return nodes as an array of {"label": string, "name": string, "description": string} and
edges as an array of {"source": string, "target": string, "relation": string}, where source
and target must reference a node's name. Output strictly this JSON shape:
{"nodes": [...], "edges": [...]}
Every concept in the text should become its own node; if one description mixes multiple
concepts, split it into separate nodes. Do not invent information absent from the text.
Output nothing but the JSON object.

Text: `

const extractionSystemPrompt = "You are an expert at extracting structured nodes and edges from text. Edge source/target must reference a node's name."

type rawNode struct {
	Label       string `json:"label"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type rawEdge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

type extractionPayload struct {
	Nodes []rawNode `json:"nodes"`
	Edges []rawEdge `json:"edges"`
}

// extractGraphComponents implements C8's extract_graph_components: call the
// model in JSON mode, validate the shape, attach source_id-tagged
// descriptions, reject edges with missing endpoints, and deduplicate nodes
// by (name,label) and edges by (source,target,relation), per spec.md §4.8.
func extractGraphComponents(ctx context.Context, hc *httpClient, text, sourceID string) ([]domain.Node, []domain.Edge, error) {
	content, err := hc.chat(ctx, []chatMessage{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: extractionPrompt + text},
	}, temperatureExtraction, true)
	if err != nil {
		return nil, nil, err
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, nil, domainerr.LLM("extract_graph_components: invalid json response", err)
	}

	type nodeKey struct{ name, label string }
	order := make([]nodeKey, 0, len(payload.Nodes))
	merged := make(map[nodeKey]*domain.Node, len(payload.Nodes))

	for _, n := range payload.Nodes {
		if n.Name == "" || n.Label == "" {
			continue
		}
		key := nodeKey{name: n.Name, label: n.Label}
		existing, ok := merged[key]
		if !ok {
			existing = &domain.Node{Name: n.Name, Label: n.Label}
			merged[key] = existing
			order = append(order, key)
		}
		if n.Description != "" {
			existing.Descriptions = append(existing.Descriptions, domain.DescriptionRecord{
				Description: n.Description,
				SourceID:    sourceID,
			})
		}
	}

	nodeNames := make(map[string]struct{}, len(merged))
	nodes := make([]domain.Node, 0, len(merged))
	for _, key := range order {
		nodes = append(nodes, *merged[key])
		nodeNames[key.name] = struct{}{}
	}

	type edgeKey struct{ source, target, relation string }
	seenEdges := make(map[edgeKey]struct{}, len(payload.Edges))
	edges := make([]domain.Edge, 0, len(payload.Edges))
	for _, e := range payload.Edges {
		if e.Source == "" || e.Target == "" || e.Relation == "" {
			continue
		}
		if _, ok := nodeNames[e.Source]; !ok {
			continue
		}
		if _, ok := nodeNames[e.Target]; !ok {
			continue
		}
		key := edgeKey{e.Source, e.Target, e.Relation}
		if _, dup := seenEdges[key]; dup {
			continue
		}
		seenEdges[key] = struct{}{}
		edges = append(edges, domain.Edge{Source: e.Source, Target: e.Target, Relation: e.Relation})
	}

	return nodes, edges, nil
}

// generateAnswer implements C8's generate_answer: ask the model to answer
// from schema text, and request an EOF-delimited referenced_nodes JSON
// block in the same response (original_source's openai_service/ollama_service
// prompt shape).
func generateAnswer(ctx context.Context, hc *httpClient, schemaText, question string) (string, error) {
	var b strings.Builder
	b.WriteString("Using only the following knowledge-graph context, answer the question in natural ")
	b.WriteString("language to the extent the context and its relationships support. If the context is ")
	b.WriteString("completely unrelated, answer exactly: no relevant information was found in the knowledge graph.\n\n")
	b.WriteString("Knowledge graph context:\n")
	b.WriteString(schemaText)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nOutput format:\n[detailed answer to the question]\n\nEOF\n")
	b.WriteString(`{"referenced_nodes": ["node name 1", "node name 2", ...]}`)
	b.WriteString("\nList only the node names you actually used in referenced_nodes, and always emit EOF.")

	return hc.chat(ctx, []chatMessage{{Role: "user", Content: b.String()}}, temperatureDefault, false)
}

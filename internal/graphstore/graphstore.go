// Package graphstore implements C3: a per-brain typed property graph over
// Neo4j. Node identity is (name, brain_id); list-valued fields
// (descriptions, original_sentences) are merged with set-dedup on upsert,
// following the MERGE-then-SET idiom the teacher uses for its own
// knowledge-graph sync (internal/data/graph/neo4j_material_kg.go), adapted
// here for read-merge-write semantics since Neo4j has no native list-union
// operator without APOC.
package graphstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/platform/logger"
	"github.com/graphbrain/kgqa/internal/platform/neo4jdb"
)

const maxSchemaDepth = 5
const maxDeepSchemaDepth = 25

type Store interface {
	UpsertNodesEdges(ctx context.Context, brainID string, nodes []domain.Node, edges []domain.Edge) error
	GetGraph(ctx context.Context, brainID string) (domain.GraphProjection, error)
	QuerySchemaByNames(ctx context.Context, brainID string, names []string, deep bool) (domain.SchemaResult, error)
	GetDescriptions(ctx context.Context, brainID, nodeName string) ([]domain.DescriptionRecord, error)
	GetDescriptionsBulk(ctx context.Context, brainID string, names []string) (map[string][]string, error)
	GetOriginalSentences(ctx context.Context, brainID, nodeName, sourceID string) ([]domain.SentenceRecord, error)
	DeleteBySource(ctx context.Context, brainID, sourceID string) error
	DeleteByBrain(ctx context.Context, brainID string) error
}

type store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func New(client *neo4jdb.Client, log *logger.Logger) Store {
	return &store{client: client, log: log.With("service", "GraphStore")}
}

func (s *store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

type nodeRow struct {
	Label             string   `json:"label"`
	Descriptions      []string `json:"descriptions"`
	OriginalSentences []string `json:"original_sentences"`
}

func encodeDescription(d domain.DescriptionRecord) string {
	b, _ := json.Marshal(d)
	return string(b)
}

func decodeDescription(s string) (domain.DescriptionRecord, bool) {
	var d domain.DescriptionRecord
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return domain.DescriptionRecord{}, false
	}
	return d, true
}

func encodeSentence(rec domain.SentenceRecord) string {
	b, _ := json.Marshal(rec)
	return string(b)
}

func decodeSentence(s string) (domain.SentenceRecord, bool) {
	var rec domain.SentenceRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return domain.SentenceRecord{}, false
	}
	return rec, true
}

// UpsertNodesEdges writes nodes, then edges, inside one managed write
// transaction so the pair commits atomically (spec §4.3 invariant).
func (s *store) UpsertNodesEdges(ctx context.Context, brainID string, nodes []domain.Node, edges []domain.Edge) error {
	if s.client == nil || s.client.Driver == nil {
		return domainerr.GraphStore("graph store unavailable", nil)
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, n := range nodes {
			if err := upsertOneNode(ctx, tx, brainID, n); err != nil {
				return nil, err
			}
		}
		for _, e := range edges {
			if _, err := tx.Run(ctx, `
MATCH (s:Node {name: $source, brain_id: $brain_id})
MATCH (t:Node {name: $target, brain_id: $brain_id})
MERGE (s)-[r:RELATES_TO {relation: $relation}]->(t)
`, map[string]any{
				"source":   e.Source,
				"target":   e.Target,
				"relation": e.Relation,
				"brain_id": brainID,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return domainerr.GraphStore("upsert_nodes_edges failed", err)
	}
	return nil
}

func upsertOneNode(ctx context.Context, tx neo4j.ManagedTransaction, brainID string, n domain.Node) error {
	res, err := tx.Run(ctx, `
MERGE (node:Node {name: $name, brain_id: $brain_id})
ON CREATE SET node.label = $label, node.descriptions = [], node.original_sentences = []
RETURN node.descriptions AS descriptions, node.original_sentences AS original_sentences
`, map[string]any{"name": n.Name, "brain_id": brainID, "label": n.Label})
	if err != nil {
		return err
	}
	record, err := res.Single(ctx)
	if err != nil {
		return err
	}
	existingDescs := toStringSlice(record.Values[0])
	existingSents := toStringSlice(record.Values[1])

	descSeen := make(map[string]struct{}, len(existingDescs))
	mergedDescs := make([]string, 0, len(existingDescs)+len(n.Descriptions))
	for _, d := range existingDescs {
		if _, ok := descSeen[d]; ok {
			continue
		}
		descSeen[d] = struct{}{}
		mergedDescs = append(mergedDescs, d)
	}
	for _, d := range n.Descriptions {
		encoded := encodeDescription(d)
		if _, ok := descSeen[encoded]; ok {
			continue
		}
		descSeen[encoded] = struct{}{}
		mergedDescs = append(mergedDescs, encoded)
	}

	sentSeen := make(map[string]struct{}, len(existingSents))
	mergedSents := make([]string, 0, len(existingSents)+len(n.OriginalSentences))
	for _, raw := range existingSents {
		if rec, ok := decodeSentence(raw); ok {
			if _, dup := sentSeen[rec.OriginalSentence]; dup {
				continue
			}
			sentSeen[rec.OriginalSentence] = struct{}{}
		}
		mergedSents = append(mergedSents, raw)
	}
	for _, rec := range n.OriginalSentences {
		if _, dup := sentSeen[rec.OriginalSentence]; dup {
			continue
		}
		sentSeen[rec.OriginalSentence] = struct{}{}
		mergedSents = append(mergedSents, encodeSentence(rec))
	}

	label := n.Label
	if label == "" {
		label = n.Name
	}
	_, err = tx.Run(ctx, `
MATCH (node:Node {name: $name, brain_id: $brain_id})
SET node.label = $label, node.descriptions = $descriptions, node.original_sentences = $original_sentences
`, map[string]any{
		"name": n.Name, "brain_id": brainID, "label": label,
		"descriptions": mergedDescs, "original_sentences": mergedSents,
	})
	return err
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (s *store) GetGraph(ctx context.Context, brainID string) (domain.GraphProjection, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Node {brain_id: $brain_id}) RETURN n.name AS name`, map[string]any{"brain_id": brainID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		nodes := make([]domain.GraphNodeRef, 0, len(records))
		for _, r := range records {
			name, _ := r.Get("name")
			if n, ok := name.(string); ok {
				nodes = append(nodes, domain.GraphNodeRef{Name: n})
			}
		}

		res2, err := tx.Run(ctx, `
MATCH (s:Node {brain_id: $brain_id})-[r:RELATES_TO]->(t:Node {brain_id: $brain_id})
RETURN s.name AS source, t.name AS target, r.relation AS relation
`, map[string]any{"brain_id": brainID})
		if err != nil {
			return nil, err
		}
		linkRecords, err := res2.Collect(ctx)
		if err != nil {
			return nil, err
		}
		links := make([]domain.GraphLinkRef, 0, len(linkRecords))
		for _, r := range linkRecords {
			source, _ := r.Get("source")
			target, _ := r.Get("target")
			relation, _ := r.Get("relation")
			links = append(links, domain.GraphLinkRef{
				Source:   asString(source),
				Target:   asString(target),
				Relation: asString(relation),
			})
		}
		return domain.GraphProjection{Nodes: nodes, Links: links}, nil
	})
	if err != nil {
		return domain.GraphProjection{}, domainerr.GraphStore("get_graph failed", err)
	}
	return result.(domain.GraphProjection), nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func (s *store) fetchNode(ctx context.Context, tx neo4j.ManagedTransaction, brainID, name string) (*domain.Node, bool, error) {
	res, err := tx.Run(ctx, `
MATCH (n:Node {name: $name, brain_id: $brain_id})
RETURN n.label AS label, n.descriptions AS descriptions, n.original_sentences AS original_sentences
`, map[string]any{"name": name, "brain_id": brainID})
	if err != nil {
		return nil, false, err
	}
	record, err := res.Single(ctx)
	if err != nil {
		return nil, false, nil // not found is not a store error
	}
	label, _ := record.Get("label")
	rawDescs, _ := record.Get("descriptions")
	rawSents, _ := record.Get("original_sentences")

	node := &domain.Node{Name: name, BrainID: brainID, Label: asString(label)}
	for _, raw := range toStringSlice(rawDescs) {
		if d, ok := decodeDescription(raw); ok {
			node.Descriptions = append(node.Descriptions, d)
		}
	}
	for _, raw := range toStringSlice(rawSents) {
		if rec, ok := decodeSentence(raw); ok {
			node.OriginalSentences = append(node.OriginalSentences, rec)
		}
	}
	return node, true, nil
}

func (s *store) neighbors(ctx context.Context, tx neo4j.ManagedTransaction, brainID, name string) ([]domain.Edge, []string, error) {
	res, err := tx.Run(ctx, `
MATCH (n:Node {name: $name, brain_id: $brain_id})-[r:RELATES_TO]-(m:Node {brain_id: $brain_id})
RETURN n.name AS a, m.name AS b, r.relation AS relation, startNode(r).name AS startName
`, map[string]any{"name": name, "brain_id": brainID})
	if err != nil {
		return nil, nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, nil, err
	}
	edges := make([]domain.Edge, 0, len(records))
	names := make([]string, 0, len(records))
	for _, r := range records {
		a, _ := r.Get("a")
		b, _ := r.Get("b")
		relation, _ := r.Get("relation")
		startName, _ := r.Get("startName")

		src, tgt := asString(a), asString(b)
		if asString(startName) == asString(b) {
			src, tgt = asString(b), asString(a)
		}
		edges = append(edges, domain.Edge{Source: src, Target: tgt, Relation: asString(relation), BrainID: brainID})

		neighborName := asString(b)
		if neighborName == name {
			neighborName = asString(a)
		}
		names = append(names, neighborName)
	}
	return edges, names, nil
}

func hasNonEmptyDescription(n *domain.Node) bool {
	for _, d := range n.Descriptions {
		if d.Description != "" {
			return true
		}
	}
	return false
}

// QuerySchemaByNames resolves a subgraph anchored on names, per spec §4.3.
func (s *store) QuerySchemaByNames(ctx context.Context, brainID string, names []string, deep bool) (domain.SchemaResult, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	maxDepth := maxSchemaDepth
	if deep {
		maxDepth = maxDeepSchemaDepth
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		seenNodes := make(map[string]domain.Node)
		seenEdges := make(map[string]domain.Edge)
		var startOrder []string
		var relatedOrder []string

		addEdge := func(e domain.Edge) {
			key := e.Source + "\x00" + e.Target + "\x00" + e.Relation
			if _, ok := seenEdges[key]; ok {
				return
			}
			seenEdges[key] = e
		}
		addRelated := func(n domain.Node) {
			if _, ok := seenNodes[n.Name]; ok {
				return
			}
			seenNodes[n.Name] = n
			relatedOrder = append(relatedOrder, n.Name)
		}

		for _, name := range names {
			node, ok, err := s.fetchNode(ctx, tx, brainID, name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			seenNodes[node.Name] = *node
			startOrder = append(startOrder, node.Name)

			edges, neighborNames, err := s.neighbors(ctx, tx, brainID, node.Name)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				addEdge(e)
			}
			for _, nn := range neighborNames {
				if neighbor, ok, err := s.fetchNode(ctx, tx, brainID, nn); err == nil && ok {
					addRelated(*neighbor)
				}
			}

			if hasNonEmptyDescription(node) {
				continue
			}

			// Walk up to maxDepth looking for a descriptive node.
			visited := map[string]struct{}{node.Name: {}}
			frontier := []string{node.Name}
			for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
				var next []string
				for _, cur := range frontier {
					edges, neighborNames, err := s.neighbors(ctx, tx, brainID, cur)
					if err != nil {
						return nil, err
					}
					for _, e := range edges {
						addEdge(e)
					}
					for _, nn := range neighborNames {
						if _, dup := visited[nn]; dup {
							continue
						}
						visited[nn] = struct{}{}
						neighborNode, ok, err := s.fetchNode(ctx, tx, brainID, nn)
						if err != nil {
							return nil, err
						}
						if !ok {
							continue
						}
						addRelated(*neighborNode)
						if hasNonEmptyDescription(neighborNode) {
							continue
						}
						next = append(next, nn)
					}
				}
				frontier = next
			}
		}

		startNodes := make([]domain.Node, 0, len(startOrder))
		for _, n := range startOrder {
			startNodes = append(startNodes, seenNodes[n])
		}
		relatedNodes := make([]domain.Node, 0, len(relatedOrder))
		for _, n := range relatedOrder {
			if contains(startOrder, n) {
				continue
			}
			relatedNodes = append(relatedNodes, seenNodes[n])
		}
		relationships := make([]domain.Edge, 0, len(seenEdges))
		for _, e := range seenEdges {
			relationships = append(relationships, e)
		}
		sort.Slice(relationships, func(i, j int) bool {
			if relationships[i].Source != relationships[j].Source {
				return relationships[i].Source < relationships[j].Source
			}
			if relationships[i].Target != relationships[j].Target {
				return relationships[i].Target < relationships[j].Target
			}
			return relationships[i].Relation < relationships[j].Relation
		})

		return domain.SchemaResult{
			StartNodes:    startNodes,
			RelatedNodes:  relatedNodes,
			Relationships: relationships,
		}, nil
	})
	if err != nil {
		return domain.SchemaResult{}, domainerr.GraphStore("query_schema_by_names failed", err)
	}
	return result.(domain.SchemaResult), nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (s *store) GetDescriptions(ctx context.Context, brainID, nodeName string) ([]domain.DescriptionRecord, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		node, ok, err := s.fetchNode(ctx, tx, brainID, nodeName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []domain.DescriptionRecord{}, nil
		}
		return node.Descriptions, nil
	})
	if err != nil {
		return nil, domainerr.GraphStore("get_descriptions failed", err)
	}
	return result.([]domain.DescriptionRecord), nil
}

// GetDescriptionsBulk maps each name to the distinct source_ids referenced
// by its descriptions.
func (s *store) GetDescriptionsBulk(ctx context.Context, brainID string, names []string) (map[string][]string, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		out := make(map[string][]string, len(names))
		for _, name := range names {
			node, ok, err := s.fetchNode(ctx, tx, brainID, name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			seen := make(map[string]struct{})
			var ids []string
			for _, d := range node.Descriptions {
				if _, dup := seen[d.SourceID]; dup {
					continue
				}
				seen[d.SourceID] = struct{}{}
				ids = append(ids, d.SourceID)
			}
			out[name] = ids
		}
		return out, nil
	})
	if err != nil {
		return nil, domainerr.GraphStore("get_descriptions_bulk failed", err)
	}
	return result.(map[string][]string), nil
}

func (s *store) GetOriginalSentences(ctx context.Context, brainID, nodeName, sourceID string) ([]domain.SentenceRecord, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		node, ok, err := s.fetchNode(ctx, tx, brainID, nodeName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []domain.SentenceRecord{}, nil
		}
		seen := make(map[string]struct{})
		out := make([]domain.SentenceRecord, 0, len(node.OriginalSentences))
		for _, rec := range node.OriginalSentences {
			if rec.SourceID != sourceID {
				continue
			}
			if _, dup := seen[rec.OriginalSentence]; dup {
				continue
			}
			seen[rec.OriginalSentence] = struct{}{}
			out = append(out, domain.SentenceRecord{OriginalSentence: rec.OriginalSentence, SourceID: rec.SourceID})
		}
		return out, nil
	})
	if err != nil {
		return nil, domainerr.GraphStore("get_original_sentences failed", err)
	}
	return result.([]domain.SentenceRecord), nil
}

// DeleteBySource filters out descriptions/sentences referencing sourceID
// from every node in the brain, then deletes any node left with zero
// descriptions (together with its incident edges).
func (s *store) DeleteBySource(ctx context.Context, brainID, sourceID string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Node {brain_id: $brain_id}) RETURN n.name AS name, n.descriptions AS descriptions, n.original_sentences AS original_sentences`, map[string]any{"brain_id": brainID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			name, _ := r.Get("name")
			rawDescs, _ := r.Get("descriptions")
			rawSents, _ := r.Get("original_sentences")

			keptDescs := make([]string, 0)
			for _, raw := range toStringSlice(rawDescs) {
				d, ok := decodeDescription(raw)
				if ok && d.SourceID == sourceID {
					continue
				}
				keptDescs = append(keptDescs, raw)
			}
			keptSents := make([]string, 0)
			for _, raw := range toStringSlice(rawSents) {
				rec, ok := decodeSentence(raw)
				if ok && rec.SourceID == sourceID {
					continue
				}
				keptSents = append(keptSents, raw)
			}

			if len(keptDescs) == 0 {
				if _, err := tx.Run(ctx, `MATCH (n:Node {name: $name, brain_id: $brain_id}) DETACH DELETE n`, map[string]any{"name": name, "brain_id": brainID}); err != nil {
					return nil, err
				}
				continue
			}
			if _, err := tx.Run(ctx, `MATCH (n:Node {name: $name, brain_id: $brain_id}) SET n.descriptions = $descriptions, n.original_sentences = $original_sentences`, map[string]any{
				"name": name, "brain_id": brainID, "descriptions": keptDescs, "original_sentences": keptSents,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return domainerr.GraphStore("delete_by_source failed", err)
	}
	return nil
}

func (s *store) DeleteByBrain(ctx context.Context, brainID string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `MATCH (n:Node {brain_id: $brain_id}) DETACH DELETE n`, map[string]any{"brain_id": brainID})
	})
	if err != nil {
		return domainerr.GraphStore("delete_by_brain failed", err)
	}
	return nil
}

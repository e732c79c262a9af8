// Package ingestion implements C6: the coordinator that turns one
// ingested document into graph writes and vector writes, in rule or LLM
// extraction mode, grounded on
// original_source/backend/routers/brain_graph.py's process_text handler.
package ingestion

import (
	"context"

	"github.com/google/uuid"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/embedder"
	"github.com/graphbrain/kgqa/internal/extractor"
	"github.com/graphbrain/kgqa/internal/graphstore"
	"github.com/graphbrain/kgqa/internal/llm"
	"github.com/graphbrain/kgqa/internal/platform/logger"
	"github.com/graphbrain/kgqa/internal/vectorindex"
)

// Summary is C6's return shape: what was actually written, plus whether the
// vector write degraded relative to the graph write.
type Summary struct {
	Nodes    []domain.Node
	Edges    []domain.Edge
	Degraded bool
}

type Coordinator interface {
	Ingest(ctx context.Context, brainID, sourceID, text string, mode domain.ExtractionMode) (Summary, error)
	DeleteSource(ctx context.Context, brainID, sourceID string) error
}

type coordinator struct {
	log       *logger.Logger
	graph     graphstore.Store
	vectors   vectorindex.Index
	extractor extractor.Extractor
	llm       llm.Client
	embedder  embedder.Embedder
}

func New(log *logger.Logger, graph graphstore.Store, vectors vectorindex.Index, ext extractor.Extractor, llmClient llm.Client, emb embedder.Embedder) Coordinator {
	return &coordinator{
		log:       log.With("service", "IngestionCoordinator"),
		graph:     graph,
		vectors:   vectors,
		extractor: ext,
		llm:       llmClient,
		embedder:  emb,
	}
}

// Ingest runs spec.md §4.6's algorithm: ensure the brain's collection
// exists, extract nodes/edges (LLM or rule mode), write the graph, then
// upsert one vector point per node, deduping within this single call so a
// re-ingest never writes the same point id twice.
func (c *coordinator) Ingest(ctx context.Context, brainID, sourceID, text string, mode domain.ExtractionMode) (Summary, error) {
	if ctx == nil {
		return Summary{}, domainerr.InputValidation("ingestion: nil context")
	}
	if brainID == "" || sourceID == "" {
		return Summary{}, domainerr.InputValidation("ingestion: brain_id and source_id are required")
	}

	if err := c.vectors.EnsureCollection(ctx, brainID); err != nil {
		return Summary{}, err
	}

	var (
		nodes   []domain.Node
		edges   []domain.Edge
		vectors []domain.VectorPoint
	)

	switch mode {
	case domain.ModeLLM:
		n, e, err := c.llm.ExtractGraphComponents(ctx, text, sourceID)
		if err != nil {
			return Summary{}, err
		}
		for i := range n {
			n[i].BrainID = brainID
		}
		for i := range e {
			e[i].BrainID = brainID
		}
		nodes, edges = n, e
		vectors, err = c.embedNodes(ctx, brainID, sourceID, nodes)
		if err != nil {
			return Summary{}, err
		}
	default:
		result, err := c.extractor.Extract(ctx, brainID, sourceID, text)
		if err != nil {
			return Summary{}, err
		}
		nodes, edges, vectors = result.Nodes, result.Edges, result.Vectors
	}

	if err := c.graph.UpsertNodesEdges(ctx, brainID, nodes, edges); err != nil {
		return Summary{}, err
	}

	degraded := false
	upserted := make(map[string]struct{}, len(vectors))
	dedup := make([]domain.VectorPoint, 0, len(vectors))
	for _, p := range vectors {
		if _, dup := upserted[p.ID]; dup {
			continue
		}
		upserted[p.ID] = struct{}{}
		dedup = append(dedup, p)
	}
	if len(dedup) > 0 {
		if err := c.vectors.Upsert(ctx, brainID, dedup); err != nil {
			c.log.Warn("vector upsert failed after graph write succeeded, reporting degraded ingest",
				"brain_id", brainID, "source_id", sourceID, "error", err)
			degraded = true
		}
	}

	return Summary{Nodes: nodes, Edges: edges, Degraded: degraded}, nil
}

// embedNodes builds one vector point per LLM-extracted node, since the LLM
// Adapter's extraction contract carries no embeddings of its own. Each point
// is a single embedding of the node's description texts joined with spaces,
// not C5's mean of per-sentence embeddings.
func (c *coordinator) embedNodes(ctx context.Context, brainID, sourceID string, nodes []domain.Node) ([]domain.VectorPoint, error) {
	points := make([]domain.VectorPoint, 0, len(nodes))
	for _, n := range nodes {
		text := ""
		for i, d := range n.Descriptions {
			if i > 0 {
				text += " "
			}
			text += d.Description
		}
		vec, err := c.embedder.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		points = append(points, domain.VectorPoint{
			ID:          uuid.NewString(),
			BrainID:     brainID,
			Name:        n.Name,
			Description: text,
			SourceID:    sourceID,
			Vector:      vec,
		})
	}
	return points, nil
}

func (c *coordinator) DeleteSource(ctx context.Context, brainID, sourceID string) error {
	if err := c.graph.DeleteBySource(ctx, brainID, sourceID); err != nil {
		return err
	}
	return c.vectors.DeleteBySource(ctx, brainID, sourceID)
}

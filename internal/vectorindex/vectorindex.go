// Package vectorindex implements C2: per-workspace ANN collections over
// the Qdrant REST client in internal/platform/qdrant. Every operation is
// scoped to a brain's collection, named brain_{brain_id} per spec §3.
package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/platform/logger"
	"github.com/graphbrain/kgqa/internal/platform/qdrant"
)

// Index is the C2 contract the rest of the pipeline depends on.
type Index interface {
	EnsureCollection(ctx context.Context, brainID string) error
	Upsert(ctx context.Context, brainID string, points []domain.VectorPoint) error
	// Search returns the top-k hits by cosine similarity and a
	// retrieval-quality scalar Q in [0,1], the mean of the hits' scores
	// normalized to [0,1].
	Search(ctx context.Context, brainID string, query []float32, k int) ([]domain.SearchHit, float64, error)
	DeleteBySource(ctx context.Context, brainID string, sourceID string) error
	DeleteCollection(ctx context.Context, brainID string) error
}

type index struct {
	log    *logger.Logger
	client *qdrant.Client
	dim    int
}

func New(log *logger.Logger, client *qdrant.Client, dim int) Index {
	return &index{log: log.With("service", "VectorIndex"), client: client, dim: dim}
}

func collectionName(brainID string) string {
	return "brain_" + brainID
}

func (idx *index) EnsureCollection(ctx context.Context, brainID string) error {
	if brainID == "" {
		return domainerr.InputValidation("brain_id required")
	}
	if err := idx.client.EnsureCollection(ctx, collectionName(brainID), idx.dim); err != nil {
		return domainerr.VectorStore("ensure_collection failed", err)
	}
	return nil
}

func (idx *index) Upsert(ctx context.Context, brainID string, points []domain.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	qp := make([]qdrant.Point, 0, len(points))
	for _, p := range points {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		qp = append(qp, qdrant.Point{
			ID:     id,
			Vector: p.Vector,
			Payload: map[string]any{
				"name":         p.Name,
				"description":  p.Description,
				"source_id":    p.SourceID,
				"brain_id":     p.BrainID,
				"format_index": p.FormatIndex,
			},
		})
	}
	if err := idx.client.Upsert(ctx, collectionName(brainID), qp); err != nil {
		return domainerr.VectorStore("upsert failed", err)
	}
	return nil
}

func (idx *index) Search(ctx context.Context, brainID string, query []float32, k int) ([]domain.SearchHit, float64, error) {
	if len(query) == 0 {
		return nil, 0, domainerr.InputValidation("query vector required")
	}
	hits, err := idx.client.Search(ctx, collectionName(brainID), query, k, nil)
	if err != nil {
		return nil, 0, domainerr.VectorStore("search failed", err)
	}

	out := make([]domain.SearchHit, 0, len(hits))
	var sum float64
	for _, h := range hits {
		name, _ := h.Payload["name"].(string)
		desc, _ := h.Payload["description"].(string)
		srcID := payloadSourceID(h.Payload)
		normalized := normalizeScore(h.Score)
		out = append(out, domain.SearchHit{
			Name:        name,
			Description: desc,
			SourceID:    srcID,
			Score:       normalized,
		})
		sum += normalized
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	q := 0.0
	if len(out) > 0 {
		q = sum / float64(len(out))
	}
	return out, q, nil
}

// normalizeScore maps a cosine similarity (in [-1,1] from Qdrant) onto
// [0,1] via (score+1)/2, clamped, for use as a retrieval-quality input.
func normalizeScore(score float64) float64 {
	v := (score + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func payloadSourceID(payload map[string]any) string {
	switch v := payload["source_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int64(v))
	default:
		return ""
	}
}

func (idx *index) DeleteBySource(ctx context.Context, brainID string, sourceID string) error {
	if err := idx.client.DeleteByFilter(ctx, collectionName(brainID), map[string]any{"source_id": sourceID}); err != nil {
		return domainerr.VectorStore("delete_by_source failed", err)
	}
	return nil
}

func (idx *index) DeleteCollection(ctx context.Context, brainID string) error {
	if err := idx.client.DeleteCollection(ctx, collectionName(brainID)); err != nil {
		return domainerr.VectorStore("delete_collection failed", err)
	}
	return nil
}

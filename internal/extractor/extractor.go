// Package extractor implements C5: the rule-based algorithmic core that
// turns raw ingested text into typed graph nodes/edges and their vector
// points, without calling an LLM. It is grounded on
// original_source/backend/services/manual_chunking_sentences.py's recursive
// topical chunking and node_gen_ver5.py's node/edge assembly, adapted to
// spec.md's cleaned-up contract (nodes get up to 5 literal sentence matches
// as descriptions, regardless of how the chunking discovered the keyword).
package extractor

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/embedder"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

const maxDescriptionsPerNode = 5

// keywordEmbedWorkers bounds the per-keyword node/embedding fan-out (spec.md
// §5: "Stage-internal parallelism is used in the Extractor to compute
// per-keyword embeddings in parallel with up to 4 workers").
const keywordEmbedWorkers = 4

// Result is C5's output: the graph components plus the vector points that
// must accompany them into the vector index.
type Result struct {
	Nodes   []domain.Node
	Edges   []domain.Edge
	Vectors []domain.VectorPoint
}

type Extractor interface {
	Extract(ctx context.Context, brainID, sourceID, text string) (Result, error)
}

type extractor struct {
	log      *logger.Logger
	embedder embedder.Embedder
}

func New(log *logger.Logger, emb embedder.Embedder) Extractor {
	return &extractor{log: log.With("service", "Extractor"), embedder: emb}
}

func (e *extractor) Extract(ctx context.Context, brainID, sourceID, text string) (Result, error) {
	if ctx == nil {
		return Result{}, domainerr.InputValidation("extractor: nil context")
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, domainerr.InputValidation("extractor: empty text")
	}

	sentences := segmentSentences(text)
	if len(sentences) == 0 {
		return Result{}, domainerr.Extraction("extractor: no sentences survived segmentation", nil)
	}

	tokenized := make([]tokenizedSentence, len(sentences))
	for i, s := range sentences {
		tokenized[i] = tokenizedSentence{Index: s.Index, Tokens: tokenizeSentence(s.Text)}
	}

	builder := newChunkBuilder()
	chunkRecursive(builder, tokenized, 0, "", baseThreshold)
	if len(builder.keywords) == 0 {
		return Result{}, domainerr.Extraction("extractor: chunking produced no keywords", nil)
	}

	assembled, err := e.assembleNodesConcurrently(ctx, brainID, sourceID, builder, sentences)
	if err != nil {
		return Result{}, err
	}

	nodes := make([]domain.Node, 0, len(assembled))
	vectors := make([]domain.VectorPoint, 0, len(assembled))
	for _, a := range assembled {
		if len(a.node.Descriptions) == 0 {
			// keyword never literally occurs in any surviving sentence
			// (e.g. it was derived from a noun-phrase join); skip it
			// rather than emit an undescribed node.
			continue
		}
		nodes = append(nodes, a.node)
		vectors = append(vectors, a.point)
	}

	nodeNames := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		nodeNames[n.Name] = struct{}{}
	}

	edgeSeen := make(map[string]struct{})
	edges := make([]domain.Edge, 0, len(builder.edges))
	for _, draft := range builder.edges {
		if _, ok := nodeNames[draft.Source]; !ok {
			continue
		}
		if _, ok := nodeNames[draft.Target]; !ok {
			continue
		}
		relation := resolveRelation(draft.Source, draft.Target, sentences)
		key := draft.Source + "\x00" + draft.Target + "\x00" + relation
		if _, dup := edgeSeen[key]; dup {
			continue
		}
		edgeSeen[key] = struct{}{}
		edges = append(edges, domain.Edge{Source: draft.Source, Target: draft.Target, Relation: relation, BrainID: brainID})
	}

	return Result{Nodes: nodes, Edges: edges, Vectors: vectors}, nil
}

type assembledNode struct {
	node  domain.Node
	point domain.VectorPoint
}

// assembleNodesConcurrently computes one node/vector pair per discovered
// keyword, fanning the work out across a bounded pool so the embedding calls
// (the expensive part of assembleNode) overlap instead of running strictly
// one after another, same bounded-fan-out shape as internal/embedder's
// errgroup-based EncodeBatch.
func (e *extractor) assembleNodesConcurrently(ctx context.Context, brainID, sourceID string, builder *chunkBuilder, sentences []rawSentence) ([]assembledNode, error) {
	results := make([]assembledNode, len(builder.keywords))
	sem := semaphore.NewWeighted(keywordEmbedWorkers)
	eg, egCtx := errgroup.WithContext(ctx)
	for i, keyword := range builder.keywords {
		i, keyword := i, keyword
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		eg.Go(func() error {
			defer sem.Release(1)
			node, point, err := e.assembleNode(egCtx, brainID, sourceID, keyword, sentences, builder.directAttachments[keyword])
			if err != nil {
				return err
			}
			results[i] = assembledNode{node: node, point: point}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *extractor) assembleNode(ctx context.Context, brainID, sourceID, keyword string, sentences []rawSentence, directIndices []int) (domain.Node, domain.VectorPoint, error) {
	matches := matchingSentences(keyword, sentences, maxDescriptionsPerNode)
	matches = append(matches, directSentenceText(sentences, directIndices, matches, maxDescriptionsPerNode)...)

	descriptions := make([]domain.DescriptionRecord, 0, len(matches))
	original := make([]domain.SentenceRecord, 0, len(matches))
	for _, m := range matches {
		descriptions = append(descriptions, domain.DescriptionRecord{Description: m, SourceID: sourceID})
		original = append(original, domain.SentenceRecord{OriginalSentence: m, SourceID: sourceID, Score: 1.0})
	}

	node := domain.Node{
		Name:              keyword,
		BrainID:           brainID,
		Label:             keyword,
		Descriptions:      descriptions,
		OriginalSentences: original,
	}

	var point domain.VectorPoint
	if len(matches) > 0 {
		vec, err := meanEmbedding(ctx, e.embedder, matches)
		if err != nil {
			return domain.Node{}, domain.VectorPoint{}, err
		}
		point = domain.VectorPoint{
			ID:          uuid.NewString(),
			BrainID:     brainID,
			Name:        keyword,
			Description: strings.Join(matches, " "),
			SourceID:    sourceID,
			FormatIndex: 0,
			Vector:      vec,
		}
	}
	return node, point, nil
}

// directSentenceText resolves the raw text of sentences a too-small chunk
// group attached directly to a parent keyword (see chunkBuilder.attachDirect),
// skipping indices already present in existingMatches and stopping once the
// node's total description count reaches limit.
func directSentenceText(sentences []rawSentence, indices []int, existingMatches []string, limit int) []string {
	if len(indices) == 0 || len(existingMatches) >= limit {
		return nil
	}
	already := make(map[string]struct{}, len(existingMatches))
	for _, m := range existingMatches {
		already[m] = struct{}{}
	}
	byIndex := make(map[int]string, len(sentences))
	for _, s := range sentences {
		byIndex[s.Index] = s.Text
	}
	var out []string
	for _, idx := range indices {
		if len(existingMatches)+len(out) >= limit {
			break
		}
		text, ok := byIndex[idx]
		if !ok {
			continue
		}
		if _, dup := already[text]; dup {
			continue
		}
		already[text] = struct{}{}
		out = append(out, text)
	}
	return out
}

func matchingSentences(keyword string, sentences []rawSentence, limit int) []string {
	var out []string
	for _, s := range sentences {
		if strings.Contains(s.Text, keyword) {
			out = append(out, s.Text)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

func meanEmbedding(ctx context.Context, emb embedder.Embedder, sentences []string) ([]float32, error) {
	dim := emb.Dim()
	sum := make([]float32, dim)
	for _, s := range sentences {
		vec, err := emb.Encode(ctx, s)
		if err != nil {
			return nil, err
		}
		for i := 0; i < dim && i < len(vec); i++ {
			sum[i] += vec[i]
		}
	}
	n := float32(len(sentences))
	if n == 0 {
		return sum, nil
	}
	for i := range sum {
		sum[i] /= n
	}
	return sum, nil
}

// sortKeywords is used by tests to compare node sets deterministically.
func sortKeywords(keywords []string) []string {
	out := append([]string(nil), keywords...)
	sort.Strings(out)
	return out
}

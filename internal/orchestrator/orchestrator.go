// Package orchestrator implements C7: the multi-stage retrieval-augmented
// answer pipeline, grounded on
// original_source/backend/routers/brain_graph.py's answer_endpoint (stage
// order, node-quality/schema-sufficiency/schema-optimization LLM prompts,
// fallback path) and accuracy_service.py (the Q/S/C accuracy formula).
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/embedder"
	"github.com/graphbrain/kgqa/internal/graphstore"
	"github.com/graphbrain/kgqa/internal/llm"
	"github.com/graphbrain/kgqa/internal/metadatastore"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
	"github.com/graphbrain/kgqa/internal/platform/logger"
	"github.com/graphbrain/kgqa/internal/recovery"
	"github.com/graphbrain/kgqa/internal/vectorindex"
)

const (
	insufficiencyMarker     = "제공된 정보만으로는 답변할 수 없습니다"
	referencedNodesHeading  = "\n\n[참고된 노드 목록]\n"
	optimizedSchemaMinChars = 20
	searchTopK              = 10
	weightQ                 = 0.2
	weightS                 = 0.7
	weightC                 = 0.1
)

type Request struct {
	Question  string
	SessionID string
	BrainID   string
	Backend   domain.LLMBackend
	ModelName string
	Deep      bool
}

type Result struct {
	Answer          string
	ReferencedNodes []domain.ReferencedNode
	ChatID          int64
	Accuracy        float64
}

type Orchestrator interface {
	Answer(ctx context.Context, req Request) (Result, error)
}

type orchestrator struct {
	log      *logger.Logger
	embedder embedder.Embedder
	vectors  vectorindex.Index
	graph    graphstore.Store
	sources  metadatastore.SourceRepo
	chats    metadatastore.ChatRepo
	llm      llm.Client
	recovery *recovery.Controller
}

func New(
	log *logger.Logger,
	emb embedder.Embedder,
	vectors vectorindex.Index,
	graph graphstore.Store,
	sources metadatastore.SourceRepo,
	chats metadatastore.ChatRepo,
	llmClient llm.Client,
	ctl *recovery.Controller,
) Orchestrator {
	return &orchestrator{
		log:      log.With("service", "Orchestrator"),
		embedder: emb,
		vectors:  vectors,
		graph:    graph,
		sources:  sources,
		chats:    chats,
		llm:      llmClient,
		recovery: ctl,
	}
}

func (o *orchestrator) Answer(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		return Result{}, domainerr.InputValidation("orchestrator: nil context")
	}
	if req.Question == "" || req.BrainID == "" {
		return Result{}, domainerr.InputValidation("orchestrator: question and brain_id are required")
	}
	stageCtx := recovery.StageContext{Question: req.Question}

	candidates, q, err := o.embedAndSearch(ctx, req, stageCtx)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return o.fallbackPathA(ctx, req)
	}
	stageCtx.NodeCount = len(candidates)

	filtered, err := o.filterNodeQuality(ctx, req, candidates, stageCtx)
	if err != nil {
		return Result{}, err
	}
	if len(filtered) > 0 {
		candidates = filtered
	}

	schema, deepUsed, err := o.fetchSchema(ctx, req, namesOf(candidates), req.Deep, stageCtx)
	if err != nil {
		return Result{}, err
	}
	if len(schema.StartNodes) == 0 && len(schema.RelatedNodes) == 0 {
		return o.fallbackPathA(ctx, req)
	}
	stageCtx.SchemaNodeCount = len(schema.StartNodes) + len(schema.RelatedNodes)

	schema, err = o.judgeSufficiency(ctx, req, schema, deepUsed, namesOf(candidates), stageCtx)
	if err != nil {
		return Result{}, err
	}

	schemaText := o.llm.GenerateSchemaText(schema.StartNodes, schema.RelatedNodes, schema.Relationships)

	optimized, err := o.optimizeSchemaText(ctx, req, schemaText, stageCtx)
	if err != nil {
		return Result{}, err
	}

	answerRaw, err := o.generateAnswer(ctx, optimized, req.Question, stageCtx)
	if err != nil {
		return Result{}, err
	}

	referencedNames := o.llm.ExtractReferencedNodes(answerRaw)
	if strings.Contains(answerRaw, insufficiencyMarker) {
		return o.fallbackPathA(ctx, req)
	}
	answerClean := beforeEOF(answerRaw)

	referenced, err := o.expandCitations(ctx, req.BrainID, referencedNames)
	if err != nil {
		return Result{}, err
	}

	accuracy, err := o.computeAccuracy(ctx, req.BrainID, q, answerClean, referencedNames, optimized)
	if err != nil {
		return Result{}, err
	}

	finalText := answerClean + referencedNodesHeading + strings.Join(referencedNames, ", ")

	chatID, err := o.persist(ctx, req.SessionID, finalText, referenced, accuracy)
	if err != nil {
		return Result{}, err
	}

	return Result{Answer: finalText, ReferencedNodes: referenced, ChatID: chatID, Accuracy: accuracy}, nil
}

func namesOf(hits []domain.SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Name
	}
	return out
}

func beforeEOF(raw string) string {
	parts := strings.SplitN(raw, "EOF", 2)
	return strings.TrimSpace(parts[0])
}

// fallbackPathA is spec.md's catch-all: ask the model with no graph
// context, persist with empty references and zero accuracy.
func (o *orchestrator) fallbackPathA(ctx context.Context, req Request) (Result, error) {
	prompt := fmt.Sprintf("Answer from general knowledge, no supporting context is available: %s", req.Question)
	answer, err := o.llm.Chat(ctx, prompt)
	if err != nil {
		return Result{}, err
	}
	chatID, err := o.persist(ctx, req.SessionID, answer, nil, 0)
	if err != nil {
		return Result{}, err
	}
	return Result{Answer: answer, ReferencedNodes: nil, ChatID: chatID, Accuracy: 0}, nil
}

func (o *orchestrator) persist(ctx context.Context, sessionID, text string, referenced []domain.ReferencedNode, accuracy float64) (int64, error) {
	msg := domain.ChatMessage{SessionID: sessionID, IsAI: true, Message: text, ReferencedNodes: referenced, Accuracy: accuracy}
	saved, err := o.chats.Save(dbctx.Context{Ctx: ctx}, msg)
	if err != nil {
		return 0, err
	}
	return saved.ChatID, nil
}

// computeAccuracy realizes Acc = 0.2*Q + 0.7*S + 0.1*C from
// accuracy_service.py: S is cosine similarity between the answer's
// embedding and the embedding of the referenced nodes' "name : description"
// text, C is the overlap between referenced and schema-provided node names.
func (o *orchestrator) computeAccuracy(ctx context.Context, brainID string, q float64, answer string, referencedNames []string, schemaText string) (float64, error) {
	s, err := o.answerSchemaSimilarity(ctx, brainID, answer, referencedNames)
	if err != nil {
		return 0, err
	}
	c := citationCoverage(referencedNames, providedNames(schemaText))

	acc := weightQ*q + weightS*s + weightC*c
	if acc < 0 {
		acc = 0
	}
	if acc > 1 {
		acc = 1
	}
	return roundTo3(acc), nil
}

func (o *orchestrator) answerSchemaSimilarity(ctx context.Context, brainID, answer string, referencedNames []string) (float64, error) {
	if answer == "" || len(referencedNames) == 0 {
		return 0, nil
	}
	names := append([]string(nil), referencedNames...)
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		descs, err := o.graph.GetDescriptions(ctx, brainID, name)
		if err != nil {
			return 0, err
		}
		for _, d := range descs {
			lines = append(lines, name+" : "+d.Description)
		}
	}
	contextText := strings.Join(lines, "\n")
	if contextText == "" {
		return 0, nil
	}

	answerVec, err := o.embedder.Encode(ctx, answer)
	if err != nil {
		return 0, err
	}
	contextVec, err := o.embedder.Encode(ctx, contextText)
	if err != nil {
		return 0, err
	}
	return roundTo4(cosine(answerVec, contextVec)), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	af := make([]float64, len(a))
	bf := make([]float64, len(b))
	for i := range a {
		af[i] = float64(a[i])
		bf[i] = float64(b[i])
	}
	na, nb := floats.Norm(af, 2), floats.Norm(bf, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(af, bf) / (na * nb)
}

// providedNames extracts node names out of a generated schema text's
// relation lines ("start -> relation -> end"), stripping any "label-"
// prefix and whitespace, matching accuracy_service.py's provided_names set.
func providedNames(schemaText string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, line := range strings.Split(schemaText, "\n") {
		if !strings.Contains(line, "->") {
			continue
		}
		for _, part := range strings.Split(line, "->") {
			name := strings.ReplaceAll(strings.TrimSpace(part), " ", "")
			if idx := strings.Index(name, "-"); idx >= 0 {
				name = name[idx+1:]
			}
			if name != "" {
				out[name] = struct{}{}
			}
		}
	}
	return out
}

func citationCoverage(referencedNames []string, provided map[string]struct{}) float64 {
	if len(provided) == 0 {
		return 0
	}
	refSet := make(map[string]struct{}, len(referencedNames))
	for _, n := range referencedNames {
		refSet[strings.ReplaceAll(n, " ", "")] = struct{}{}
	}
	hits := 0
	for n := range refSet {
		if _, ok := provided[n]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(provided))
}

func roundTo3(v float64) float64 { return float64(int(v*1000+0.5)) / 1000 }
func roundTo4(v float64) float64 { return float64(int(v*10000+0.5)) / 10000 }

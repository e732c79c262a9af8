package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/embedder"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
	"github.com/graphbrain/kgqa/internal/platform/logger"
	"github.com/graphbrain/kgqa/internal/recovery"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// --- fakes -----------------------------------------------------------

type fakeVectors struct {
	hits []domain.SearchHit
	q    float64
}

func (f *fakeVectors) EnsureCollection(ctx context.Context, brainID string) error { return nil }
func (f *fakeVectors) Upsert(ctx context.Context, brainID string, points []domain.VectorPoint) error {
	return nil
}
func (f *fakeVectors) Search(ctx context.Context, brainID string, query []float32, k int) ([]domain.SearchHit, float64, error) {
	return f.hits, f.q, nil
}
func (f *fakeVectors) DeleteBySource(ctx context.Context, brainID string, sourceID string) error {
	return nil
}
func (f *fakeVectors) DeleteCollection(ctx context.Context, brainID string) error { return nil }

type fakeGraph struct {
	schema       domain.SchemaResult
	descriptions map[string][]domain.DescriptionRecord
	bulk         map[string][]string
	sentences    map[string][]domain.SentenceRecord
}

func (f *fakeGraph) UpsertNodesEdges(ctx context.Context, brainID string, nodes []domain.Node, edges []domain.Edge) error {
	return nil
}
func (f *fakeGraph) GetGraph(ctx context.Context, brainID string) (domain.GraphProjection, error) {
	return domain.GraphProjection{}, nil
}
func (f *fakeGraph) QuerySchemaByNames(ctx context.Context, brainID string, names []string, deep bool) (domain.SchemaResult, error) {
	return f.schema, nil
}
func (f *fakeGraph) GetDescriptions(ctx context.Context, brainID, nodeName string) ([]domain.DescriptionRecord, error) {
	return f.descriptions[nodeName], nil
}
func (f *fakeGraph) GetDescriptionsBulk(ctx context.Context, brainID string, names []string) (map[string][]string, error) {
	return f.bulk, nil
}
func (f *fakeGraph) GetOriginalSentences(ctx context.Context, brainID, nodeName, sourceID string) ([]domain.SentenceRecord, error) {
	return f.sentences[nodeName+"|"+sourceID], nil
}
func (f *fakeGraph) DeleteBySource(ctx context.Context, brainID, sourceID string) error { return nil }
func (f *fakeGraph) DeleteByBrain(ctx context.Context, brainID string) error            { return nil }

type fakeSources struct{ titles map[int64]string }

func (f *fakeSources) Create(dbc dbctx.Context, s domain.Source) (domain.Source, error) {
	return domain.Source{}, nil
}
func (f *fakeSources) Get(dbc dbctx.Context, kind domain.SourceKind, sourceID int64) (domain.Source, error) {
	return domain.Source{}, nil
}
func (f *fakeSources) Delete(dbc dbctx.Context, kind domain.SourceKind, sourceID int64) error {
	return nil
}
func (f *fakeSources) ListByBrain(dbc dbctx.Context, brainID string, kind domain.SourceKind) ([]domain.Source, error) {
	return nil, nil
}
func (f *fakeSources) TitlesByIDs(dbc dbctx.Context, ids []int64) (map[int64]string, error) {
	return f.titles, nil
}

type fakeChats struct {
	saved []domain.ChatMessage
	next  int64
}

func (f *fakeChats) Save(dbc dbctx.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	f.next++
	msg.ChatID = f.next
	f.saved = append(f.saved, msg)
	return msg, nil
}
func (f *fakeChats) ListBySession(dbc dbctx.Context, sessionID string) ([]domain.ChatMessage, error) {
	return f.saved, nil
}
func (f *fakeChats) Get(dbc dbctx.Context, chatID int64) (domain.ChatMessage, error) {
	for _, m := range f.saved {
		if m.ChatID == chatID {
			return m, nil
		}
	}
	return domain.ChatMessage{}, nil
}

type scriptedLLM struct {
	chatResponses   []string
	chatIdx         int
	answerResponse  string
	referencedNames []string
	schemaText      string
}

func (s *scriptedLLM) Chat(ctx context.Context, prompt string) (string, error) {
	if s.chatIdx < len(s.chatResponses) {
		r := s.chatResponses[s.chatIdx]
		s.chatIdx++
		return r, nil
	}
	return "{}", nil
}
func (s *scriptedLLM) ExtractGraphComponents(ctx context.Context, text, sourceID string) ([]domain.Node, []domain.Edge, error) {
	return nil, nil, nil
}
func (s *scriptedLLM) GenerateAnswer(ctx context.Context, schemaText, question string) (string, error) {
	return s.answerResponse, nil
}
func (s *scriptedLLM) ExtractReferencedNodes(response string) []string { return s.referencedNames }
func (s *scriptedLLM) GenerateSchemaText(nodes, relatedNodes []domain.Node, relationships []domain.Edge) string {
	return s.schemaText
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return string(b)
}

// --- tests -------------------------------------------------------------

func TestAnswerFallsBackWhenSearchReturnsNoCandidates(t *testing.T) {
	log := testLogger(t)
	scripted := &scriptedLLM{chatResponses: []string{"general knowledge answer"}}
	chats := &fakeChats{}
	o := New(log, embedder.New(log, 16), &fakeVectors{}, &fakeGraph{}, &fakeSources{}, chats, scripted, recovery.New(scripted, log))

	result, err := o.Answer(context.Background(), Request{Question: "what is X?", BrainID: "brain-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if result.Accuracy != 0 || len(result.ReferencedNodes) != 0 {
		t.Fatalf("expected a zero-accuracy fallback result, got %+v", result)
	}
	if len(chats.saved) != 1 {
		t.Fatalf("expected exactly one persisted chat message, got %d", len(chats.saved))
	}
}

func TestAnswerHappyPathPersistsAndComputesAccuracy(t *testing.T) {
	log := testLogger(t)
	vectors := &fakeVectors{hits: []domain.SearchHit{{Name: "river", Score: 0.9}}, q: 0.8}
	graph := &fakeGraph{
		schema: domain.SchemaResult{StartNodes: []domain.Node{{Name: "river"}}},
		descriptions: map[string][]domain.DescriptionRecord{
			"river": {{Description: "the river flows through the valley", SourceID: "1"}},
		},
		bulk:      map[string][]string{"river": {"1"}},
		sentences: map[string][]domain.SentenceRecord{"river|1": {{OriginalSentence: "the river flows", SourceID: "1"}}},
	}
	sources := &fakeSources{titles: map[int64]string{1: "Geography 101"}}
	chats := &fakeChats{}

	scripted := &scriptedLLM{
		chatResponses: []string{
			mustJSON(t, nodeQualityDecision{FilteredNodeNames: []string{"river"}}),
			mustJSON(t, sufficiencyDecision{IsSufficient: true}),
			"river -> flows -> valley\n\nriver: the river flows through the valley",
		},
		answerResponse:  "The river flows through the valley.\n\nEOF\n{\"referenced_nodes\": [\"river\"]}",
		referencedNames: []string{"river"},
		schemaText:      "river -> flows -> valley\n\nriver: the river flows through the valley",
	}
	o := New(log, embedder.New(log, 16), vectors, graph, sources, chats, scripted, recovery.New(scripted, log))

	result, err := o.Answer(context.Background(), Request{Question: "how does the river relate to the valley?", BrainID: "brain-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if result.ChatID == 0 {
		t.Fatalf("expected a minted chat id")
	}
	if len(result.ReferencedNodes) != 1 || result.ReferencedNodes[0].Name != "river" {
		t.Fatalf("expected one referenced node 'river', got %+v", result.ReferencedNodes)
	}
	if len(result.ReferencedNodes[0].SourceIDs) != 1 || result.ReferencedNodes[0].SourceIDs[0].Title != "Geography 101" {
		t.Fatalf("expected resolved title 'Geography 101', got %+v", result.ReferencedNodes[0].SourceIDs)
	}
	if result.Accuracy <= 0 || result.Accuracy > 1 {
		t.Fatalf("expected accuracy in (0,1], got %v", result.Accuracy)
	}
	if len(chats.saved) != 1 {
		t.Fatalf("expected exactly one persisted chat message, got %d", len(chats.saved))
	}
}

func TestProvidedNamesStripsLabelPrefixAndWhitespace(t *testing.T) {
	schemaText := "사람-홍길동 -> 소속 -> 회사-카카오\n\n사람-홍길동: 설명"
	names := providedNames(schemaText)
	if _, ok := names["홍길동"]; !ok {
		t.Fatalf("expected stripped name '홍길동' in %v", names)
	}
	if _, ok := names["카카오"]; !ok {
		t.Fatalf("expected stripped name '카카오' in %v", names)
	}
}

func TestCitationCoverage(t *testing.T) {
	provided := map[string]struct{}{"a": {}, "b": {}, "c": {}}
	got := citationCoverage([]string{"a", "b"}, provided)
	if got <= 0.6 || got >= 0.7 {
		t.Fatalf("expected coverage near 2/3, got %v", got)
	}
}

func TestCosineIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosine(v, v); got < 0.999 {
		t.Fatalf("expected cosine(v,v) ~= 1, got %v", got)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/ingestion"
	"github.com/graphbrain/kgqa/internal/orchestrator"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// --- fakes -----------------------------------------------------------------

type fakeCoordinator struct {
	summary         ingestion.Summary
	ingestErr       error
	deletedBrainID  string
	deletedSourceID string
	deleteErr       error
	lastMode        domain.ExtractionMode
}

func (f *fakeCoordinator) Ingest(ctx context.Context, brainID, sourceID, text string, mode domain.ExtractionMode) (ingestion.Summary, error) {
	f.lastMode = mode
	return f.summary, f.ingestErr
}

func (f *fakeCoordinator) DeleteSource(ctx context.Context, brainID, sourceID string) error {
	f.deletedBrainID, f.deletedSourceID = brainID, sourceID
	return f.deleteErr
}

type fakeOrchestrator struct {
	result    orchestrator.Result
	answerErr error
	lastReq   orchestrator.Request
}

func (f *fakeOrchestrator) Answer(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	f.lastReq = req
	return f.result, f.answerErr
}

type fakeGraph struct {
	projection       domain.GraphProjection
	projectionErr    error
	descriptionsBulk map[string][]string
	bulkErr          error
	deletedByBrain   string
	deleteByBrainErr error
}

func (f *fakeGraph) UpsertNodesEdges(ctx context.Context, brainID string, nodes []domain.Node, edges []domain.Edge) error {
	return nil
}
func (f *fakeGraph) GetGraph(ctx context.Context, brainID string) (domain.GraphProjection, error) {
	return f.projection, f.projectionErr
}
func (f *fakeGraph) QuerySchemaByNames(ctx context.Context, brainID string, names []string, deep bool) (domain.SchemaResult, error) {
	return domain.SchemaResult{}, nil
}
func (f *fakeGraph) GetDescriptions(ctx context.Context, brainID, nodeName string) ([]domain.DescriptionRecord, error) {
	return nil, nil
}
func (f *fakeGraph) GetDescriptionsBulk(ctx context.Context, brainID string, names []string) (map[string][]string, error) {
	return f.descriptionsBulk, f.bulkErr
}
func (f *fakeGraph) GetOriginalSentences(ctx context.Context, brainID, nodeName, sourceID string) ([]domain.SentenceRecord, error) {
	return nil, nil
}
func (f *fakeGraph) DeleteBySource(ctx context.Context, brainID, sourceID string) error { return nil }
func (f *fakeGraph) DeleteByBrain(ctx context.Context, brainID string) error {
	f.deletedByBrain = brainID
	return f.deleteByBrainErr
}

type fakeVectors struct {
	ensuredBrainID   string
	ensureErr        error
	deletedCollection string
	deleteErr        error
}

func (f *fakeVectors) EnsureCollection(ctx context.Context, brainID string) error {
	f.ensuredBrainID = brainID
	return f.ensureErr
}
func (f *fakeVectors) Upsert(ctx context.Context, brainID string, points []domain.VectorPoint) error {
	return nil
}
func (f *fakeVectors) Search(ctx context.Context, brainID string, query []float32, k int) ([]domain.SearchHit, float64, error) {
	return nil, 0, nil
}
func (f *fakeVectors) DeleteBySource(ctx context.Context, brainID string, sourceID string) error {
	return nil
}
func (f *fakeVectors) DeleteCollection(ctx context.Context, brainID string) error {
	f.deletedCollection = brainID
	return f.deleteErr
}

type fakeBrains struct {
	created  domain.Brain
	createErr error
	got      domain.Brain
	getErr   error
	deleted  string
	deleteErr error
}

func (f *fakeBrains) Create(dbc dbctx.Context, b domain.Brain) error {
	f.created = b
	return f.createErr
}
func (f *fakeBrains) Get(dbc dbctx.Context, brainID string) (domain.Brain, error) {
	return f.got, f.getErr
}
func (f *fakeBrains) Delete(dbc dbctx.Context, brainID string) error {
	f.deleted = brainID
	return f.deleteErr
}

type fakeSessions struct{}

func (f *fakeSessions) Create(dbc dbctx.Context, s domain.ChatSession) error { return nil }
func (f *fakeSessions) Get(dbc dbctx.Context, sessionID string) (domain.ChatSession, error) {
	return domain.ChatSession{}, nil
}
func (f *fakeSessions) ListByBrain(dbc dbctx.Context, brainID string) ([]domain.ChatSession, error) {
	return nil, nil
}
func (f *fakeSessions) Delete(dbc dbctx.Context, sessionID string) error { return nil }

type fakeSources struct{}

func (f *fakeSources) Create(dbc dbctx.Context, s domain.Source) (domain.Source, error) {
	s.SourceID = 1
	return s, nil
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
	return nil, nil
}

type fakeChats struct{}

func (f *fakeChats) Save(dbc dbctx.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	return msg, nil
}
func (f *fakeChats) ListBySession(dbc dbctx.Context, sessionID string) ([]domain.ChatMessage, error) {
	return nil, nil
}
func (f *fakeChats) Get(dbc dbctx.Context, chatID int64) (domain.ChatMessage, error) {
	return domain.ChatMessage{}, nil
}

func newTestHandlers() (*Handlers, *fakeCoordinator, *fakeOrchestrator, *fakeGraph, *fakeVectors, *fakeBrains) {
	coord := &fakeCoordinator{}
	orc := &fakeOrchestrator{}
	graph := &fakeGraph{}
	vectors := &fakeVectors{}
	brains := &fakeBrains{}
	h := &Handlers{
		log:          nil,
		coordinator:  coord,
		orchestrator: orc,
		graph:        graph,
		vectors:      vectors,
		brains:       brains,
		sessions:     &fakeSessions{},
		sources:      &fakeSources{},
		chats:        &fakeChats{},
	}
	return h, coord, orc, graph, vectors, brains
}

func doRequest(t *testing.T, handler gin.HandlerFunc, method, path string, body any, params gin.Params) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	var buf *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewBuffer(b)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = params

	handler(c)
	return rec
}

func TestCreateBrainEnsuresCollectionAndReturnsCreated(t *testing.T) {
	h, _, _, _, vectors, brains := newTestHandlers()
	// give Handlers a logger since newTestHandlers leaves log nil but
	// CreateBrain doesn't touch it directly.
	h.log = testLogger(t)

	rec := doRequest(t, h.CreateBrain, http.MethodPost, "/brains", createBrainRequest{
		BrainID: "b1", Name: "My Brain",
	}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if brains.created.BrainID != "b1" {
		t.Fatalf("brain not created: %+v", brains.created)
	}
	if vectors.ensuredBrainID != "b1" {
		t.Fatalf("collection not ensured for brain b1, got %q", vectors.ensuredBrainID)
	}
}

func TestCreateBrainRejectsMissingFields(t *testing.T) {
	h, _, _, _, _, _ := newTestHandlers()
	h.log = testLogger(t)

	rec := doRequest(t, h.CreateBrain, http.MethodPost, "/brains", map[string]string{"name": "no id"}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDeleteBrainCascadesGraphThenVectorsThenMetadata(t *testing.T) {
	h, _, _, graph, vectors, brains := newTestHandlers()
	h.log = testLogger(t)

	rec := doRequest(t, h.DeleteBrain, http.MethodDelete, "/brains/b1", nil,
		gin.Params{{Key: "id", Value: "b1"}})

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if graph.deletedByBrain != "b1" {
		t.Fatalf("graph delete not called for b1")
	}
	if vectors.deletedCollection != "b1" {
		t.Fatalf("vector collection not deleted for b1")
	}
	if brains.deleted != "b1" {
		t.Fatalf("brain row not deleted for b1")
	}
}

func TestDeleteBrainStopsCascadeOnGraphError(t *testing.T) {
	h, _, _, graph, vectors, brains := newTestHandlers()
	h.log = testLogger(t)
	graph.deleteByBrainErr = domainerr.GraphStore("boom", nil)

	rec := doRequest(t, h.DeleteBrain, http.MethodDelete, "/brains/b2", nil,
		gin.Params{{Key: "id", Value: "b2"}})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusInternalServerError, rec.Body.String())
	}
	if vectors.deletedCollection != "" {
		t.Fatalf("vector collection should not be touched once the graph cascade step fails")
	}
	if brains.deleted != "" {
		t.Fatalf("brain row should not be deleted once the graph cascade step fails")
	}
}

func TestProcessTextUsesRuleModeWhenModelOmitted(t *testing.T) {
	h, coord, _, _, _, _ := newTestHandlers()
	h.log = testLogger(t)
	coord.summary = ingestion.Summary{
		Nodes: []domain.Node{{Name: "a"}, {Name: "b"}},
		Edges: []domain.Edge{{Source: "a", Target: "b", Relation: "r"}},
	}

	rec := doRequest(t, h.ProcessText, http.MethodPost, "/brainGraph/process_text", processTextRequest{
		BrainID: "b1", SourceID: "s1", Text: "some text",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp processTextResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Nodes != 2 || resp.Edges != 1 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
	if coord.lastMode != domain.ModeRule {
		t.Fatalf("mode = %q, want %q", coord.lastMode, domain.ModeRule)
	}
}

func TestAnswerPassesRequestThroughToOrchestrator(t *testing.T) {
	h, _, orc, _, _, _ := newTestHandlers()
	h.log = testLogger(t)
	orc.result = orchestrator.Result{
		Answer:          "the answer",
		ReferencedNodes: []domain.ReferencedNode{{Name: "n1"}},
		ChatID:          42,
		Accuracy:        0.75,
	}

	rec := doRequest(t, h.Answer, http.MethodPost, "/brainGraph/answer", answerRequest{
		Question:  "what is it",
		SessionID: "sess1",
		BrainID:   "b1",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if orc.lastReq.Question != "what is it" || orc.lastReq.BrainID != "b1" || orc.lastReq.SessionID != "sess1" {
		t.Fatalf("request not forwarded correctly: %+v", orc.lastReq)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["answer"] != "the answer" {
		t.Fatalf("unexpected answer field: %v", body["answer"])
	}
}

func TestAnswerPropagatesOrchestratorError(t *testing.T) {
	h, _, orc, _, _, _ := newTestHandlers()
	h.log = testLogger(t)
	orc.answerErr = domainerr.LLM("backend unavailable", nil)

	rec := doRequest(t, h.Answer, http.MethodPost, "/brainGraph/answer", answerRequest{
		Question: "q", SessionID: "s", BrainID: "b",
	}, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestGetNodeEdgeRequiresBrainID(t *testing.T) {
	h, _, _, _, _, _ := newTestHandlers()
	h.log = testLogger(t)

	rec := doRequest(t, h.GetNodeEdge, http.MethodGet, "/brainGraph/getNodeEdge/", nil,
		gin.Params{{Key: "brain_id", Value: ""}})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetNodeEdgeReturnsProjection(t *testing.T) {
	h, _, _, graph, _, _ := newTestHandlers()
	h.log = testLogger(t)
	graph.projection = domain.GraphProjection{
		Nodes: []domain.GraphNodeRef{{Name: "n1"}},
		Links: []domain.GraphLinkRef{{Source: "n1", Target: "n2", Relation: "rel"}},
	}

	rec := doRequest(t, h.GetNodeEdge, http.MethodGet, "/brainGraph/getNodeEdge/b1", nil,
		gin.Params{{Key: "brain_id", Value: "b1"}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var got domain.GraphProjection
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].Name != "n1" {
		t.Fatalf("unexpected projection: %+v", got)
	}
}

func TestGetNodesBySourceIdFiltersByMatchingSourceID(t *testing.T) {
	h, _, _, graph, _, _ := newTestHandlers()
	h.log = testLogger(t)
	graph.projection = domain.GraphProjection{
		Nodes: []domain.GraphNodeRef{{Name: "river"}, {Name: "valley"}},
	}
	graph.descriptionsBulk = map[string][]string{
		"river":  {"s1", "s2"},
		"valley": {"s3"},
	}

	req := httptest.NewRequest(http.MethodGet, "/brainGraph/getNodesBySourceId?brain_id=b1&source_id=s1", nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req

	h.GetNodesBySourceId(c)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var body struct {
		Nodes []string `json:"nodes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Nodes) != 1 || body.Nodes[0] != "river" {
		t.Fatalf("expected only river to match source s1, got %+v", body.Nodes)
	}
}

func TestDeleteSourceOnlyCascadesWhenBrainIDProvided(t *testing.T) {
	h, coord, _, _, _, _ := newTestHandlers()
	h.log = testLogger(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/sources/txt/7", nil)
	c.Params = gin.Params{{Key: "kind", Value: "txt"}, {Key: "id", Value: "7"}}

	h.DeleteSource(c)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if coord.deletedSourceID != "" {
		t.Fatalf("coordinator cascade should not run without brain_id, got source_id=%q", coord.deletedSourceID)
	}
}

func TestDeleteSourceCascadesWhenBrainIDProvided(t *testing.T) {
	h, coord, _, _, _, _ := newTestHandlers()
	h.log = testLogger(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/sources/txt/7?brain_id=b1", nil)
	c.Params = gin.Params{{Key: "kind", Value: "txt"}, {Key: "id", Value: "7"}}

	h.DeleteSource(c)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if coord.deletedBrainID != "b1" || coord.deletedSourceID != "7" {
		t.Fatalf("expected cascade delete for b1/7, got %q/%q", coord.deletedBrainID, coord.deletedSourceID)
	}
}

func TestHealthCheckReturnsOK(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/healthcheck", nil)

	HealthCheck(c)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

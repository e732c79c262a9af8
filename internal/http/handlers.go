package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/graphstore"
	"github.com/graphbrain/kgqa/internal/ingestion"
	"github.com/graphbrain/kgqa/internal/metadatastore"
	"github.com/graphbrain/kgqa/internal/orchestrator"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
	"github.com/graphbrain/kgqa/internal/platform/logger"
	"github.com/graphbrain/kgqa/internal/vectorindex"
)

// Handlers groups every gin handler the router wires up, mirroring the
// teacher's per-domain *Handler split (internal/handlers/*.go) collapsed
// into the handful of concerns this service actually has.
type Handlers struct {
	log          *logger.Logger
	coordinator  ingestion.Coordinator
	orchestrator orchestrator.Orchestrator
	graph        graphstore.Store
	vectors      vectorindex.Index
	brains       metadatastore.BrainRepo
	sessions     metadatastore.ChatSessionRepo
	sources      metadatastore.SourceRepo
	chats        metadatastore.ChatRepo
}

func NewHandlers(
	log *logger.Logger,
	coordinator ingestion.Coordinator,
	answerer orchestrator.Orchestrator,
	graph graphstore.Store,
	vectors vectorindex.Index,
	brains metadatastore.BrainRepo,
	sessions metadatastore.ChatSessionRepo,
	sources metadatastore.SourceRepo,
	chats metadatastore.ChatRepo,
) *Handlers {
	return &Handlers{
		log:          log.With("handler", "BrainGraphHandler"),
		coordinator:  coordinator,
		orchestrator: answerer,
		graph:        graph,
		vectors:      vectors,
		brains:       brains,
		sessions:     sessions,
		sources:      sources,
		chats:        chats,
	}
}

// --- brains --------------------------------------------------------------

type createBrainRequest struct {
	BrainID    string `json:"brain_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Important  bool   `json:"important"`
	DeployMode string `json:"deploy_mode"`
}

// POST /brains
func (h *Handlers) CreateBrain(c *gin.Context) {
	var req createBrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, domainerr.InputValidation(err.Error()))
		return
	}
	if err := h.brains.Create(dbctx.Context{Ctx: c.Request.Context()}, domain.Brain{
		BrainID: req.BrainID, Name: req.Name, Important: req.Important, DeployMode: req.DeployMode,
	}); err != nil {
		respondErr(c, err)
		return
	}
	if err := h.vectors.EnsureCollection(c.Request.Context(), req.BrainID); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// GET /brains/:id
func (h *Handlers) GetBrain(c *gin.Context) {
	brain, err := h.brains.Get(dbctx.Context{Ctx: c.Request.Context()}, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, brain)
}

// DELETE /brains/:id — cascades to graph content and the vector
// collection (spec §3: brain deletion cascades to every owned entity).
func (h *Handlers) DeleteBrain(c *gin.Context) {
	brainID := c.Param("id")
	if err := h.graph.DeleteByBrain(c.Request.Context(), brainID); err != nil {
		respondErr(c, err)
		return
	}
	if err := h.vectors.DeleteCollection(c.Request.Context(), brainID); err != nil {
		respondErr(c, err)
		return
	}
	if err := h.brains.Delete(dbctx.Context{Ctx: c.Request.Context()}, brainID); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- brainGraph ----------------------------------------------------------

type processTextRequest struct {
	BrainID  string  `json:"brain_id" binding:"required"`
	SourceID string  `json:"source_id" binding:"required"`
	Text     string  `json:"text" binding:"required"`
	Model    *string `json:"model"`
}

type processTextResponse struct {
	Nodes    int  `json:"nodes"`
	Edges    int  `json:"edges"`
	Degraded bool `json:"degraded"`
}

// POST /brainGraph/process_text
func (h *Handlers) ProcessText(c *gin.Context) {
	var req processTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, domainerr.InputValidation(err.Error()))
		return
	}
	mode := domain.ModeRule
	if req.Model != nil && *req.Model != "" {
		mode = domain.ModeLLM
	}
	summary, err := h.coordinator.Ingest(c.Request.Context(), req.BrainID, req.SourceID, req.Text, mode)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, processTextResponse{Nodes: len(summary.Nodes), Edges: len(summary.Edges), Degraded: summary.Degraded})
}

type answerRequest struct {
	Question      string `json:"question" binding:"required"`
	SessionID      string `json:"session_id" binding:"required"`
	BrainID        string `json:"brain_id" binding:"required"`
	Model          string `json:"model"`
	ModelName      string `json:"model_name"`
	UseDeepSearch  bool   `json:"use_deep_search"`
}

// POST /brainGraph/answer
func (h *Handlers) Answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, domainerr.InputValidation(err.Error()))
		return
	}
	result, err := h.orchestrator.Answer(c.Request.Context(), orchestrator.Request{
		Question:  req.Question,
		SessionID: req.SessionID,
		BrainID:   req.BrainID,
		Backend:   domain.LLMBackend(req.Model),
		ModelName: req.ModelName,
		Deep:      req.UseDeepSearch,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{
		"answer":           result.Answer,
		"referenced_nodes": result.ReferencedNodes,
		"chat_id":          result.ChatID,
		"accuracy":         result.Accuracy,
	})
}

// GET /brainGraph/getNodeEdge/:brain_id
func (h *Handlers) GetNodeEdge(c *gin.Context) {
	brainID := c.Param("brain_id")
	if brainID == "" {
		respondErr(c, domainerr.InputValidation("brain_id is required"))
		return
	}
	projection, err := h.graph.GetGraph(c.Request.Context(), brainID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, projection)
}

// GET /brainGraph/getSourceIds?node_name=&brain_id=
func (h *Handlers) GetSourceIds(c *gin.Context) {
	brainID := c.Query("brain_id")
	nodeName := c.Query("node_name")
	if brainID == "" || nodeName == "" {
		respondErr(c, domainerr.InputValidation("brain_id and node_name are required"))
		return
	}
	bulk, err := h.graph.GetDescriptionsBulk(c.Request.Context(), brainID, []string{nodeName})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"source_ids": bulk[nodeName]})
}

// GET /brainGraph/getNodesBySourceId?source_id=&brain_id=
func (h *Handlers) GetNodesBySourceId(c *gin.Context) {
	brainID := c.Query("brain_id")
	sourceID := c.Query("source_id")
	if brainID == "" || sourceID == "" {
		respondErr(c, domainerr.InputValidation("brain_id and source_id are required"))
		return
	}
	projection, err := h.graph.GetGraph(c.Request.Context(), brainID)
	if err != nil {
		respondErr(c, err)
		return
	}
	names := make([]string, 0, len(projection.Nodes))
	for _, n := range projection.Nodes {
		names = append(names, n.Name)
	}
	bulk, err := h.graph.GetDescriptionsBulk(c.Request.Context(), brainID, names)
	if err != nil {
		respondErr(c, err)
		return
	}
	var matched []string
	for name, ids := range bulk {
		for _, id := range ids {
			if id == sourceID {
				matched = append(matched, name)
				break
			}
		}
	}
	respondOK(c, gin.H{"nodes": matched})
}

// --- sources ---------------------------------------------------------

type createSourceRequest struct {
	BrainID string `json:"brain_id" binding:"required"`
	Title   string `json:"title" binding:"required"`
	Text    string `json:"text"`
	Path    string `json:"path"`
}

// POST /sources/:kind
func (h *Handlers) CreateSource(c *gin.Context) {
	kind := domain.SourceKind(c.Param("kind"))
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, domainerr.InputValidation(err.Error()))
		return
	}
	created, err := h.sources.Create(dbctx.Context{Ctx: c.Request.Context()}, domain.Source{
		BrainID: req.BrainID, Kind: kind, Title: req.Title, Text: req.Text, Path: req.Path,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, created)
}

// GET /sources/:kind?brain_id=
func (h *Handlers) ListSources(c *gin.Context) {
	kind := domain.SourceKind(c.Param("kind"))
	brainID := c.Query("brain_id")
	if brainID == "" {
		respondErr(c, domainerr.InputValidation("brain_id is required"))
		return
	}
	list, err := h.sources.ListByBrain(dbctx.Context{Ctx: c.Request.Context()}, brainID, kind)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, list)
}

// DELETE /sources/:kind/:id
func (h *Handlers) DeleteSource(c *gin.Context) {
	kind := domain.SourceKind(c.Param("kind"))
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondErr(c, domainerr.InputValidation("id must be numeric"))
		return
	}
	brainID := c.Query("brain_id")
	if err := h.sources.Delete(dbctx.Context{Ctx: c.Request.Context()}, kind, id); err != nil {
		respondErr(c, err)
		return
	}
	if brainID != "" {
		if err := h.coordinator.DeleteSource(c.Request.Context(), brainID, strconv.FormatInt(id, 10)); err != nil {
			respondErr(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// --- chat sessions -----------------------------------------------------

type createSessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Name      string `json:"name"`
	BrainID   string `json:"brain_id" binding:"required"`
}

// POST /chatSessions
func (h *Handlers) CreateChatSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, domainerr.InputValidation(err.Error()))
		return
	}
	if err := h.sessions.Create(dbctx.Context{Ctx: c.Request.Context()}, domain.ChatSession{
		SessionID: req.SessionID, Name: req.Name, BrainID: req.BrainID,
	}); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// GET /chatSessions?brain_id=
func (h *Handlers) ListChatSessions(c *gin.Context) {
	brainID := c.Query("brain_id")
	if brainID == "" {
		respondErr(c, domainerr.InputValidation("brain_id is required"))
		return
	}
	list, err := h.sessions.ListByBrain(dbctx.Context{Ctx: c.Request.Context()}, brainID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, list)
}

// GET /chatSessions/:id/messages
func (h *Handlers) ListChatMessages(c *gin.Context) {
	sessionID := c.Param("id")
	list, err := h.chats.ListBySession(dbctx.Context{Ctx: c.Request.Context()}, sessionID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, list)
}

// DELETE /chatSessions/:id
func (h *Handlers) DeleteChatSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.sessions.Delete(dbctx.Context{Ctx: c.Request.Context()}, sessionID); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /healthcheck
func HealthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

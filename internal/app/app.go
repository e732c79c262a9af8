// Package app wires together the knowledge-graph service's stores,
// pipeline components, and HTTP surface, following the teacher's
// internal/app/app.go lifecycle (Config → clients → services → handlers →
// router → App{Run,Close}).
package app

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	kgqahttp "github.com/graphbrain/kgqa/internal/http"
	"github.com/graphbrain/kgqa/internal/embedder"
	"github.com/graphbrain/kgqa/internal/extractor"
	"github.com/graphbrain/kgqa/internal/graphstore"
	"github.com/graphbrain/kgqa/internal/ingestion"
	"github.com/graphbrain/kgqa/internal/llm"
	"github.com/graphbrain/kgqa/internal/metadatastore"
	"github.com/graphbrain/kgqa/internal/orchestrator"
	"github.com/graphbrain/kgqa/internal/platform/logger"
	"github.com/graphbrain/kgqa/internal/platform/neo4jdb"
	"github.com/graphbrain/kgqa/internal/platform/qdrant"
	"github.com/graphbrain/kgqa/internal/recovery"
	"github.com/graphbrain/kgqa/internal/vectorindex"
)

type App struct {
	Log    *logger.Logger
	Cfg    Config
	Router *gin.Engine

	metadata *metadatastore.Service
	neo4j    *neo4jdb.Client
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("loading configuration")
	cfg := LoadConfig(log)

	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	if neo4jClient == nil {
		log.Sync()
		return nil, fmt.Errorf("init neo4j: NEO4J_URI is required")
	}

	qdrantClient, err := qdrant.NewClient(log, cfg.Qdrant)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init qdrant: %w", err)
	}

	meta, err := metadatastore.New(log, cfg.SqlitePath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init metadata store: %w", err)
	}

	llmClient, err := llm.New(log, llm.Config{
		Backend: cfg.LLMBackend,
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
	})
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	graph := graphstore.New(neo4jClient, log)
	vectors := vectorindex.New(log, qdrantClient, cfg.VectorDim)
	emb := embedder.New(log, cfg.VectorDim)
	ext := extractor.New(log, emb)
	ctl := recovery.New(llmClient, log)

	coordinator := ingestion.New(log, graph, vectors, ext, llmClient, emb)
	answerer := orchestrator.New(log, emb, vectors, graph,
		metadatastore.NewSourceRepo(meta.DB()), metadatastore.NewChatRepo(meta.DB()), llmClient, ctl)

	brains := metadatastore.NewBrainRepo(meta.DB())
	sessions := metadatastore.NewChatSessionRepo(meta.DB())
	sources := metadatastore.NewSourceRepo(meta.DB())
	chats := metadatastore.NewChatRepo(meta.DB())

	handlers := kgqahttp.NewHandlers(log, coordinator, answerer, graph, vectors, brains, sessions, sources, chats)
	router := kgqahttp.NewRouter(handlers)

	return &App{
		Log:      log,
		Cfg:      cfg,
		Router:   router,
		metadata: meta,
		neo4j:    neo4jClient,
	}, nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.neo4j != nil {
		_ = a.neo4j.Close(nil)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

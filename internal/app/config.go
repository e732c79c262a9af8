package app

import (
	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/pkg/envconfig"
	"github.com/graphbrain/kgqa/internal/platform/config"
	"github.com/graphbrain/kgqa/internal/platform/logger"
	"github.com/graphbrain/kgqa/internal/platform/qdrant"
)

// Config is the process-wide configuration, read once at startup by
// LoadConfig (defaults, optional yaml overlay, environment), following the
// teacher's LoadConfig(log) idiom.
type Config struct {
	Port string

	SqlitePath string

	Qdrant    qdrant.Config
	VectorDim int

	LLMBackend domain.LLMBackend
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
}

// LoadConfig builds the process config in three layers, lowest priority
// first: hardcoded defaults, the optional config.yaml overlay, then
// environment variables (which always win).
func LoadConfig(log *logger.Logger) Config {
	overlay, err := config.Load("")
	if err != nil {
		log.Warn("config overlay failed to load, continuing with environment only", "error", err)
	}

	dim := envconfig.GetEnvAsInt("VECTOR_DIM", orInt(overlay.VectorDim, 256), log)
	backend := domain.LLMBackend(envconfig.GetEnv("LLM_BACKEND", orString(overlay.LLMBackend, string(domain.BackendOpenAI)), log))

	return Config{
		Port:       envconfig.GetEnv("PORT", orString(overlay.Port, "8080"), log),
		SqlitePath: envconfig.GetEnv("SQLITE_PATH", orString(overlay.SqlitePath, "data/sqlite.db"), log),
		Qdrant: qdrant.Config{
			URL:       envconfig.GetEnv("QDRANT_URL", orString(overlay.QdrantURL, "http://localhost:6333"), log),
			VectorDim: dim,
		},
		VectorDim:  dim,
		LLMBackend: backend,
		LLMBaseURL: envconfig.GetEnv("LLM_BASE_URL", orString(overlay.LLMBaseURL, "https://api.openai.com/v1"), log),
		LLMAPIKey:  envconfig.GetEnv("LLM_API_KEY", "", log),
		LLMModel:   envconfig.GetEnv("LLM_MODEL", orString(overlay.LLMModel, "gpt-4o-mini"), log),
	}
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

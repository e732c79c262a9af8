package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

func TestLoadConfigAppliesDefaultsWhenUnset(t *testing.T) {
	cfg := LoadConfig(testLogger(t))

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 256, cfg.VectorDim)
	assert.Equal(t, domain.BackendOpenAI, cfg.LLMBackend)
	assert.Equal(t, cfg.VectorDim, cfg.Qdrant.VectorDim, "Qdrant.VectorDim should mirror VectorDim")
}

func TestLoadConfigReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VECTOR_DIM", "128")
	t.Setenv("LLM_BACKEND", string(domain.BackendOllama))
	t.Setenv("QDRANT_URL", "http://qdrant.internal:6333")

	cfg := LoadConfig(testLogger(t))

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 128, cfg.VectorDim)
	assert.Equal(t, domain.BackendOllama, cfg.LLMBackend)
	assert.Equal(t, "http://qdrant.internal:6333", cfg.Qdrant.URL)
}

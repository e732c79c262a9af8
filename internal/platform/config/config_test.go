package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReturnsZeroOverlayWhenFileMissing(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Overlay{}, got)
}

func TestLoadParsesOverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "port: \"9999\"\nvector_dim: 512\nllm_backend: ollama\nqdrant_url: http://qdrant.internal:6333\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", got.Port)
	assert.Equal(t, 512, got.VectorDim)
	assert.Equal(t, "ollama", got.LLMBackend)
	assert.Equal(t, "http://qdrant.internal:6333", got.QdrantURL)
}

func TestLoadFallsBackToConfigPathEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7777\"\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	got, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7777", got.Port)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

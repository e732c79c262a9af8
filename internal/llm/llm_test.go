package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/pkg/httpx"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestExtractReferencedNodesStripsLabelPrefix(t *testing.T) {
	resp := "the answer is here.\n\nEOF\n" + `{"referenced_nodes": ["사람-홍길동", "개념", "동물-고양이"]}`
	got := extractReferencedNodes(resp)
	assert.Equal(t, []string{"홍길동", "개념", "고양이"}, got)
}

func TestExtractReferencedNodesNoEOF(t *testing.T) {
	assert.Nil(t, extractReferencedNodes("just an answer, no marker"))
}

func TestGenerateSchemaTextSortsAndDedupes(t *testing.T) {
	nodes := []domain.Node{
		{Name: "b", OriginalSentences: []domain.SentenceRecord{{OriginalSentence: "b is a thing"}}},
		{Name: "a"},
	}
	relationships := []domain.Edge{
		{Source: "a", Target: "b", Relation: "relates"},
		{Source: "a", Target: "b", Relation: "relates"},
	}
	text := generateSchemaText(nodes, nil, relationships)
	assert.Equal(t, "a -> relates -> b\n\na:\nb: b is a thing", text)
}

func TestGenerateSchemaTextEmpty(t *testing.T) {
	assert.NotEmpty(t, generateSchemaText(nil, nil, nil))
}

func newExtractionServer(t *testing.T, nodes, edges string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"nodes": ` + nodes + `, "edges": ` + edges + `}`
		body := chatResponse{Choices: []chatChoice{{Message: struct {
			Content string `json:"content"`
		}{Content: content}}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestExtractGraphComponentsValidatesAndDedupes(t *testing.T) {
	srv := newExtractionServer(t,
		`[{"label":"concept","name":"a","description":"first"},{"label":"concept","name":"a","description":"second"},{"label":"","name":"bad"}]`,
		`[{"source":"a","target":"a","relation":"self"},{"source":"a","target":"missing","relation":"x"}]`,
	)
	defer srv.Close()

	client, err := New(testLogger(t), Config{Backend: domain.BackendOpenAI, BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	nodes, edges, err := client.ExtractGraphComponents(context.Background(), "some text", "source-1")
	require.NoError(t, err)
	require.Len(t, nodes, 1, "expected 1 merged node (invalid node dropped)")
	assert.Len(t, nodes[0].Descriptions, 2, "expected descriptions merged across duplicate node")
	require.Len(t, edges, 1)
	assert.Equal(t, "a", edges[0].Target, "expected only the self-referencing edge to survive")
}

func TestChatReturnsTrimmedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := chatResponse{Choices: []chatChoice{{Message: struct {
			Content string `json:"content"`
		}{Content: "  hello there  "}}}}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	client, err := New(testLogger(t), Config{Backend: domain.BackendOllama, BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	got, err := client.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
}

func TestChatWrapsRetryableStatusForRecoveryClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	client, err := New(testLogger(t), Config{Backend: domain.BackendOpenAI, BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = client.Chat(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, httpx.IsRetryableError(err), "expected a 429 status to classify as retryable, got %v", err)
}

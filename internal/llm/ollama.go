package llm

import (
	"context"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

type ollamaClient struct {
	log *logger.Logger
	hc  *httpClient
}

// newOllama talks to the local daemon's OpenAI-compatible endpoint, same as
// bbiangul-go-reason's ollamaProvider does for Chat. Model pulling on first
// use is an operational concern of the daemon itself, not this client.
func newOllama(log *logger.Logger, cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &ollamaClient{log: log.With("service", "LLM", "backend", "ollama"), hc: newHTTPClient(log, cfg)}
}

func (c *ollamaClient) Chat(ctx context.Context, prompt string) (string, error) {
	return c.hc.chat(ctx, []chatMessage{{Role: "user", Content: prompt}}, temperatureDefault, false)
}

func (c *ollamaClient) ExtractGraphComponents(ctx context.Context, text, sourceID string) ([]domain.Node, []domain.Edge, error) {
	return extractGraphComponents(ctx, c.hc, text, sourceID)
}

func (c *ollamaClient) GenerateAnswer(ctx context.Context, schemaText, question string) (string, error) {
	return generateAnswer(ctx, c.hc, schemaText, question)
}

func (c *ollamaClient) ExtractReferencedNodes(response string) []string {
	return extractReferencedNodes(response)
}

func (c *ollamaClient) GenerateSchemaText(nodes, relatedNodes []domain.Node, relationships []domain.Edge) string {
	return generateSchemaText(nodes, relatedNodes, relationships)
}

package llm

import (
	"context"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

// temperatureExtraction/temperatureDefault follow spec.md §4.8: 0.3 for
// extraction (the model needs some latitude to split concepts apart), 0
// everywhere else (deterministic answers).
const (
	temperatureExtraction = 0.3
	temperatureDefault    = 0.0
)

type openAIClient struct {
	log *logger.Logger
	hc  *httpClient
}

func newOpenAI(log *logger.Logger, cfg Config) Client {
	return &openAIClient{log: log.With("service", "LLM", "backend", "openai"), hc: newHTTPClient(log, cfg)}
}

func (c *openAIClient) Chat(ctx context.Context, prompt string) (string, error) {
	return c.hc.chat(ctx, []chatMessage{{Role: "user", Content: prompt}}, temperatureDefault, false)
}

func (c *openAIClient) ExtractGraphComponents(ctx context.Context, text, sourceID string) ([]domain.Node, []domain.Edge, error) {
	return extractGraphComponents(ctx, c.hc, text, sourceID)
}

func (c *openAIClient) GenerateAnswer(ctx context.Context, schemaText, question string) (string, error) {
	return generateAnswer(ctx, c.hc, schemaText, question)
}

func (c *openAIClient) ExtractReferencedNodes(response string) []string {
	return extractReferencedNodes(response)
}

func (c *openAIClient) GenerateSchemaText(nodes, relatedNodes []domain.Node, relationships []domain.Edge) string {
	return generateSchemaText(nodes, relatedNodes, relationships)
}

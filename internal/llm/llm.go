// Package llm implements C8: a uniform interface over two chat-completion
// backends (a hosted HTTPS API and a local daemon), grounded on the
// OpenAI-compatible HTTP shape in bbiangul-go-reason/llm/openai_compat.go
// and on the Korean prompt/response contracts in
// original_source/backend/services/{openai_service,ollama_service}.py.
// Calls here make exactly one attempt: response-format
// violations and transport errors are surfaced to the caller so the
// Recovery Controller (C9) decides whether to retry the whole stage.
package llm

import (
	"context"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

// Turn is a single chat message.
type Turn struct {
	Role    string
	Content string
}

// Config configures one backend instance.
type Config struct {
	Backend domain.LLMBackend
	BaseURL string
	APIKey  string
	Model   string
}

// Client is the C8 contract.
type Client interface {
	// Chat sends a single free-form prompt and returns the raw completion.
	Chat(ctx context.Context, prompt string) (string, error)
	// ExtractGraphComponents asks the model to pull structured nodes/edges
	// out of text, validating and deduplicating the result.
	ExtractGraphComponents(ctx context.Context, text, sourceID string) ([]domain.Node, []domain.Edge, error)
	// GenerateAnswer asks the model to answer a question from schema text,
	// in the EOF-delimited format original_source uses to smuggle a
	// referenced_nodes JSON block after the prose answer.
	GenerateAnswer(ctx context.Context, schemaText, question string) (string, error)
	// ExtractReferencedNodes parses the EOF-delimited JSON tail of a
	// GenerateAnswer response into bare node names.
	ExtractReferencedNodes(response string) []string
	// GenerateSchemaText renders a subgraph into the textual schema the
	// model reads for GenerateAnswer. Implemented purely in code.
	GenerateSchemaText(nodes, relatedNodes []domain.Node, relationships []domain.Edge) string
}

// New dispatches to the configured backend. Both use the same
// OpenAI-compatible wire format; only base URL/auth differ.
func New(log *logger.Logger, cfg Config) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, domainerr.InputValidation("llm: base_url required")
	}
	switch cfg.Backend {
	case domain.BackendOpenAI:
		return newOpenAI(log, cfg), nil
	case domain.BackendOllama:
		return newOllama(log, cfg), nil
	default:
		return nil, domainerr.InputValidation("llm: unknown backend: " + string(cfg.Backend))
	}
}

// GenerateSchemaText is implemented purely in code (spec allows this), not
// via the model; see schema_text.go.

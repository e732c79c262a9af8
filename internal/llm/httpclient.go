package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/pkg/httpx"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

// httpClient is the shared OpenAI-compatible chat-completions transport
// used by both backends; only base URL and auth header differ between them.
type httpClient struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
}

func newHTTPClient(log *logger.Logger, cfg Config) *httpClient {
	return &httpClient{
		log:     log,
		http:    &http.Client{Timeout: 120 * time.Second},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// chat sends one chat-completions request and returns the first choice's
// content. jsonMode enforces the structured-output response format.
func (c *httpClient) chat(ctx context.Context, messages []chatMessage, temperature float64, jsonMode bool) (string, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", domainerr.LLM("encode chat request failed", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", domainerr.LLM("build chat request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", domainerr.LLM("chat request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domainerr.LLM("read chat response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &statusError{status: resp.StatusCode}
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			wait := httpx.RetryAfterDuration(resp, 0, 30*time.Second)
			c.log.Warn("llm api returned a retryable status",
				"status", resp.StatusCode, "retry_after", wait, "body", truncate(raw, 500))
		}
		return "", domainerr.LLM(fmt.Sprintf("llm api error %d: %s", resp.StatusCode, truncate(raw, 500)), statusErr)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", domainerr.LLM("decode chat response failed", err)
	}
	if len(parsed.Choices) == 0 {
		return "", domainerr.LLM("llm returned no choices", nil)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// statusError exposes an LLM backend's HTTP status code through
// httpx.HTTPStatusCoder so the Recovery Controller's httpx.IsRetryableError
// can classify chat-completions failures by status rather than only by
// transport-level timeouts.
type statusError struct {
	status int
}

func (e *statusError) Error() string       { return fmt.Sprintf("http status %d", e.status) }
func (e *statusError) HTTPStatusCode() int { return e.status }

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}

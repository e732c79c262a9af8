// Package qdrant is a minimal REST client over the Qdrant vector database.
// There is no official Go SDK in the dependency corpus this service was
// built from, so the wire format is spoken directly against the HTTP API,
// following the same request/response envelope handling the corpus uses for
// its other hand-rolled HTTP store clients.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/graphbrain/kgqa/internal/platform/ctxutil"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// Point is a single vector + payload to upsert.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a single search hit.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

type Client struct {
	log     *logger.Logger
	baseURL string
	http    *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("qdrant: logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}
	return &Client{
		log:     log.With("service", "QdrantClient"),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// EnsureCollection creates the named collection with a cosine-distance
// vector config if it does not already exist. Idempotent.
func (c *Client) EnsureCollection(ctx context.Context, collection string, dim int) error {
	const op = "ensure_collection"
	exists, err := c.collectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := c.doJSON(ctx, op, http.MethodPut, c.collectionPath(collection, ""), body, nil); err != nil {
		return err
	}
	c.log.Info("qdrant collection created", "collection", collection, "dim", dim)
	return nil
}

func (c *Client) collectionExists(ctx context.Context, collection string) (bool, error) {
	const op = "collection_exists"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, c.baseURL+c.collectionPath(collection, ""), nil)
	if err != nil {
		return false, opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, classifyHTTPCallError(op, "qdrant collection exists check failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode}
	}
	return true, nil
}

func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	const op = "delete_collection"
	err := c.doJSON(ctx, op, http.MethodDelete, c.collectionPath(collection, ""), nil, nil)
	if err != nil {
		var opErrTyped *OperationError
		if errors.As(err, &opErrTyped) && opErrTyped.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(points))
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", id), nil)
		}
		payload = append(payload, map[string]any{
			"id":      id,
			"vector":  p.Vector,
			"payload": clonePayload(p.Payload),
		})
	}
	req := map[string]any{"points": payload}
	return c.doJSON(ctx, op, http.MethodPut, c.collectionPath(collection, "/points?wait=true"), req, nil)
}

func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]ScoredPoint, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if limit <= 0 {
		limit = 10
	}
	var qdrantFilter map[string]any
	if len(filter) > 0 {
		translated, err := translateFilterMap(filter)
		if err != nil {
			return nil, err
		}
		qdrantFilter = translated.asMap()
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if qdrantFilter != nil {
		req["filter"] = qdrantFilter
	}
	var raw []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload map[string]any  `json:"payload"`
	}
	if err := c.doJSON(ctx, op, http.MethodPost, c.collectionPath(collection, "/points/search"), req, &raw); err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(raw))
	for _, item := range raw {
		out = append(out, ScoredPoint{ID: decodePointID(item.ID), Score: item.Score, Payload: item.Payload})
	}
	return out, nil
}

// DeleteByFilter removes every point in the collection matching filter
// (e.g. {"source_id": "7"}).
func (c *Client) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	const op = "delete_by_filter"
	translated, err := translateFilterMap(filter)
	if err != nil {
		return err
	}
	req := map[string]any{"filter": translated.asMap()}
	return c.doJSON(ctx, op, http.MethodPost, c.collectionPath(collection, "/points/delete?wait=true"), req, nil)
}

func (c *Client) DeleteIDs(ctx context.Context, collection string, ids []string) error {
	const op = "delete_ids"
	if len(ids) == 0 {
		return nil
	}
	req := map[string]any{"points": ids}
	return c.doJSON(ctx, op, http.MethodPost, c.collectionPath(collection, "/points/delete?wait=true"), req, nil)
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func clonePayload(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (c *Client) collectionPath(collection, suffix string) string {
	path := "/collections/" + collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

// Package recovery implements C9: a bounded-retry controller that wraps a
// single orchestration stage and, on failure, asks the LLM Adapter to pick a
// corrective action before trying again. The action-dispatch shape (retry /
// fallback / give-up-after-N) follows the strategy-priority idiom in
// 2lar-b2/backend/internal/errors/recovery.go, generalized here to a single
// LLM-chosen action per spec.md §4.9 instead of a fixed strategy chain.
package recovery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/llm"
	"github.com/graphbrain/kgqa/internal/pkg/httpx"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

const maxAttempts = 3

// retryBackoffBase scales the sleep after each failed attempt that is not
// skipped or sent to fallback: attempt N waits about N×retryBackoffBase,
// jittered by httpx.JitterSleep so concurrent answer calls don't all retry in
// lockstep against the same backend.
const retryBackoffBase = 250 * time.Millisecond

// Action is the corrective action the LLM selects after a stage fails.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionSkip     Action = "skip"
	ActionModify   Action = "modify"
	ActionFallback Action = "fallback"
)

// StageContext is the `context` record passed to the recovery prompt: the
// question driving the current answer call and how large the current
// working set is.
type StageContext struct {
	Question        string
	NodeCount       int
	SchemaNodeCount int
}

// Params carries stage inputs that a "modify" action may rewrite between
// attempts (e.g. toggling deep search, truncating schema text).
type Params map[string]any

// Stage is a single retryable orchestration step. It reads its inputs from
// params rather than closure-captured arguments so a "modify" decision can
// change them without re-invoking the caller.
type Stage func(ctx context.Context, params Params) (any, error)

// Outcome is what Run returns to the orchestrator.
type Outcome struct {
	Result   any
	Skipped  bool
	Fallback bool
}

type Controller struct {
	llm llm.Client
	log *logger.Logger
}

func New(llmClient llm.Client, log *logger.Logger) *Controller {
	return &Controller{llm: llmClient, log: log.With("service", "RecoveryController")}
}

// Run executes stage, and on error asks the LLM for a recovery action up to
// maxAttempts times before giving up and propagating the last error.
func (c *Controller) Run(ctx context.Context, step string, stageCtx StageContext, params Params, stage Stage) (Outcome, error) {
	if params == nil {
		params = Params{}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := stage(ctx, params)
		if err == nil {
			return Outcome{Result: result}, nil
		}
		lastErr = err

		decision := c.decide(ctx, step, attempt, err, stageCtx)
		c.log.Warn("stage failed, applying recovery decision",
			"step", step, "attempt", attempt, "action", decision.RecoveryAction, "reason", decision.Reason, "error", err)

		switch Action(decision.RecoveryAction) {
		case ActionSkip:
			return Outcome{Skipped: true}, nil
		case ActionFallback:
			return Outcome{Fallback: true}, err
		case ActionModify:
			for k, v := range decision.RetryParams {
				params[k] = v
			}
			waitBeforeRetry(ctx, attempt)
			continue
		case ActionRetry:
			waitBeforeRetry(ctx, attempt)
			continue
		default:
			waitBeforeRetry(ctx, attempt)
			continue
		}
	}
	return Outcome{}, lastErr
}

// waitBeforeRetry jitters the inter-attempt delay so concurrent answer calls
// hitting the same failure don't all retry in lockstep.
func waitBeforeRetry(ctx context.Context, attempt int) {
	delay := httpx.JitterSleep(time.Duration(attempt) * retryBackoffBase)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type recoveryDecision struct {
	RecoveryAction string         `json:"recovery_action"`
	Modification   string         `json:"modification"`
	Reason         string         `json:"reason"`
	RetryParams    map[string]any `json:"retry_params"`
}

// decide builds the error_info/context records spec.md §4.9 names and asks
// the model to choose a recovery action. A malformed decision degrades to
// "retry"; a failed decision call degrades to "retry" when
// httpx.IsRetryableError accepts its error and to "fallback" otherwise.
func (c *Controller) decide(ctx context.Context, step string, attempt int, stageErr error, stageCtx StageContext) recoveryDecision {
	errorType := "Error"
	if kind, ok := errKind(stageErr); ok {
		errorType = string(kind)
	}

	var b strings.Builder
	b.WriteString("A pipeline stage failed. Decide how to recover.\n\n")
	b.WriteString("error_info: {")
	b.WriteString(`"error_type": "` + jsonEscape(errorType) + `", `)
	b.WriteString(`"error_message": "` + jsonEscape(stageErr.Error()) + `", `)
	b.WriteString(`"step": "` + jsonEscape(step) + `", `)
	b.WriteString("\"attempt\": " + itoa(attempt))
	b.WriteString("}\n")
	b.WriteString("context: {")
	b.WriteString(`"question": "` + jsonEscape(stageCtx.Question) + `", `)
	b.WriteString("\"node_count\": " + itoa(stageCtx.NodeCount) + ", ")
	b.WriteString("\"schema_node_count\": " + itoa(stageCtx.SchemaNodeCount))
	b.WriteString("}\n\n")
	b.WriteString(`Respond with exactly one JSON object: {"recovery_action": "retry"|"skip"|"modify"|"fallback", "modification": string, "reason": string, "retry_params": object}`)

	response, err := c.llm.Chat(ctx, b.String())
	if err != nil {
		action := ActionRetry
		if !httpx.IsRetryableError(err) {
			action = ActionFallback
		}
		c.log.Warn("recovery decision call failed, applying default action",
			"step", step, "action", action, "error", err)
		return recoveryDecision{RecoveryAction: string(action)}
	}

	var decision recoveryDecision
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &decision); err != nil {
		c.log.Warn("recovery decision response was not valid json, defaulting to retry", "step", step, "response", response)
		return recoveryDecision{RecoveryAction: string(ActionRetry)}
	}
	return decision
}

func errKind(err error) (domainerr.Kind, bool) {
	var e *domainerr.Error
	if ok := asDomainErr(err, &e); !ok {
		return "", false
	}
	return e.Kind, true
}

func asDomainErr(err error, target **domainerr.Error) bool {
	for err != nil {
		if e, ok := err.(*domainerr.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return strings.Trim(string(b), `"`)
}

func itoa(n int) string {
	return strings.TrimSpace(jsonNumber(n))
}

func jsonNumber(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

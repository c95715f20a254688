package callapi

import (
	"io"
	"net/http"
	"time"
)

// Hook stage names, in execution order within one call.
const (
	StageRequest  = "request"
	StageRetry    = "retry"
	StageSuccess  = "success"
	StageError    = "error"
	StageProgress = "progress"
	StageComplete = "complete"
)

// Hook is one interception callback. Returning a non-nil error
// short-circuits the remaining hooks of the stage and classifies the call
// as a Hook failure, unless the returned error is already a *Error, which
// is used as-is. Complete-stage hooks are exempt: they always all run and
// their failures never override the settled result.
type Hook func(hctx *HookContext) error

// Hooks groups the callbacks registered per lifecycle stage.
type Hooks struct {
	// OnRequest runs before every attempt's transport call. It may mutate
	// the outgoing HTTP request or short-circuit the attempt by setting
	// HookContext.ShortCircuit.
	OnRequest []Hook
	// OnRetry runs after a retryable outcome, before the backoff delay. It
	// may veto the retry (SkipRetry) or supply a transformed descriptor for
	// the next attempt (NextRequest).
	OnRetry []Hook
	// OnSuccess runs once when the call settles successfully.
	OnSuccess []Hook
	// OnError runs once when the call settles with an error.
	OnError []Hook
	// OnProgress runs as response body bytes arrive.
	OnProgress []Hook
	// OnComplete always runs exactly once per logical call, last.
	OnComplete []Hook
}

// append returns the stage-wise concatenation of h followed by other.
func (h Hooks) append(other Hooks) Hooks {
	return Hooks{
		OnRequest:  concatHooks(h.OnRequest, other.OnRequest),
		OnRetry:    concatHooks(h.OnRetry, other.OnRetry),
		OnSuccess:  concatHooks(h.OnSuccess, other.OnSuccess),
		OnError:    concatHooks(h.OnError, other.OnError),
		OnProgress: concatHooks(h.OnProgress, other.OnProgress),
		OnComplete: concatHooks(h.OnComplete, other.OnComplete),
	}
}

func concatHooks(a, b []Hook) []Hook {
	if len(b) == 0 {
		return a
	}
	out := make([]Hook, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// Plugin contributes hooks to every call made by the client. Plugin hooks
// run before user-registered hooks within each stage, in registration order.
type Plugin interface {
	Name() string
	Hooks() Hooks
}

// mergeHooks builds the effective per-call hook set: plugin hooks first,
// then client-level hooks, then per-call hooks.
func mergeHooks(plugins []Plugin, clientHooks, callHooks Hooks) Hooks {
	var merged Hooks
	for _, p := range plugins {
		merged = merged.append(p.Hooks())
	}
	merged = merged.append(clientHooks)
	merged = merged.append(callHooks)
	return merged
}

// HookContext is the read/write bag passed through each pipeline stage. A
// stage receives the context produced by the previous stage plus any
// transport-produced additions.
type HookContext struct {
	Client    *Client
	RequestID string

	// Request is the descriptor in effect for the current attempt.
	Request *Request
	// HTTPRequest is the outgoing request for the current attempt;
	// request-stage hooks may mutate it.
	HTTPRequest *http.Request

	Attempt int
	Start   time.Time

	// Response and Err reflect the latest transport outcome.
	Response *http.Response
	Err      *Error
	// Result is set for the success and complete stages.
	Result *Result

	// ShortCircuit, when set by a request-stage hook, settles the attempt
	// with the given result without calling the transport.
	ShortCircuit *Result
	// SkipRetry, when set by a retry-stage hook, vetoes the pending retry.
	SkipRetry bool
	// NextRequest, when set by a retry-stage hook, supersedes the
	// descriptor for the next attempt.
	NextRequest *Request

	// BytesRead is the cumulative response body byte count, for the
	// progress stage.
	BytesRead int64

	values map[string]any
}

// Set stores stage-crossing state, typically plugin bookkeeping.
func (h *HookContext) Set(key string, value any) {
	if h.values == nil {
		h.values = make(map[string]any)
	}
	h.values[key] = value
}

// Value returns state previously stored with Set.
func (h *HookContext) Value(key string) any {
	if h.values == nil {
		return nil
	}
	return h.values[key]
}

// runStage executes the hooks of one stage sequentially. The first failure
// short-circuits the rest and is returned classified.
func (c *Client) runStage(stage string, hooks []Hook, hctx *HookContext) *Error {
	for _, hook := range hooks {
		if err := hook(hctx); err != nil {
			if c.metrics != nil {
				c.metrics.RecordHookError(stage)
			}
			if ce, ok := err.(*Error); ok {
				return ce
			}
			return &Error{
				Type:      ErrorTypeHook,
				Message:   stage + " hook failed",
				Cause:     err,
				Timestamp: time.Now(),
			}
		}
	}
	return nil
}

// runComplete executes every complete-stage hook regardless of prior
// failures. Hook errors are reported through the logger and metrics but do
// not override the settled result.
func (c *Client) runComplete(hooks []Hook, hctx *HookContext) {
	for _, hook := range hooks {
		if err := hook(hctx); err != nil {
			if c.metrics != nil {
				c.metrics.RecordHookError(StageComplete)
			}
			if c.logger != nil {
				c.logger.Warn("complete hook failed", "requestID", hctx.RequestID, "error", err.Error())
			}
		}
	}
}

// progressReader feeds the progress stage while the response body drains.
type progressReader struct {
	r     io.Reader
	hctx  *HookContext
	hooks []Hook
	c     *Client
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 && len(pr.hooks) > 0 {
		pr.hctx.BytesRead += int64(n)
		if hookErr := pr.c.runStage(StageProgress, pr.hooks, pr.hctx); hookErr != nil {
			return n, hookErr
		}
	}
	return n, err
}

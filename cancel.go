package callapi

import (
	"context"
	"errors"
)

// newCallContext composes the effective cancellation signal for one logical
// call: the caller's context plus an internally owned canceller used for
// dedupe-driven supersession and manual aborts. Abort from either source
// propagates exactly once; later aborts are no-ops.
func newCallContext(parent context.Context) (context.Context, context.CancelCauseFunc) {
	return context.WithCancelCause(parent)
}

// attemptContext arms the per-attempt timeout on top of the call context.
// Each retry attempt re-arms a fresh timeout while the call-level signal
// stays transparent: an abort before or during any attempt cancels them all.
func attemptContext(callCtx context.Context, cfg *callConfig) (context.Context, context.CancelFunc) {
	if cfg.timeout > 0 {
		return context.WithTimeout(callCtx, cfg.timeout)
	}
	return context.WithCancel(callCtx)
}

// classifyContext maps a context failure to the error taxonomy. A fired
// per-attempt deadline is a Timeout; anything that cancelled the call-level
// signal (caller context, supersession, manual cancel) is an Abort.
func classifyContext(callCtx, attemptCtx context.Context) (errorType string, cause error) {
	if callCtx.Err() != nil {
		cause = context.Cause(callCtx)
		if cause == nil {
			cause = callCtx.Err()
		}
		return ErrorTypeAbort, cause
	}
	if attemptCtx != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return ErrorTypeTimeout, attemptCtx.Err()
	}
	return "", nil
}

// contextFailed reports whether err (or the contexts themselves) indicate a
// cancellation or deadline rather than a transport-level failure.
func contextFailed(callCtx, attemptCtx context.Context) bool {
	if callCtx.Err() != nil {
		return true
	}
	return attemptCtx != nil && attemptCtx.Err() != nil
}

// Cancel aborts the in-flight call registered under key, independent of the
// dedupe strategy that created it. It reports whether a call was found. All
// of the call's consumers settle with an Abort error.
func (c *Client) Cancel(key string) bool {
	return c.registry.cancelKey(key)
}

// CancelAll aborts every call currently in flight and returns how many were
// cancelled.
func (c *Client) CancelAll() int {
	return c.registry.cancelAll()
}

// InFlight returns the number of distinct dedupe keys currently executing.
func (c *Client) InFlight() int {
	return c.registry.size()
}

package callapi

import (
	"context"
	"sync"
	"time"
)

// inflightEntry tracks one logical call currently executing for a dedupe
// key. It is owned by the registry for its lifetime; waiters share the
// settled Result through it. Settlement is single-assignment: whichever of
// natural completion or abort reaches settle first wins.
type inflightEntry struct {
	key string

	mu      sync.Mutex
	result  *Result
	settled bool
	waiters int
	aborted bool
	cause   error
	cancel  context.CancelCauseFunc

	done chan struct{}
}

// settle records the terminal result exactly once and releases waiters.
// It reports whether this call performed the assignment.
func (e *inflightEntry) settle(res *Result) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settled {
		return false
	}
	e.result = res
	e.settled = true
	close(e.done)
	return true
}

// sharedResult returns the settled result. Valid only after done is closed.
func (e *inflightEntry) sharedResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// wait blocks until the owning call settles or the waiter's own context
// cancels. A waiter abandoning early does not disturb the in-flight call.
func (e *inflightEntry) wait(ctx context.Context) (*Result, error) {
	select {
	case <-e.done:
		return e.sharedResult(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// installCancel hands the owner's composed canceller to the entry so that
// supersession and manual aborts can reach the in-flight attempt. If an
// abort already happened before the owner got this far, it is delivered
// immediately.
func (e *inflightEntry) installCancel(cancel context.CancelCauseFunc) {
	e.mu.Lock()
	aborted, cause := e.aborted, e.cause
	if !aborted {
		e.cancel = cancel
	}
	e.mu.Unlock()

	if aborted {
		cancel(cause)
	}
}

// forceAbort settles the entry with an Abort classification (unless it has
// already settled) and cancels the owning call's context. Idempotent.
func (e *inflightEntry) forceAbort(cause error) {
	e.mu.Lock()
	if e.aborted {
		e.mu.Unlock()
		return
	}
	e.aborted = true
	e.cause = cause
	cancel := e.cancel
	e.mu.Unlock()

	e.settle(&Result{Error: &Error{
		Type:      ErrorTypeAbort,
		Message:   "call aborted",
		Cause:     cause,
		Timestamp: time.Now(),
	}})

	if cancel != nil {
		cancel(cause)
	}
}

// inflightRegistry is the per-client concurrency control point: at most one
// entry exists per dedupe key at any instant. All transitions happen under
// the registry mutex so no two concurrent acquires for the same key can
// both observe a new entry.
type inflightRegistry struct {
	mu      sync.Mutex
	entries map[string]*inflightEntry
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{
		entries: make(map[string]*inflightEntry),
	}
}

// acquire registers interest in a key. For a fresh key it creates an entry
// and reports isNew=true. For a key already in flight the strategy decides:
// DedupeDefer joins the existing entry as a waiter (isNew=false),
// DedupeCancel aborts and replaces it (isNew=true, superseded=true).
// DedupeNone never reaches the registry.
func (r *inflightRegistry) acquire(key string, strategy DedupeStrategy) (entry *inflightEntry, isNew, superseded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		switch strategy {
		case DedupeDefer:
			existing.mu.Lock()
			existing.waiters++
			existing.mu.Unlock()
			return existing, false, false
		default:
			// Supersede: the old call settles as aborted strictly before
			// the replacement entry becomes visible.
			delete(r.entries, key)
			existing.forceAbort(ErrSuperseded)
			superseded = true
		}
	}

	entry = &inflightEntry{
		key:     key,
		waiters: 1,
		done:    make(chan struct{}),
	}
	r.entries[key] = entry
	return entry, true, superseded
}

// release drops one waiter reference. The entry is removed once the call
// has settled and the last waiter is gone.
func (r *inflightRegistry) release(key string, entry *inflightEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.mu.Lock()
	entry.waiters--
	drained := entry.waiters <= 0 && entry.settled
	entry.mu.Unlock()

	if drained && r.entries[key] == entry {
		delete(r.entries, key)
	}
}

// owns reports whether the entry is still the registered call for its key.
// The retry loop checks this before scheduling another attempt so that a
// superseded call cannot resurrect itself.
func (r *inflightRegistry) owns(key string, entry *inflightEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key] == entry
}

// cancelKey aborts the in-flight call for key, if any. The entry is removed
// by the owner's release once its loop unwinds.
func (r *inflightRegistry) cancelKey(key string) bool {
	r.mu.Lock()
	entry := r.entries[key]
	r.mu.Unlock()

	if entry == nil {
		return false
	}
	entry.forceAbort(ErrAborted)
	return true
}

// cancelAll aborts every in-flight call.
func (r *inflightRegistry) cancelAll() int {
	r.mu.Lock()
	entries := make([]*inflightEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.forceAbort(ErrAborted)
	}
	return len(entries)
}

func (r *inflightRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

package callapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestInflightRegistryAcquire(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("FreshKeyIsNew", func(t *testing.T) {
		r := newInflightRegistry()
		entry, isNew, superseded := r.acquire("k", DedupeDefer)
		if entry == nil || !isNew || superseded {
			t.Fatalf("got (entry=%v, isNew=%v, superseded=%v), want fresh entry", entry, isNew, superseded)
		}
		if r.size() != 1 {
			t.Errorf("size = %d, want 1", r.size())
		}
	})

	t.Run("DeferJoinsExisting", func(t *testing.T) {
		r := newInflightRegistry()
		first, _, _ := r.acquire("k", DedupeDefer)
		second, isNew, superseded := r.acquire("k", DedupeDefer)
		if second != first {
			t.Fatal("defer acquire should return the existing entry")
		}
		if isNew || superseded {
			t.Errorf("got (isNew=%v, superseded=%v), want join", isNew, superseded)
		}
	})

	t.Run("CancelSupersedesExisting", func(t *testing.T) {
		r := newInflightRegistry()
		first, _, _ := r.acquire("k", DedupeCancel)
		second, isNew, superseded := r.acquire("k", DedupeCancel)
		if second == first {
			t.Fatal("cancel acquire should create a replacement entry")
		}
		if !isNew || !superseded {
			t.Errorf("got (isNew=%v, superseded=%v), want replacement", isNew, superseded)
		}

		// The superseded entry must already be settled as aborted.
		select {
		case <-first.done:
		default:
			t.Fatal("superseded entry should be settled")
		}
		res := first.sharedResult()
		if res.Error == nil || res.Error.Type != ErrorTypeAbort {
			t.Fatalf("superseded result = %+v, want Abort", res)
		}
		if !errors.Is(res.Error, ErrSuperseded) {
			t.Error("superseded cause should be ErrSuperseded")
		}

		if !r.owns("k", second) || r.owns("k", first) {
			t.Error("replacement entry should own the key")
		}
	})
}

func TestInflightEntrySettle(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := &inflightEntry{key: "k", done: make(chan struct{})}

	first := &Result{Data: "first"}
	if !e.settle(first) {
		t.Fatal("first settle should win")
	}
	if e.settle(&Result{Data: "second"}) {
		t.Fatal("second settle should lose")
	}
	if e.sharedResult() != first {
		t.Error("shared result should be the first settlement")
	}
}

func TestInflightEntryWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("ReceivesSettledResult", func(t *testing.T) {
		e := &inflightEntry{key: "k", done: make(chan struct{})}
		want := &Result{Data: "hello"}
		go func() {
			time.Sleep(10 * time.Millisecond)
			e.settle(want)
		}()
		got, err := e.wait(context.Background())
		if err != nil {
			t.Fatalf("wait returned error: %v", err)
		}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("WaiterContextCancel", func(t *testing.T) {
		e := &inflightEntry{key: "k", done: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.wait(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
		// The entry itself is untouched.
		select {
		case <-e.done:
			t.Fatal("abandoning waiter must not settle the entry")
		default:
		}
	})
}

func TestInflightEntryForceAbort(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("SettlesWithAbort", func(t *testing.T) {
		e := &inflightEntry{key: "k", done: make(chan struct{})}
		e.forceAbort(ErrAborted)
		res := e.sharedResult()
		if res.Error == nil || res.Error.Type != ErrorTypeAbort {
			t.Fatalf("got %+v, want Abort", res)
		}
		// Idempotent.
		e.forceAbort(ErrSuperseded)
		if !errors.Is(e.sharedResult().Error, ErrAborted) {
			t.Error("second abort must not override the first cause")
		}
	})

	t.Run("CancelInstalledBeforeAbort", func(t *testing.T) {
		e := &inflightEntry{key: "k", done: make(chan struct{})}
		ctx, cancel := context.WithCancelCause(context.Background())
		e.installCancel(cancel)
		e.forceAbort(ErrSuperseded)
		if !errors.Is(context.Cause(ctx), ErrSuperseded) {
			t.Errorf("cause = %v, want ErrSuperseded", context.Cause(ctx))
		}
	})

	t.Run("CancelInstalledAfterAbort", func(t *testing.T) {
		e := &inflightEntry{key: "k", done: make(chan struct{})}
		e.forceAbort(ErrSuperseded)
		ctx, cancel := context.WithCancelCause(context.Background())
		e.installCancel(cancel)
		if !errors.Is(context.Cause(ctx), ErrSuperseded) {
			t.Error("late-installed cancel should fire immediately")
		}
	})
}

func TestInflightRegistryRelease(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newInflightRegistry()
	entry, _, _ := r.acquire("k", DedupeDefer)
	r.acquire("k", DedupeDefer) // second waiter

	entry.settle(&Result{Data: "done"})

	r.release("k", entry)
	if r.size() != 1 {
		t.Fatalf("size = %d after first release, want 1", r.size())
	}
	r.release("k", entry)
	if r.size() != 0 {
		t.Fatalf("size = %d after last release, want 0", r.size())
	}
}

func TestInflightRegistryCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("CancelKey", func(t *testing.T) {
		r := newInflightRegistry()
		entry, _, _ := r.acquire("k", DedupeDefer)
		if !r.cancelKey("k") {
			t.Fatal("cancelKey should report a cancelled call")
		}
		if entry.sharedResult().Error.Type != ErrorTypeAbort {
			t.Error("cancelled entry should settle as Abort")
		}
		if r.cancelKey("missing") {
			t.Error("cancelKey on a missing key should report false")
		}
	})

	t.Run("CancelAll", func(t *testing.T) {
		r := newInflightRegistry()
		r.acquire("a", DedupeDefer)
		r.acquire("b", DedupeDefer)
		if n := r.cancelAll(); n != 2 {
			t.Fatalf("cancelAll = %d, want 2", n)
		}
	})
}

func TestInflightRegistryConcurrentAcquire(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newInflightRegistry()
	const goroutines = 32

	// All goroutines acquire before anyone settles, so exactly one can
	// observe a fresh entry.
	var acquired, wg sync.WaitGroup
	acquired.Add(goroutines)

	var mu sync.Mutex
	owners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, isNew, _ := r.acquire("k", DedupeDefer)
			acquired.Done()
			acquired.Wait()
			if isNew {
				mu.Lock()
				owners++
				mu.Unlock()
				entry.settle(&Result{Data: "shared"})
			} else {
				if _, err := entry.wait(context.Background()); err != nil {
					t.Errorf("wait: %v", err)
				}
			}
			r.release("k", entry)
		}()
	}
	wg.Wait()

	if owners != 1 {
		t.Errorf("owners = %d, want exactly 1", owners)
	}
	if r.size() != 0 {
		t.Errorf("size = %d after drain, want 0", r.size())
	}
}

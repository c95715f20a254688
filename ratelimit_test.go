package callapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRateLimiterPluginAllowsWithinBudget(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	limiter := NewRateLimiterPlugin(2, time.Hour)
	c := New(WithMaxRetries(0), WithPlugins(limiter))

	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), server.URL); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
	if limiter.Tokens() != 0 {
		t.Errorf("tokens = %d, want 0", limiter.Tokens())
	}
}

func TestRateLimiterPluginDeniesWhenExhausted(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	limiter := NewRateLimiterPlugin(1, time.Hour)
	c := New(WithMaxRetries(3), WithPlugins(limiter))

	if _, err := c.Get(context.Background(), server.URL); err != nil {
		t.Fatalf("first call: %v", err)
	}

	_, err := c.Get(context.Background(), server.URL)
	var ce *Error
	if !errors.As(err, &ce) || ce.Type != ErrorTypeRateLimit {
		t.Fatalf("error = %v, want RateLimit classification", err)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Error("cause should be ErrRateLimited")
	}
	// The denial is terminal: no retries burn further attempts.
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestRateLimiterPluginRefills(t *testing.T) {
	limiter := NewRateLimiterPlugin(1, 10*time.Millisecond)

	allowed, _ := limiter.take()
	if !allowed {
		t.Fatal("first take should be allowed")
	}
	if allowed, _ := limiter.take(); allowed {
		t.Fatal("second take should be denied")
	}

	time.Sleep(15 * time.Millisecond)
	if allowed, _ := limiter.take(); !allowed {
		t.Error("take should be allowed after refill")
	}
}

func TestRateLimiterPluginCapsAtMax(t *testing.T) {
	limiter := NewRateLimiterPlugin(3, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	limiter.take()
	if limiter.Tokens() > 2 {
		t.Errorf("tokens = %d, refill should cap at the bucket size", limiter.Tokens())
	}
}

func TestRateLimiterPluginName(t *testing.T) {
	limiter := NewRateLimiterPlugin(1, time.Second)
	if limiter.Name() != "rate-limiter/default" {
		t.Errorf("name = %q", limiter.Name())
	}
}

package callapi

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		e := &Error{Type: ErrorTypeNetwork, Message: "connection refused"}
		if got := e.Error(); got != "Network: connection refused" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("WithCause", func(t *testing.T) {
		e := &Error{Type: ErrorTypeTimeout, Message: "attempt timed out", Cause: errors.New("deadline exceeded")}
		got := e.Error()
		if !strings.Contains(got, "deadline exceeded") {
			t.Errorf("got %q, want cause included", got)
		}
	})

	t.Run("WithRequestIDAndAttempt", func(t *testing.T) {
		e := &Error{Type: ErrorTypeHTTP, Message: "request failed", RequestID: "req-1", Attempt: 2, MaxRetries: 3}
		got := e.Error()
		if !strings.Contains(got, "[req-1]") || !strings.Contains(got, "attempt 2/3") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("Nil", func(t *testing.T) {
		var e *Error
		if got := e.Error(); got != "<nil>" {
			t.Errorf("got %q", got)
		}
	})
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := &Error{Type: ErrorTypeNetwork, Message: "failed", Cause: cause}
	if !errors.Is(e, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}

	wrapped := fmt.Errorf("outer: %w", e)
	var ce *Error
	if !errors.As(wrapped, &ce) || ce.Type != ErrorTypeNetwork {
		t.Error("errors.As should recover the classified error")
	}
}

func TestErrorIsMatchesType(t *testing.T) {
	e := &Error{Type: ErrorTypeAbort, Message: "call aborted"}
	if !errors.Is(e, &Error{Type: ErrorTypeAbort}) {
		t.Error("same type tags should match")
	}
	if errors.Is(e, &Error{Type: ErrorTypeTimeout}) {
		t.Error("different type tags should not match")
	}
}

func TestIsAbort(t *testing.T) {
	if !IsAbort(&Error{Type: ErrorTypeAbort}) {
		t.Error("Abort error should report true")
	}
	if IsAbort(&Error{Type: ErrorTypeTimeout}) {
		t.Error("Timeout error should report false")
	}
	if IsAbort(errors.New("plain")) {
		t.Error("plain error should report false")
	}
	if !IsAbort(fmt.Errorf("wrapped: %w", &Error{Type: ErrorTypeAbort, Cause: ErrSuperseded})) {
		t.Error("wrapped abort should report true")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Nil", nil, false},
		{"Network", &Error{Type: ErrorTypeNetwork}, true},
		{"Timeout", &Error{Type: ErrorTypeTimeout}, true},
		{"RateLimit", &Error{Type: ErrorTypeRateLimit}, true},
		{"CircuitOpen", &Error{Type: ErrorTypeCircuitOpen}, true},
		{"HTTP500", &Error{Type: ErrorTypeHTTP, StatusCode: 500}, true},
		{"HTTP429", &Error{Type: ErrorTypeHTTP, StatusCode: 429}, true},
		{"HTTP404", &Error{Type: ErrorTypeHTTP, StatusCode: 404}, false},
		{"Abort", &Error{Type: ErrorTypeAbort}, false},
		{"Validation", &Error{Type: ErrorTypeValidation}, false},
		{"Serialization", &Error{Type: ErrorTypeSerialization}, false},
		{"Hook", &Error{Type: ErrorTypeHook}, false},
		{"SentinelRateLimited", ErrRateLimited, true},
		{"SentinelCircuitOpen", ErrCircuitOpen, true},
		{"Plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDebugInfo(t *testing.T) {
	e := &Error{
		Type:       ErrorTypeHTTP,
		Message:    "request failed",
		RequestID:  "req-9",
		Method:     "GET",
		URL:        "https://api.example.com/users",
		Endpoint:   "api.example.com/users",
		StatusCode: 502,
		Attempt:    1,
		MaxRetries: 3,
		Timestamp:  time.Now(),
		Duration:   42 * time.Millisecond,
		Cause:      errors.New("bad gateway"),
	}
	info := e.DebugInfo()
	for _, want := range []string{"req-9", "GET", "502", "1/3", "bad gateway", "api.example.com/users"} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo missing %q:\n%s", want, info)
		}
	}

	var nilErr *Error
	if nilErr.DebugInfo() != "Error: <nil>" {
		t.Error("nil receiver should render a placeholder")
	}
}

package callapi

import (
	"errors"
	"fmt"
	"time"
)

// Error type tags. Every settled failure carries exactly one of these so
// callers can discriminate outcomes without dynamic type checks.
const (
	// ErrorTypeNetwork is a transport-level failure before a response was obtained.
	ErrorTypeNetwork = "Network"
	// ErrorTypeTimeout means the per-attempt timeout fired.
	ErrorTypeTimeout = "Timeout"
	// ErrorTypeAbort is an external, manual or dedupe-driven cancellation.
	ErrorTypeAbort = "Abort"
	// ErrorTypeHTTP is a response with a non-success status code.
	ErrorTypeHTTP = "HTTP"
	// ErrorTypeValidation means a configured validator rejected the result,
	// or the client configuration itself failed validation.
	ErrorTypeValidation = "Validation"
	// ErrorTypeSerialization is a request body encoding failure.
	ErrorTypeSerialization = "Serialization"
	// ErrorTypeParse is a response body decoding failure.
	ErrorTypeParse = "Parse"
	// ErrorTypeHook means a lifecycle hook failed.
	ErrorTypeHook = "Hook"
	// ErrorTypeRateLimit means the rate limiter plugin denied the call.
	ErrorTypeRateLimit = "RateLimit"
	// ErrorTypeCircuitOpen means the circuit breaker plugin denied the call.
	ErrorTypeCircuitOpen = "CircuitOpen"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrAborted is the cause recorded for manual and external cancellations.
	ErrAborted = errors.New("callapi: call aborted")

	// ErrSuperseded is the cause recorded when a cancel-strategy call
	// replaces an in-flight call with the same dedupe key.
	ErrSuperseded = errors.New("callapi: superseded by newer call")

	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("callapi: circuit open")

	// ErrRateLimited is returned when a call is denied by the rate limiter.
	ErrRateLimited = errors.New("callapi: rate limited")
)

// Error is the classified failure of a logical call. Type carries the
// taxonomy tag; the remaining fields add diagnostic context.
type Error struct {
	Type    string
	Message string
	Cause   error

	// Data holds the parsed error response body for HTTP errors, if the
	// body could be decoded.
	Data any

	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error type tags for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsAbort reports whether err settles as an Abort classification.
func IsAbort(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Type == ErrorTypeAbort
}

// IsRetryable determines if an error represents a transient failure that
// might succeed on retry. Returns true for network errors, timeouts, 5xx
// responses and rate limiting (429). Aborts, validation, serialization and
// hook failures are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCircuitOpen) {
		return true
	}

	var ce *Error
	if errors.As(err, &ce) {
		switch ce.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeCircuitOpen:
			return true
		case ErrorTypeHTTP:
			return ce.StatusCode == 429 || ce.StatusCode >= 500
		default:
			return false
		}
	}

	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

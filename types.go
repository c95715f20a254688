package callapi

import (
	"net/http"
	"time"
)

// DedupeStrategy selects how a new call interacts with an in-flight call
// sharing the same dedupe key.
type DedupeStrategy string

const (
	// DedupeCancel aborts the in-flight call and lets the new call proceed.
	// The superseded call settles with an Abort error.
	DedupeCancel DedupeStrategy = "cancel"
	// DedupeDefer joins the in-flight call; both callers receive the same
	// Result from a single transport request.
	DedupeDefer DedupeStrategy = "defer"
	// DedupeNone bypasses the in-flight registry entirely.
	DedupeNone DedupeStrategy = "none"
)

// BackoffStrategy selects the algorithm used to compute retry delays.
type BackoffStrategy int

const (
	// ExponentialJitter grows the delay exponentially with uniform jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter implements AWS-style decorrelated jitter.
	DecorrelatedJitter
	// FixedBackoff waits the initial backoff duration between every attempt.
	FixedBackoff
)

// RoundTripper is the transport primitive the client drives. The supplied
// request carries the composed cancellation signal in its context; the
// transport must honor it by aborting in-flight I/O promptly.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to the RoundTripper interface.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// RetryCondition determines whether a request should be retried.
type RetryCondition func(resp *http.Response, err error) bool

// RetryPolicy decides whether to retry after a failed attempt and how long
// to wait before the next one. The client never consults the policy for
// aborted calls; aborts are always terminal.
type RetryPolicy interface {
	ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool)
}

// DedupeKeyFunc builds the deduplication identity for a request descriptor.
type DedupeKeyFunc func(req *Request) string

// Serializer encodes a request body value into bytes plus a content type.
// Failures are classified as Serialization errors and never reach the
// transport.
type Serializer func(v any) ([]byte, string, error)

// ResponseParser decodes a raw response body into a value. Failures are
// classified as Parse errors.
type ResponseParser func(resp *http.Response, data []byte) (any, error)

// ResponseValidator inspects a successful result before it settles. A
// non-nil error classifies the call as a Validation failure, distinct from
// HTTP and network outcomes.
type ResponseValidator func(res *Result) error

// Request is the immutable descriptor of one logical call. It is created
// once per call from the client defaults and call options; retry-driven
// transformations replace it rather than mutating it.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Body is the pre-serialization body value. It is encoded once by the
	// configured Serializer; the encoded bytes are replayed on every attempt.
	Body any

	body        []byte
	contentType string
}

// Clone returns a deep copy of the descriptor suitable for transformation
// by a retry hook.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := &Request{
		Method:      r.Method,
		URL:         r.URL,
		Header:      r.Header.Clone(),
		Body:        r.Body,
		contentType: r.contentType,
	}
	if r.body != nil {
		out.body = make([]byte, len(r.body))
		copy(out.body, r.body)
	}
	return out
}

// Result is the uniform terminal value of a logical call. Exactly one of
// Data or Error is set; Response and Body carry the last transport response
// when one was obtained.
type Result struct {
	// Data is the parsed response body on success, nil on failure.
	Data any
	// Error is the classified failure, nil on success.
	Error *Error
	// Response is the last HTTP response observed, if any. Its body has
	// already been drained into Body.
	Response *http.Response
	// Body is the raw response body.
	Body []byte
}

// Ok reports whether the call settled successfully.
func (r *Result) Ok() bool {
	return r != nil && r.Error == nil
}

// Option represents a client configuration option.
type Option func(*Client)

// CallOption adjusts the configuration of a single call.
type CallOption func(*callConfig)

package callapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	internalbackoff "github.com/Timonwa/call-api/internal/backoff"
)

// DefaultRetryStatuses are the HTTP status codes retried by the default
// policy, in addition to any status >= 500.
var DefaultRetryStatuses = []int{http.StatusRequestTimeout, http.StatusTooManyRequests}

// DefaultRetryPolicy retries network failures, timeouts and retryable HTTP
// statuses with configurable backoff. Delays honor the Retry-After header
// for 429/503 responses and are clamped to the configured maximum.
type DefaultRetryPolicy struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	strategy          BackoffStrategy
	statuses          map[int]struct{}
	calculator        *internalbackoff.Calculator
}

// NewDefaultRetryPolicy creates the default policy with exponential jitter
// backoff.
func NewDefaultRetryPolicy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return NewDefaultRetryPolicyWithStrategy(maxRetries, initialBackoff, maxBackoff, multiplier, jitter, ExponentialJitter)
}

// NewDefaultRetryPolicyWithStrategy creates the default policy with a
// specific backoff strategy.
func NewDefaultRetryPolicyWithStrategy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	p := &DefaultRetryPolicy{
		maxRetries:        maxRetries,
		initialBackoff:    initialBackoff,
		maxBackoff:        maxBackoff,
		backoffMultiplier: multiplier,
		jitter:            jitter,
		strategy:          strategy,
		statuses:          make(map[int]struct{}, len(DefaultRetryStatuses)),
	}
	for _, code := range DefaultRetryStatuses {
		p.statuses[code] = struct{}{}
	}

	switch strategy {
	case DecorrelatedJitter:
		p.calculator = internalbackoff.Decorrelated()
	case FixedBackoff:
		p.calculator = internalbackoff.Fixed()
	default:
		p.calculator = internalbackoff.Exponential()
	}
	return p
}

// SetRetryStatuses replaces the retryable status set. Statuses >= 500
// remain retryable regardless.
func (p *DefaultRetryPolicy) SetRetryStatuses(codes ...int) {
	p.statuses = make(map[int]struct{}, len(codes))
	for _, code := range codes {
		p.statuses[code] = struct{}{}
	}
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}

	retry := false
	var delay time.Duration

	if err != nil {
		// Transport failures and fired attempt timeouts are retryable;
		// aborts never reach the policy.
		retry = true
	} else if resp != nil {
		if _, ok := p.statuses[resp.StatusCode]; ok || resp.StatusCode >= 500 {
			retry = true
			delay = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
	}

	if !retry {
		return 0, false
	}

	if delay == 0 {
		delay = p.calculator.Calculate(attempt, p.initialBackoff, p.maxBackoff, p.backoffMultiplier, p.jitter)
	}
	if delay > p.maxBackoff {
		delay = p.maxBackoff
	}
	return delay, true
}

// conditionPolicy adapts a RetryCondition plus the client's backoff
// parameters into a RetryPolicy.
type conditionPolicy struct {
	condition RetryCondition
	base      *DefaultRetryPolicy
}

func (p *conditionPolicy) ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.base.maxRetries || !p.condition(resp, err) {
		return 0, false
	}
	delay := p.base.calculator.Calculate(attempt, p.base.initialBackoff, p.base.maxBackoff, p.base.backoffMultiplier, p.base.jitter)
	if delay > p.base.maxBackoff {
		delay = p.base.maxBackoff
	}
	return delay, true
}

// DefaultRetryCondition retries on transport errors and 5xx responses.
func DefaultRetryCondition(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode >= 500
}

// parseRetryAfter parses the Retry-After header value. Both delay-seconds
// and HTTP-date formats are supported; results are capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// RetryBudget caps the number of retries issued across all calls within a
// sliding window, protecting downstreams from retry storms.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget creates a budget allowing maxRetries retries per window.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow checks whether another retry fits in the current window.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	if atomic.LoadInt64(&rb.current) >= rb.maxRetries {
		return false
	}
	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// Stats returns the current usage, limit and window start.
func (rb *RetryBudget) Stats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}

// Package callapi provides a deduplicating, retrying HTTP request client
// built around a structured call lifecycle:
//
//   - Request de‑duplication with three strategies: cancel (newest call wins),
//     defer (concurrent identical calls share one transport request) and none
//   - Retries with configurable backoff (fixed, exponential + jitter,
//     decorrelated jitter) and Retry‑After awareness
//   - Composed cancellation: caller context, per‑attempt timeout and
//     dedupe‑driven or manual aborts all feed one effective signal
//   - A hook pipeline (request, retry, success, error, progress, complete)
//     shared by registered plugins and user callbacks
//   - Built‑in plugins: circuit breaker, token bucket rate limiter and a
//     TTL response cache
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Uniform results: every call settles to a Result with a classified,
//     typed error instead of being silently dropped
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via plugins contributing hooks to every lifecycle stage
//
// Typical usage:
//
//	client := callapi.New(
//	    callapi.WithMaxRetries(3),
//	    callapi.WithTimeout(10*time.Second),
//	    callapi.WithDedupeStrategy(callapi.DedupeCancel),
//	)
//	res, err := client.Get(ctx, "https://api.example.com/users")
//
// Concurrent calls that normalize to the same dedupe key are coordinated by
// an in‑flight registry scoped to the client instance: under the cancel
// strategy the older call settles with an Abort error before the newer call
// proceeds, and under the defer strategy both callers receive the identical
// Result from a single transport request.
package callapi

// Package backoff provides the retry delay calculators used by the client's
// retry policy.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt. Implementations must
// clamp their output to [0, maxBackoff].
type Strategy interface {
	Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration
}

// FixedStrategy waits the initial backoff (plus optional jitter) before
// every attempt regardless of the attempt index.
type FixedStrategy struct{}

func (s FixedStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, _, jitter float64) time.Duration {
	delay := initialBackoff
	if delay > maxBackoff {
		delay = maxBackoff
	}
	jitter = clampJitter(jitter)
	if jitter > 0 {
		amount := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+amount > maxBackoff {
			delay = maxBackoff
		} else {
			delay += amount
		}
	}
	return delay
}

// ExponentialJitterStrategy implements exponential backoff with uniform
// jitter. The un-jittered delay is initialBackoff * multiplier^attempt.
type ExponentialJitterStrategy struct{}

func (s ExponentialJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Overflow guard.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(initialBackoff) * Pow(multiplier, attempt))
	if delay < 0 || delay > maxBackoff {
		delay = maxBackoff
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		amount := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+amount > maxBackoff {
			delay = maxBackoff
		} else {
			delay += amount
		}
	}
	return delay
}

// DecorrelatedJitterStrategy implements decorrelated jitter as described in
// the AWS architecture blog: random_between(base, min(cap, base * 3^attempt)).
// It trades determinism for smoother tail latencies under contention.
type DecorrelatedJitterStrategy struct{}

func (s DecorrelatedJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return initialBackoff
	}
	// Overflow guard.
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initialBackoff)
	upper := base * Pow(3.0, attempt)

	maxBackoffFloat := float64(maxBackoff)
	if upper > maxBackoffFloat || upper < 0 {
		upper = maxBackoffFloat
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// clampJitter ensures jitter is within [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// Pow computes base^exponent using integer exponentiation.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

package backoff

import (
	"time"
)

// Calculator binds a Strategy to the retry parameters shared by every
// attempt of a call.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a calculator using the supplied strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Calculate computes the delay before the given attempt.
func (c *Calculator) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initialBackoff, maxBackoff, multiplier, jitter)
}

// Strategy returns the strategy currently in use.
func (c *Calculator) Strategy() Strategy {
	return c.strategy
}

// Fixed returns a calculator using the fixed delay strategy.
func Fixed() *Calculator {
	return NewCalculator(FixedStrategy{})
}

// Exponential returns a calculator using exponential backoff with jitter.
func Exponential() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{})
}

// Decorrelated returns a calculator using AWS-style decorrelated jitter.
func Decorrelated() *Calculator {
	return NewCalculator(DecorrelatedJitterStrategy{})
}

package callapi

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

const breakerDoneKey = "callapi:breaker:done"

// CircuitBreakerConfig holds circuit breaker plugin configuration.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and metrics. Defaults to "default".
	Name string
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker open. Defaults to 5.
	FailureThreshold uint32
	// RecoveryTimeout is how long the breaker stays open before probing.
	// Defaults to 60s.
	RecoveryTimeout time.Duration
	// MaxHalfOpenRequests caps concurrent probes while half-open.
	// Defaults to 1.
	MaxHalfOpenRequests uint32
}

// CircuitBreakerPlugin gates calls through a circuit breaker. It contributes
// a request-stage gate plus outcome recording on the retry, success and
// error stages, so every attempt admitted by the breaker is also accounted
// for.
type CircuitBreakerPlugin struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker[any]
}

// NewCircuitBreakerPlugin creates a breaker plugin from config, applying
// defaults for zero values.
func NewCircuitBreakerPlugin(config CircuitBreakerConfig) *CircuitBreakerPlugin {
	if config.Name == "" {
		config.Name = "default"
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.MaxHalfOpenRequests == 0 {
		config.MaxHalfOpenRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxHalfOpenRequests,
		Timeout:     config.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
	}

	return &CircuitBreakerPlugin{
		name: config.Name,
		cb:   gobreaker.NewTwoStepCircuitBreaker[any](settings),
	}
}

// Name implements the Plugin interface.
func (p *CircuitBreakerPlugin) Name() string { return "circuit-breaker/" + p.name }

// State returns the breaker's current state.
func (p *CircuitBreakerPlugin) State() gobreaker.State { return p.cb.State() }

// Hooks implements the Plugin interface.
func (p *CircuitBreakerPlugin) Hooks() Hooks {
	return Hooks{
		OnRequest: []Hook{p.allow},
		OnRetry:   []Hook{p.recordAttemptFailure},
		OnSuccess: []Hook{p.recordSuccess},
		OnError:   []Hook{p.recordError},
	}
}

func (p *CircuitBreakerPlugin) allow(hctx *HookContext) error {
	done, err := p.cb.Allow()
	if err != nil {
		p.reportState(hctx)
		return &Error{
			Type:      ErrorTypeCircuitOpen,
			Message:   "circuit breaker is open",
			Cause:     ErrCircuitOpen,
			Timestamp: time.Now(),
		}
	}
	hctx.Set(breakerDoneKey, done)
	return nil
}

// recordAttemptFailure settles the breaker bookkeeping for an attempt that
// failed retryably; the next attempt's request stage opens a fresh slot.
func (p *CircuitBreakerPlugin) recordAttemptFailure(hctx *HookContext) error {
	p.resolve(hctx, false)
	return nil
}

func (p *CircuitBreakerPlugin) recordSuccess(hctx *HookContext) error {
	p.resolve(hctx, true)
	return nil
}

func (p *CircuitBreakerPlugin) recordError(hctx *HookContext) error {
	// Aborted calls say nothing about downstream health; they must not
	// trip the breaker.
	p.resolve(hctx, hctx.Err != nil && hctx.Err.Type == ErrorTypeAbort)
	return nil
}

func (p *CircuitBreakerPlugin) resolve(hctx *HookContext, success bool) {
	done, ok := hctx.Value(breakerDoneKey).(func(bool))
	if !ok {
		return
	}
	hctx.Set(breakerDoneKey, nil)
	done(success)
	p.reportState(hctx)
}

func (p *CircuitBreakerPlugin) reportState(hctx *HookContext) {
	if hctx.Client == nil || hctx.Client.metrics == nil {
		return
	}

	var state float64
	switch p.cb.State() {
	case gobreaker.StateClosed:
		state = 0
	case gobreaker.StateHalfOpen:
		state = 1
	case gobreaker.StateOpen:
		state = 2
	}
	hctx.Client.metrics.RecordCircuitBreakerState(p.name, state)
}

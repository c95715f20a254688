package callapi

import (
	"sync"
	"time"
)

// RateLimiterPlugin gates attempts through a token bucket. Each admitted
// attempt consumes one token; tokens refill at a fixed rate up to the
// bucket capacity. Denied attempts settle immediately as RateLimit errors
// without consulting the retry policy.
type RateLimiterPlugin struct {
	name string

	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiterPlugin creates a token bucket allowing maxTokens immediate
// attempts with one token refilled every refillRate.
func NewRateLimiterPlugin(maxTokens int, refillRate time.Duration) *RateLimiterPlugin {
	return &RateLimiterPlugin{
		name:       "default",
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Name implements the Plugin interface.
func (p *RateLimiterPlugin) Name() string { return "rate-limiter/" + p.name }

// Hooks implements the Plugin interface.
func (p *RateLimiterPlugin) Hooks() Hooks {
	return Hooks{
		OnRequest: []Hook{p.gate},
	}
}

func (p *RateLimiterPlugin) gate(hctx *HookContext) error {
	allowed, remaining := p.take()

	if hctx.Client != nil && hctx.Client.metrics != nil {
		hctx.Client.metrics.RecordRateLimiterTokens(p.name, remaining)
	}

	if !allowed {
		return &Error{
			Type:      ErrorTypeRateLimit,
			Message:   "rate limit exceeded",
			Cause:     ErrRateLimited,
			Timestamp: time.Now(),
		}
	}
	return nil
}

func (p *RateLimiterPlugin) take() (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.lastRefill)
	if refill := int(elapsed / p.refillRate); refill > 0 {
		p.tokens += refill
		if p.tokens > p.maxTokens {
			p.tokens = p.maxTokens
		}
		p.lastRefill = now
	}

	if p.tokens > 0 {
		p.tokens--
		return true, p.tokens
	}
	return false, 0
}

// Tokens returns the number of currently available tokens.
func (p *RateLimiterPlugin) Tokens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens
}

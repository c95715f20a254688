package callapi

import (
	"fmt"
	"net/http"
	"time"
)

// callConfig is the resolved configuration of one logical call: client
// defaults merged with per-call options.
type callConfig struct {
	method     string
	header     http.Header
	body       any
	key        string
	strategy   DedupeStrategy
	timeout    time.Duration
	maxRetries int
	policy     RetryPolicy
	hooks      Hooks
	softErrors bool
}

func (c *Client) newCallConfig() *callConfig {
	return &callConfig{
		method:     http.MethodGet,
		strategy:   c.dedupeStrategy,
		timeout:    c.timeout,
		maxRetries: c.maxRetries,
		policy:     c.retryPolicy,
		softErrors: c.softErrors,
	}
}

// Method sets the HTTP method for a call. Defaults to GET.
func Method(method string) CallOption {
	return func(cfg *callConfig) {
		cfg.method = method
	}
}

// Body sets the pre-serialization request body value for a call.
func Body(v any) CallOption {
	return func(cfg *callConfig) {
		cfg.body = v
	}
}

// Header adds a request header for a call.
func Header(key, value string) CallOption {
	return func(cfg *callConfig) {
		if cfg.header == nil {
			cfg.header = make(http.Header)
		}
		cfg.header.Add(key, value)
	}
}

// DedupeKey overrides the computed dedupe key with a literal one, bypassing
// normalization entirely.
func DedupeKey(key string) CallOption {
	return func(cfg *callConfig) {
		cfg.key = key
	}
}

// Strategy overrides the client's dedupe strategy for a call.
func Strategy(s DedupeStrategy) CallOption {
	return func(cfg *callConfig) {
		cfg.strategy = s
	}
}

// CallTimeout overrides the per-attempt timeout for a call. Zero disables
// the timeout.
func CallTimeout(d time.Duration) CallOption {
	return func(cfg *callConfig) {
		cfg.timeout = d
	}
}

// CallRetryPolicy overrides the retry policy for a call.
func CallRetryPolicy(p RetryPolicy) CallOption {
	return func(cfg *callConfig) {
		if p != nil {
			cfg.policy = p
		}
	}
}

// NoRetry disables retries for a call.
func NoRetry() CallOption {
	return func(cfg *callConfig) {
		cfg.maxRetries = 0
		cfg.policy = NewDefaultRetryPolicy(0, time.Millisecond, time.Millisecond, 1, 0)
	}
}

// CallHooks registers additional hooks for a single call. They run after
// plugin and client-level hooks within each stage.
func CallHooks(h Hooks) CallOption {
	return func(cfg *callConfig) {
		cfg.hooks = cfg.hooks.append(h)
	}
}

// SoftErrors makes this call report failures through Result.Error only,
// with a nil error return.
func SoftErrors() CallOption {
	return func(cfg *callConfig) {
		cfg.softErrors = true
	}
}

// WithHTTPClient sets the underlying *http.Client used as the default
// transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTransport sets a custom transport primitive, replacing the default
// http.Client-backed one.
func WithTransport(rt RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithBackoffStrategy selects the backoff shape for the default retry
// policy.
func WithBackoffStrategy(s BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = s
	}
}

// WithRetryCondition sets a custom retry condition, evaluated with the raw
// transport outcome. Backoff parameters still come from the client.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
	}
}

// WithRetryPolicy sets a custom retry policy, replacing the default one
// entirely.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = p
	}
}

// WithRetryStatuses sets the HTTP status codes the default policy retries
// in addition to 5xx.
func WithRetryStatuses(codes ...int) Option {
	return func(c *Client) {
		c.retryStatuses = codes
	}
}

// WithRetryBudget caps retries across all calls within a sliding window.
func WithRetryBudget(maxRetries int, perWindow time.Duration) Option {
	return func(c *Client) {
		c.retryBudget = NewRetryBudget(maxRetries, perWindow)
	}
}

// WithTimeout sets the per-attempt timeout. Each retry attempt re-arms a
// fresh timeout. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDedupeStrategy sets the default strategy applied when a call's
// dedupe key matches an in-flight call.
func WithDedupeStrategy(s DedupeStrategy) Option {
	return func(c *Client) {
		c.dedupeStrategy = s
	}
}

// WithDedupeKeyFunc sets a custom dedupe key function.
func WithDedupeKeyFunc(fn DedupeKeyFunc) Option {
	return func(c *Client) {
		c.dedupeKeyFunc = fn
	}
}

// WithDedupeHeaders sets the headers participating in the default dedupe
// key normalization.
func WithDedupeHeaders(headers ...string) Option {
	return func(c *Client) {
		c.dedupeKeyFunc = DedupeKeyWithHeaders(headers...)
	}
}

// WithHooks registers client-level hooks, appended after any previously
// registered ones.
func WithHooks(h Hooks) Option {
	return func(c *Client) {
		c.hooks = c.hooks.append(h)
	}
}

// WithPlugins registers plugins. Their hooks run before user hooks within
// every stage, in registration order.
func WithPlugins(plugins ...Plugin) Option {
	return func(c *Client) {
		c.plugins = append(c.plugins, plugins...)
	}
}

// WithSerializer sets the request body serializer.
func WithSerializer(fn Serializer) Option {
	return func(c *Client) {
		c.serializer = fn
	}
}

// WithResponseParser sets the response body parser.
func WithResponseParser(fn ResponseParser) Option {
	return func(c *Client) {
		c.parser = fn
	}
}

// WithResponseValidator sets the validator applied to successful results.
func WithResponseValidator(fn ResponseValidator) Option {
	return func(c *Client) {
		c.validator = fn
	}
}

// WithErrorValidator sets the validator applied to HTTP error outcomes.
func WithErrorValidator(fn func(e *Error) error) Option {
	return func(c *Client) {
		c.errorValidator = fn
	}
}

// WithSoftErrors makes every call report failures through Result.Error
// only, with a nil error return.
func WithSoftErrors() Option {
	return func(c *Client) {
		c.softErrors = true
	}
}

// WithMetrics enables Prometheus metrics collection on the default
// registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		if config != nil {
			c.debug = config
		}
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a slog text logger on stderr.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateDedupeConfig()...)
	problems = append(problems, c.validateCodecConfig()...)
	problems = append(problems, c.validatePluginConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateExtremeValues()...)

	if len(problems) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string

	if c.maxRetries < 0 {
		problems = append(problems, "maxRetries must be non-negative")
	}
	if c.initialBackoff <= 0 {
		problems = append(problems, "initialBackoff must be positive")
	}
	if c.maxBackoff < c.initialBackoff {
		problems = append(problems, "maxBackoff must be greater than or equal to initialBackoff")
	}
	if c.backoffMultiplier <= 0 {
		problems = append(problems, "backoffMultiplier must be positive")
	}
	if c.jitter < 0 || c.jitter > 1 {
		problems = append(problems, "jitter must be between 0 and 1")
	}
	if c.timeout < 0 {
		problems = append(problems, "timeout must be non-negative (0 disables it)")
	}

	return problems
}

func (c *Client) validateDedupeConfig() []string {
	var problems []string

	switch c.dedupeStrategy {
	case DedupeCancel, DedupeDefer, DedupeNone:
	default:
		problems = append(problems, fmt.Sprintf("unknown dedupe strategy %q", c.dedupeStrategy))
	}
	if c.dedupeKeyFunc == nil {
		problems = append(problems, "dedupe key function cannot be nil")
	}

	return problems
}

func (c *Client) validateCodecConfig() []string {
	var problems []string

	if c.serializer == nil {
		problems = append(problems, "serializer cannot be nil")
	}
	if c.parser == nil {
		problems = append(problems, "response parser cannot be nil")
	}
	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}

	return problems
}

func (c *Client) validatePluginConfig() []string {
	var problems []string

	for i, plugin := range c.plugins {
		if plugin == nil {
			problems = append(problems, fmt.Sprintf("plugin[%d] cannot be nil", i))
		}
	}

	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}

	return problems
}

func (c *Client) validateExtremeValues() []string {
	var problems []string

	if c.maxRetries > 100 {
		problems = append(problems, "maxRetries > 100 may cause excessive resource usage")
	}
	if c.initialBackoff > 10*time.Minute {
		problems = append(problems, "initialBackoff > 10m may cause very long delays")
	}
	if c.maxBackoff > time.Hour {
		problems = append(problems, "maxBackoff > 1h may cause extremely long delays")
	}
	if c.timeout > 10*time.Minute {
		problems = append(problems, "timeout > 10m may cause requests to hang for too long")
	}

	return problems
}

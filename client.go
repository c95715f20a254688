package callapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is an HTTP request client that layers deduplication, retries,
// composed cancellation and a lifecycle hook pipeline around a fetch-style
// transport. It is safe for concurrent use; the in-flight registry is
// scoped to the instance, never shared across clients.
type Client struct {
	httpClient *http.Client
	transport  RoundTripper

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoffStrategy   BackoffStrategy
	retryCondition    RetryCondition
	retryPolicy       RetryPolicy
	retryBudget       *RetryBudget
	retryStatuses     []int

	timeout time.Duration

	dedupeStrategy DedupeStrategy
	dedupeKeyFunc  DedupeKeyFunc
	registry       *inflightRegistry

	hooks   Hooks
	plugins []Plugin

	serializer     Serializer
	parser         ResponseParser
	validator      ResponseValidator
	errorValidator func(e *Error) error

	softErrors bool

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		// The per-attempt deadline comes from the composed context, so the
		// inner http.Client carries no timeout of its own.
		httpClient:        &http.Client{},
		maxRetries:        3,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		backoffStrategy:   ExponentialJitter,
		timeout:           30 * time.Second,
		dedupeStrategy:    DedupeCancel,
		dedupeKeyFunc:     DefaultDedupeKeyFunc,
		registry:          newInflightRegistry(),
		serializer:        JSONSerializer,
		parser:            JSONParser,
		debug:             DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if client.transport == nil {
		client.transport = RoundTripperFunc(client.httpClient.Do)
	}
	if client.retryPolicy == nil {
		base := NewDefaultRetryPolicyWithStrategy(client.maxRetries, client.initialBackoff,
			client.maxBackoff, client.backoffMultiplier, client.jitter, client.backoffStrategy)
		if len(client.retryStatuses) > 0 {
			base.SetRetryStatuses(client.retryStatuses...)
		}
		if client.retryCondition != nil {
			client.retryPolicy = &conditionPolicy{condition: client.retryCondition, base: base}
		} else {
			client.retryPolicy = base
		}
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs an HTTP GET.
func (c *Client) Get(ctx context.Context, url string, opts ...CallOption) (*Result, error) {
	return c.Fetch(ctx, url, opts...)
}

// Post performs an HTTP POST with the given body value.
func (c *Client) Post(ctx context.Context, url string, body any, opts ...CallOption) (*Result, error) {
	return c.Fetch(ctx, url, append([]CallOption{Method(http.MethodPost), Body(body)}, opts...)...)
}

// Put performs an HTTP PUT with the given body value.
func (c *Client) Put(ctx context.Context, url string, body any, opts ...CallOption) (*Result, error) {
	return c.Fetch(ctx, url, append([]CallOption{Method(http.MethodPut), Body(body)}, opts...)...)
}

// Patch performs an HTTP PATCH with the given body value.
func (c *Client) Patch(ctx context.Context, url string, body any, opts ...CallOption) (*Result, error) {
	return c.Fetch(ctx, url, append([]CallOption{Method(http.MethodPatch), Body(body)}, opts...)...)
}

// Delete performs an HTTP DELETE.
func (c *Client) Delete(ctx context.Context, url string, opts ...CallOption) (*Result, error) {
	return c.Fetch(ctx, url, append([]CallOption{Method(http.MethodDelete)}, opts...)...)
}

// Fetch executes one logical call: it computes the dedupe key, coordinates
// with any in-flight call sharing that key, drives the retry loop through
// the hook pipeline and settles to a uniform Result. The returned error is
// the Result's classified error (nil on success) unless soft-error mode is
// selected, in which case failures are reported through Result.Error only.
func (c *Client) Fetch(ctx context.Context, target string, opts ...CallOption) (*Result, error) {
	start := time.Now()

	cfg := c.newCallConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	endpoint := endpointFromURL(target)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	c.debugLog(c.debug.LogRequests, "starting call", "requestID", requestID,
		"method", cfg.method, "url", target, "strategy", string(cfg.strategy))

	c.metrics.RecordRequestStart(cfg.method, endpoint)
	defer c.metrics.RecordRequestEnd(cfg.method, endpoint)

	req := &Request{
		Method: cfg.method,
		URL:    target,
		Header: cfg.header,
		Body:   cfg.body,
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	hooks := mergeHooks(c.plugins, c.hooks, cfg.hooks)

	if cfg.body != nil {
		data, contentType, err := c.serializer(cfg.body)
		if err != nil {
			hctx := &HookContext{Client: c, RequestID: requestID, Request: req, Start: start}
			serErr := &Error{Type: ErrorTypeSerialization, Message: "request body serialization failed", Cause: err}
			c.fillError(serErr, hctx)
			res := c.settle(&Result{Error: serErr}, hooks, hctx)
			return c.finish(res, cfg, endpoint, start, requestID)
		}
		req.body = data
		req.contentType = contentType
	}

	if cfg.strategy == DedupeNone {
		res := c.runOwner(ctx, nil, "", cfg, req, hooks, requestID, start)
		return c.finish(res, cfg, endpoint, start, requestID)
	}

	key := cfg.key
	if key == "" {
		key = c.dedupeKeyFunc(req)
	}

	entry, isNew, superseded := c.registry.acquire(key, cfg.strategy)
	if superseded {
		c.metrics.RecordDedupeCancellation(cfg.method, endpoint)
		c.debugLog(c.debug.LogDedupe, "superseded in-flight call", "requestID", requestID, "dedupeKey", key)
	}

	if !isNew {
		c.metrics.RecordDedupeHit(cfg.method, endpoint, cfg.strategy)
		c.debugLog(c.debug.LogDedupe, "joined in-flight call", "requestID", requestID, "dedupeKey", key)

		res, err := entry.wait(ctx)
		c.registry.release(key, entry)
		if err != nil {
			// The waiter's own context cancelled; the in-flight call is
			// untouched and other waiters still receive its result.
			abortErr := &Error{Type: ErrorTypeAbort, Message: "call aborted while waiting", Cause: err}
			hctx := &HookContext{Client: c, RequestID: requestID, Request: req, Start: start}
			c.fillError(abortErr, hctx)
			res = &Result{Error: abortErr}
		}
		return c.finish(res, cfg, endpoint, start, requestID)
	}

	res := c.runOwner(ctx, entry, key, cfg, req, hooks, requestID, start)
	if !entry.settle(res) {
		// A manual cancel or supersession settled the entry first; the
		// shared abort result is authoritative for every consumer.
		res = entry.sharedResult()
	}
	c.registry.release(key, entry)

	return c.finish(res, cfg, endpoint, start, requestID)
}

// runOwner composes the call-level cancellation signal and drives the
// attempt loop for the call that owns the transport request.
func (c *Client) runOwner(ctx context.Context, entry *inflightEntry, key string, cfg *callConfig, req *Request, hooks Hooks, requestID string, start time.Time) *Result {
	callCtx, cancel := newCallContext(ctx)
	defer cancel(nil)
	if entry != nil {
		entry.installCancel(cancel)
	}
	return c.attemptLoop(callCtx, entry, key, cfg, req, hooks, requestID, start)
}

// attemptLoop is the retry loop of one logical call. Each iteration runs
// the request-stage hooks, the transport call with a freshly armed attempt
// timeout, outcome classification and the retry decision.
func (c *Client) attemptLoop(callCtx context.Context, entry *inflightEntry, key string, cfg *callConfig, req *Request, hooks Hooks, requestID string, start time.Time) *Result {
	endpoint := endpointFromURL(req.URL)
	current := req
	attempt := 0

	hctx := &HookContext{Client: c, RequestID: requestID, Start: start}

	for {
		hctx.Attempt = attempt
		hctx.Request = current
		hctx.ShortCircuit = nil
		hctx.SkipRetry = false
		hctx.NextRequest = nil

		if attempt > 0 {
			c.metrics.RecordRetry(current.Method, endpoint, attempt)
			c.debugLog(c.debug.LogRetries, "retry attempt", "requestID", requestID,
				"attempt", attempt, "maxRetries", cfg.maxRetries, "endpoint", endpoint)
		}

		attemptCtx, cancelAttempt := attemptContext(callCtx, cfg)
		result, classified, resp, body, rawErr := c.doAttempt(attemptCtx, callCtx, current, hooks, hctx)
		cancelAttempt()

		if result != nil {
			return c.settle(result, hooks, hctx)
		}

		c.fillError(classified, hctx)

		if classified.Type == ErrorTypeAbort {
			return c.settle(&Result{Error: classified, Response: resp, Body: body}, hooks, hctx)
		}

		delay, retry := cfg.policy.ShouldRetry(resp, rawErr, attempt)
		switch classified.Type {
		case ErrorTypeHook, ErrorTypeCircuitOpen, ErrorTypeRateLimit:
			// Pipeline-originated outcomes are terminal by design.
			retry = false
		}

		if retry && c.retryBudget != nil && !c.retryBudget.Allow() {
			c.debugLog(c.debug.LogRetries, "retry budget exceeded", "requestID", requestID, "endpoint", endpoint)
			retry = false
		}

		// A superseded call must not resurrect itself: its entry has been
		// replaced and the shared abort result already delivered.
		if retry && entry != nil && !c.registry.owns(key, entry) {
			return &Result{Error: &Error{
				Type:      ErrorTypeAbort,
				Message:   "call aborted",
				Cause:     ErrSuperseded,
				Timestamp: time.Now(),
			}}
		}

		if retry {
			hctx.Err = classified
			if hookErr := c.runStage(StageRetry, hooks.OnRetry, hctx); hookErr != nil {
				c.fillError(hookErr, hctx)
				classified = hookErr
				retry = false
			} else if hctx.SkipRetry {
				retry = false
			}
		}

		if !retry {
			return c.settle(&Result{Error: classified, Response: resp, Body: body}, hooks, hctx)
		}

		c.debugLog(c.debug.LogRetries, "scheduling retry", "requestID", requestID,
			"attempt", attempt+1, "backoff", delay, "endpoint", endpoint)

		// Backoff wait, interruptible by the composed signal.
		timer := time.NewTimer(delay)
		select {
		case <-callCtx.Done():
			timer.Stop()
			_, cause := classifyContext(callCtx, nil)
			abortErr := &Error{Type: ErrorTypeAbort, Message: "call aborted during retry wait", Cause: cause}
			c.fillError(abortErr, hctx)
			return c.settle(&Result{Error: abortErr, Response: resp, Body: body}, hooks, hctx)
		case <-timer.C:
		}

		if hctx.NextRequest != nil {
			current = hctx.NextRequest
		}
		attempt++
	}
}

// doAttempt executes one attempt: request-stage hooks, the transport call
// and outcome classification. Exactly one of result and classified is
// non-nil on return; resp, body and rawErr carry the raw transport outcome
// for the retry policy.
func (c *Client) doAttempt(attemptCtx, callCtx context.Context, req *Request, hooks Hooks, hctx *HookContext) (result *Result, classified *Error, resp *http.Response, body []byte, rawErr error) {
	httpReq, err := buildHTTPRequest(attemptCtx, req)
	if err != nil {
		return nil, &Error{Type: ErrorTypeValidation, Message: "invalid request", Cause: err}, nil, nil, nil
	}
	hctx.HTTPRequest = httpReq
	hctx.Response = nil

	if hookErr := c.runStage(StageRequest, hooks.OnRequest, hctx); hookErr != nil {
		return nil, hookErr, nil, nil, nil
	}
	if hctx.ShortCircuit != nil {
		return hctx.ShortCircuit, nil, hctx.ShortCircuit.Response, hctx.ShortCircuit.Body, nil
	}

	resp, rawErr = c.transport.RoundTrip(httpReq)
	hctx.Response = resp

	if rawErr != nil {
		typ, cause := classifyContext(callCtx, attemptCtx)
		switch typ {
		case ErrorTypeAbort:
			return nil, &Error{Type: ErrorTypeAbort, Message: "call aborted", Cause: cause}, nil, nil, rawErr
		case ErrorTypeTimeout:
			return nil, &Error{Type: ErrorTypeTimeout, Message: "attempt timed out", Cause: rawErr}, nil, nil, rawErr
		default:
			return nil, &Error{Type: ErrorTypeNetwork, Message: "network request failed", Cause: rawErr}, nil, nil, rawErr
		}
	}

	body, readErr := c.readBody(resp, hooks, hctx)
	if readErr != nil {
		if hookErr, ok := readErr.(*Error); ok {
			return nil, hookErr, resp, body, nil
		}
		typ, cause := classifyContext(callCtx, attemptCtx)
		switch typ {
		case ErrorTypeAbort:
			return nil, &Error{Type: ErrorTypeAbort, Message: "call aborted", Cause: cause}, resp, body, readErr
		case ErrorTypeTimeout:
			return nil, &Error{Type: ErrorTypeTimeout, Message: "attempt timed out", Cause: readErr}, resp, body, readErr
		default:
			return nil, &Error{Type: ErrorTypeNetwork, Message: "reading response body failed", Cause: readErr}, resp, body, readErr
		}
	}

	if resp.StatusCode >= 400 {
		return nil, c.httpError(resp, body), resp, body, nil
	}

	parsed, parseErr := c.parser(resp, body)
	if parseErr != nil {
		return nil, &Error{Type: ErrorTypeParse, Message: "response parsing failed", Cause: parseErr, StatusCode: resp.StatusCode}, resp, body, nil
	}

	res := &Result{Data: parsed, Response: resp, Body: body}
	if c.validator != nil {
		if vErr := c.validator(res); vErr != nil {
			return nil, &Error{Type: ErrorTypeValidation, Message: "response validation failed", Cause: vErr, StatusCode: resp.StatusCode}, resp, body, nil
		}
	}
	return res, nil, resp, body, nil
}

// settle runs the terminal hook stages and returns the final Result. A
// success-stage hook failure converts the outcome into a Hook error, which
// then flows through the error stage; complete-stage hooks always run and
// never override the settled result.
func (c *Client) settle(result *Result, hooks Hooks, hctx *HookContext) *Result {
	if result.Error == nil {
		hctx.Result = result
		hctx.Err = nil
		hctx.Response = result.Response
		if hookErr := c.runStage(StageSuccess, hooks.OnSuccess, hctx); hookErr != nil {
			c.fillError(hookErr, hctx)
			result = &Result{Error: hookErr, Response: result.Response, Body: result.Body}
		}
	}

	if result.Error != nil {
		hctx.Result = result
		hctx.Err = result.Error
		if hookErr := c.runStage(StageError, hooks.OnError, hctx); hookErr != nil {
			c.fillError(hookErr, hctx)
			result = &Result{Error: hookErr, Response: result.Response, Body: result.Body}
			hctx.Result = result
			hctx.Err = hookErr
		}
	}

	c.runComplete(hooks.OnComplete, hctx)
	return result
}

// finish records terminal metrics and maps the Result to the (res, err)
// return shape.
func (c *Client) finish(res *Result, cfg *callConfig, endpoint string, start time.Time, requestID string) (*Result, error) {
	duration := time.Since(start)
	statusCode := 0
	if res != nil && res.Response != nil {
		statusCode = res.Response.StatusCode
	}
	c.metrics.RecordRequest(cfg.method, endpoint, statusCode, duration)

	if res != nil && res.Error != nil {
		c.metrics.RecordError(res.Error.Type, cfg.method, endpoint)
		c.debugLog(c.debug.LogRequests, "call settled with error", "requestID", requestID,
			"type", res.Error.Type, "error", res.Error.Message)
		if !cfg.softErrors {
			return res, res.Error
		}
		return res, nil
	}

	c.debugLog(c.debug.LogRequests, "call settled", "requestID", requestID,
		"status", statusCode, "duration", duration)
	return res, nil
}

// readBody drains the response body, feeding the progress stage, and
// restores a replayable body on the response for downstream consumers.
func (c *Client) readBody(resp *http.Response, hooks Hooks, hctx *HookContext) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if len(hooks.OnProgress) > 0 {
		hctx.BytesRead = 0
		reader = &progressReader{r: resp.Body, hctx: hctx, hooks: hooks.OnProgress, c: c}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return buf.Bytes(), err
	}
	data := buf.Bytes()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// httpError classifies a non-success response, decoding the error body
// best-effort into the error's Data slot.
func (c *Client) httpError(resp *http.Response, body []byte) *Error {
	e := &Error{
		Type:       ErrorTypeHTTP,
		Message:    fmt.Sprintf("request failed with status %d", resp.StatusCode),
		StatusCode: resp.StatusCode,
	}
	if parsed, err := c.parser(resp, body); err == nil {
		e.Data = parsed
	}
	if c.errorValidator != nil {
		if vErr := c.errorValidator(e); vErr != nil {
			return &Error{
				Type:       ErrorTypeValidation,
				Message:    "error response validation failed",
				Cause:      vErr,
				StatusCode: resp.StatusCode,
				Data:       e.Data,
			}
		}
	}
	return e
}

// fillError decorates a classified error with call context, leaving
// already-set fields alone.
func (c *Client) fillError(e *Error, hctx *HookContext) {
	if e == nil {
		return
	}
	if e.RequestID == "" {
		e.RequestID = hctx.RequestID
	}
	if e.Method == "" && hctx.Request != nil {
		e.Method = hctx.Request.Method
	}
	if e.URL == "" && hctx.Request != nil {
		e.URL = hctx.Request.URL
		e.Endpoint = endpointFromURL(hctx.Request.URL)
	}
	if e.StatusCode == 0 && hctx.Response != nil {
		e.StatusCode = hctx.Response.StatusCode
	}
	if e.Attempt == 0 {
		e.Attempt = hctx.Attempt
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = c.maxRetries
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Duration == 0 && !hctx.Start.IsZero() {
		e.Duration = time.Since(hctx.Start)
	}
}

func (c *Client) debugLog(area bool, msg string, keysAndValues ...any) {
	if c.debug == nil || !c.debug.Enabled || !area || c.logger == nil {
		return
	}
	c.logger.Debug(msg, keysAndValues...)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// buildHTTPRequest materializes the descriptor into an *http.Request bound
// to the attempt's context, with a replayable body.
func buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if len(req.body) > 0 {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}
	if req.contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if len(req.body) > 0 {
		data := req.body
		httpReq.ContentLength = int64(len(data))
		httpReq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	return httpReq, nil
}

// endpointFromURL extracts a low-cardinality host+path label for metrics.
func endpointFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	if u.Path != "" && u.Path != "/" {
		return u.Host + u.Path
	}
	return u.Host + "/"
}

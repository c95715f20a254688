package callapi

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const cacheHitKey = "callapi:cache:hit"

// CacheCondition decides whether a request's response may be cached.
type CacheCondition func(req *Request) bool

// DefaultCacheCondition caches GET requests only.
func DefaultCacheCondition(req *Request) bool {
	return req.Method == http.MethodGet
}

// DefaultCacheKeyFunc keys cached responses by method and URL.
func DefaultCacheKeyFunc(req *Request) string {
	return req.Method + ":" + req.URL
}

// cachedResponse is a stored successful response.
type cachedResponse struct {
	statusCode int
	header     http.Header
	body       []byte
	data       any
}

// CachePlugin serves successful responses from a TTL cache, short-circuiting
// the transport on hits. Entries are admitted cost-weighted by body size.
type CachePlugin struct {
	name      string
	cache     *ristretto.Cache[string, *cachedResponse]
	ttl       time.Duration
	keyFunc   func(req *Request) string
	condition CacheCondition
}

// CachePluginOption adjusts cache plugin construction.
type CachePluginOption func(*CachePlugin)

// WithCacheCondition overrides the default GET-only condition.
func WithCacheCondition(fn CacheCondition) CachePluginOption {
	return func(p *CachePlugin) {
		p.condition = fn
	}
}

// WithCacheKeyFunc overrides the default method+URL cache key.
func WithCacheKeyFunc(fn func(req *Request) string) CachePluginOption {
	return func(p *CachePlugin) {
		p.keyFunc = fn
	}
}

// NewCachePlugin creates a response cache holding up to maxBytes of bodies
// with the given TTL.
func NewCachePlugin(ttl time.Duration, maxBytes int64, opts ...CachePluginOption) (*CachePlugin, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *cachedResponse]{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	p := &CachePlugin{
		name:      "default",
		cache:     cache,
		ttl:       ttl,
		keyFunc:   DefaultCacheKeyFunc,
		condition: DefaultCacheCondition,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name implements the Plugin interface.
func (p *CachePlugin) Name() string { return "cache/" + p.name }

// Hooks implements the Plugin interface.
func (p *CachePlugin) Hooks() Hooks {
	return Hooks{
		OnRequest: []Hook{p.lookup},
		OnSuccess: []Hook{p.store},
	}
}

func (p *CachePlugin) lookup(hctx *HookContext) error {
	if !p.condition(hctx.Request) {
		return nil
	}

	key := p.keyFunc(hctx.Request)
	entry, found := p.cache.Get(key)
	if !found {
		if hctx.Client != nil {
			hctx.Client.metrics.RecordCacheMiss(hctx.Request.Method, endpointFromURL(hctx.Request.URL))
		}
		return nil
	}

	if hctx.Client != nil {
		hctx.Client.metrics.RecordCacheHit(hctx.Request.Method, endpointFromURL(hctx.Request.URL))
	}
	hctx.Set(cacheHitKey, true)
	hctx.ShortCircuit = &Result{
		Data: entry.data,
		Body: entry.body,
		Response: &http.Response{
			StatusCode: entry.statusCode,
			Header:     entry.header.Clone(),
			Body:       io.NopCloser(bytes.NewReader(entry.body)),
		},
	}
	return nil
}

func (p *CachePlugin) store(hctx *HookContext) error {
	if hctx.Result == nil || hctx.Result.Response == nil {
		return nil
	}
	if hit, _ := hctx.Value(cacheHitKey).(bool); hit {
		return nil
	}
	if !p.condition(hctx.Request) || hctx.Result.Response.StatusCode >= 400 {
		return nil
	}

	entry := &cachedResponse{
		statusCode: hctx.Result.Response.StatusCode,
		header:     hctx.Result.Response.Header.Clone(),
		body:       hctx.Result.Body,
		data:       hctx.Result.Data,
	}
	cost := int64(len(entry.body)) + 1
	p.cache.SetWithTTL(p.keyFunc(hctx.Request), entry, cost, p.ttl)
	// Flush the admission buffer so the entry is visible to the next call.
	p.cache.Wait()
	return nil
}

// Invalidate removes the cached response for a request, if present.
func (p *CachePlugin) Invalidate(req *Request) {
	p.cache.Del(p.keyFunc(req))
}

// Close releases the cache's background resources.
func (p *CachePlugin) Close() {
	p.cache.Close()
}

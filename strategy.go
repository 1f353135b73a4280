package offline

import (
	"context"
	"net/http"
	"net/url"

	"github.com/PKTonmoy/cochin-sub004/caches"
)

// lookup reads a cached response. Store failures are logged and reported as a miss.
func (t *Transport) lookup(ctx context.Context, role Role, r *http.Request) (*http.Response, bool) {
	return t.lookupKey(ctx, role, caches.Key(r), r)
}

func (t *Transport) lookupKey(ctx context.Context, role Role, key string, r *http.Request) (*http.Response, bool) {
	item, err := t.cache.Get(ctx, t.c.namespace(role), key)
	if err != nil {
		if !isNotFound(err) {
			t.logger.WarnContext(ctx, "cache lookup failed, treating as miss", "namespace", t.c.namespace(role), "key", key, "error", err)
			t.observer.CacheStoreError("get")
		}
		t.observer.CacheLookup(role, false)
		return nil, false
	}

	resp, err := restoreResponse(item, r)
	if err != nil {
		t.logger.WarnContext(ctx, "cached response unreadable, treating as miss", "key", key, "error", err)
		t.observer.CacheStoreError("decode")
		t.observer.CacheLookup(role, false)
		return nil, false
	}

	t.logger.DebugContext(ctx, "cache item found", "namespace", t.c.namespace(role), "url", r.URL.String())
	t.observer.CacheLookup(role, true)
	return markSource(resp, sourceCache), true
}

// store writes a copy of a successful GET response. Only GET responses are
// ever written.
func (t *Transport) store(ctx context.Context, role Role, r *http.Request, resp *http.Response) bool {
	if r.Method != http.MethodGet || !isSuccess(resp) {
		return false
	}
	if isEventStream(resp) {
		t.logger.DebugContext(ctx, "not caching event stream", "url", r.URL.String())
		return false
	}
	fits, err := fitsCaptureLimit(resp, t.c.MaxCachedBodyBytes)
	if err != nil {
		t.logger.WarnContext(ctx, "error reading response for capture", "url", r.URL.String(), "error", err)
		t.observer.CacheStoreError("capture")
		return false
	}
	if !fits {
		t.logger.DebugContext(ctx, "response too large to cache", "url", r.URL.String(), "limit", t.c.MaxCachedBodyBytes)
		return false
	}

	item, err := captureResponse(resp, t.now())
	if err != nil {
		t.logger.WarnContext(ctx, "error capturing response", "url", r.URL.String(), "error", err)
		t.observer.CacheStoreError("capture")
		return false
	}

	if err := t.cache.Set(ctx, t.c.namespace(role), caches.Key(r), item); err != nil {
		t.logger.WarnContext(ctx, "error caching response", "namespace", t.c.namespace(role), "error", err)
		t.observer.CacheStoreError("set")
		return false
	}

	t.logger.DebugContext(ctx, "caching response", "namespace", t.c.namespace(role), "url", r.URL.String())
	return true
}

// cacheFirst serves static assets from cache and only touches the network on
// a miss.
func (t *Transport) cacheFirst(ctx context.Context, r *http.Request) *http.Response {
	if resp, ok := t.lookup(ctx, RoleStatic, r); ok {
		t.observer.StrategyResponse(PolicyCacheFirst, sourceCache)
		return resp
	}

	resp, err := t.Wrapped.RoundTrip(r)
	if err != nil {
		t.logger.DebugContext(ctx, "network failed for uncached asset", "url", r.URL.String(), "error", err)
		t.observer.StrategyResponse(PolicyCacheFirst, sourceSynthetic)
		return offlineTextResponse(r)
	}

	t.store(ctx, RoleStatic, r, resp)
	t.observer.StrategyResponse(PolicyCacheFirst, sourceNetwork)
	return markSource(resp, sourceNetwork)
}

// networkFirst prefers a live response and falls back to the last cached copy.
// Successful API responses also stamp the last-sync marker.
func (t *Transport) networkFirst(ctx context.Context, role Role, r *http.Request) *http.Response {
	resp, err := t.Wrapped.RoundTrip(r)
	if err == nil {
		if t.store(ctx, role, r, resp) && role == RoleAPI {
			if _, err := t.marker.Touch(ctx); err != nil {
				t.logger.WarnContext(ctx, "error updating last-sync marker", "error", err)
				t.observer.CacheStoreError("marker")
			}
		}
		t.observer.StrategyResponse(PolicyNetworkFirst, sourceNetwork)
		return markSource(resp, sourceNetwork)
	}

	t.logger.DebugContext(ctx, "network failed, falling back to cache", "url", r.URL.String(), "error", err)
	if cached, ok := t.lookup(ctx, role, r); ok {
		t.observer.StrategyResponse(PolicyNetworkFirst, sourceCache)
		return cached
	}

	t.observer.StrategyResponse(PolicyNetworkFirst, sourceSynthetic)
	return offlineAPIResponse(r)
}

// navigation never hard-fails: network, then the cached document, then the
// precached offline page, then an inline HTML body.
func (t *Transport) navigation(ctx context.Context, r *http.Request) *http.Response {
	resp, err := t.Wrapped.RoundTrip(r)
	if err == nil {
		t.store(ctx, RoleDynamic, r, resp)
		t.observer.StrategyResponse(PolicyNavigation, sourceNetwork)
		return markSource(resp, sourceNetwork)
	}

	t.logger.DebugContext(ctx, "navigation failed, falling back", "url", r.URL.String(), "error", err)
	if cached, ok := t.lookup(ctx, RoleDynamic, r); ok {
		t.observer.StrategyResponse(PolicyNavigation, sourceCache)
		return cached
	}

	if page, ok := t.offlinePage(ctx, r); ok {
		t.observer.StrategyResponse(PolicyNavigation, sourceFallback)
		return page
	}

	t.observer.StrategyResponse(PolicyNavigation, sourceSynthetic)
	return offlineHTMLResponse(r)
}

func (t *Transport) offlinePage(ctx context.Context, r *http.Request) (*http.Response, bool) {
	if t.c.OfflinePage == "" {
		return nil, false
	}
	ref, err := url.Parse(t.c.OfflinePage)
	if err != nil {
		return nil, false
	}

	key := caches.KeyFor(http.MethodGet, r.URL.ResolveReference(ref))
	resp, ok := t.lookupKey(ctx, RoleStatic, key, r)
	if !ok {
		return nil, false
	}

	resp.StatusCode = http.StatusServiceUnavailable
	resp.Status = "503 " + http.StatusText(http.StatusServiceUnavailable)
	return markSource(resp, sourceFallback), true
}

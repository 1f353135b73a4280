package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Transport implements http.RoundTripper and is the fetch interception point.
// Every GET is classified and routed to a caching strategy; mutating API
// requests that fail on the network are handed to the sync queue.
type Transport struct {
	Wrapped http.RoundTripper

	cache    CacheStore
	queue    *SyncQueue
	marker   *Marker
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	c Config
}

// RoundTrip implements http.RoundTripper. It only returns an error for
// traffic it does not intercept; intercepted requests always receive a
// response, synthetic if need be.
//
// The process follows these steps:
// 1. Classify the request
// 2. Pass through, bypass, or run the selected strategy
// 3. Recover from strategy panics with the strategy's offline fallback.
func (t *Transport) RoundTrip(r *http.Request) (resp *http.Response, err error) {
	ctx := r.Context()
	d := t.c.Classify(r)

	t.logger.DebugContext(ctx, "request classified",
		"method", r.Method,
		"url", r.URL.String(),
		"policy", d.Policy.String(),
		"reason", d.Reason)

	switch d.Policy {
	case PolicyPassThrough:
		return t.passThrough(ctx, r)
	case PolicyBypass:
		return t.Wrapped.RoundTrip(r)
	}

	defer func() {
		if rec := recover(); rec != nil {
			t.logger.ErrorContext(ctx, "strategy panicked, serving offline fallback",
				"policy", d.Policy.String(),
				"url", r.URL.String(),
				"panic", fmt.Sprint(rec))
			resp, err = fallbackFor(d, r), nil
		}
	}()

	switch d.Policy {
	case PolicyCacheFirst:
		return t.cacheFirst(ctx, r), nil
	case PolicyNavigation:
		return t.navigation(ctx, r), nil
	default:
		return t.networkFirst(ctx, d.Role, r), nil
	}
}

func fallbackFor(d Decision, r *http.Request) *http.Response {
	switch d.Policy {
	case PolicyCacheFirst:
		return offlineTextResponse(r)
	case PolicyNavigation:
		return offlineHTMLResponse(r)
	default:
		return offlineAPIResponse(r)
	}
}

// passThrough forwards uncached traffic. The body of a queueable request is
// snapshotted first so a failed attempt can be replayed later.
func (t *Transport) passThrough(ctx context.Context, r *http.Request) (*http.Response, error) {
	if t.queue == nil || !t.c.isQueueable(r) {
		return t.Wrapped.RoundTrip(r)
	}

	body, err := snapshotBody(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot request body: %w", err)
	}

	resp, transportErr := t.Wrapped.RoundTrip(r)
	if transportErr == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		// the caller went away, nothing failed on the network side
		return nil, transportErr
	}

	t.logger.InfoContext(ctx, "mutating request failed, queueing for sync",
		"method", r.Method,
		"url", r.URL.String(),
		"error", transportErr)

	entry := &QueueEntry{
		URL:    r.URL.String(),
		Method: r.Method,
		Header: r.Header.Clone(),
		Body:   string(body),
	}
	if _, err := t.queue.Enqueue(ctx, entry); err != nil {
		if errors.Is(err, ErrQueueFull) {
			return offlineJSON(r, offlineBody{Success: false, Message: "Offline queue is full"}), nil
		}
		t.logger.WarnContext(ctx, "error queueing request", "url", r.URL.String(), "error", err)
		return offlineAPIResponse(r), nil
	}

	return offlineJSON(r, offlineBody{
		Success: false,
		Message: "You are offline. Request queued for sync.",
		Queued:  true,
	}), nil
}

func snapshotBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	b, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	r.ContentLength = int64(len(b))
	return b, nil
}

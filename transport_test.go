package offline_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/caches/local"
)

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestCacheFirst(t *testing.T) {
	t.Parallel()

	hits := 0
	net := newFakeNetwork(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprintf(w, "body{color:red} /* %d */", hits)
	})
	tw := newTestWorker(net, nil, nil)

	first, err := tw.OnFetch(get(origin + "/app.css"))
	require.NoError(t, err)
	assert.Equal(t, "network", first.Header.Get("X-Offline-Source"))
	firstBody := readBody(t, first)

	// repeat lookups are served from the static namespace without the network
	for i := 0; i < 3; i++ {
		resp, err := tw.OnFetch(get(origin + "/app.css"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "cache", resp.Header.Get("X-Offline-Source"))
		assert.Equal(t, firstBody, readBody(t, resp))
	}
	assert.Equal(t, 1, net.callCount())

	keys, err := tw.cache.Keys(testContext(t), "coaching-static-v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET#" + origin + "/app.css"}, keys)
}

func TestCacheFirstOfflineMiss(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(http.ResponseWriter, *http.Request) {})
	net.setOffline(true)
	tw := newTestWorker(net, nil, nil)

	resp, err := tw.OnFetch(get(origin + "/logo.png"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Offline", readBody(t, resp))
}

func TestCacheFirstDoesNotStoreErrors(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	tw := newTestWorker(net, nil, nil)

	for i := 0; i < 2; i++ {
		resp, err := tw.OnFetch(get(origin + "/missing.js"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, 2, net.callCount())
}

func TestNetworkFirstAPI(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"notices":["exam on friday"]}`)
	})
	tw := newTestWorker(net, nil, nil)

	before, err := tw.Status(testContext(t))
	require.NoError(t, err)
	assert.True(t, before.LastSync.IsZero())

	resp, err := tw.OnFetch(get(origin + "/api/notices"))
	require.NoError(t, err)
	live := readBody(t, resp)

	st1, err := tw.Status(testContext(t))
	require.NoError(t, err)
	assert.True(t, st1.LastSync.After(before.LastSync))

	resp, err = tw.OnFetch(get(origin + "/api/notices"))
	require.NoError(t, err)
	resp.Body.Close()

	st2, err := tw.Status(testContext(t))
	require.NoError(t, err)
	assert.True(t, st2.LastSync.After(st1.LastSync), "marker must strictly increase")

	net.setOffline(true)

	resp, err = tw.OnFetch(get(origin + "/api/notices"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cache", resp.Header.Get("X-Offline-Source"))
	assert.Equal(t, live, readBody(t, resp))

	st3, err := tw.Status(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, st2.LastSync, st3.LastSync, "cache hits do not touch the marker")
}

func TestNetworkFirstOfflineMiss(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(http.ResponseWriter, *http.Request) {})
	net.setOffline(true)
	tw := newTestWorker(net, nil, nil)

	resp, err := tw.OnFetch(get(origin + "/api/students"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"message":"You are offline"}`, readBody(t, resp))
}

func TestNetworkFirstErrorStatusIsNotStored(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	tw := newTestWorker(net, nil, nil)

	resp, err := tw.OnFetch(get(origin + "/api/results"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()

	st, err := tw.Status(testContext(t))
	require.NoError(t, err)
	assert.True(t, st.LastSync.IsZero())

	net.setOffline(true)
	resp, err = tw.OnFetch(get(origin + "/api/results"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestNavigation(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/offline.html" {
			_, _ = io.WriteString(w, "<h1>offline page</h1>")
			return
		}
		_, _ = io.WriteString(w, "<h1>"+r.URL.Path+"</h1>")
	})
	tw := newTestWorker(net, nil, func(c *offline.Config) {
		c.PrecacheManifest = []string{"/offline.html"}
	})
	require.NoError(t, tw.OnInstall(testContext(t)))

	resp, err := tw.OnFetch(get(origin+"/notices", "Sec-Fetch-Mode", "navigate"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>/notices</h1>", readBody(t, resp))

	net.setOffline(true)

	t.Run("cached document", func(t *testing.T) {
		resp, err := tw.OnFetch(get(origin+"/notices", "Sec-Fetch-Mode", "navigate"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "<h1>/notices</h1>", readBody(t, resp))
	})

	t.Run("offline page", func(t *testing.T) {
		resp, err := tw.OnFetch(get(origin+"/dashboard", "Sec-Fetch-Mode", "navigate"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "offline-page", resp.Header.Get("X-Offline-Source"))
		assert.Equal(t, "<h1>offline page</h1>", readBody(t, resp))
	})
}

func TestNavigationInlineFallback(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(http.ResponseWriter, *http.Request) {})
	net.setOffline(true)
	tw := newTestWorker(net, nil, nil)

	resp, err := tw.OnFetch(get(origin+"/dashboard", "Accept", "text/html"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, readBody(t, resp), "You are offline")
}

func TestBypassIsLiveOnly(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"user":"a"}`)
	})
	tw := newTestWorker(net, nil, nil)

	resp, err := tw.OnFetch(get(origin + "/api/auth/me"))
	require.NoError(t, err)
	resp.Body.Close()

	net.setOffline(true)
	_, err = tw.OnFetch(get(origin + "/api/auth/me"))
	require.ErrorIs(t, err, errOffline)
}

func TestStoreFailureIsAMiss(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("quota exceeded")
	cache := &failingCache{BasicCache: local.NewBasicCache(), getErr: storeErr, setErr: storeErr}

	net := newFakeNetwork(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "body{}")
	})
	tw := newTestWorker(net, cache, nil)

	resp, err := tw.OnFetch(get(origin + "/app.css"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body{}", readBody(t, resp))

	net.setOffline(true)
	resp, err = tw.OnFetch(get(origin + "/app.css"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

type panickingNetwork struct{}

func (panickingNetwork) RoundTrip(*http.Request) (*http.Response, error) {
	panic("boom")
}

func TestStrategyPanicServesFallback(t *testing.T) {
	t.Parallel()

	c := offline.DefaultConfig()
	w := offline.New(offline.Deps{Cache: local.NewBasicCache()}, &c, testTime, nil)(panickingNetwork{})

	tests := []struct {
		name        string
		req         *http.Request
		contentType string
	}{
		{name: "static", req: get(origin + "/app.js"), contentType: "text/plain; charset=utf-8"},
		{name: "api", req: get(origin + "/api/notices"), contentType: "application/json"},
		{name: "navigation", req: get(origin+"/", "Sec-Fetch-Mode", "navigate"), contentType: "text/html; charset=utf-8"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp, err := w.OnFetch(tt.req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			resp.Body.Close()
		})
	}
}

func TestOfflineWriteIsQueued(t *testing.T) {
	t.Parallel()

	var got []string
	net := newFakeNetwork(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = append(got, r.Method+" "+string(b))
		w.WriteHeader(http.StatusCreated)
	})
	net.setOffline(true)
	tw := newTestWorker(net, nil, nil)

	r, err := http.NewRequest(http.MethodPost, origin+"/api/attendance", strings.NewReader(`{"student":7}`))
	require.NoError(t, err)
	r.Header.Set("Content-Type", "application/json")

	resp, err := tw.OnFetch(r)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	assert.Equal(t, map[string]any{
		"success": false,
		"message": "You are offline. Request queued for sync.",
		"queued":  true,
	}, body)

	entries, err := tw.queue.List(testContext(t))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, http.MethodPost, entries[0].Method)
	assert.Equal(t, origin+"/api/attendance", entries[0].URL)
	assert.Equal(t, `{"student":7}`, entries[0].Body)
	assert.Equal(t, "application/json", entries[0].Header.Get("Content-Type"))

	net.setOffline(false)
	res, err := tw.OnSync(testContext(t), "sync-queue")
	require.NoError(t, err)
	assert.Equal(t, offline.ReplayResult{Attempted: 1, Synced: 1}, res)
	assert.Equal(t, []string{`POST {"student":7}`}, got)
}

func TestOfflineWriteToBypassedPathIsNotQueued(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(http.ResponseWriter, *http.Request) {})
	net.setOffline(true)
	tw := newTestWorker(net, nil, nil)

	r, err := http.NewRequest(http.MethodPost, origin+"/api/auth/login", strings.NewReader(`{}`))
	require.NoError(t, err)
	_, err = tw.OnFetch(r)
	require.ErrorIs(t, err, errOffline)

	n, err := tw.queue.Count(testContext(t))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueFullRejectsWrites(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork(func(http.ResponseWriter, *http.Request) {})
	net.setOffline(true)
	tw := newTestWorker(net, nil, func(c *offline.Config) {
		c.MaxQueueEntries = 1
	})

	for i, want := range []string{"You are offline. Request queued for sync.", "Offline queue is full"} {
		r, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/marks/%d", origin, i), strings.NewReader(`{}`))
		require.NoError(t, err)
		resp, err := tw.OnFetch(r)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body struct {
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
		assert.Equal(t, want, body.Message)
	}

	n, err := tw.queue.Count(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type streamNetwork struct {
	body io.ReadCloser
}

func (n streamNetwork) RoundTrip(r *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/event-stream; charset=utf-8"}},
		Body:          n.body,
		ContentLength: -1,
		Request:       r,
	}, nil
}

func TestEventStreamIsNotBuffered(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	cache := local.NewBasicCache()
	c := offline.DefaultConfig()
	w := offline.New(offline.Deps{Cache: cache}, &c, testTime, nil)(streamNetwork{body: pr})

	got := make(chan *http.Response, 1)
	go func() {
		resp, err := w.OnFetch(get(origin + "/api/live/scores"))
		if err == nil {
			got <- resp
		}
	}()

	var resp *http.Response
	select {
	case resp = <-got:
	case <-time.After(2 * time.Second):
		_ = pw.Close()
		t.Fatal("response held back until the stream ended")
	}

	go func() {
		_, _ = io.WriteString(pw, "data: 1\n\n")
		_ = pw.Close()
	}()
	assert.Equal(t, "data: 1\n\n", readBody(t, resp))

	keys, err := cache.Keys(testContext(t), "coaching-api-v1")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestOversizedResponseIsServedButNotCached(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 64)

	tests := []struct {
		name          string
		contentLength bool
	}{
		{name: "declared length", contentLength: true},
		{name: "unknown length"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			net := newFakeNetwork(func(w http.ResponseWriter, _ *http.Request) {
				if tt.contentLength {
					w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
				}
				_, _ = io.WriteString(w, payload)
			})
			tw := newTestWorker(net, nil, func(c *offline.Config) {
				c.MaxCachedBodyBytes = 16
			})

			resp, err := tw.OnFetch(get(origin + "/api/report"))
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, payload, readBody(t, resp))

			keys, err := tw.cache.Keys(testContext(t), "coaching-api-v1")
			require.NoError(t, err)
			assert.Empty(t, keys)

			st, err := tw.Status(testContext(t))
			require.NoError(t, err)
			assert.True(t, st.LastSync.IsZero())
		})
	}
}

package offline_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/caches/local"
)

const origin = "http://app.test"

var errOffline = errors.New("dial tcp: network is unreachable")

func testTime() time.Time {
	return time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
}

// fakeNetwork serves requests from handler in process. While offline every
// round trip fails with errOffline.
type fakeNetwork struct {
	handler http.Handler

	mu      sync.Mutex
	offline bool
	calls   []string
}

func newFakeNetwork(h http.HandlerFunc) *fakeNetwork {
	return &fakeNetwork{handler: h}
}

func (n *fakeNetwork) RoundTrip(r *http.Request) (*http.Response, error) {
	n.mu.Lock()
	n.calls = append(n.calls, r.Method+" "+r.URL.Path)
	down := n.offline
	n.mu.Unlock()

	if down {
		return nil, errOffline
	}

	in := r.Clone(r.Context())
	if in.Body == nil {
		in.Body = http.NoBody
	}
	rec := httptest.NewRecorder()
	n.handler.ServeHTTP(rec, in)
	resp := rec.Result()
	resp.Request = r
	return resp, nil
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = v
}

func (n *fakeNetwork) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type fakeClient struct {
	id string

	mu        sync.Mutex
	url       string
	messages  []offline.Message
	focused   int
	navigated []string
	postErr   error
	focusErr  error
	navErr    error
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

func (c *fakeClient) PostMessage(_ context.Context, m offline.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postErr != nil {
		return c.postErr
	}
	c.messages = append(c.messages, m)
	return nil
}

func (c *fakeClient) Focus(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focusErr != nil {
		return c.focusErr
	}
	c.focused++
	return nil
}

func (c *fakeClient) Navigate(_ context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.navErr != nil {
		return c.navErr
	}
	c.navigated = append(c.navigated, url)
	c.url = url
	return nil
}

func (c *fakeClient) received() []offline.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]offline.Message(nil), c.messages...)
}

type fakeClients struct {
	mu      sync.Mutex
	all     []*fakeClient
	claimed int
	opened  []string
}

func (fc *fakeClients) MatchAll(context.Context) ([]offline.Client, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]offline.Client, len(fc.all))
	for i, c := range fc.all {
		out[i] = c
	}
	return out, nil
}

func (fc *fakeClients) Claim(context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.claimed++
	return nil
}

func (fc *fakeClients) OpenWindow(_ context.Context, url string) (offline.Client, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.opened = append(fc.opened, url)
	return &fakeClient{id: "opened", url: url}, nil
}

type fakeDisplay struct {
	mu    sync.Mutex
	shown []offline.Notification
}

func (d *fakeDisplay) Show(_ context.Context, n offline.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, n)
	return nil
}

// failingCache wraps a BasicCache and fails the selected operations.
type failingCache struct {
	*local.BasicCache

	getErr error
	setErr error

	// failSetAfter lets that many Set calls succeed before setErr applies.
	failSetAfter int
	// failOnce clears setErr after the first failure.
	failOnce     bool

	mu   sync.Mutex
	sets int
}

func (f *failingCache) Get(ctx context.Context, namespace, k string) (*offline.CacheItem, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.BasicCache.Get(ctx, namespace, k)
}

// failNextSets makes the Set call after the next n succeed fail once.
func (f *failingCache) failNextSets(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSetAfter = f.sets + n
	f.setErr = err
	f.failOnce = true
}

func (f *failingCache) Set(ctx context.Context, namespace, k string, v *offline.CacheItem) error {
	f.mu.Lock()
	f.sets++
	if f.setErr != nil && f.sets > f.failSetAfter {
		err := f.setErr
		if f.failOnce {
			f.setErr = nil
		}
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return f.BasicCache.Set(ctx, namespace, k, v)
}

type testWorker struct {
	*offline.Worker

	net     *fakeNetwork
	cache   offline.CacheStore
	queue   *local.BasicQueue
	clients *fakeClients
	display *fakeDisplay
}

func newTestWorker(net *fakeNetwork, cache offline.CacheStore, mutate func(*offline.Config)) *testWorker {
	if cache == nil {
		cache = local.NewBasicCache()
	}
	c := offline.DefaultConfig()
	c.Origin = origin
	if mutate != nil {
		mutate(&c)
	}

	tw := &testWorker{
		net:     net,
		cache:   cache,
		queue:   local.NewBasicQueue(),
		clients: &fakeClients{},
		display: &fakeDisplay{},
	}
	tw.Worker = offline.New(offline.Deps{
		Cache:   cache,
		Queue:   tw.queue,
		Clients: tw.clients,
		Display: tw.display,
	}, &c, testTime, nil)(net)
	return tw
}

func get(url string, header ...string) *http.Request {
	r, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		panic(err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	return r
}

// Package clients tracks the application instances connected to the proxy
// and delivers engine messages to them.
package clients

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	offline "github.com/PKTonmoy/cochin-sub004"
)

var (
	// ErrClientGone is returned when posting to a disconnected instance.
	ErrClientGone = errors.New("client disconnected")
	// ErrClientBusy is returned when an instance's outbox is full.
	ErrClientBusy = errors.New("client outbox full")
)

const (
	defaultOutbox        = 32
	defaultNotifications = 50
)

// Hub is the registry of open instances. It implements offline.Clients and
// offline.Displayer.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	mu            sync.RWMutex
	seq           uint64
	clients       map[string]*Client
	pendingOpens  []string
	notifications []offline.Notification
}

// NewHub creates an empty hub. A nil logger discards output.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]*Client),
	}
}

// Connect registers an instance currently showing url.
func (h *Hub) Connect(url string) *Client {
	c := &Client{
		id:          uuid.NewString(),
		url:         url,
		connectedAt: h.now(),
		outbox:      make(chan offline.Message, defaultOutbox),
		hub:         h,
	}

	h.mu.Lock()
	h.seq++
	c.seq = h.seq
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Debug("client connected", "client", c.id, "url", url)
	return c
}

// Disconnect removes an instance and closes its outbox.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Debug("client disconnected", "client", id)
	}
}

// Get returns a connected instance by id.
func (h *Hub) Get(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// MatchAll returns every connected instance, oldest connection first.
func (h *Hub) MatchAll(_ context.Context) ([]offline.Client, error) {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].seq < all[j].seq
	})

	out := make([]offline.Client, len(all))
	for i, c := range all {
		out[i] = c
	}
	return out, nil
}

// Claim marks every connected instance as controlled by the running version.
func (h *Hub) Claim(_ context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.setControlled()
	}
	return nil
}

// OpenWindow records a request to open a new instance at url. The proxy cannot
// start a browser window itself, so the request is kept until an instance
// drains it with PendingOpens.
func (h *Hub) OpenWindow(ctx context.Context, url string) (offline.Client, error) {
	h.mu.Lock()
	h.pendingOpens = append(h.pendingOpens, url)
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "window open requested", "url", url)
	return &Client{id: uuid.NewString(), url: url, connectedAt: h.now(), hub: h, closed: true}, nil
}

// PendingOpens returns and clears the urls requested by OpenWindow.
func (h *Hub) PendingOpens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pendingOpens
	h.pendingOpens = nil
	return out
}

// Show records a displayed notification.
func (h *Hub) Show(ctx context.Context, n offline.Notification) error {
	h.mu.Lock()
	h.notifications = append(h.notifications, n)
	if len(h.notifications) > defaultNotifications {
		h.notifications = h.notifications[len(h.notifications)-defaultNotifications:]
	}
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "notification displayed", "title", n.Title, "tag", n.Tag)
	return nil
}

// Notifications returns the most recently displayed notifications.
func (h *Hub) Notifications() []offline.Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]offline.Notification(nil), h.notifications...)
}

package clients

import (
	"context"
	"sync"
	"time"

	offline "github.com/PKTonmoy/cochin-sub004"
)

// Client is one connected instance. Messages are queued on its outbox and
// streamed to the browser by the events endpoint.
type Client struct {
	id          string
	seq         uint64
	connectedAt time.Time
	hub         *Hub

	mu         sync.Mutex
	url        string
	controlled bool
	closed     bool
	outbox     chan offline.Message
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Controlled reports whether the running version has claimed this instance.
func (c *Client) Controlled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlled
}

// Outbox is the stream of messages addressed to this instance. It is closed
// on disconnect.
func (c *Client) Outbox() <-chan offline.Message {
	return c.outbox
}

// PostMessage queues m without blocking.
func (c *Client) PostMessage(_ context.Context, m offline.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientGone
	}
	select {
	case c.outbox <- m:
		return nil
	default:
		return ErrClientBusy
	}
}

func (c *Client) Focus(ctx context.Context) error {
	return c.PostMessage(ctx, offline.Message{Type: offline.MessageFocus})
}

// Navigate points the instance at url.
func (c *Client) Navigate(ctx context.Context, url string) error {
	if err := c.PostMessage(ctx, offline.Message{Type: offline.MessageNavigate, URL: url}); err != nil {
		return err
	}
	c.SetURL(url)
	return nil
}

// SetURL records the view the instance is currently showing.
func (c *Client) SetURL(url string) {
	c.mu.Lock()
	c.url = url
	c.mu.Unlock()
}

func (c *Client) setControlled() {
	c.mu.Lock()
	c.controlled = true
	c.mu.Unlock()
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbox)
}

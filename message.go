package offline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

var (
	// ErrNoWindow is returned by OpenWindow when no instance can be opened.
	ErrNoWindow = errors.New("no window could be opened")
)

type MessageType string

const (
	// instance -> engine
	MessageSkipWaiting MessageType = "SKIP_WAITING"
	MessageGetVersion  MessageType = "GET_VERSION"
	MessageClearQueue  MessageType = "CLEAR_QUEUE"
	MessageClearCache  MessageType = "CLEAR_CACHE"

	// engine -> instances
	MessageSyncCompleted  MessageType = "SYNC_COMPLETED"
	MessagePushReceived   MessageType = "PUSH_RECEIVED"
	MessageRefreshNotices MessageType = "REFRESH_NOTICES"
	MessageVersion        MessageType = "VERSION"
	MessageFocus          MessageType = "FOCUS"
	MessageNavigate       MessageType = "NAVIGATE"
)

// Message is the envelope exchanged with live application instances.
type Message struct {
	Type    MessageType     `json:"type"`
	Count   *int            `json:"count,omitempty"`
	Synced  *int            `json:"synced,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Version string          `json:"version,omitempty"`
	URL     string          `json:"url,omitempty"`
}

// Client is one live application instance.
type Client interface {
	ID() string
	URL() string
	PostMessage(ctx context.Context, m Message) error
	Focus(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
}

// Clients is the registry of open instances.
type Clients interface {
	MatchAll(ctx context.Context) ([]Client, error)
	// Claim routes every open instance through the running version.
	Claim(ctx context.Context) error
	OpenWindow(ctx context.Context, url string) (Client, error)
}

// broadcast posts m to every open instance. Delivery failures are logged and
// do not stop the fan-out.
func broadcast(ctx context.Context, clients Clients, logger *slog.Logger, m Message) int {
	if clients == nil {
		return 0
	}
	all, err := clients.MatchAll(ctx)
	if err != nil {
		logger.WarnContext(ctx, "error listing clients for broadcast", "type", m.Type, "error", err)
		return 0
	}

	delivered := 0
	for _, c := range all {
		if err := c.PostMessage(ctx, m); err != nil {
			logger.WarnContext(ctx, "error posting message to client", "client", c.ID(), "type", m.Type, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

type noClients struct{}

func (noClients) MatchAll(context.Context) ([]Client, error) { return nil, nil }
func (noClients) Claim(context.Context) error                { return nil }
func (noClients) OpenWindow(context.Context, string) (Client, error) {
	return nil, ErrNoWindow
}

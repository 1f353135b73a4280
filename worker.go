package offline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Deps are the capabilities a Worker is built on.
type Deps struct {
	Cache    CacheStore
	Queue    QueueStore
	Clients  Clients
	Display  Displayer
	Observer Observer
}

// Worker is the explicit event surface of the engine. The hosting runtime
// wires platform events to its On* methods; each method returns only once
// all work for the event, cache writes and marker updates included, is done.
type Worker struct {
	Lifecycle     *Lifecycle
	Transport     *Transport
	Queue         *SyncQueue
	Notifications *NotificationRouter

	logger *slog.Logger
	c      Config
}

// Status is a point-in-time view of the engine.
type Status struct {
	Version    string    `json:"version"`
	State      string    `json:"state"`
	LastSync   time.Time `json:"lastSync"`
	QueueDepth int       `json:"queueDepth"`
}

// OnInstall precaches the offline manifest. With SkipWaitingOnInstall the new
// version is activated straight away.
func (w *Worker) OnInstall(ctx context.Context) error {
	if err := w.Lifecycle.Install(ctx); err != nil {
		return err
	}
	if !w.c.SkipWaitingOnInstall {
		w.logger.InfoContext(ctx, "installed version is waiting for SKIP_WAITING", "version", w.c.Version)
		return nil
	}
	_, err := w.Lifecycle.SkipWaiting(ctx)
	return err
}

// OnActivate runs the activation sweep.
func (w *Worker) OnActivate(ctx context.Context) (ActivateResult, error) {
	return w.Lifecycle.Activate(ctx)
}

// OnFetch intercepts one outgoing request.
func (w *Worker) OnFetch(r *http.Request) (*http.Response, error) {
	return w.Transport.RoundTrip(r)
}

// RoundTrip lets a Worker stand in as the transport of an http.Client or
// reverse proxy.
func (w *Worker) RoundTrip(r *http.Request) (*http.Response, error) {
	return w.OnFetch(r)
}

// OnSync runs a replay pass when tag matches the configured sync tag.
func (w *Worker) OnSync(ctx context.Context, tag string) (ReplayResult, error) {
	if w.c.SyncTag != "" && tag != w.c.SyncTag {
		w.logger.DebugContext(ctx, "ignoring sync event", "tag", tag)
		return ReplayResult{}, nil
	}
	return w.Queue.Replay(ctx)
}

// OnMessage handles a control message sent by an instance. from may be nil
// for messages that need no reply.
func (w *Worker) OnMessage(ctx context.Context, from Client, m Message) error {
	switch m.Type {
	case MessageSkipWaiting:
		activated, err := w.Lifecycle.SkipWaiting(ctx)
		if err != nil {
			return err
		}
		w.logger.InfoContext(ctx, "SKIP_WAITING received", "activated", activated)
		return nil
	case MessageGetVersion:
		if from == nil {
			return nil
		}
		return from.PostMessage(ctx, Message{Type: MessageVersion, Version: w.c.Version})
	case MessageClearQueue:
		return w.Queue.Clear(ctx)
	case MessageClearCache:
		return w.Lifecycle.ClearRuntimeCaches(ctx)
	default:
		w.logger.DebugContext(ctx, "ignoring unknown message", "type", m.Type)
		return nil
	}
}

// OnPush handles a push delivery.
func (w *Worker) OnPush(ctx context.Context, data []byte) (Notification, error) {
	return w.Notifications.Push(ctx, data)
}

// OnNotificationClick handles a click on a displayed notification.
func (w *Worker) OnNotificationClick(ctx context.Context, click NotificationClick) (ClickOutcome, error) {
	return w.Notifications.Click(ctx, click)
}

// Status reports version, lifecycle state, last-sync marker and queue depth.
func (w *Worker) Status(ctx context.Context) (Status, error) {
	last, err := w.Transport.marker.LastSync(ctx)
	if err != nil {
		return Status{}, err
	}
	depth, err := w.Queue.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Version:    w.c.Version,
		State:      w.Lifecycle.State().String(),
		LastSync:   last,
		QueueDepth: depth,
	}, nil
}

// New creates the engine around the network transport it is given.
//
// If the 'now' function is nil, time.Now will be used as the default time provider.
// If the 'logger' is nil, a no-op logger writing to io.Discard will be used.
// A nil Observer disables metrics; a nil Queue disables offline write capture
// and replay.
func New(
	deps Deps,
	opts *Config,
	now func() time.Time,
	logger *slog.Logger,
) func(http.RoundTripper) *Worker {
	nowFunc := now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := Config{}
	if opts == nil {
		c = DefaultConfig()
	} else {
		c = *opts
	}

	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	if deps.Clients == nil {
		deps.Clients = noClients{}
	}
	if deps.Display == nil {
		deps.Display = noDisplay{}
	}

	return func(rt http.RoundTripper) *Worker {
		if rt == nil {
			rt = http.DefaultTransport
		}

		marker := newMarker(deps.Cache, c.Prefix, nowFunc)

		var queue *SyncQueue
		if deps.Queue != nil {
			queue = &SyncQueue{
				store:    deps.Queue,
				network:  rt,
				clients:  deps.Clients,
				observer: observer,
				logger:   logger,
				now:      nowFunc,
				max:      c.MaxQueueEntries,
			}
		}

		return &Worker{
			Lifecycle: &Lifecycle{
				cache:   deps.Cache,
				network: rt,
				clients: deps.Clients,
				marker:  marker,
				logger:  logger,
				now:     nowFunc,
				c:       c,
			},
			Transport: &Transport{
				Wrapped:  rt,
				cache:    deps.Cache,
				queue:    queue,
				marker:   marker,
				observer: observer,
				logger:   logger,
				now:      nowFunc,
				c:        c,
			},
			Queue: queue,
			Notifications: &NotificationRouter{
				display:  deps.Display,
				clients:  deps.Clients,
				observer: observer,
				logger:   logger,
				defaults: c.Notification,
			},
			logger: logger,
			c:      c,
		}
	}
}

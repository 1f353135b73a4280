package offline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ActionDismiss closes a notification without any further routing.
const ActionDismiss = "dismiss"

// PushPayload is what an external producer sends. Every field is optional.
type PushPayload struct {
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	Icon               string               `json:"icon"`
	Badge              string               `json:"badge"`
	Tag                string               `json:"tag"`
	RequireInteraction bool                 `json:"requireInteraction"`
	Vibrate            []int                `json:"vibrate"`
	Data               NotificationData     `json:"data"`
	Actions            []NotificationAction `json:"actions"`
}

// NotificationData is the routing data a notification carries to its click.
type NotificationData struct {
	URL      string         `json:"url,omitempty"`
	NoticeID string         `json:"noticeId,omitempty"`
	Type     string         `json:"type,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification holds display parameters with every default applied.
type Notification struct {
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	Icon               string               `json:"icon"`
	Badge              string               `json:"badge"`
	Tag                string               `json:"tag"`
	RequireInteraction bool                 `json:"requireInteraction"`
	Vibrate            []int                `json:"vibrate"`
	Data               NotificationData     `json:"data"`
	Actions            []NotificationAction `json:"actions,omitempty"`
}

// Displayer shows a notification to the user.
type Displayer interface {
	Show(ctx context.Context, n Notification) error
}

type noDisplay struct{}

func (noDisplay) Show(context.Context, Notification) error { return nil }

// NotificationClick is an inbound click on a displayed notification.
type NotificationClick struct {
	Action       string       `json:"action"`
	Notification Notification `json:"notification"`
}

// ClickOutcome records how a click was resolved.
type ClickOutcome string

const (
	ClickDismissed ClickOutcome = "dismissed"
	ClickFocused   ClickOutcome = "focused"
	ClickNavigated ClickOutcome = "navigated"
	ClickOpened    ClickOutcome = "opened"
)

// NotificationRouter decodes push messages and routes notification clicks to
// live instances.
type NotificationRouter struct {
	display  Displayer
	clients  Clients
	observer Observer
	logger   *slog.Logger

	defaults NotificationDefaults
}

// Decode turns a raw push body into display parameters. A body that is not a
// JSON object degrades to a generic notification built from the raw text.
// Fields of the wrong type are dropped one by one, keeping the rest.
func (nr *NotificationRouter) Decode(raw []byte) (Notification, bool) {
	n, _, ok := nr.decode(raw)
	return n, ok
}

func (nr *NotificationRouter) decode(raw []byte) (Notification, []string, bool) {
	p, skipped, ok := decodePayload(raw)
	if !ok {
		p = PushPayload{Body: strings.TrimSpace(string(raw))}
	}
	return nr.withDefaults(p), skipped, ok
}

// decodePayload reads raw field by field and reports the names of fields that
// could not be decoded.
func decodePayload(raw []byte) (PushPayload, []string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return PushPayload{}, nil, false
	}

	var (
		p       PushPayload
		skipped []string
	)
	take := func(ok bool, name string) {
		if !ok {
			skipped = append(skipped, name)
		}
	}
	take(field(fields, "title", &p.Title), "title")
	take(field(fields, "body", &p.Body), "body")
	take(field(fields, "icon", &p.Icon), "icon")
	take(field(fields, "badge", &p.Badge), "badge")
	take(field(fields, "tag", &p.Tag), "tag")
	take(field(fields, "requireInteraction", &p.RequireInteraction), "requireInteraction")
	take(field(fields, "vibrate", &p.Vibrate), "vibrate")
	take(field(fields, "actions", &p.Actions), "actions")

	if rawData, ok := fields["data"]; ok {
		var data map[string]json.RawMessage
		if err := json.Unmarshal(rawData, &data); err != nil {
			skipped = append(skipped, "data")
		} else {
			take(field(data, "url", &p.Data.URL), "data.url")
			take(field(data, "noticeId", &p.Data.NoticeID), "data.noticeId")
			take(field(data, "type", &p.Data.Type), "data.type")
			take(field(data, "extra", &p.Data.Extra), "data.extra")
		}
	}
	return p, skipped, true
}

// field decodes fields[name] into dst. dst is left untouched when the field is
// absent or has the wrong type.
func field[T any](fields map[string]json.RawMessage, name string, dst *T) bool {
	raw, ok := fields[name]
	if !ok {
		return true
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

func (nr *NotificationRouter) withDefaults(p PushPayload) Notification {
	d := nr.defaults
	n := Notification{
		Title:              firstNonEmpty(p.Title, d.Title),
		Body:               firstNonEmpty(p.Body, d.Body),
		Icon:               firstNonEmpty(p.Icon, d.Icon),
		Badge:              firstNonEmpty(p.Badge, d.Badge),
		Tag:                firstNonEmpty(p.Tag, d.Tag),
		RequireInteraction: p.RequireInteraction,
		Vibrate:            p.Vibrate,
		Data:               p.Data,
		Actions:            p.Actions,
	}
	if len(n.Vibrate) == 0 {
		n.Vibrate = append([]int(nil), d.Vibrate...)
	}
	n.Data.URL = firstNonEmpty(n.Data.URL, d.URL)
	return n
}

// Push displays the decoded notification and, concurrently, forwards the raw
// payload to every open instance as PUSH_RECEIVED.
func (nr *NotificationRouter) Push(ctx context.Context, raw []byte) (Notification, error) {
	n, skipped, decoded := nr.decode(raw)
	nr.observer.PushReceived(decoded)
	if !decoded {
		nr.logger.WarnContext(ctx, "push payload is not a JSON object, showing generic notification")
	} else if len(skipped) > 0 {
		nr.logger.WarnContext(ctx, "push payload fields ignored", "fields", skipped)
	}

	payload := json.RawMessage(raw)
	if !decoded {
		payload, _ = json.Marshal(string(raw))
	}

	var g errgroup.Group
	g.Go(func() error {
		return nr.display.Show(ctx, n)
	})
	g.Go(func() error {
		broadcast(ctx, nr.clients, nr.logger, Message{Type: MessagePushReceived, Payload: payload})
		return nil
	})

	return n, g.Wait()
}

// Click resolves a notification click: focus an instance already on the
// target, else navigate any open instance there, else open a new one. An
// instance that cannot be focused or navigated is skipped.
func (nr *NotificationRouter) Click(ctx context.Context, click NotificationClick) (ClickOutcome, error) {
	if click.Action == ActionDismiss {
		nr.observer.NotificationClick(ClickDismissed)
		return ClickDismissed, nil
	}

	target := firstNonEmpty(click.Notification.Data.URL, nr.defaults.URL)

	all, err := nr.clients.MatchAll(ctx)
	if err != nil {
		nr.logger.WarnContext(ctx, "error listing clients, opening new window", "error", err)
		all = nil
	}

	for _, c := range all {
		if !sameView(c.URL(), target) {
			continue
		}
		if err := c.Focus(ctx); err != nil {
			nr.logger.WarnContext(ctx, "error focusing client, trying next", "client", c.ID(), "error", err)
			continue
		}
		if err := c.PostMessage(ctx, Message{Type: MessageRefreshNotices, URL: target}); err != nil {
			nr.logger.WarnContext(ctx, "error asking client to refresh notices", "client", c.ID(), "error", err)
		}
		nr.observer.NotificationClick(ClickFocused)
		return ClickFocused, nil
	}

	for _, c := range all {
		if err := c.Focus(ctx); err != nil {
			nr.logger.WarnContext(ctx, "error focusing client, trying next", "client", c.ID(), "error", err)
			continue
		}
		if err := c.Navigate(ctx, target); err != nil {
			nr.logger.WarnContext(ctx, "error navigating client, trying next", "client", c.ID(), "error", err)
			continue
		}
		nr.observer.NotificationClick(ClickNavigated)
		return ClickNavigated, nil
	}

	if _, err := nr.clients.OpenWindow(ctx, target); err != nil {
		return "", err
	}
	nr.observer.NotificationClick(ClickOpened)
	return ClickOpened, nil
}

// sameView compares path and, when the target has one, query. Instance URLs
// are absolute while targets are usually relative.
func sameView(instanceURL, target string) bool {
	iu, err := url.Parse(instanceURL)
	if err != nil {
		return false
	}
	tu, err := url.Parse(target)
	if err != nil {
		return false
	}
	if tu.Host != "" && !strings.EqualFold(tu.Host, iu.Host) {
		return false
	}
	if cleanPath(iu.Path) != cleanPath(tu.Path) {
		return false
	}
	return tu.RawQuery == "" || tu.RawQuery == iu.RawQuery
}

func cleanPath(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

func firstNonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

package caches

import (
	"net/http"
	"net/url"
	"strings"
)

// QueueNamespace is the fixed name of the sync queue partition. It carries no
// version suffix so queued writes survive upgrades.
const QueueNamespace = "sync-queue"

// Key returns the normalized cache key of a request: upper-cased method and
// the request URL without its fragment.
func Key(r *http.Request) string {
	return KeyFor(r.Method, r.URL)
}

// KeyFor builds a key from a method and URL.
func KeyFor(method string, u *url.URL) string {
	if u == nil {
		return strings.ToUpper(method) + "#"
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return strings.ToUpper(method) + "#" + c.String()
}

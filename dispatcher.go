package offline

import (
	"net/http"
	"path"
	"strings"
)

// Policy is the disposition the dispatcher picks for an intercepted request.
type Policy int

const (
	// PolicyPassThrough sends the request to the network untouched. Non-GET
	// API writes that fail are handed to the sync queue.
	PolicyPassThrough Policy = iota
	// PolicyBypass is live-only API traffic that must never be cached.
	PolicyBypass
	PolicyCacheFirst
	PolicyNetworkFirst
	PolicyNavigation
)

func (p Policy) String() string {
	switch p {
	case PolicyPassThrough:
		return "pass-through"
	case PolicyBypass:
		return "bypass"
	case PolicyCacheFirst:
		return "cache-first"
	case PolicyNetworkFirst:
		return "network-first"
	case PolicyNavigation:
		return "navigation"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Classify. Role names the namespace a caching
// policy reads and writes.
type Decision struct {
	Policy Policy
	Role   Role
	Reason string
}

// Classify applies the dispatch rules in order, first match wins.
func (c Config) Classify(r *http.Request) Decision {
	if r.Method != http.MethodGet {
		return Decision{Policy: PolicyPassThrough, Reason: "method"}
	}

	if r.URL == nil || (r.URL.Scheme != "http" && r.URL.Scheme != "https") {
		return Decision{Policy: PolicyPassThrough, Reason: "scheme"}
	}
	if strings.EqualFold(r.Header.Get(headerUpgrade), "websocket") {
		return Decision{Policy: PolicyPassThrough, Reason: "websocket"}
	}

	p := r.URL.Path
	if c.isAPI(p) {
		if c.isBypassed(p) {
			return Decision{Policy: PolicyBypass, Reason: "deny-list"}
		}
		return Decision{Policy: PolicyNetworkFirst, Role: RoleAPI, Reason: "api"}
	}

	if c.isStaticAsset(p) {
		return Decision{Policy: PolicyCacheFirst, Role: RoleStatic, Reason: "static"}
	}

	if isNavigation(r) {
		return Decision{Policy: PolicyNavigation, Role: RoleDynamic, Reason: "navigation"}
	}

	return Decision{Policy: PolicyNetworkFirst, Role: RoleDynamic, Reason: "default"}
}

func (c Config) isAPI(p string) bool {
	if c.APIPrefix == "" {
		return false
	}
	return strings.HasPrefix(p, c.APIPrefix) || p == strings.TrimSuffix(c.APIPrefix, "/")
}

// isBypassed matches auth and notification sub-paths segment by segment so
// /api/authors is not mistaken for /api/auth.
func (c Config) isBypassed(p string) bool {
	rest := strings.TrimPrefix(p, c.APIPrefix)
	for _, seg := range strings.Split(rest, "/") {
		for _, deny := range c.BypassSegments {
			if strings.EqualFold(seg, deny) {
				return true
			}
		}
	}
	return false
}

func (c Config) isStaticAsset(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range c.StaticExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isNavigation(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get(headerSecFetchMode), "navigate") {
		return true
	}
	return strings.Contains(r.Header.Get(headerAccept), "text/html")
}

// isQueueable reports whether a failed non-GET request should be kept for replay.
func (c Config) isQueueable(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	if r.URL == nil || (r.URL.Scheme != "http" && r.URL.Scheme != "https") {
		return false
	}
	return c.isAPI(r.URL.Path) && !c.isBypassed(r.URL.Path)
}

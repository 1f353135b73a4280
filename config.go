package offline

type Config struct {
	// Prefix and Version together name every cache namespace this engine owns.
	// Namespaces under Prefix that do not carry Version are purged on activation.
	Prefix  string
	Version string

	// Origin is the base URL the precache manifest is fetched from, eg. http://localhost:3000.
	Origin string

	// APIPrefix marks data API traffic. Paths under it that contain one of
	// BypassSegments are never cached.
	APIPrefix      string
	BypassSegments []string

	// StaticExtensions governs Cache-First eligibility.
	StaticExtensions []string

	// PrecacheManifest is fetched atomically on install. OfflinePage must be part of it.
	PrecacheManifest []string
	OfflinePage      string

	// MaxCachedBodyBytes is the largest response body the strategies capture.
	// Larger responses are served but not stored. Zero means unbounded.
	MaxCachedBodyBytes int64

	// MaxQueueEntries bounds the sync queue. Zero means unbounded.
	MaxQueueEntries int

	// SyncTag is the background sync tag that triggers a replay pass. Empty accepts any tag.
	SyncTag string

	// SkipWaitingOnInstall activates a freshly installed version without
	// waiting for SKIP_WAITING.
	SkipWaitingOnInstall bool

	Notification NotificationDefaults
}

// NotificationDefaults fill every display field a push payload leaves empty.
type NotificationDefaults struct {
	Title   string
	Body    string
	Icon    string
	Badge   string
	Tag     string
	URL     string
	Vibrate []int
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Prefix:         "coaching",
		Version:        "v1",
		APIPrefix:      "/api/",
		BypassSegments: []string{"auth", "notifications"},
		StaticExtensions: []string{
			".css", ".js", ".mjs",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
			".woff", ".woff2", ".ttf", ".otf", ".eot",
			".json", ".webmanifest",
		},
		PrecacheManifest: []string{
			"/offline.html",
			"/icons/icon-192x192.png",
			"/icons/icon-512x512.png",
		},
		OfflinePage:          "/offline.html",
		MaxCachedBodyBytes:   10 << 20,
		MaxQueueEntries:      500,
		SyncTag:              "sync-queue",
		SkipWaitingOnInstall: true,
		Notification: NotificationDefaults{
			Title:   "Coaching Center",
			Body:    "You have a new notification",
			Icon:    "/icons/icon-192x192.png",
			Badge:   "/icons/icon-72x72.png",
			Tag:     "coaching-notification",
			URL:     "/",
			Vibrate: []int{100, 50, 100},
		},
	}
}

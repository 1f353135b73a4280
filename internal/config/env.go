// Package config loads the proxy configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	offline "github.com/PKTonmoy/cochin-sub004"
)

// Store backends selectable with SW_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

// Env is the proxy configuration.
type Env struct {
	ListenAddr  string `env:"SW_LISTEN_ADDR" envDefault:"127.0.0.1:8080"`
	UpstreamURL string `env:"SW_UPSTREAM_URL,required,notEmpty"`

	Prefix          string   `env:"SW_PREFIX" envDefault:"coaching"`
	Version         string   `env:"SW_VERSION" envDefault:"v1"`
	APIPrefix       string   `env:"SW_API_PREFIX" envDefault:"/api/"`
	OfflinePage     string   `env:"SW_OFFLINE_PAGE" envDefault:"/offline.html"`
	Precache        []string `env:"SW_PRECACHE" envSeparator:","`
	MaxQueueEntries int      `env:"SW_MAX_QUEUE_ENTRIES" envDefault:"500"`
	MaxCachedBody   int64    `env:"SW_MAX_CACHED_BODY_BYTES" envDefault:"10485760"`
	SyncTag         string   `env:"SW_SYNC_TAG" envDefault:"sync-queue"`
	SkipWaiting     bool     `env:"SW_SKIP_WAITING" envDefault:"true"`

	Store         string `env:"SW_STORE" envDefault:"sqlite"`
	SQLitePath    string `env:"SW_SQLITE_PATH" envDefault:"offline.db"`
	PostgresDSN   string `env:"SW_POSTGRES_DSN"`
	DynamoDBTable string `env:"SW_DYNAMODB_TABLE"`

	// DynamoDBCreateTable creates the table on startup when it does not exist.
	DynamoDBCreateTable bool `env:"SW_DYNAMODB_CREATE_TABLE" envDefault:"false"`

	LogLevel       string `env:"SW_LOG_LEVEL" envDefault:"info"`
	MetricsEnabled bool   `env:"SW_METRICS_ENABLED" envDefault:"true"`
}

// Load parses the environment and validates the result.
func Load() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Env{}, err
	}
	return e, nil
}

// Validate checks cross-field requirements.
func (e Env) Validate() error {
	switch e.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if e.PostgresDSN == "" {
			return fmt.Errorf("SW_POSTGRES_DSN is required for store %q", e.Store)
		}
	case StoreDynamoDB:
		if e.DynamoDBTable == "" {
			return fmt.Errorf("SW_DYNAMODB_TABLE is required for store %q", e.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", e.Store)
	}
	if e.MaxCachedBody < 0 {
		return fmt.Errorf("SW_MAX_CACHED_BODY_BYTES must not be negative")
	}
	if e.MaxQueueEntries < 0 {
		return fmt.Errorf("SW_MAX_QUEUE_ENTRIES must not be negative")
	}
	return nil
}

// Offline converts the environment into the engine configuration.
func (e Env) Offline() offline.Config {
	c := offline.DefaultConfig()
	c.Prefix = e.Prefix
	c.Version = e.Version
	c.Origin = e.UpstreamURL
	c.APIPrefix = e.APIPrefix
	c.OfflinePage = e.OfflinePage
	if len(e.Precache) > 0 {
		c.PrecacheManifest = e.Precache
	}
	c.MaxQueueEntries = e.MaxQueueEntries
	c.MaxCachedBodyBytes = e.MaxCachedBody
	c.SyncTag = e.SyncTag
	c.SkipWaitingOnInstall = e.SkipWaiting
	return c
}

// Level maps SW_LOG_LEVEL onto a slog level, defaulting to info.
func (e Env) Level() slog.Level {
	switch strings.ToLower(e.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

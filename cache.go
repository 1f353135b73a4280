package offline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/PKTonmoy/cochin-sub004/caches"
)

var (
	// ErrNotFound is returned by stores when a key or queue entry is absent.
	ErrNotFound = caches.ErrNoCacheItem
)

// CacheItem is one captured response. Response holds the wire form produced by
// httputil.DumpResponse.
type CacheItem struct {
	Response []byte
	StoredAt time.Time
}

// CacheStore is the set of named key to response partitions shared by the
// strategies and the lifecycle manager.
type CacheStore interface {
	Get(ctx context.Context, namespace, k string) (*CacheItem, error)
	Set(ctx context.Context, namespace, k string, v *CacheItem) error
	Delete(ctx context.Context, namespace, k string) error
	Keys(ctx context.Context, namespace string) ([]string, error)
	Namespaces(ctx context.Context) ([]string, error)
	DropNamespace(ctx context.Context, namespace string) error
}

// QueueEntry is a snapshot of one mutating request whose live attempt failed.
// Entries are never edited after Append.
type QueueEntry struct {
	ID        string
	Seq       int64
	URL       string
	Method    string
	Header    http.Header
	Body      string
	CreatedAt time.Time
}

// QueueStore is the durable, append-only sync queue. List returns entries in
// ascending Seq order.
type QueueStore interface {
	Append(ctx context.Context, e *QueueEntry) (int64, error)
	List(ctx context.Context) ([]*QueueEntry, error)
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

func isNotFound(err error) bool {
	return errors.Is(err, caches.ErrNoCacheItem) || errors.Is(err, caches.ErrNoQueueEntry)
}

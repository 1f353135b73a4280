package offline

import (
	"context"
	"sync"
	"time"
)

const markerKey = "last-sync"

// Marker is the last-sync scalar. Every Touch overwrites the previous stamp and
// stamps never go backwards within a process.
type Marker struct {
	store     CacheStore
	namespace string
	now       func() time.Time

	mu   sync.Mutex
	last time.Time
}

func newMarker(store CacheStore, prefix string, now func() time.Time) *Marker {
	return &Marker{store: store, namespace: MetaNamespace(prefix), now: now}
}

// Touch stamps the marker with the current time and returns the stamp.
func (m *Marker) Touch(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamp := m.now().UTC()
	if !stamp.After(m.last) {
		stamp = m.last.Add(time.Nanosecond)
	}

	if err := m.store.Set(ctx, m.namespace, markerKey, &CacheItem{StoredAt: stamp}); err != nil {
		return time.Time{}, err
	}
	m.last = stamp
	return stamp, nil
}

// LastSync returns the stored stamp, or the zero time if none was written yet.
func (m *Marker) LastSync(ctx context.Context) (time.Time, error) {
	item, err := m.store.Get(ctx, m.namespace, markerKey)
	if err != nil {
		if isNotFound(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return item.StoredAt, nil
}

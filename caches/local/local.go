package local

import (
	"context"
	"net/http"
	"sort"
	"sync"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/caches"
)

// BasicCache is an in-memory offline.CacheStore.
type BasicCache struct {
	namespaces map[string]map[string]*offline.CacheItem

	lock sync.RWMutex
}

func (bc *BasicCache) Get(_ context.Context, namespace, key string) (*offline.CacheItem, error) {
	bc.lock.RLock()
	defer bc.lock.RUnlock()

	val, found := bc.namespaces[namespace][key]
	if !found {
		return nil, caches.ErrNoCacheItem
	}

	return copyItem(val), nil
}

func (bc *BasicCache) Set(_ context.Context, namespace, key string, item *offline.CacheItem) error {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	ns, ok := bc.namespaces[namespace]
	if !ok {
		ns = make(map[string]*offline.CacheItem)
		bc.namespaces[namespace] = ns
	}
	ns[key] = copyItem(item)

	return nil
}

func (bc *BasicCache) Delete(_ context.Context, namespace, key string) error {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	delete(bc.namespaces[namespace], key)
	return nil
}

func (bc *BasicCache) Keys(_ context.Context, namespace string) ([]string, error) {
	bc.lock.RLock()
	defer bc.lock.RUnlock()

	keys := make([]string, 0, len(bc.namespaces[namespace]))
	for k := range bc.namespaces[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (bc *BasicCache) Namespaces(_ context.Context) ([]string, error) {
	bc.lock.RLock()
	defer bc.lock.RUnlock()

	names := make([]string, 0, len(bc.namespaces))
	for n := range bc.namespaces {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (bc *BasicCache) DropNamespace(_ context.Context, namespace string) error {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	delete(bc.namespaces, namespace)
	return nil
}

// CreateNamespace registers an empty namespace.
func (bc *BasicCache) CreateNamespace(namespace string) {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	if _, ok := bc.namespaces[namespace]; !ok {
		bc.namespaces[namespace] = make(map[string]*offline.CacheItem)
	}
}

func copyItem(item *offline.CacheItem) *offline.CacheItem {
	if item == nil {
		return &offline.CacheItem{}
	}
	return &offline.CacheItem{
		Response: append([]byte(nil), item.Response...),
		StoredAt: item.StoredAt,
	}
}

func NewBasicCache() *BasicCache {
	return &BasicCache{
		namespaces: make(map[string]map[string]*offline.CacheItem),
	}
}

// BasicQueue is an in-memory offline.QueueStore.
type BasicQueue struct {
	entries []*offline.QueueEntry
	seq     int64

	lock sync.RWMutex
}

func (bq *BasicQueue) Append(_ context.Context, e *offline.QueueEntry) (int64, error) {
	bq.lock.Lock()
	defer bq.lock.Unlock()

	bq.seq++
	c := copyEntry(e)
	c.Seq = bq.seq
	bq.entries = append(bq.entries, c)
	return c.Seq, nil
}

func (bq *BasicQueue) List(_ context.Context) ([]*offline.QueueEntry, error) {
	bq.lock.RLock()
	defer bq.lock.RUnlock()

	out := make([]*offline.QueueEntry, 0, len(bq.entries))
	for _, e := range bq.entries {
		out = append(out, copyEntry(e))
	}
	return out, nil
}

func (bq *BasicQueue) Remove(_ context.Context, id string) error {
	bq.lock.Lock()
	defer bq.lock.Unlock()

	for i, e := range bq.entries {
		if e.ID == id {
			bq.entries = append(bq.entries[:i], bq.entries[i+1:]...)
			return nil
		}
	}
	return caches.ErrNoQueueEntry
}

func (bq *BasicQueue) Count(_ context.Context) (int, error) {
	bq.lock.RLock()
	defer bq.lock.RUnlock()

	return len(bq.entries), nil
}

func (bq *BasicQueue) Clear(_ context.Context) error {
	bq.lock.Lock()
	defer bq.lock.Unlock()

	bq.entries = nil
	return nil
}

func copyEntry(e *offline.QueueEntry) *offline.QueueEntry {
	c := *e
	if e.Header != nil {
		c.Header = e.Header.Clone()
	} else {
		c.Header = http.Header{}
	}
	return &c
}

func NewBasicQueue() *BasicQueue {
	return &BasicQueue{}
}

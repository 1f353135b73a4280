package sqlite

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/caches"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "offline.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "  ")
	var ve caches.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestCacheEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Get(ctx, "coaching-static-v1", "GET#http://app.test/app.js")
	assert.ErrorIs(t, err, caches.ErrNoCacheItem)

	stored := time.Date(2023, 1, 1, 12, 0, 0, 42, time.UTC)
	require.NoError(t, s.Set(ctx, "coaching-static-v1", "GET#http://app.test/app.js", &offline.CacheItem{
		Response: []byte("first"),
		StoredAt: stored,
	}))
	require.NoError(t, s.Set(ctx, "coaching-static-v1", "GET#http://app.test/app.js", &offline.CacheItem{
		Response: []byte("second"),
		StoredAt: stored.Add(time.Second),
	}))
	require.NoError(t, s.Set(ctx, "coaching-meta", "last-sync", &offline.CacheItem{StoredAt: stored}))

	got, err := s.Get(ctx, "coaching-static-v1", "GET#http://app.test/app.js")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got.Response))
	assert.Equal(t, stored.Add(time.Second), got.StoredAt)

	marker, err := s.Get(ctx, "coaching-meta", "last-sync")
	require.NoError(t, err)
	assert.Equal(t, stored, marker.StoredAt)

	names, err := s.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"coaching-meta", "coaching-static-v1"}, names)

	keys, err := s.Keys(ctx, "coaching-static-v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET#http://app.test/app.js"}, keys)

	require.NoError(t, s.DropNamespace(ctx, "coaching-static-v1"))
	_, err = s.Get(ctx, "coaching-static-v1", "GET#http://app.test/app.js")
	assert.ErrorIs(t, err, caches.ErrNoCacheItem)
}

func TestSyncQueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	created := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"first", "second", "third"} {
		_, err := s.Append(ctx, &offline.QueueEntry{
			ID:        id,
			URL:       "http://app.test/api/payments",
			Method:    http.MethodPost,
			Header:    http.Header{"Content-Type": {"application/json"}},
			Body:      `{"id":"` + id + `"}`,
			CreatedAt: created,
		})
		require.NoError(t, err)
	}

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].ID)
	assert.Equal(t, "third", entries[2].ID)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
	assert.Equal(t, "application/json", entries[1].Header.Get("Content-Type"))
	assert.Equal(t, `{"id":"second"}`, entries[1].Body)
	assert.Equal(t, created, entries[1].CreatedAt)

	require.NoError(t, s.Remove(ctx, "second"))
	assert.ErrorIs(t, s.Remove(ctx, "second"), caches.ErrNoQueueEntry)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Clear(ctx))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

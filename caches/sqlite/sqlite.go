// Package sqlite provides a SQLite-backed cache and sync queue.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/caches"
)

//go:embed schema.sql
var querySchema string

// Store persists cache namespaces and the sync queue in one SQLite file.
type Store struct {
	db *sql.DB
}

func toNanos(value time.Time) int64 {
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

// Open opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, caches.ValidationError{Reason: "storage path is required"}
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single connection keeps writes serialised
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, querySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, namespace, k string) (*offline.CacheItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT response, stored_at FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, k)

	var (
		response []byte
		storedAt int64
	)
	if err := row.Scan(&response, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, caches.ErrNoCacheItem
		}
		return nil, err
	}
	return &offline.CacheItem{Response: response, StoredAt: fromNanos(storedAt)}, nil
}

func (s *Store) Set(ctx context.Context, namespace, k string, v *offline.CacheItem) error {
	response := v.Response
	if response == nil {
		response = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, key, response, stored_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET response = excluded.response, stored_at = excluded.stored_at`,
		namespace, k, response, toNanos(v.StoredAt))
	return err
}

func (s *Store) Delete(ctx context.Context, namespace, k string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, k)
	return err
}

func (s *Store) Keys(ctx context.Context, namespace string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT key FROM cache_entries WHERE namespace = ? ORDER BY key`, namespace)
}

func (s *Store) Namespaces(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT namespace FROM cache_entries ORDER BY namespace`)
}

func (s *Store) DropNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, namespace)
	return err
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) Append(ctx context.Context, e *offline.QueueEntry) (int64, error) {
	headers, err := json.Marshal(e.Header)
	if err != nil {
		return 0, fmt.Errorf("encode headers: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_queue (id, url, method, headers, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.URL, e.Method, string(headers), e.Body, toNanos(e.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) List(ctx context.Context) ([]*offline.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, url, method, headers, body, created_at FROM sync_queue ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*offline.QueueEntry
	for rows.Next() {
		var (
			e         offline.QueueEntry
			headers   string
			createdAt int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.URL, &e.Method, &headers, &e.Body, &createdAt); err != nil {
			return nil, err
		}
		e.Header = http.Header{}
		if err := json.Unmarshal([]byte(headers), &e.Header); err != nil {
			return nil, fmt.Errorf("decode headers of %s: %w", e.ID, err)
		}
		if e.Header == nil {
			e.Header = http.Header{}
		}
		e.CreatedAt = fromNanos(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return caches.ErrNoQueueEntry
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue`)
	return err
}

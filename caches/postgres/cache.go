package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/caches"
)

var (
	// ErrPingFailed is returned if the initial ping to the database returns an error
	ErrPingFailed = errors.New("ping returned error")
)

var (
	//go:embed create_table.sql
	queryCreateTable string
	//go:embed create_queue_table.sql
	queryCreateQueueTable string
	//go:embed fetch_by_key.sql
	queryFetchByKey string
	//go:embed insert_item.sql
	queryInsertItem string
	//go:embed delete_item.sql
	queryDeleteItem string
	//go:embed list_keys.sql
	queryListKeys string
	//go:embed list_namespaces.sql
	queryListNamespaces string
	//go:embed drop_namespace.sql
	queryDropNamespace string
	//go:embed queue_append.sql
	queryQueueAppend string
	//go:embed queue_list.sql
	queryQueueList string
	//go:embed queue_remove.sql
	queryQueueRemove string
	//go:embed queue_count.sql
	queryQueueCount string
	//go:embed queue_clear.sql
	queryQueueClear string
)

// Config defines the configuration options for the PostgreSQL store.
type Config struct {
	// SkipMigrations leaves table creation to an external migration tool.
	SkipMigrations bool
}

// Cache implements offline.CacheStore and offline.QueueStore using PostgreSQL
// as the storage backend.
type Cache struct {
	db *sql.DB
}

// Get retrieves a cached response by namespace and key.
// Returns caches.ErrNoCacheItem if the item doesn't exist.
func (p *Cache) Get(ctx context.Context, namespace, k string) (*offline.CacheItem, error) {
	stmt, err := p.db.PrepareContext(ctx, queryFetchByKey)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var (
		response []byte
		storedAt time.Time
	)
	if err := stmt.QueryRowContext(ctx, namespace, k).Scan(&response, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, caches.ErrNoCacheItem
		}
		return nil, err
	}

	return &offline.CacheItem{Response: response, StoredAt: storedAt.UTC()}, nil
}

// Set stores or replaces a cached response.
func (p *Cache) Set(ctx context.Context, namespace, k string, v *offline.CacheItem) error {
	response := v.Response
	if response == nil {
		response = []byte{}
	}
	return p.exec(ctx, queryInsertItem, namespace, k, response, v.StoredAt.UTC())
}

func (p *Cache) Delete(ctx context.Context, namespace, k string) error {
	return p.exec(ctx, queryDeleteItem, namespace, k)
}

func (p *Cache) Keys(ctx context.Context, namespace string) ([]string, error) {
	return p.queryStrings(ctx, queryListKeys, namespace)
}

func (p *Cache) Namespaces(ctx context.Context) ([]string, error) {
	return p.queryStrings(ctx, queryListNamespaces)
}

func (p *Cache) DropNamespace(ctx context.Context, namespace string) error {
	return p.exec(ctx, queryDropNamespace, namespace)
}

// Append inserts a queue entry and returns its sequence number.
func (p *Cache) Append(ctx context.Context, e *offline.QueueEntry) (int64, error) {
	headers, err := json.Marshal(e.Header)
	if err != nil {
		return 0, fmt.Errorf("encode headers: %w", err)
	}

	stmt, err := p.db.PrepareContext(ctx, queryQueueAppend)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var seq int64
	err = stmt.QueryRowContext(ctx, e.ID, e.URL, e.Method, string(headers), e.Body, e.CreatedAt.UTC()).Scan(&seq)
	return seq, err
}

// List returns every queued entry in sequence order.
func (p *Cache) List(ctx context.Context) ([]*offline.QueueEntry, error) {
	rows, err := p.db.QueryContext(ctx, queryQueueList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*offline.QueueEntry
	for rows.Next() {
		var (
			e       offline.QueueEntry
			headers []byte
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.URL, &e.Method, &headers, &e.Body, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(headers, &e.Header); err != nil {
			return nil, fmt.Errorf("decode headers of %s: %w", e.ID, err)
		}
		if e.Header == nil {
			e.Header = http.Header{}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (p *Cache) Remove(ctx context.Context, id string) error {
	stmt, err := p.db.PrepareContext(ctx, queryQueueRemove)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, id)
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

func (p *Cache) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, queryQueueCount).Scan(&n)
	return n, err
}

func (p *Cache) Clear(ctx context.Context) error {
	return p.exec(ctx, queryQueueClear)
}

func (p *Cache) exec(ctx context.Context, query string, args ...any) error {
	stmt, err := p.db.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, args...)
	return err
}

func (p *Cache) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
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

func createTables(ctx context.Context, db *sql.DB) error {
	for _, q := range []string{queryCreateTable, queryCreateQueueTable} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// New creates a new PostgreSQL store. It verifies the database connection and
// creates the necessary tables unless SkipMigrations is set.
//
// Returns an error if:
// - The database handle is nil
// - The database connection test fails
// - Table creation fails
func New(ctx context.Context, db *sql.DB, config *Config) (*Cache, error) {
	if db == nil {
		return nil, caches.ValidationError{
			Reason: "nil db",
		}
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(ErrPingFailed, err)
	}

	if config == nil || !config.SkipMigrations {
		if err := createTables(ctx, db); err != nil {
			return nil, err
		}
	}

	return &Cache{
		db: db,
	}, nil
}

package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned by Enqueue when MaxQueueEntries is reached.
	ErrQueueFull = errors.New("sync queue is full")
)

// replay outcomes reported to the observer
const (
	replaySynced       = "synced"
	replayFailedStatus = "failed_status"
	replayFailedNet    = "failed_network"
	replayInvalid      = "invalid"
	replayRemoveFailed = "remove_failed"
)

// ReplayResult summarises one replay pass. Attempted is what SYNC_COMPLETED
// reports as count.
type ReplayResult struct {
	Attempted int
	Synced    int
}

// SyncQueue owns the durable queue of failed writes and the replay engine.
// Enqueue and Replay are serialised so a replay pass never observes a
// concurrent insert or delete.
type SyncQueue struct {
	store    QueueStore
	network  http.RoundTripper
	clients  Clients
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	max      int

	mu sync.Mutex
}

// Enqueue appends e to the queue, assigning its ID and creation time.
func (q *SyncQueue) Enqueue(ctx context.Context, e *QueueEntry) (*QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.max > 0 {
		n, err := q.store.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n >= q.max {
			q.observer.QueueRejected()
			return nil, ErrQueueFull
		}
	}

	entry := *e
	entry.ID = uuid.NewString()
	entry.CreatedAt = q.now().UTC()
	entry.Header = e.Header.Clone()

	seq, err := q.store.Append(ctx, &entry)
	if err != nil {
		return nil, err
	}
	entry.Seq = seq

	q.reportDepth(ctx)
	return &entry, nil
}

// Replay performs one pass over every queued entry in sequence order. A
// failing entry stays queued and never blocks the rest of the pass. When the
// pass completes, SYNC_COMPLETED is broadcast to every open instance.
func (q *SyncQueue) Replay(ctx context.Context) (ReplayResult, error) {
	if q == nil {
		return ReplayResult{}, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.List(ctx)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("list sync queue: %w", err)
	}

	var res ReplayResult
	for _, e := range entries {
		res.Attempted++
		if q.replayOne(ctx, e) {
			res.Synced++
		}
	}

	q.logger.InfoContext(ctx, "sync replay pass completed", "attempted", res.Attempted, "synced", res.Synced)
	q.reportDepth(ctx)

	broadcast(ctx, q.clients, q.logger, Message{
		Type:   MessageSyncCompleted,
		Count:  intPtr(res.Attempted),
		Synced: intPtr(res.Synced),
	})

	return res, nil
}

func (q *SyncQueue) replayOne(ctx context.Context, e *QueueEntry) bool {
	req, err := e.request(ctx)
	if err != nil {
		q.logger.WarnContext(ctx, "queued request cannot be rebuilt, keeping it", "id", e.ID, "error", err)
		q.observer.ReplayResult(replayInvalid)
		return false
	}

	resp, err := q.network.RoundTrip(req)
	if err != nil {
		q.logger.WarnContext(ctx, "replay failed, request stays queued", "id", e.ID, "url", e.URL, "error", err)
		q.observer.ReplayResult(replayFailedNet)
		return false
	}
	drain(resp)

	if !isSuccess(resp) {
		q.logger.WarnContext(ctx, "replay rejected, request stays queued", "id", e.ID, "url", e.URL, "status", resp.StatusCode)
		q.observer.ReplayResult(replayFailedStatus)
		return false
	}

	if err := q.store.Remove(ctx, e.ID); err != nil && !isNotFound(err) {
		q.logger.WarnContext(ctx, "replayed request could not be removed", "id", e.ID, "error", err)
		q.observer.ReplayResult(replayRemoveFailed)
		return false
	}

	q.logger.DebugContext(ctx, "replayed queued request", "id", e.ID, "url", e.URL)
	q.observer.ReplayResult(replaySynced)
	return true
}

// Len returns the number of queued entries.
func (q *SyncQueue) Len(ctx context.Context) (int, error) {
	if q == nil {
		return 0, nil
	}
	return q.store.Count(ctx)
}

// Clear drops every queued entry. This is the operator escape hatch for
// entries that will never replay successfully.
func (q *SyncQueue) Clear(ctx context.Context) error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Clear(ctx); err != nil {
		return err
	}
	q.logger.InfoContext(ctx, "sync queue cleared")
	q.reportDepth(ctx)
	return nil
}

func (q *SyncQueue) reportDepth(ctx context.Context) {
	n, err := q.store.Count(ctx)
	if err != nil {
		return
	}
	q.observer.QueueDepth(n)
}

// request rebuilds the original request. The body is only attached for
// methods other than GET.
func (e *QueueEntry) request(ctx context.Context) (*http.Request, error) {
	var req *http.Request
	var err error
	if e.Method == http.MethodGet || e.Body == "" {
		req, err = http.NewRequestWithContext(ctx, e.Method, e.URL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, e.Method, e.URL, strings.NewReader(e.Body))
	}
	if err != nil {
		return nil, err
	}

	for k, vs := range e.Header {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func intPtr(v int) *int {
	return &v
}

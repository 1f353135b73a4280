package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PKTonmoy/cochin-sub004/caches"
)

var (
	// ErrInstallFailed wraps every precache failure. Nothing is written when it is returned.
	ErrInstallFailed = errors.New("install failed")
)

// State is the lifecycle position of the running version.
type State int

const (
	StateNew State = iota
	StateInstalled
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalled:
		return "installed"
	case StateActivated:
		return "activated"
	default:
		return "unknown"
	}
}

// Lifecycle owns namespace provisioning and eviction. Install and Activate are
// serialised so two transitions never race on the version tag.
type Lifecycle struct {
	cache   CacheStore
	network http.RoundTripper
	clients Clients
	marker  *Marker
	logger  *slog.Logger
	now     func() time.Time

	c Config

	mu    sync.Mutex
	state State
}

// ActivateResult lists the stale namespaces removed by an activation sweep.
type ActivateResult struct {
	Deleted []string
	Stamp   time.Time
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Install fetches the whole precache manifest and only then writes it into the
// static namespace. Any failed fetch fails the install with nothing written; a
// failed write puts the namespace back the way the pass found it.
func (l *Lifecycle) Install(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	base, err := url.Parse(l.c.Origin)
	if err != nil {
		return errors.Join(ErrInstallFailed, fmt.Errorf("parse origin: %w", err))
	}

	type fetched struct {
		key  string
		item *CacheItem
	}

	var (
		items []fetched
		errs  []error
	)
	for _, p := range l.c.PrecacheManifest {
		ref, err := url.Parse(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		target := base.ResolveReference(ref)

		item, err := l.fetch(ctx, target.String())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		items = append(items, fetched{key: caches.KeyFor(http.MethodGet, target), item: item})
	}
	if len(errs) > 0 {
		l.logger.ErrorContext(ctx, "precache failed, install aborted", "version", l.c.Version, "failures", len(errs))
		return errors.Join(append([]error{ErrInstallFailed}, errs...)...)
	}

	ns := l.c.namespace(RoleStatic)
	written := make([]string, 0, len(items))
	// entries this pass overwrote, nil when the key was new
	prior := make(map[string]*CacheItem, len(items))
	for _, f := range items {
		prev, err := l.cache.Get(ctx, ns, f.key)
		if err != nil && !isNotFound(err) {
			l.rollback(ctx, ns, written, prior)
			return errors.Join(ErrInstallFailed, fmt.Errorf("read %s: %w", f.key, err))
		}
		prior[f.key] = prev

		if err := l.cache.Set(ctx, ns, f.key, f.item); err != nil {
			l.rollback(ctx, ns, written, prior)
			return errors.Join(ErrInstallFailed, fmt.Errorf("write %s: %w", f.key, err))
		}
		written = append(written, f.key)
	}

	if l.state == StateNew {
		l.state = StateInstalled
	}
	l.logger.InfoContext(ctx, "install completed", "version", l.c.Version, "precached", len(written))
	return nil
}

// rollback puts back what an aborted install overwrote and removes what it added.
func (l *Lifecycle) rollback(ctx context.Context, ns string, written []string, prior map[string]*CacheItem) {
	for _, k := range written {
		var err error
		if prev := prior[k]; prev != nil {
			err = l.cache.Set(ctx, ns, k, prev)
		} else {
			err = l.cache.Delete(ctx, ns, k)
		}
		if err != nil {
			l.logger.WarnContext(ctx, "error rolling back precache entry", "namespace", ns, "key", k, "error", err)
		}
	}
}

func (l *Lifecycle) fetch(ctx context.Context, target string) (*CacheItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.network.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if !isSuccess(resp) {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return captureResponse(resp, l.now())
}

// Activate removes every namespace under this prefix that does not belong to
// the running version, claims all open instances and stamps the last-sync
// marker. Namespaces of other applications are never touched.
func (l *Lifecycle) Activate(ctx context.Context) (ActivateResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activate(ctx)
}

func (l *Lifecycle) activate(ctx context.Context) (ActivateResult, error) {
	names, err := l.cache.Namespaces(ctx)
	if err != nil {
		return ActivateResult{}, fmt.Errorf("list namespaces: %w", err)
	}

	var res ActivateResult
	for _, name := range names {
		if !l.c.isStale(name) {
			continue
		}
		if err := l.cache.DropNamespace(ctx, name); err != nil {
			l.logger.WarnContext(ctx, "error deleting stale namespace", "namespace", name, "error", err)
			continue
		}
		l.logger.InfoContext(ctx, "deleted stale namespace", "namespace", name)
		res.Deleted = append(res.Deleted, name)
	}

	if l.clients != nil {
		if err := l.clients.Claim(ctx); err != nil {
			l.logger.WarnContext(ctx, "error claiming clients", "error", err)
		}
	}

	stamp, err := l.marker.Touch(ctx)
	if err != nil {
		l.logger.WarnContext(ctx, "error stamping last-sync marker", "error", err)
	}
	res.Stamp = stamp

	l.state = StateActivated
	l.logger.InfoContext(ctx, "activated", "version", l.c.Version, "deleted", len(res.Deleted))
	return res, nil
}

// SkipWaiting activates an installed-but-waiting version immediately. It
// reports false when there is nothing waiting.
func (l *Lifecycle) SkipWaiting(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateInstalled {
		return false, nil
	}
	if _, err := l.activate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ClearRuntimeCaches drops the current dynamic and api namespaces.
func (l *Lifecycle) ClearRuntimeCaches(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, r := range []Role{RoleDynamic, RoleAPI} {
		if err := l.cache.DropNamespace(ctx, l.c.namespace(r)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

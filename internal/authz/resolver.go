package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/joynix/joynix-admin/internal/apiclient"
	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultEndpoint returns the permission tree of the signed in role.
const DefaultEndpoint = "admin/resources"

// Fetcher performs API calls, satisfied by *apiclient.Client.
type Fetcher interface {
	Request(ctx context.Context, path string, opts apiclient.RequestOptions) (json.RawMessage, error)
}

// SessionSource reports the current session, satisfied by any store.TokenStore.
type SessionSource interface {
	Load(ctx context.Context) models.Session
}

// Snapshot is a consistent view of the resolver state.
type Snapshot struct {
	Tree    Tree
	Loading bool
	Err     error
}

// CanAccess checks path against the snapshot's tree.
func (s Snapshot) CanAccess(path string) bool {
	return CanAccess(s.Tree.Resources, path)
}

func (s Snapshot) IsLoading() bool {
	return s.Loading
}

// Resolver holds the permission tree of the current session.
type Resolver struct {
	fetcher  Fetcher
	sessions SessionSource
	endpoint string
	metrics  *telemetry.Metrics

	loads singleflight.Group

	mu      sync.RWMutex
	tree    Tree
	err     error
	loading bool
	// epoch changes whenever the tree is discarded, results of loads started
	// before that are dropped
	epoch uint64
}

// NewResolver creates a resolver, endpoint defaults to DefaultEndpoint.
func NewResolver(fetcher Fetcher, sessions SessionSource, endpoint string) *Resolver {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Resolver{
		fetcher:  fetcher,
		sessions: sessions,
		endpoint: endpoint,
		metrics:  telemetry.GetMetrics(),
	}
}

// Start performs the initial load.
func (r *Resolver) Start(ctx context.Context) error {
	return r.Load(ctx)
}

// Load fetches the permission tree for the current session.
//
// An anonymous session discards the tree without a network call. On failure the
// previous tree is kept and the error is recorded. Concurrent calls share one fetch.
func (r *Resolver) Load(ctx context.Context) error {
	if !r.sessions.Load(ctx).IsAuthenticated() {
		r.reset()
		return nil
	}

	r.mu.RLock()
	epoch := r.epoch
	r.mu.RUnlock()

	// loads only coalesce within one session, a sign in after a sign out never
	// joins a fetch made for the previous session
	ch := r.loads.DoChan(fmt.Sprintf("load:%d", epoch), func() (any, error) {
		return nil, r.load(context.WithoutCancel(ctx), epoch)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refetch re-runs Load on demand, for example after a role change.
func (r *Resolver) Refetch(ctx context.Context) error {
	return r.Load(ctx)
}

// HandleAuthChange reloads when the session becomes authenticated and discards
// the tree when it is cleared. It matches store.AuthListener.
func (r *Resolver) HandleAuthChange(ctx context.Context, authenticated bool) {
	if !authenticated {
		r.reset()
		return
	}
	if err := r.Load(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to load permissions after sign in")
	}
}

func (r *Resolver) load(ctx context.Context, epoch uint64) error {
	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		return nil
	}
	r.loading = true
	r.mu.Unlock()

	tree, err := r.fetch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if epoch != r.epoch {
		// signed out while fetching, loading belongs to the newer session
		return nil
	}
	r.loading = false

	if err != nil {
		r.err = err
		r.metrics.PermissionLoadErrorsTotal.Add(ctx, 1)
		log.Ctx(ctx).Warn().Err(err).Bool("stale", !r.tree.IsEmpty()).Msg("failed to load permissions")
		return err
	}

	r.tree = tree
	r.err = nil

	log.Ctx(ctx).Debug().Str("role", tree.Role).Int("granted", len(Granted(tree.Resources))).Msg("permissions loaded")

	return nil
}

func (r *Resolver) fetch(ctx context.Context) (Tree, error) {
	r.metrics.PermissionLoadsTotal.Add(ctx, 1)

	raw, err := r.fetcher.Request(ctx, r.endpoint, apiclient.RequestOptions{Method: http.MethodGet})
	if err != nil {
		return Tree{}, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	var tree Tree
	if _, err := apiclient.Unwrap(raw, &tree); err != nil {
		return Tree{}, fmt.Errorf("failed to decode permissions: %w", err)
	}

	return tree, nil
}

func (r *Resolver) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.epoch++
	r.tree = Tree{}
	r.err = nil
	r.loading = false
}

// Snapshot returns the tree, loading flag and last error together.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{Tree: r.tree, Loading: r.loading, Err: r.err}
}

// IsLoading reports whether a load is in flight.
func (r *Resolver) IsLoading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// CanAccess reports whether the current tree grants path.
func (r *Resolver) CanAccess(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return CanAccess(r.tree.Resources, path)
}

// Role returns the role of the current tree.
func (r *Resolver) Role() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Role
}

// Tree returns the current tree.
func (r *Resolver) Tree() Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree
}

// Err returns the error of the last failed load, cleared by the next success.
func (r *Resolver) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Watch refetches the tree every interval until ctx is done. Transient failures
// are retried with exponential backoff before the tick gives up.
func (r *Resolver) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.refetchWithRetry(ctx, interval); err != nil && ctx.Err() == nil {
				log.Ctx(ctx).Warn().Err(err).Msg("periodic permission refresh failed")
			}
		}
	}
}

func (r *Resolver) refetchWithRetry(ctx context.Context, interval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = interval / 4

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.Refetch(ctx)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(3))

	return err
}

// retryable is true for transport failures and server side errors.
func retryable(err error) bool {
	if errors.Is(err, apiclient.ErrUnauthenticated) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}
	var syntaxErr *json.SyntaxError
	return !errors.As(err, &syntaxErr)
}

package store

import (
	"context"
	"sync"

	"github.com/joynix/joynix-admin/internal/models"
	"github.com/rs/zerolog/log"
)

// AuthListener is called when the session flips between authenticated and anonymous.
type AuthListener func(ctx context.Context, authenticated bool)

// Observed wraps a TokenStore and notifies listeners when the authenticated
// status of the stored session changes.
type Observed struct {
	inner TokenStore

	mu            sync.Mutex
	authenticated bool
	nextID        int
	listeners     map[int]AuthListener
}

var _ TokenStore = (*Observed)(nil)

// NewObserved wraps inner, the current status is read once to seed change detection.
func NewObserved(ctx context.Context, inner TokenStore) *Observed {
	return &Observed{
		inner:         inner,
		authenticated: inner.Load(ctx).IsAuthenticated(),
		listeners:     make(map[int]AuthListener),
	}
}

// Subscribe registers fn and returns a function which removes it.
func (o *Observed) Subscribe(fn AuthListener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.listeners[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// Authenticated returns the last observed status.
func (o *Observed) Authenticated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.authenticated
}

func (o *Observed) Load(ctx context.Context) models.Session {
	return o.inner.Load(ctx)
}

func (o *Observed) Save(ctx context.Context, session models.Session) error {
	if err := o.inner.Save(ctx, session); err != nil {
		return err
	}
	o.notify(ctx, session.Normalize().IsAuthenticated())
	return nil
}

func (o *Observed) Clear(ctx context.Context) error {
	if err := o.inner.Clear(ctx); err != nil {
		return err
	}
	o.notify(ctx, false)
	return nil
}

// notify runs listeners outside the lock so they may use the store themselves.
func (o *Observed) notify(ctx context.Context, authenticated bool) {
	o.mu.Lock()
	if o.authenticated == authenticated {
		o.mu.Unlock()
		return
	}
	o.authenticated = authenticated

	listeners := make([]AuthListener, 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	log.Debug().Bool("authenticated", authenticated).Int("listeners", len(listeners)).Msg("auth state changed")

	for _, fn := range listeners {
		fn(ctx, authenticated)
	}
}

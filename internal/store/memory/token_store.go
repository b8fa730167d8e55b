package memory

import (
	"context"
	"sync"

	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store"
)

// TokenStore implements store.TokenStore in process memory.
// Intended for tests and one-shot commands, nothing survives a restart.
type TokenStore struct {
	mu      sync.RWMutex
	session models.Session
}

var _ store.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a token store seeded with session.
func NewTokenStore(session models.Session) *TokenStore {
	return &TokenStore{session: clone(session.Normalize())}
}

func (s *TokenStore) Load(ctx context.Context) models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clone(s.session)
}

func (s *TokenStore) Save(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = clone(session.Normalize())
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return s.Save(ctx, models.Session{})
}

// clone copies the user so callers can't mutate stored state.
func clone(session models.Session) models.Session {
	if session.User != nil {
		u := *session.User
		session.User = &u
	}
	return session
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/rs/zerolog/log"
)

// TokenStore implements store.TokenStore using a row in console_sessions.
// Several console instances can read one session from the row, but refreshes
// are only coalesced within a process. Instances that refresh the same pair at
// once race, the API rejects the reused refresh token and the losing instance
// clears the row, signing every instance out.
type TokenStore struct {
	pool *pgxpool.Pool
	key  string
}

var _ store.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a PostgreSQL-backed token store bound to key.
func NewTokenStore(pool *pgxpool.Pool, key string) (*TokenStore, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	return &TokenStore{pool: pool, key: key}, nil
}

func (s *TokenStore) Load(ctx context.Context) models.Session {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM console_sessions WHERE storage_key = $1`, s.key).Scan(&data)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Warn().Err(mapPostgresError(err)).Str("key", s.key).Msg("failed to load session, treating as signed out")
		}
		return models.Session{}
	}

	session, err := store.DecodeSession(data)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("corrupt session row, treating as signed out")
		return models.Session{}
	}

	return session
}

func (s *TokenStore) Save(ctx context.Context, session models.Session) error {
	data, err := store.EncodeSession(session)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO console_sessions (storage_key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (storage_key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, s.key, data)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", mapPostgresError(err))
	}

	log.Debug().Str("key", s.key).Msg("session saved")

	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return s.Save(ctx, models.Session{})
}

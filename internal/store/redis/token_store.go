package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Config holds connection settings for the redis token store.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// Prefix is prepended to the storage key.
	Prefix string

	// TTL expires the stored session, zero keeps it until cleared.
	TTL time.Duration
}

// TokenStore implements store.TokenStore using a single redis key.
type TokenStore struct {
	client goredis.Cmdable
	key    string
	ttl    time.Duration
}

var _ store.TokenStore = (*TokenStore)(nil)

// NewClient connects to redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %w", store.ErrStoreUnavailable, err)
	}

	return client, nil
}

// NewTokenStore creates a redis-backed token store bound to prefix+key.
func NewTokenStore(client goredis.Cmdable, cfg Config, key string) (*TokenStore, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	return &TokenStore{client: client, key: cfg.Prefix + key, ttl: cfg.TTL}, nil
}

// Key returns the full redis key.
func (s *TokenStore) Key() string {
	return s.key
}

func (s *TokenStore) Load(ctx context.Context) models.Session {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			log.Warn().Err(err).Str("key", s.key).Msg("failed to load session, treating as signed out")
		}
		return models.Session{}
	}

	session, err := store.DecodeSession(data)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("corrupt session value, treating as signed out")
		return models.Session{}
	}

	return session
}

func (s *TokenStore) Save(ctx context.Context, session models.Session) error {
	data, err := store.EncodeSession(session)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	log.Debug().Str("key", s.key).Msg("session saved")

	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return s.Save(ctx, models.Session{})
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/joynix/joynix-admin/internal/apiclient"
	"github.com/joynix/joynix-admin/internal/authz"
	"github.com/joynix/joynix-admin/internal/login"
	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/resources"
	"github.com/joynix/joynix-admin/internal/store"
	filestore "github.com/joynix/joynix-admin/internal/store/file"
	memorystore "github.com/joynix/joynix-admin/internal/store/memory"
	postgresstore "github.com/joynix/joynix-admin/internal/store/postgres"
	redisstore "github.com/joynix/joynix-admin/internal/store/redis"
	"github.com/rs/zerolog/log"
)

var errNotSignedIn = errors.New("not signed in, run: joynix-admin login")

// session is the client stack shared by every command.
type session struct {
	tokens    *store.Observed
	client    *apiclient.Client
	resolver  *authz.Resolver
	resources *resources.Service
	otp       *login.OTP

	closers []func()
}

// openSession builds the token store, client and resolver from the global flags.
// The resolver follows sign in and sign out through the observed store.
func openSession(ctx context.Context, globals *Globals, onExpired apiclient.SessionExpiredFunc) (*session, error) {
	if err := globals.API.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate api flags: %w", err)
	}

	s := &session{}

	inner, err := s.openStore(ctx, globals)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.tokens = store.NewObserved(ctx, inner)

	cfg := globals.API.config(globals.Version)
	cfg.OnSessionExpired = onExpired

	s.client, err = apiclient.New(cfg, s.tokens)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	s.resolver = authz.NewResolver(s.client, s.tokens, globals.API.permissionsPath())
	s.closers = append(s.closers, s.tokens.Subscribe(s.resolver.HandleAuthChange))

	s.resources = resources.NewService(s.client, nil)
	s.otp = login.NewOTP(s.client, s.tokens)

	return s, nil
}

func (s *session) openStore(ctx context.Context, globals *Globals) (store.TokenStore, error) {
	if err := globals.Store.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate store flags: %w", err)
	}

	key := globals.Store.Key

	switch globals.Store.Backend {
	case "memory":
		log.Warn().Msg("memory session store selected, the session is lost on exit")
		return memorystore.NewTokenStore(models.Session{}), nil
	case "postgres":
		if err := globals.Postgres.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      globals.Postgres.ConnString,
			MaxConns:        globals.Postgres.MaxConns,
			MaxConnLifetime: globals.Postgres.MaxConnLifetime,
			MaxConnIdleTime: globals.Postgres.MaxConnIdleTime,
			AutoMigrate:     globals.Postgres.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		return postgresstore.NewTokenStore(pool, key)
	case "redis":
		if err := globals.Redis.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate redis flags: %w", err)
		}
		cfg := redisstore.Config{
			Addr:     globals.Redis.Addr,
			Username: globals.Redis.Username,
			Password: globals.Redis.Password,
			DB:       globals.Redis.DB,
			Prefix:   globals.Redis.Prefix,
			TTL:      globals.Redis.TTL,
		}
		client, err := redisstore.NewClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		return redisstore.NewTokenStore(client, cfg, key)
	default:
		return filestore.NewTokenStore(globals.Store.Dir, key)
	}
}

// requireSignIn loads the permission tree of a signed in session.
func (s *session) requireSignIn(ctx context.Context) (models.Session, error) {
	current := s.tokens.Load(ctx)
	if !current.IsAuthenticated() {
		return models.Session{}, errNotSignedIn
	}
	if err := s.resolver.Start(ctx); err != nil {
		if errors.Is(err, apiclient.ErrUnauthenticated) {
			return models.Session{}, errNotSignedIn
		}
		return models.Session{}, fmt.Errorf("failed to load permissions: %w", err)
	}
	return current, nil
}

// Close releases store connections and stops following the session.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

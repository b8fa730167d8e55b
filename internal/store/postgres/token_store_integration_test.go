//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*TokenStore, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString:  fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		AutoMigrate: true,
	})
	require.NoError(t, err)

	s, err := NewTokenStore(pool, store.DefaultStorageKey)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return s, cleanup
}

func TestIntegration_TokenStore(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	t.Run("load before save is anonymous", func(t *testing.T) {
		assert.True(t, s.Load(ctx).IsEmpty())
	})

	t.Run("save and load", func(t *testing.T) {
		session := models.Session{AccessToken: "a", RefreshToken: "r", User: &models.User{ID: "u-1"}}
		require.NoError(t, s.Save(ctx, session))
		assert.Equal(t, session, s.Load(ctx))
	})

	t.Run("save overwrites", func(t *testing.T) {
		session := models.Session{AccessToken: "a2", RefreshToken: "r2", User: &models.User{ID: "u-1"}}
		require.NoError(t, s.Save(ctx, session))
		assert.Equal(t, session, s.Load(ctx))
	})

	t.Run("keys are isolated", func(t *testing.T) {
		other, err := NewTokenStore(s.pool, "staging.auth")
		require.NoError(t, err)
		assert.True(t, other.Load(ctx).IsEmpty())
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx))
		assert.True(t, s.Load(ctx).IsEmpty())
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, s.pool))
	})
}

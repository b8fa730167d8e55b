package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenStore(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "nested", "joynix")

	s, err := NewTokenStore(dir, store.DefaultStorageKey)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "joynix.auth.json"), s.Path())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestNewTokenStore_InvalidKey(t *testing.T) {
	_, err := NewTokenStore(t.TempDir(), "../escape")
	require.ErrorIs(t, err, store.ErrInvalidStorageKey)
}

func TestTokenStore_LoadMissing(t *testing.T) {
	s, err := NewTokenStore(t.TempDir(), store.DefaultStorageKey)
	require.NoError(t, err)

	assert.True(t, s.Load(context.Background()).IsEmpty())
}

func TestTokenStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s, err := NewTokenStore(t.TempDir(), store.DefaultStorageKey)
	require.NoError(t, err)

	session := models.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		User:         &models.User{ID: "u-1", Username: "ops"},
	}
	require.NoError(t, s.Save(ctx, session))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	assert.Equal(t, session, s.Load(ctx))

	// a second store on the same file sees the session, as another process would
	other, err := NewTokenStore(filepath.Dir(s.Path()), store.DefaultStorageKey)
	require.NoError(t, err)
	assert.Equal(t, session, other.Load(ctx))
}

func TestTokenStore_Clear(t *testing.T) {
	ctx := context.Background()
	s, err := NewTokenStore(t.TempDir(), store.DefaultStorageKey)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, models.Session{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, s.Clear(ctx))

	loaded := s.Load(ctx)
	assert.Empty(t, loaded.AccessToken)
	assert.Empty(t, loaded.RefreshToken)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"accessToken":null,"refreshToken":null,"user":null}`, string(data))
}

func TestTokenStore_CorruptFileIsAnonymous(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{{{"},
		{name: "wrong shape", content: `["accessToken"]`},
		{name: "half session", content: `{"accessToken":"a","refreshToken":null}`},
		{name: "empty file", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewTokenStore(t.TempDir(), store.DefaultStorageKey)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(s.Path(), []byte(tt.content), 0600))

			assert.True(t, s.Load(context.Background()).IsEmpty())
		})
	}
}

func TestTokenStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s, err := NewTokenStore(t.TempDir(), store.DefaultStorageKey)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := string(rune('a' + i))
			assert.NoError(t, s.Save(ctx, models.Session{AccessToken: token, RefreshToken: token}))
		}()
	}
	wg.Wait()

	loaded := s.Load(ctx)
	require.True(t, loaded.IsAuthenticated())
	assert.Equal(t, loaded.AccessToken, loaded.RefreshToken)
}

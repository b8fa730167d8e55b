package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/rs/zerolog/log"
)

// TokenStore persists the session as a JSON document on the local filesystem.
type TokenStore struct {
	path string

	// serializes writers within the process, rename keeps readers consistent across processes
	mu sync.Mutex
}

var _ store.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a file backed token store.
// If baseDir is empty, uses ~/.joynix/
func NewTokenStore(baseDir, key string) (*TokenStore, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}

	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".joynix")
	}

	// Create directory with 0700 permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &TokenStore{path: filepath.Join(baseDir, key+".json")}

	log.Debug().Str("path", s.path).Msg("file token store initialized")

	return s, nil
}

// Path returns the location of the session file.
func (s *TokenStore) Path() string {
	return s.path
}

func (s *TokenStore) Load(ctx context.Context) models.Session {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", s.path).Msg("failed to read session, treating as signed out")
		}
		return models.Session{}
	}

	session, err := store.DecodeSession(data)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("corrupt session file, treating as signed out")
		return models.Session{}
	}

	return session
}

func (s *TokenStore) Save(ctx context.Context, session models.Session) error {
	data, err := store.EncodeSession(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to temp file first
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save session: %w", err)
	}

	log.Debug().Str("path", s.path).Bool("authenticated", session.Normalize().IsAuthenticated()).Msg("session saved")

	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return s.Save(ctx, models.Session{})
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/joynix/joynix-admin/internal/models"
)

// DefaultStorageKey is the key the console session is persisted under.
const DefaultStorageKey = "joynix.auth"

// ErrInvalidStorageKey is returned when a backend is configured with an unusable key.
var ErrInvalidStorageKey = errors.New("invalid storage key")

var storageKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// TokenStore persists the single console session.
//
// Implementations must be safe for concurrent use. Load never fails, a missing,
// unreadable or corrupt value is reported as the anonymous session.
type TokenStore interface {
	// Load returns the persisted session or an empty session.
	Load(ctx context.Context) models.Session

	// Save overwrites the persisted session.
	Save(ctx context.Context, session models.Session) error

	// Clear persists the anonymous session.
	Clear(ctx context.Context) error
}

// ValidateKey checks that a storage key can be used as a file name, row key or redis key.
func ValidateKey(key string) error {
	if !storageKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidStorageKey, key)
	}
	return nil
}

// EncodeSession serializes a session in the persisted layout.
func EncodeSession(session models.Session) ([]byte, error) {
	data, err := json.Marshal(session.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

// DecodeSession parses a persisted session, half populated records decode as anonymous.
func DecodeSession(data []byte) (models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return models.Session{}, fmt.Errorf("failed to parse session: %w", err)
	}
	return session.Normalize(), nil
}

// ErrStoreUnavailable is returned by networked backends when the server can't be reached.
var ErrStoreUnavailable = errors.New("token store unavailable")

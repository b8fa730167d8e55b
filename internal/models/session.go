package models

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
)

// ErrNoAccessToken is returned when token claims are requested from an anonymous session.
var ErrNoAccessToken = errors.New("session has no access token")

// Session is the authenticated identity of the operator using the console.
//
// A session is either fully authenticated (both tokens set) or fully anonymous.
// Stores call Normalize before persisting and after loading so a half-populated
// record never escapes.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// sessionJSON is the persisted layout, absent values are written as null.
type sessionJSON struct {
	AccessToken  *string `json:"accessToken"`
	RefreshToken *string `json:"refreshToken"`
	User         *User   `json:"user"`
}

// IsAuthenticated returns true when both the access and refresh token are present.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// IsEmpty returns true if nothing at all is set.
func (s Session) IsEmpty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil
}

// Normalize collapses a partially populated session to the anonymous session.
func (s Session) Normalize() Session {
	if !s.IsAuthenticated() {
		return Session{}
	}
	return s
}

// UserID returns the id of the signed in user, or empty if unknown.
func (s Session) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// WithTokens returns a copy of the session with a rotated token pair, the user is preserved.
func (s Session) WithTokens(accessToken, refreshToken string) Session {
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// AccessTokenExpiry decodes the exp claim of the access token without verifying the signature.
// The zero time is returned when the token carries no expiry.
func (s Session) AccessTokenExpiry() (time.Time, error) {
	if s.AccessToken == "" {
		return time.Time{}, ErrNoAccessToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}, err
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}

	return claims.ExpiresAt.Time, nil
}

// Fingerprint returns a short, non reversible identifier for the current token pair.
// It is safe to log and display.
func (s Session) Fingerprint() string {
	if !s.IsAuthenticated() {
		return ""
	}
	hash := sha256.Sum256([]byte(s.AccessToken + "." + s.RefreshToken))
	return base58.Encode(hash[:])[:12]
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{User: s.User}
	if s.AccessToken != "" {
		out.AccessToken = &s.AccessToken
	}
	if s.RefreshToken != "" {
		out.RefreshToken = &s.RefreshToken
	}
	return json.Marshal(out)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var in sessionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*s = Session{User: in.User}
	if in.AccessToken != nil {
		s.AccessToken = *in.AccessToken
	}
	if in.RefreshToken != nil {
		s.RefreshToken = *in.RefreshToken
	}
	return nil
}

package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/joynix/joynix-admin/internal/apiclient"
	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStartPath  = "auth/otp-signin"
	DefaultVerifyPath = "auth/verify-otp"
)

var (
	ErrMissingIdentifier = errors.New("email or phone number is required")
	ErrInvalidCode       = errors.New("verification code must be 4 to 8 digits")
	ErrNoChallenge       = errors.New("no sign in in progress")
	ErrIncompleteSession = errors.New("verification response is missing tokens")
)

var codePattern = regexp.MustCompile(`^[0-9]{4,8}$`)

// API is the part of the API client the sign in flow needs.
type API interface {
	Request(ctx context.Context, path string, opts apiclient.RequestOptions) (json.RawMessage, error)
	SaveSession(ctx context.Context, pair apiclient.TokenPair, user *models.User) (models.Session, error)
}

// Challenge is a pending one time password sign in.
type Challenge struct {
	SessionID      string `json:"session_id"`
	ExpiresIn      int    `json:"expires_in"`
	DeliveryMethod string `json:"delivery_method"`
	ContactMasked  string `json:"contact_masked"`
}

// TTL returns how long the code stays valid, five minutes when unknown.
func (c Challenge) TTL() time.Duration {
	if c.ExpiresIn <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ExpiresIn) * time.Second
}

// Verification is the result of a successful code check.
type Verification struct {
	apiclient.TokenPair
	AuthMethod string       `json:"auth_method"`
	IsNewUser  bool         `json:"is_new_user"`
	User       *models.User `json:"user"`
}

type startRequest struct {
	Identifier string `json:"identifier"`
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
	OTP       string `json:"otp"`
}

// OTP signs operators in with a one time password.
type OTP struct {
	api        API
	tokens     store.TokenStore
	startPath  string
	verifyPath string
}

// NewOTP creates the flow, tokens is cleared on sign out.
func NewOTP(api API, tokens store.TokenStore) *OTP {
	return &OTP{
		api:        api,
		tokens:     tokens,
		startPath:  DefaultStartPath,
		verifyPath: DefaultVerifyPath,
	}
}

// Start asks the API to deliver a code to identifier.
func (o *OTP) Start(ctx context.Context, identifier string) (*Challenge, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrMissingIdentifier
	}

	raw, err := o.api.Request(ctx, o.startPath, apiclient.RequestOptions{
		Method:    http.MethodPost,
		Body:      startRequest{Identifier: identifier},
		Anonymous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start sign in: %w", err)
	}

	var challenge Challenge
	if _, err := apiclient.Unwrap(raw, &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode sign in challenge: %w", err)
	}
	if challenge.SessionID == "" {
		return nil, fmt.Errorf("failed to start sign in: %w", ErrNoChallenge)
	}

	log.Ctx(ctx).Info().
		Str("delivery", challenge.DeliveryMethod).
		Str("contact", challenge.ContactMasked).
		Msg("verification code sent")

	return &challenge, nil
}

// Verify checks code against the challenge and stores the issued session.
func (o *OTP) Verify(ctx context.Context, sessionID, code string) (*Verification, error) {
	if sessionID == "" {
		return nil, ErrNoChallenge
	}
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return nil, ErrInvalidCode
	}

	raw, err := o.api.Request(ctx, o.verifyPath, apiclient.RequestOptions{
		Method:    http.MethodPost,
		Body:      verifyRequest{SessionID: sessionID, OTP: code},
		Anonymous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}

	var v Verification
	if _, err := apiclient.Unwrap(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode verification: %w", err)
	}
	if v.AccessToken == "" || v.RefreshToken == "" || v.User == nil || v.User.ID == "" {
		return nil, ErrIncompleteSession
	}

	session, err := o.api.SaveSession(ctx, v.TokenPair, v.User)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("user_id", session.UserID()).
		Str("session", session.Fingerprint()).
		Bool("new_user", v.IsNewUser).
		Msg("signed in")

	return &v, nil
}

// SignOut forgets the stored session.
func (o *OTP) SignOut(ctx context.Context) error {
	if err := o.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	log.Ctx(ctx).Info().Msg("signed out")
	return nil
}

// Session returns the stored session.
func (o *OTP) Session(ctx context.Context) models.Session {
	return o.tokens.Load(ctx)
}

package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/joynix/joynix-admin/internal/models"
	"github.com/rs/zerolog/log"
)

const refreshKey = "refresh"

var (
	errNoRefreshCredentials = errors.New("no refresh token or user id in session")
	errInvalidRefresh       = errors.New("refresh response is missing tokens")
)

// TokenPair is the token material returned by verify-otp and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

// refreshAfterUnauthorized returns an access token to retry with after the API
// rejected sentToken.
func (c *Client) refreshAfterUnauthorized(ctx context.Context, sentToken string) (string, error) {
	session := c.store.Load(ctx)

	// another caller already rotated the pair, retry with theirs
	if session.IsAuthenticated() && session.AccessToken != sentToken {
		log.Ctx(ctx).Debug().Msg("access token already rotated, retrying without refresh")
		return session.AccessToken, nil
	}

	if session.RefreshToken == "" || session.UserID() == "" {
		// a concurrent failed refresh has already cleared and reported the session
		if sentToken != "" && session.IsEmpty() {
			return "", fmt.Errorf("%w: session was cleared", ErrUnauthenticated)
		}
		c.expire(ctx, errNoRefreshCredentials)
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, errNoRefreshCredentials)
	}

	// callers rejected with the same token share one refresh
	ch := c.refreshes.DoChan(refreshKey+":"+sentToken, func() (any, error) {
		// detached so one caller giving up doesn't fail the refresh for the others
		return c.refresh(context.WithoutCancel(ctx), sentToken)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.TokenRefreshShared.Add(ctx, 1)
		}
		if res.Err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnauthenticated, res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh exchanges the stored refresh token for a new pair unless the pair has
// already moved past rejected. It runs at most once at a time per rejected token,
// a failure clears the session and fires the hook once.
func (c *Client) refresh(ctx context.Context, rejected string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	session := c.store.Load(ctx)

	// a refresh that finished after the caller's own check already rotated it
	if session.IsAuthenticated() && session.AccessToken != rejected {
		log.Ctx(ctx).Debug().Msg("access token rotated while waiting, skipping refresh")
		return session.AccessToken, nil
	}

	c.metrics.TokenRefreshTotal.Add(ctx, 1)

	if session.RefreshToken == "" || session.UserID() == "" {
		c.expire(ctx, errNoRefreshCredentials)
		return "", errNoRefreshCredentials
	}

	body, err := encodeBody(refreshRequest{RefreshToken: session.RefreshToken, UserID: session.UserID()})
	if err != nil {
		return "", err
	}

	// static headers only, the expired access token is not sent
	resp, err := c.send(ctx, http.MethodPost, c.cfg.RefreshPath, body, nil, "")
	if err != nil {
		c.refreshFailed(ctx, err)
		return "", err
	}

	raw, err := readResponse(resp)
	if err != nil {
		c.refreshFailed(ctx, err)
		return "", err
	}

	var pair TokenPair
	if _, err := Unwrap(raw, &pair); err != nil {
		c.refreshFailed(ctx, err)
		return "", err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		c.refreshFailed(ctx, errInvalidRefresh)
		return "", errInvalidRefresh
	}

	updated := session.WithTokens(pair.AccessToken, pair.RefreshToken)
	if err := c.store.Save(ctx, updated); err != nil {
		c.refreshFailed(ctx, err)
		return "", fmt.Errorf("failed to store refreshed session: %w", err)
	}

	log.Ctx(ctx).Debug().
		Str("user_id", updated.UserID()).
		Str("session", updated.Fingerprint()).
		Msg("session refreshed")

	return updated.AccessToken, nil
}

func (c *Client) refreshFailed(ctx context.Context, err error) {
	c.metrics.TokenRefreshFailuresTotal.Add(ctx, 1)
	c.expire(ctx, fmt.Errorf("token refresh failed: %w", err))
}

// expire clears the stored session and reports it through the hook.
func (c *Client) expire(ctx context.Context, cause error) {
	c.metrics.SessionExpiredTotal.Add(ctx, 1)

	if err := c.store.Clear(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to clear session")
	}

	c.cfg.OnSessionExpired(ctx, cause)
}

// SaveSession stores a freshly issued token pair for user.
func (c *Client) SaveSession(ctx context.Context, pair TokenPair, user *models.User) (models.Session, error) {
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return models.Session{}, errInvalidRefresh
	}

	session := models.Session{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: user}
	if err := c.store.Save(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

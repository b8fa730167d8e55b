package apiclient

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// storeTokenSource exposes the stored session as an oauth2.TokenSource.
type storeTokenSource struct {
	ctx    context.Context
	client *Client
}

// TokenSource returns the current session as oauth2 tokens, so other HTTP
// tooling can reuse it with oauth2.NewClient. It never refreshes, the API client
// does that on 401.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &storeTokenSource{ctx: ctx, client: c}
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	session := s.client.store.Load(s.ctx)
	if !session.IsAuthenticated() {
		return nil, fmt.Errorf("%w: no session stored", ErrUnauthenticated)
	}

	token := &oauth2.Token{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "Bearer",
	}

	// opaque tokens have no readable expiry, leave it zero
	if expiry, err := session.AccessTokenExpiry(); err == nil {
		token.Expiry = expiry
	}

	return token, nil
}

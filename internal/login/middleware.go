package login

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/rs/zerolog/log"
)

type contextKey string

const sessionContextKey contextKey = "session"

const challengeCookie = "otp_challenge"

// RequireAuth is a middleware that only lets requests through while a session is
// stored. Other requests are redirected to redirectURL with the original path in
// the next query parameter. The session is added to the request context.
func RequireAuth(tokens store.TokenStore, redirectURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := tokens.Load(r.Context())
			if !session.IsAuthenticated() {
				log.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("no session, redirecting to sign in")
				http.Redirect(w, r, SignInURL(redirectURL, r.URL.RequestURI()), http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignInURL appends next to the sign in page unless it points back to it.
func SignInURL(signIn, next string) string {
	if next == "" || next == "/" || next == signIn {
		return signIn
	}
	return signIn + "?next=" + url.QueryEscape(next)
}

// SafeNext returns next when it is a local path, otherwise fallback.
func SafeNext(next, fallback string) string {
	if next == "" || next[0] != '/' || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return next
}

// SessionFromContext extracts the session added by RequireAuth.
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(models.Session)
	return session, ok
}

// SaveChallenge remembers the pending challenge until its code expires.
func SaveChallenge(w http.ResponseWriter, c *Challenge, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     challengeCookie,
		Value:    url.QueryEscape(c.SessionID),
		Path:     "/signin",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.TTL().Seconds()),
	})
}

// ChallengeFromRequest returns the pending challenge id.
func ChallengeFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(challengeCookie)
	if err != nil || cookie.Value == "" {
		return "", ErrNoChallenge
	}
	id, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", ErrNoChallenge
	}
	return id, nil
}

// ClearChallenge drops the pending challenge cookie.
func ClearChallenge(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     challengeCookie,
		Value:    "",
		Path:     "/signin",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

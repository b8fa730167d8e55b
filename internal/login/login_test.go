package login

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joynix/joynix-admin/internal/apiclient"
	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFlow starts a fake auth API and returns a flow backed by a memory store.
func newTestFlow(t *testing.T, handler http.HandlerFunc) (*OTP, *memory.TokenStore) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := memory.NewTokenStore(models.Session{})
	client, err := apiclient.New(apiclient.Config{BaseURL: srv.URL + "/api/v1/", IdentityValue: "console"}, tokens)
	require.NoError(t, err)

	return NewOTP(client, tokens), tokens
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestOTP_Start(t *testing.T) {
	flow, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/otp-signin", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "console", r.Header.Get("X-Admin-Key"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ops@joynix.test", body["identifier"])

		writeJSON(t, w, http.StatusOK, map[string]any{
			"status":  200,
			"success": true,
			"data": map[string]any{
				"session_id":      "otp-1",
				"expires_in":      120,
				"delivery_method": "email",
				"contact_masked":  "o**@joynix.test",
			},
		})
	})

	challenge, err := flow.Start(context.Background(), "  ops@joynix.test ")
	require.NoError(t, err)

	assert.Equal(t, "otp-1", challenge.SessionID)
	assert.Equal(t, "email", challenge.DeliveryMethod)
	assert.Equal(t, "o**@joynix.test", challenge.ContactMasked)
	assert.Equal(t, 2*time.Minute, challenge.TTL())
}

func TestOTP_StartValidation(t *testing.T) {
	flow, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := flow.Start(context.Background(), " ")
	require.ErrorIs(t, err, ErrMissingIdentifier)
}

func TestOTP_StartRejected(t *testing.T) {
	flow, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{"success": false, "message": "account not found"})
	})

	_, err := flow.Start(context.Background(), "nobody")

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "account not found", apiErr.Message)
}

func TestOTP_StartWithoutSessionID(t *testing.T) {
	flow, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{}})
	})

	_, err := flow.Start(context.Background(), "ops")
	require.ErrorIs(t, err, ErrNoChallenge)
}

func TestOTP_Verify(t *testing.T) {
	flow, tokens := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/verify-otp", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"session_id": "otp-1", "otp": "123456"}, body)

		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"id_token":      "id-1",
				"token_type":    "Bearer",
				"expires_in":    900,
				"auth_method":   "otp",
				"is_new_user":   false,
				"user": map[string]any{
					"id":           "u-1",
					"username":     "ops",
					"display_name": "Ops Team",
					"email":        "ops@joynix.test",
				},
			},
		})
	})

	v, err := flow.Verify(context.Background(), "otp-1", " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, "otp", v.AuthMethod)
	assert.Equal(t, 900, v.ExpiresIn)

	session := tokens.Load(context.Background())
	assert.True(t, session.IsAuthenticated())
	assert.Equal(t, "access-1", session.AccessToken)
	assert.Equal(t, "refresh-1", session.RefreshToken)
	assert.Equal(t, "u-1", session.UserID())
	assert.Equal(t, "Ops Team", session.User.Name())
	assert.Equal(t, session, flow.Session(context.Background()))
}

func TestOTP_VerifyIncomplete(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{name: "no refresh token", data: map[string]any{"access_token": "a", "user": map[string]any{"id": "u-1"}}},
		{name: "no user", data: map[string]any{"access_token": "a", "refresh_token": "r"}},
		{name: "no user id", data: map[string]any{"access_token": "a", "refresh_token": "r", "user": map[string]any{"username": "ops"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow, tokens := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": tt.data})
			})

			_, err := flow.Verify(context.Background(), "otp-1", "1234")
			require.ErrorIs(t, err, ErrIncompleteSession)

			// never half a session
			assert.True(t, tokens.Load(context.Background()).IsEmpty())
		})
	}
}

func TestOTP_VerifyValidation(t *testing.T) {
	flow, _ := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ctx := context.Background()

	_, err := flow.Verify(ctx, "", "1234")
	require.ErrorIs(t, err, ErrNoChallenge)

	for _, code := range []string{"", "12", "12a456", "123456789"} {
		_, err = flow.Verify(ctx, "otp-1", code)
		require.ErrorIs(t, err, ErrInvalidCode, code)
	}
}

func TestOTP_VerifyWrongCode(t *testing.T) {
	flow, tokens := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {
		// a wrong code is rejected with 401, which must not start a token refresh
		assert.NotEqual(t, "/api/v1/auth/refresh", r.URL.Path)
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid code"})
	})

	_, err := flow.Verify(context.Background(), "otp-1", "000000")

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid code", apiErr.Message)
	assert.False(t, tokens.Load(context.Background()).IsAuthenticated())
}

func TestOTP_SignOut(t *testing.T) {
	flow, tokens := newTestFlow(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()

	require.NoError(t, tokens.Save(ctx, models.Session{AccessToken: "a", RefreshToken: "r", User: &models.User{ID: "u-1"}}))
	require.NoError(t, flow.SignOut(ctx))

	session := tokens.Load(ctx)
	assert.Empty(t, session.AccessToken)
	assert.Empty(t, session.RefreshToken)
}

func TestChallenge_DefaultTTL(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Challenge{}.TTL())
}

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joynix/joynix-admin/internal/logger"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/joynix/joynix-admin/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdentityHeader carries the admin identity on every call.
	DefaultIdentityHeader = "X-Admin-Key"

	// DefaultRefreshPath is exchanged for a new token pair.
	DefaultRefreshPath = "auth/refresh"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 16 << 20
)

// SessionExpiredFunc is called after the session has been cleared because it
// could not be refreshed. cause describes what failed.
type SessionExpiredFunc func(ctx context.Context, cause error)

// Config holds client configuration
type Config struct {
	// BaseURL is the API root, request paths are relative to it.
	BaseURL string

	// IdentityHeader and IdentityValue are sent on every request, including refresh.
	IdentityHeader string
	IdentityValue  string

	// Timeout bounds each HTTP call, default 30s.
	Timeout time.Duration

	UserAgent   string
	RefreshPath string

	// CacheResponses enables an HTTP cache for GET responses honouring Cache-Control.
	// CacheDir persists it on disk, otherwise it lives in memory.
	CacheResponses bool
	CacheDir       string

	// OnSessionExpired defaults to DefaultSessionExpired.
	OnSessionExpired SessionExpiredFunc

	// Transport overrides the base round tripper, used in tests.
	Transport http.RoundTripper
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.IdentityHeader == "" {
		c.IdentityHeader = DefaultIdentityHeader
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "joynix-admin"
	}
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	if c.OnSessionExpired == nil {
		c.OnSessionExpired = DefaultSessionExpired
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("api base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api base url scheme %q", u.Scheme)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// DefaultSessionExpired tells the operator to sign in again.
func DefaultSessionExpired(ctx context.Context, cause error) {
	log.Ctx(ctx).Warn().Err(cause).Msg("session expired, sign in again with: joynix-admin login")
}

// RequestOptions describes a single API call.
type RequestOptions struct {
	Method string
	Body   any
	Header http.Header

	// Anonymous skips bearer injection and the refresh flow.
	Anonymous bool
}

// Client calls the Joynix API with the stored session, refreshing it when the
// API rejects the access token.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	store      store.TokenStore
	metrics    *telemetry.Metrics

	// refreshes is shared by every request on this client so that concurrent
	// 401s result in a single refresh call.
	refreshes singleflight.Group
}

// New creates a client backed by tokens.
func New(cfg Config, tokens store.TokenStore) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("token store is required")
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if cfg.CacheResponses {
		transport = newCachingTransport(transport, cfg.CacheDir)
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: logger.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
		store:   tokens,
		metrics: telemetry.GetMetrics(),
	}, nil
}

// Store returns the token store backing the client.
func (c *Client) Store() store.TokenStore {
	return c.store
}

// Request performs an API call and returns the raw JSON body.
//
// Authenticated calls that are rejected with 401 are retried once after the
// session has been refreshed. Errors are transport errors returned unchanged,
// ErrUnauthenticated, *APIError, or a JSON syntax error for malformed bodies.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}

	requireAuth := !opts.Anonymous

	var accessToken string
	if requireAuth {
		accessToken = c.store.Load(ctx).AccessToken
	}

	resp, err := c.send(ctx, method, path, body, opts.Header, accessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && requireAuth {
		discard(resp)

		refreshed, err := c.refreshAfterUnauthorized(ctx, accessToken)
		if err != nil {
			return nil, err
		}

		c.metrics.APIRetriesTotal.Add(ctx, 1)

		resp, err = c.send(ctx, method, path, body, opts.Header, refreshed)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			cause := errors.New("request rejected after token refresh")
			c.expire(ctx, cause)
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, cause)
		}
	}

	return readResponse(resp)
}

// Get performs a GET and decodes the body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post JSON encodes body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Put JSON encodes body and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

// Delete performs a DELETE and decodes the body into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.Request(ctx, path, RequestOptions{Method: method, Body: body})
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// send issues one HTTP call with the static headers and, when set, the bearer token.
func (c *Client) send(ctx context.Context, method, path string, body []byte, header http.Header, accessToken string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	c.staticHeaders(req.Header)
	for name, values := range header {
		req.Header[http.CanonicalHeaderKey(name)] = values
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)

	status, cached := 0, false
	if err == nil {
		status, cached = resp.StatusCode, IsCachedResponse(resp)
	}
	if cached {
		log.Ctx(ctx).Debug().Str("method", method).Str("path", path).Msg("api response served from cache")
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("status", status),
		attribute.Bool("cached", cached),
	)
	c.metrics.APIRequestsTotal.Add(ctx, 1, attrs)
	c.metrics.APIRequestDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	return resp, err
}

func (c *Client) staticHeaders(h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("User-Agent", c.cfg.UserAgent)
	h.Set("X-Request-Id", newRequestID())
	if c.cfg.IdentityValue != "" {
		h.Set(c.cfg.IdentityHeader, c.cfg.IdentityValue)
	}
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, nil
}

// readResponse turns a response into the parsed body or an *APIError.
func readResponse(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// errorMessage extracts the message member, unparseable bodies get the default.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		return DefaultErrorMessage
	}
	return body.Message
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
}

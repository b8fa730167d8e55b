package logger

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Transport logs outbound API calls. Headers are never logged, they carry bearer tokens.
type Transport struct {
	next http.RoundTripper
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps next, a nil next uses http.DefaultTransport.
func NewTransport(next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{next: next}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()

	resp, err := t.next.RoundTrip(req)

	logger := zerolog.Ctx(req.Context())
	if err != nil {
		logger.Debug().
			Err(err).
			Str("method", req.Method).
			Str("url", req.URL.Redacted()).
			Dur("duration", time.Since(started)).
			Msg("api call failed")
		return resp, err
	}

	logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("api call")

	return resp, nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Requests is middleware logging each console request with its duration.
// The request scoped logger is attached to the context for handlers to use.
func Requests(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			ctx := logger.With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger().WithContext(r.Context())

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			event := zerolog.Ctx(ctx).Info()
			if rec.status >= http.StatusInternalServerError {
				event = zerolog.Ctx(ctx).Error()
			}
			event.Int("status", rec.status).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}

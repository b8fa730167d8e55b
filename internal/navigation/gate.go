package navigation

import (
	"context"
	"net/http"

	"github.com/joynix/joynix-admin/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultLanding is where denied routes are sent.
const DefaultLanding = "/"

// Decision is the outcome of a route check.
type Decision int

const (
	Loading Decision = iota
	Allowed
	Denied
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decide checks a route guarded by resource. Loading wins over everything else,
// an empty resource is always allowed.
func Decide(access Access, resource string) Decision {
	switch {
	case access.IsLoading():
		return Loading
	case resource == "":
		return Allowed
	case access.CanAccess(resource):
		return Allowed
	default:
		return Denied
	}
}

// Gate guards HTTP routes with an authorization check.
type Gate struct {
	Access Access

	// Landing defaults to DefaultLanding.
	Landing string

	// Placeholder is served while permissions are loading, defaults to a page
	// that reloads itself.
	Placeholder http.Handler
}

// Require guards next with a fixed resource path.
func (g *Gate) Require(resource string) func(http.Handler) http.Handler {
	return g.RequireFunc(func(*http.Request) string { return resource })
}

// RequireFunc guards next with the resource path resolved from the request.
func (g *Gate) RequireFunc(resourceFn func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resource := resourceFn(r)
			decision := Decide(g.Access, resource)
			record(r.Context(), decision)

			switch decision {
			case Loading:
				g.placeholder().ServeHTTP(w, r)
			case Allowed:
				next.ServeHTTP(w, r)
			default:
				log.Ctx(r.Context()).Debug().
					Str("path", r.URL.Path).
					Str("resource", resource).
					Msg("route denied, redirecting to landing")
				http.Redirect(w, r, g.landing(), http.StatusFound)
			}
		})
	}
}

func (g *Gate) landing() string {
	if g.Landing == "" {
		return DefaultLanding
	}
	return g.Landing
}

func (g *Gate) placeholder() http.Handler {
	if g.Placeholder != nil {
		return g.Placeholder
	}
	return http.HandlerFunc(LoadingPlaceholder)
}

// LoadingPlaceholder asks the browser to come back shortly.
func LoadingPlaceholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", "1")
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!doctype html><title>Loading</title><p class="loading">Loading permissions…</p>`))
}

func record(ctx context.Context, d Decision) {
	telemetry.GetMetrics().RouteDecisionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", d.String())))
}

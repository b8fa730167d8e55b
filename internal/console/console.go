package console

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"filippo.io/csrf"
	"github.com/joynix/joynix-admin/internal/assets"
	"github.com/joynix/joynix-admin/internal/authz"
	httpmiddleware "github.com/joynix/joynix-admin/internal/http"
	"github.com/joynix/joynix-admin/internal/logger"
	"github.com/joynix/joynix-admin/internal/login"
	"github.com/joynix/joynix-admin/internal/navigation"
	"github.com/joynix/joynix-admin/internal/resources"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templates embed.FS

const (
	signInPath = "/signin"
	verifyPath = "/signin/verify"
)

// Config holds console configuration
type Config struct {
	// SecureCookies marks cookies Secure, set when served over TLS.
	SecureCookies bool
	// TrustProxy honours X-Forwarded-For when logging client addresses.
	TrustProxy bool
	// CORSOrigins may call the JSON endpoints from a browser.
	CORSOrigins []string
	// Landing is where denied routes redirect, defaults to the dashboard.
	Landing string
}

// Deps are the services the console renders.
type Deps struct {
	OTP        *login.OTP
	Tokens     store.TokenStore
	Resolver   *authz.Resolver
	Resources  *resources.Service
	Navigation []navigation.Entry
	Assets     *assets.Pipeline
}

// Console serves the admin pages for the stored session.
type Console struct {
	cfg       Config
	otp       *login.OTP
	tokens    store.TokenStore
	resolver  *authz.Resolver
	resources *resources.Service
	nav       []navigation.Entry
	assets    *assets.Pipeline
	tmpl      *template.Template
	gate      *navigation.Gate
}

// New builds the console, the asset pipeline is built if it hasn't been.
func New(cfg Config, deps Deps) (*Console, error) {
	if deps.OTP == nil || deps.Tokens == nil || deps.Resolver == nil || deps.Resources == nil {
		return nil, errors.New("console requires sign in, token store, resolver and resources")
	}
	if cfg.Landing == "" {
		cfg.Landing = navigation.DefaultLanding
	}
	if deps.Navigation == nil {
		deps.Navigation = navigation.Default()
	}
	if deps.Assets == nil {
		deps.Assets = assets.New(assets.DefaultConfig())
	}
	if _, err := deps.Assets.Asset("console.js"); err != nil {
		if err := deps.Assets.Build(); err != nil {
			return nil, fmt.Errorf("failed to build console assets: %w", err)
		}
	}

	tmpl, err := deps.Assets.NewTemplates(templates, "templates/*.html", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse console templates: %w", err)
	}

	return &Console{
		cfg:       cfg,
		otp:       deps.OTP,
		tokens:    deps.Tokens,
		resolver:  deps.Resolver,
		resources: deps.Resources,
		nav:       deps.Navigation,
		assets:    deps.Assets,
		tmpl:      tmpl,
		gate: &navigation.Gate{
			Access:  deps.Resolver,
			Landing: cfg.Landing,
		},
	}, nil
}

// Handler returns the console with its middleware stack.
func (c *Console) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", c.health)
	mux.Handle("GET /assets/", c.assets.Handler())

	mux.HandleFunc("GET "+signInPath, c.signInPage)
	mux.HandleFunc("POST "+signInPath, c.startSignIn)
	mux.HandleFunc("GET "+verifyPath, c.verifyPage)
	mux.HandleFunc("POST "+verifyPath, c.verifySignIn)
	mux.HandleFunc("POST /signout", c.signOut)

	requireAuth := login.RequireAuth(c.tokens, signInPath)
	gated := func(h http.HandlerFunc) http.Handler {
		return requireAuth(c.knownResource(c.gate.RequireFunc(c.permissionOf)(h)))
	}

	mux.Handle("GET /{$}", requireAuth(http.HandlerFunc(c.dashboard)))
	mux.Handle("GET /r/{resource}", gated(c.listResource))
	mux.Handle("POST /r/{resource}/{id}/delete", gated(c.deleteResource))

	mux.Handle("GET /api/navigation", c.requireAPIAuth(http.HandlerFunc(c.navigationJSON)))
	mux.Handle("GET /api/permissions", c.requireAPIAuth(http.HandlerFunc(c.permissionsJSON)))
	mux.Handle("POST /api/permissions/refresh", c.requireAPIAuth(http.HandlerFunc(c.refreshPermissions)))

	// every route acts with the stored session, so all of them need cross origin protection
	protection := csrf.New()
	for _, origin := range c.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid cors origin %q: %w", origin, err)
		}
	}

	api := withCORS(c.cfg.CORSOrigins, mux)
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			api.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	return httpmiddleware.Chain(protection.Handler(routed),
		logger.Requests(log.Logger),
		httpmiddleware.ClientIPMiddleware(c.cfg.TrustProxy),
		httpmiddleware.SecurityHeaders,
		gzip,
	), nil
}

// isAPIRoute returns true if the path is a JSON route that gets CORS
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// withCORS adds CORS support to the JSON endpoints.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}

func gzip(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

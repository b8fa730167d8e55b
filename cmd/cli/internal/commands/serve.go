package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joynix/joynix-admin/internal/console"
	"github.com/joynix/joynix-admin/internal/navigation"
	"github.com/joynix/joynix-admin/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// ServeCmd runs the local web console.
type ServeCmd struct {
	Listen string `help:"HTTP server listen address" default:"127.0.0.1:8080" env:"JOYNIX_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"JOYNIX_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"JOYNIX_TLS_KEY"`

	CORSOrigins []string `help:"origins allowed to call the JSON endpoints" env:"JOYNIX_CORS_ORIGINS"`
	TrustProxy  bool     `help:"trust X-Forwarded-For when logging client addresses" default:"false" env:"JOYNIX_TRUST_PROXY"`
	Navigation  string   `help:"navigation YAML, defaults to the built in tree" type:"existingfile" env:"JOYNIX_NAVIGATION"`

	PermissionsInterval time.Duration `help:"refetch permissions on this interval, zero disables" default:"5m" env:"JOYNIX_PERMISSIONS_INTERVAL"`

	Tracing     bool    `help:"enable tracing" default:"false" env:"JOYNIX_TRACING"`
	SampleRatio float64 `help:"trace sample ratio" default:"1.0" env:"JOYNIX_TRACE_SAMPLE_RATIO"`
}

func (c *ServeCmd) Validate() error {
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS needs both --cert and --key")
	}
	if c.PermissionsInterval < 0 {
		return errors.New("permissions interval must not be negative")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return errors.New("sample ratio must be between 0 and 1")
	}
	return nil
}

func (c *ServeCmd) telemetryConfig(globals *Globals) telemetry.Config {
	return telemetry.Config{
		ServiceName:  telemetry.DefaultServiceName,
		Version:      globals.Version,
		SampleRatio:  c.SampleRatio,
		APIBaseURL:   globals.API.URL,
		StoreBackend: globals.Store.Backend,
	}
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting console")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, c.telemetryConfig(globals))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	var nav []navigation.Entry
	if c.Navigation != "" {
		entries, err := (&NavCmd{File: c.Navigation}).entries()
		if err != nil {
			return err
		}
		nav = entries
	}

	s, err := openSession(ctx, globals, func(ctx context.Context, cause error) {
		log.Ctx(ctx).Warn().Err(cause).Str("signin", "/signin").Msg("session expired, sign in again in the console")
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.resolver.Start(ctx); err != nil {
		// the console still serves, pages show the error until a refetch succeeds
		log.Warn().Err(err).Msg("Failed to load permissions")
	}
	if c.PermissionsInterval > 0 {
		go s.resolver.Watch(ctx, c.PermissionsInterval)
	}

	cons, err := console.New(console.Config{
		SecureCookies: c.Cert != "",
		TrustProxy:    c.TrustProxy,
		CORSOrigins:   c.CORSOrigins,
	}, console.Deps{
		OTP:        s.otp,
		Tokens:     s.tokens,
		Resolver:   s.resolver,
		Resources:  s.resources,
		Navigation: nav,
	})
	if err != nil {
		return fmt.Errorf("failed to create console: %w", err)
	}

	handler, err := cons.Handler()
	if err != nil {
		return fmt.Errorf("failed to create console handler: %w", err)
	}

	srv := configureHTTPServer(c.Listen, handler)

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Str("store", globals.Store.Backend).Msg("Starting HTTP server")
		if c.Cert != "" {
			errs <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

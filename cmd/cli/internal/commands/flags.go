package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/joynix/joynix-admin/internal/apiclient"
	"github.com/joynix/joynix-admin/internal/authz"
	"github.com/joynix/joynix-admin/internal/store"
)

// APIFlags configure the Joynix API client.
type APIFlags struct {
	URL            string        `help:"Joynix API base URL" default:"https://api.joynix.com/api/v1" env:"JOYNIX_API_URL"`
	IdentityHeader string        `help:"header carrying the admin identity" default:"X-Admin-Key" env:"JOYNIX_API_IDENTITY_HEADER"`
	Identity       string        `help:"admin identity value sent on every request" env:"JOYNIX_API_IDENTITY"`
	Timeout        time.Duration `help:"timeout for each API call" default:"30s" env:"JOYNIX_API_TIMEOUT"`
	Permissions    string        `help:"path of the permission tree endpoint" default:"admin/resources" env:"JOYNIX_API_PERMISSIONS"`
	Cache          bool          `help:"cache GET responses honouring Cache-Control" default:"false" env:"JOYNIX_API_CACHE"`
	CacheDir       string        `help:"persist the response cache in this directory" env:"JOYNIX_API_CACHE_DIR"`
}

func (a *APIFlags) Validate() error {
	if a.URL == "" {
		return errors.New("API URL is required (--api-url or JOYNIX_API_URL)")
	}
	if a.Timeout <= 0 {
		return errors.New("API timeout must be positive (--api-timeout)")
	}
	if a.Permissions == "" {
		return errors.New("permissions path is required (--api-permissions)")
	}
	return nil
}

func (a *APIFlags) config(version string) apiclient.Config {
	return apiclient.Config{
		BaseURL:        a.URL,
		IdentityHeader: a.IdentityHeader,
		IdentityValue:  a.Identity,
		Timeout:        a.Timeout,
		UserAgent:      "joynix-admin/" + version,
		CacheResponses: a.Cache,
		CacheDir:       a.CacheDir,
	}
}

func (a *APIFlags) permissionsPath() string {
	if a.Permissions == "" {
		return authz.DefaultEndpoint
	}
	return a.Permissions
}

// StoreFlags select where the session is kept.
type StoreFlags struct {
	Backend string `help:"session store backend" default:"file" enum:"file,memory,postgres,redis" env:"JOYNIX_STORE_BACKEND"`
	Key     string `help:"storage key of the session" default:"joynix.auth" env:"JOYNIX_STORE_KEY"`
	Dir     string `help:"directory of the file store, defaults to ~/.joynix" env:"JOYNIX_STORE_DIR"`
}

func (s *StoreFlags) Validate() error {
	if err := store.ValidateKey(s.Key); err != nil {
		return fmt.Errorf("%w (--store-key or JOYNIX_STORE_KEY)", err)
	}
	return nil
}

// PostgresFlags configure the postgres session store.
type PostgresFlags struct {
	ConnString      string        `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`
	MaxConns        int32         `help:"maximum number of connections in pool" default:"4"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"5m"`
	AutoMigrate     bool          `help:"run database migrations on startup" default:"false" env:"JOYNIX_POSTGRES_AUTO_MIGRATE"`
}

func (p *PostgresFlags) Validate() error {
	if p.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if p.MaxConns < 1 {
		return errors.New("postgres max conns must be at least 1")
	}
	return nil
}

// RedisFlags configure the redis session store.
type RedisFlags struct {
	Addr     string        `help:"redis address" env:"JOYNIX_REDIS_ADDR"`
	Username string        `help:"redis username" env:"JOYNIX_REDIS_USERNAME"`
	Password string        `help:"redis password" env:"JOYNIX_REDIS_PASSWORD"`
	DB       int           `help:"redis database" default:"0"`
	Prefix   string        `help:"prefix for the session key" default:"joynix:" env:"JOYNIX_REDIS_PREFIX"`
	TTL      time.Duration `help:"expire the stored session after this long, zero keeps it" default:"0s" env:"JOYNIX_REDIS_TTL"`
}

func (r *RedisFlags) Validate() error {
	if r.Addr == "" {
		return errors.New("redis address is required (--redis-addr or JOYNIX_REDIS_ADDR)")
	}
	if r.TTL < 0 {
		return errors.New("redis ttl must not be negative")
	}
	return nil
}

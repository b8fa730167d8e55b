package commands

import (
	"io"
	"net/http"
	"os"
	"time"
)

type Globals struct {
	Debug   bool
	Version string

	API      APIFlags
	Store    StoreFlags
	Postgres PostgresFlags
	Redis    RedisFlags

	// Stdout and Stdin default to the process streams, tests replace them.
	Stdout io.Writer
	Stdin  io.Reader
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) stdin() io.Reader {
	if g.Stdin == nil {
		return os.Stdin
	}
	return g.Stdin
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

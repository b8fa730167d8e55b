package assets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/minio/crc64nvme"
	"github.com/rs/zerolog/log"
)

//go:embed scripts/*.ts
var scripts embed.FS

var ErrNotBuilt = errors.New("assets not built yet, call Build() first")

type Config struct {
	// Whether to minify output
	Minify bool
	// Whether to inline source maps
	SourceMap bool
	// Prefix the assets are served under
	Prefix string
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		Minify: true,
		Prefix: "/assets/",
	}
}

// Asset is a compiled script.
type Asset struct {
	Name    string
	Content []byte
	ETag    string
}

// Pipeline compiles the embedded console scripts and serves them.
type Pipeline struct {
	config  Config
	sources fs.FS
	assets  map[string]Asset
	mu      sync.RWMutex
}

// New creates a new asset pipeline with the given configuration
func New(config Config) *Pipeline {
	return NewWithSources(config, scripts)
}

// NewWithSources compiles the scripts/*.ts files of sources instead of the embedded ones.
func NewWithSources(config Config, sources fs.FS) *Pipeline {
	if config.Prefix == "" {
		config.Prefix = "/assets/"
	}
	return &Pipeline{
		config:  config,
		sources: sources,
	}
}

// Build transforms every TypeScript source into a browser script.
func (p *Pipeline) Build() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entryPoints, err := fs.Glob(p.sources, "scripts/*.ts")
	if err != nil {
		return err
	}

	if len(entryPoints) == 0 {
		return errors.New("no entry points found")
	}

	log.Debug().Strs("entrypoints", entryPoints).Msg("Building assets")

	built := make(map[string]Asset, len(entryPoints))
	for _, entry := range entryPoints {
		source, err := fs.ReadFile(p.sources, entry)
		if err != nil {
			return err
		}

		result := api.Transform(string(source), api.TransformOptions{
			Loader:            api.LoaderTS,
			Format:            api.FormatIIFE,
			Target:            api.ES2020,
			Sourcefile:        entry,
			MinifyWhitespace:  p.config.Minify,
			MinifyIdentifiers: p.config.Minify,
			MinifySyntax:      p.config.Minify,
			Sourcemap:         cond(p.config.SourceMap, api.SourceMapInline, api.SourceMapNone),
		})

		if len(result.Errors) > 0 {
			for _, msg := range result.Errors {
				log.Error().Str("file", entry).Str("error", msg.Text).Msg("Build error")
			}
			return fmt.Errorf("esbuild failed with errors in %s", entry)
		}

		name := strings.TrimSuffix(path.Base(entry), ".ts") + ".js"
		built[name] = Asset{Name: name, Content: result.Code, ETag: ETag(result.Code)}

		log.Debug().Str("file", name).Int("bytes", len(result.Code)).Msg("Built file")
	}

	p.assets = built
	return nil
}

// Asset returns the compiled script called name.
func (p *Pipeline) Asset(name string) (Asset, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.assets == nil {
		return Asset{}, ErrNotBuilt
	}
	a, ok := p.assets[name]
	if !ok {
		return Asset{}, fmt.Errorf("asset %q not found", name)
	}
	return a, nil
}

// Names lists the compiled scripts.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.assets))
	for name := range p.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScriptURL returns a cache busting URL for the script, used in templates.
func (p *Pipeline) ScriptURL(name string) (string, error) {
	a, err := p.Asset(name)
	if err != nil {
		return "", err
	}
	return p.config.Prefix + a.Name + "?v=" + strings.Trim(a.ETag, `"`), nil
}

// Handler serves the compiled scripts below the configured prefix.
func (p *Pipeline) Handler() http.Handler {
	return http.StripPrefix(p.config.Prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := p.Asset(r.URL.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		ServeWithETag(w, r, a.ETag, a.Content)
	}))
}

// ETag returns a strong entity tag for data.
func ETag(data []byte) string {
	h := crc64nvme.New()
	_, _ = h.Write(data)
	return `"` + strconv.FormatUint(h.Sum64(), 36) + `"`
}

// ServeWithETag writes data unless the client already holds etag.
func ServeWithETag(w http.ResponseWriter, r *http.Request, etag string, data []byte) {
	w.Header().Set("ETag", etag)

	for candidate := range strings.SplitSeq(r.Header.Get("If-None-Match"), ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == etag || candidate == "*" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}

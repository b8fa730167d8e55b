package apiclient

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// cachingTransport stores cacheable responses to anonymous calls, such as
// reference data like gift types. Entries are keyed by URL only, so requests
// carrying a bearer token always go to the network.
type cachingTransport struct {
	cached http.RoundTripper
	direct http.RoundTripper
}

var _ http.RoundTripper = (*cachingTransport)(nil)

func newCachingTransport(base http.RoundTripper, cacheDir string) *cachingTransport {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = base
	transport.MarkCachedResponses = true

	return &cachingTransport{cached: transport, direct: base}
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.direct.RoundTrip(req)
	}
	return t.cached.RoundTrip(req)
}

// IsCachedResponse reports whether resp was served from the local cache.
func IsCachedResponse(resp *http.Response) bool {
	return resp.Header.Get(httpcache.XFromCache) == "1"
}

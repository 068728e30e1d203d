package sourcefetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shiroyk/ski-ext/sourcefetch/blobstore"
	"github.com/shiroyk/ski-ext/sourcefetch/cachesetting"
	"github.com/shiroyk/ski-ext/sourcefetch/fetch"
	"github.com/shiroyk/ski-ext/sourcefetch/httpcache"
	"github.com/shiroyk/ski-ext/sourcefetch/mediatype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is an in-memory httpcache.Cache used by tests in place of the
// leveldb-backed implementation, so these tests exercise the orchestrator
// without disk I/O.
type memCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	writes  int
}

type memEntry struct {
	headers  map[string]string
	body     []byte
	hasBody  bool
	storedAt time.Time
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]memEntry)}
}

func (c *memCache) KeyFor(specifier string) (httpcache.Key, error) {
	return httpcache.Key(specifier), nil
}

func (c *memCache) ReadMetadata(key httpcache.Key) (httpcache.Metadata, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[string(key)]
	if !ok {
		return httpcache.Metadata{}, false, nil
	}
	return httpcache.Metadata{Headers: e.headers, StoredAt: e.storedAt}, true, nil
}

func (c *memCache) ReadBody(key httpcache.Key) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[string(key)]
	if !ok || !e.hasBody {
		return nil, false, nil
	}
	return e.body, true, nil
}

func (c *memCache) Write(specifier string, headers map[string]string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.entries[specifier] = memEntry{headers: headers, body: body, hasBody: body != nil, storedAt: time.Now()}
	return nil
}

func newTestFetcher(t *testing.T, cache httpcache.Cache, transport http.RoundTripper) *Fetcher {
	t.Helper()
	client := fetch.NewClient(fetch.Options{RoundTripper: transport})
	return New(Options{
		AllowRemote:  true,
		CacheSetting: cachesetting.Use(),
		HTTPCache:    cache,
		Client:       client,
	})
}

func TestUnsupportedScheme(t *testing.T) {
	t.Parallel()
	f := New(Options{HTTPCache: newMemCache()})
	_, err := f.Fetch(context.Background(), "ftp://example.com/x.ts")
	require.Error(t, err)
	var sfErr *Error
	require.ErrorAs(t, err, &sfErr)
	assert.Equal(t, Unsupported, sfErr.Kind)
}

func TestFetchLocalObservesMutation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "x.ts")
	require.NoError(t, os.WriteFile(path, []byte("export const a = 1;\n"), 0o644))
	specifier := "file://" + path

	f := New(Options{HTTPCache: newMemCache()})

	a1, err := f.Fetch(context.Background(), specifier)
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1;\n", a1.SourceText)
	assert.Equal(t, mediatype.TypeScript, a1.MediaType)
	assert.Nil(t, a1.Headers)

	require.NoError(t, os.WriteFile(path, []byte("export const a = 2;\n"), 0o644))
	a2, err := f.Fetch(context.Background(), specifier)
	require.NoError(t, err)
	assert.Equal(t, "export const a = 2;\n", a2.SourceText)

	assert.False(t, f.sessionCache.Contains(specifier))
}

func TestDataURLFetch(t *testing.T) {
	t.Parallel()
	f := New(Options{HTTPCache: newMemCache()})
	a, err := f.Fetch(context.Background(), "data:application/typescript;base64,ZXhwb3J0IHt9Ow==")
	require.NoError(t, err)
	assert.Equal(t, mediatype.TypeScript, a.MediaType)
	assert.Equal(t, "export {};", a.SourceText)
	assert.Equal(t, "application/typescript", a.Headers["content-type"])
}

func TestBlobURLFetch(t *testing.T) {
	t.Parallel()
	store := blobstore.New()
	specifier := store.Register([]byte("export {}"), "application/javascript")

	f := New(Options{HTTPCache: newMemCache(), BlobStore: store})
	a, err := f.Fetch(context.Background(), specifier)
	require.NoError(t, err)
	assert.Equal(t, mediatype.JavaScript, a.MediaType)
	assert.Equal(t, "export {}", a.SourceText)

	store.Revoke(specifier)
	_, err = f.Fetch(context.Background(), specifier+"-missing")
	require.Error(t, err)
}

func TestInsertCachedGetSourceRoundTrip(t *testing.T) {
	t.Parallel()
	f := New(Options{HTTPCache: newMemCache()})
	a := &Artifact{FinalSpecifier: "https://example.com/mod.ts", SourceText: "1;", MediaType: mediatype.JavaScript}
	prior, hadPrior := f.InsertCached(a)
	assert.False(t, hadPrior)
	assert.Nil(t, prior)

	got, ok := f.GetSource(a.FinalSpecifier)
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRemoteNoRemoteDisabled(t *testing.T) {
	t.Parallel()
	f := New(Options{AllowRemote: false, HTTPCache: newMemCache()})
	_, err := f.Fetch(context.Background(), "https://example.com/x.js")
	require.Error(t, err)
	var sfErr *Error
	require.ErrorAs(t, err, &sfErr)
	assert.Equal(t, NoRemote, sfErr.Kind)
}

func TestRedirectChainAndCacheWrites(t *testing.T) {
	t.Parallel()
	var finalURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/y", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		_, _ = w.Write([]byte("1;"))
	})
	mux.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, finalURL, http.StatusMovedPermanently)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	finalURL = ts.URL + "/y"

	cache := newMemCache()
	f := newTestFetcher(t, cache, nil)

	a, err := f.Fetch(context.Background(), ts.URL+"/x")
	require.NoError(t, err)
	assert.Equal(t, finalURL, a.FinalSpecifier)
	assert.Equal(t, mediatype.JavaScript, a.MediaType)
	assert.Equal(t, "1;", a.SourceText)
	assert.Equal(t, 2, cache.writes)
}

// TestRevalidationWith304 exercises spec §8 scenario 4: a second,
// independent orchestrator sharing the same persistent cache revalidates
// a stale entry via If-None-Match and accepts a 304. Two separate
// Fetchers (rather than two calls on one) are used because the first
// fetcher's own session cache would otherwise short-circuit the second
// request before it ever reaches the network (spec §4.6 step 1).
func TestRevalidationWith304(t *testing.T) {
	t.Parallel()
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("A"))
	}))
	defer ts.Close()

	cache := newMemCache()

	first := newTestFetcher(t, cache, nil)
	a1, err := first.Fetch(context.Background(), ts.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "A", a1.SourceText)
	assert.Equal(t, 1, calls)

	second := newTestFetcher(t, cache, nil)
	setting := cachesetting.RespectHeaders()
	a2, err := second.FetchWithOptions(context.Background(), FetchOptions{Specifier: ts.URL + "/", CacheSetting: &setting})
	require.NoError(t, err)
	assert.Equal(t, a1.SourceText, a2.SourceText)
	assert.Equal(t, 2, calls)
}

func TestTooManyRedirects(t *testing.T) {
	t.Parallel()
	var url string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, url, http.StatusMovedPermanently)
	}))
	defer ts.Close()
	url = ts.URL + "/"

	cache := newMemCache()
	f := newTestFetcher(t, cache, nil)

	_, err := f.Fetch(context.Background(), ts.URL+"/")
	require.Error(t, err)
	var sfErr *Error
	require.ErrorAs(t, err, &sfErr)
	assert.Equal(t, Http, sfErr.Kind)
}

func TestNotModifiedWithoutCachedBodyIsInternalError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer ts.Close()

	cache := newMemCache()
	f := newTestFetcher(t, cache, nil)

	_, err := f.Fetch(context.Background(), ts.URL+"/")
	require.Error(t, err)
	var sfErr *Error
	require.ErrorAs(t, err, &sfErr)
	assert.Equal(t, ErrInternal, sfErr.Kind)
}

// faultTransport fails the first failCount requests with a connect-class
// error, then delegates to the real transport.
type faultTransport struct {
	mu        sync.Mutex
	remaining int
	delegate  http.RoundTripper
}

func (f *faultTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	if f.remaining > 0 {
		f.remaining--
		f.mu.Unlock()
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
	}
	f.mu.Unlock()
	return f.delegate.RoundTrip(req)
}

func TestTransientRetrySucceedsOnce(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("x"))
	}))
	defer ts.Close()

	transport := &faultTransport{remaining: 1, delegate: http.DefaultTransport}
	cache := newMemCache()
	f := newTestFetcher(t, cache, transport)

	a, err := f.Fetch(context.Background(), ts.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "x", a.SourceText)
}

func TestTransientRetryFailsAfterTwoFaults(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("x"))
	}))
	defer ts.Close()

	transport := &faultTransport{remaining: 2, delegate: http.DefaultTransport}
	cache := newMemCache()
	f := newTestFetcher(t, cache, transport)

	_, err := f.Fetch(context.Background(), ts.URL+"/")
	require.Error(t, err)
}

// proxyObservingTransport records the proxy fetch.ProxyFromRequest resolves
// from the request context, then delegates to the real transport.
type proxyObservingTransport struct {
	mu       sync.Mutex
	observed []string
	delegate http.RoundTripper
}

func (p *proxyObservingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	proxyURL, err := fetch.ProxyFromRequest(req)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if proxyURL != nil {
		p.observed = append(p.observed, proxyURL.String())
	}
	p.mu.Unlock()
	return p.delegate.RoundTrip(req)
}

func TestFetchRemoteRotatesConfiguredProxies(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("x"))
	}))
	defer ts.Close()

	transport := &proxyObservingTransport{delegate: http.DefaultTransport}
	cache := newMemCache()
	client := fetch.NewClient(fetch.Options{RoundTripper: transport})
	f := New(Options{
		AllowRemote:  true,
		CacheSetting: cachesetting.Use(),
		HTTPCache:    cache,
		Client:       client,
		Proxies:      []string{"http://proxy.example:8080"},
	})

	_, err := f.Fetch(context.Background(), ts.URL+"/")
	require.NoError(t, err)

	require.Equal(t, []string{"http://proxy.example:8080"}, transport.observed)
}

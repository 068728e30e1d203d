package sourcefetch

import (
	"log/slog"

	"github.com/shiroyk/ski-ext/sourcefetch/blobstore"
	"github.com/shiroyk/ski-ext/sourcefetch/cachesetting"
	"github.com/shiroyk/ski-ext/sourcefetch/fetch"
	"github.com/shiroyk/ski-ext/sourcefetch/httpcache"
	"github.com/shiroyk/ski-ext/sourcefetch/permission"
)

// Options configures a Fetcher at construction time.
type Options struct {
	// AllowRemote permits http/https specifiers. When false, fetching one
	// fails with a NoRemote error (spec §4.6).
	AllowRemote bool
	// CacheSetting is the default cache policy used when a call does not
	// override it via FetchOptions.CacheSetting.
	CacheSetting cachesetting.Setting
	// HTTPCache is the persistent cache adapter (C4). Required for remote
	// fetches.
	HTTPCache httpcache.Cache
	// Client performs the single-shot HTTP attempt (C3's transport). When
	// nil, a default fetch.Client is constructed.
	Client *fetch.Client
	// BlobStore resolves blob: specifiers. When nil, an empty Store is
	// constructed.
	BlobStore *blobstore.Store
	// Permissions gates every hop, including redirects (spec §4.6). When
	// nil, permission.AllowAll is used.
	Permissions permission.Checker
	// AuthTokensEnv is the DENO_AUTH_TOKENS-format string parsed once into
	// the auth-token registry (spec §6, §9). When empty, New falls back to
	// os.Getenv("DENO_AUTH_TOKENS") itself, so construction performs the
	// one-shot read the embedding application would otherwise have to
	// remember to do. Pass a non-empty value only to override the
	// environment, e.g. in tests.
	AuthTokensEnv string
	// Proxies is a list of proxy URLs ("http", "https", or "socks5") the
	// remote path rotates through round-robin (spec's supplemental domain
	// stack: fetch.WithRoundRobinProxy). Empty means no proxy.
	Proxies []string
	// Logger receives download and warning logs. When nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// FetchOptions parameterizes a single FetchWithOptions call (spec §4.6).
type FetchOptions struct {
	Specifier string
	Accept    string
	// CacheSetting overrides the Fetcher's default for this call only,
	// when non-nil (a pointer to a zero Setting, which is Use, still
	// overrides).
	CacheSetting *cachesetting.Setting
}

// WithAccept returns FetchOptions for specifier with the given Accept
// header value (spec's supplemental FetchOptions.accept forwarding).
func WithAccept(specifier, accept string) FetchOptions {
	return FetchOptions{Specifier: specifier, Accept: accept}
}

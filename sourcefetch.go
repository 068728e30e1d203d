// Package sourcefetch implements the Fetch Orchestrator (C6): it
// resolves a module specifier — a file, data, blob, http, or https URI —
// into a fully materialized Artifact, mediating between four acquisition
// paths and two layers of caching. See SPEC_FULL.md for the full
// component breakdown; this package is the composition root tying
// mediatype, textdecode, sourcecache, httpcache, cachesetting, authtoken,
// blobstore, permission, and fetch together.
package sourcefetch

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/shiroyk/ski-ext/sourcefetch/authtoken"
	"github.com/shiroyk/ski-ext/sourcefetch/blobstore"
	"github.com/shiroyk/ski-ext/sourcefetch/cachesetting"
	"github.com/shiroyk/ski-ext/sourcefetch/fetch"
	"github.com/shiroyk/ski-ext/sourcefetch/httpcache"
	"github.com/shiroyk/ski-ext/sourcefetch/permission"
	"github.com/shiroyk/ski-ext/sourcefetch/sourcecache"
)

// maxRedirects is the per-fetch redirect budget (spec §3, §4.6).
const maxRedirects = 10

// supportedSchemes is the set of specifier schemes the fetcher accepts
// (spec §6).
var supportedSchemes = map[string]bool{
	"file":  true,
	"data":  true,
	"blob":  true,
	"http":  true,
	"https": true,
}

// Fetcher is the long-lived, cheaply shareable Fetch Orchestrator (spec
// §4.6, §5). Aside from the download log level, it is immutable after
// construction; concurrent callers share one Fetcher.
//
// Two concurrent fetches of the same specifier may both issue a network
// request — this is an accepted race (idempotent GETs); the orchestrator
// does not implement single-flight deduplication (spec §5, §9, Open
// Question 2). Downstream callers that require single-flight should
// layer it themselves.
type Fetcher struct {
	allowRemote  bool
	cacheSetting cachesetting.Setting
	httpCache    httpcache.Cache
	client       *fetch.Client
	blobStore    *blobstore.Store
	permissions  permission.Checker
	authTokens   authtoken.Registry
	proxies      []string
	sessionCache *sourcecache.Cache[*Artifact]
	logger       *slog.Logger

	// downloadLevelAtomic is set-once via SetDownloadLogLevel, the one
	// piece of post-construction mutable state (spec §5, §9).
	downloadLevelAtomic atomic.Int64
}

// New constructs a Fetcher from opts, parsing DENO_AUTH_TOKENS-format
// credentials once (spec §9: "intentionally one-shot at construction, not
// re-read per fetch").
func New(opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	blobStore := opts.BlobStore
	if blobStore == nil {
		blobStore = blobstore.New()
	}
	permissions := opts.Permissions
	if permissions == nil {
		permissions = permission.AllowAll
	}
	client := opts.Client
	if client == nil {
		client = fetch.NewClient(fetch.Options{})
	}
	// The single-shot fetcher (C3, spec §4.3) must see every redirect as
	// a distinct, classifiable hop rather than have it followed
	// transparently — redirect budget and per-hop permission checks are
	// the orchestrator's concern, not the transport's.
	client.Client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	authTokensEnv := opts.AuthTokensEnv
	if authTokensEnv == "" {
		authTokensEnv = os.Getenv("DENO_AUTH_TOKENS")
	}

	f := &Fetcher{
		allowRemote:  opts.AllowRemote,
		cacheSetting: opts.CacheSetting,
		httpCache:    opts.HTTPCache,
		client:       client,
		blobStore:    blobStore,
		permissions:  permissions,
		authTokens:   authtoken.Parse(authTokensEnv),
		proxies:      opts.Proxies,
		sessionCache: sourcecache.New[*Artifact](),
		logger:       logger,
	}
	f.downloadLevelAtomic.Store(int64(slog.LevelInfo))
	return f
}

// SetDownloadLogLevel sets the level at which "download" progress is
// logged (spec §4.6, §9). Safe to call concurrently with in-flight
// fetches.
func (f *Fetcher) SetDownloadLogLevel(level slog.Level) {
	f.downloadLevelAtomic.Store(int64(level))
}

func (f *Fetcher) downloadLevel() slog.Level {
	return slog.Level(f.downloadLevelAtomic.Load())
}

// Fetch resolves specifier into an Artifact, checking permissions against
// ctx (spec §4.6).
func (f *Fetcher) Fetch(ctx context.Context, specifier string) (*Artifact, error) {
	return f.FetchWithOptions(ctx, FetchOptions{Specifier: specifier})
}

// FetchWithOptions resolves opts.Specifier, honoring a per-call Accept
// header and cache-setting override (spec §4.6).
func (f *Fetcher) FetchWithOptions(ctx context.Context, opts FetchOptions) (*Artifact, error) {
	specifier := opts.Specifier

	scheme, err := validateScheme(specifier)
	if err != nil {
		return nil, newError(Unsupported, specifier, err.Error(), nil)
	}

	if err := f.permissions.CheckSpecifier(ctx, specifier); err != nil {
		return nil, newError(Permission, specifier, "permission denied", err)
	}

	if artifact, ok := f.sessionCache.Get(specifier); ok {
		return artifact, nil
	}

	switch scheme {
	case "file":
		// Never session-cached: local edits must always be observed
		// (spec §4.5, §4.6, §8).
		return fetchLocal(specifier)

	case "data":
		artifact, err := fetchDataURL(specifier)
		if err != nil {
			return nil, err
		}
		f.sessionCache.Insert(specifier, artifact)
		return artifact, nil

	case "blob":
		artifact, err := fetchBlobURL(f.blobStore, specifier)
		if err != nil {
			return nil, err
		}
		f.sessionCache.Insert(specifier, artifact)
		return artifact, nil

	default: // http, https
		if !f.allowRemote {
			return nil, newError(NoRemote, specifier, "remote specifiers are disabled", nil)
		}

		setting := f.cacheSetting
		if opts.CacheSetting != nil {
			setting = *opts.CacheSetting
		}

		artifact, err := f.fetchRemote(ctx, specifier, opts.Accept, setting, maxRedirects)
		if err != nil {
			return nil, err
		}
		f.sessionCache.Insert(specifier, artifact)
		return artifact, nil
	}
}

// GetSource synchronously returns the session-cached artifact for
// specifier, if any; for file-scheme specifiers only, it falls through to
// a fresh local read rather than returning none (spec §4.6).
func (f *Fetcher) GetSource(specifier string) (*Artifact, bool) {
	if artifact, ok := f.sessionCache.Get(specifier); ok {
		return artifact, true
	}

	u, err := url.Parse(specifier)
	if err != nil || u.Scheme != "file" {
		return nil, false
	}

	artifact, err := fetchLocal(specifier)
	if err != nil {
		return nil, false
	}
	return artifact, true
}

// InsertCached manually seeds the session cache with artifact, returning
// whatever was previously cached under its specifier (spec §4.6).
func (f *Fetcher) InsertCached(artifact *Artifact) (prior *Artifact, hadPrior bool) {
	return f.sessionCache.Insert(artifact.FinalSpecifier, artifact)
}

// validateScheme parses specifier and rejects any scheme outside
// supportedSchemes (spec §3, §6).
func validateScheme(specifier string) (string, error) {
	u, err := url.Parse(specifier)
	if err != nil {
		return "", err
	}
	if !supportedSchemes[u.Scheme] {
		return "", unsupportedSchemeErr(u.Scheme)
	}
	return u.Scheme, nil
}

type unsupportedSchemeErr string

func (e unsupportedSchemeErr) Error() string {
	return "unsupported scheme \"" + string(e) + "\""
}

package sourcefetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shiroyk/ski-ext/sourcefetch/cachesetting"
	"github.com/shiroyk/ski-ext/sourcefetch/fetch"
	"github.com/shiroyk/ski-ext/sourcefetch/mediatype"
)

// retryBackoff is the fixed delay between the single-shot fetch's one
// permitted retry on a transient failure (spec §4.6, §7).
const retryBackoff = 50 * time.Millisecond

// fetchRemote is the remote path's recursive state machine (spec §4.6),
// expressed as an explicit loop-then-recurse per the Go-idiomatic
// rendering spec §9 suggests for languages without direct async
// recursion: the redirect case recurses via a direct call rather than a
// loop-carried "current specifier", since Go has no tail-call guarantee
// but the redirect budget bounds the depth to 10.
func (f *Fetcher) fetchRemote(ctx context.Context, specifier, accept string, setting cachesetting.Setting, redirectLimit int) (*Artifact, error) {
	if redirectLimit < 0 {
		return nil, newError(Http, specifier, "too many redirects", nil)
	}

	if err := f.permissions.CheckSpecifier(ctx, specifier); err != nil {
		return nil, newError(Permission, specifier, "permission denied", err)
	}

	if f.shouldUseCache(specifier, setting) {
		artifact, hit, err := f.fetchCached(specifier, redirectLimit)
		if err != nil {
			return nil, err
		}
		if hit {
			return artifact, nil
		}
	}

	if setting.IsOnly() {
		return nil, newError(NotCached, specifier, "specifier not found in cache and cache-only is specified", nil)
	}

	f.logger.Log(ctx, f.downloadLevel(), "download", "specifier", specifier)

	etag := f.lookupETag(specifier)
	authorization := f.lookupAuthorization(specifier)

	if len(f.proxies) > 0 {
		ctx = fetch.WithRoundRobinProxy(ctx, f.proxies...)
	}

	retried := false
	for {
		result, err := fetchOnce(ctx, f.client, f.logger, specifier, accept, etag, authorization)
		if err != nil {
			return nil, err
		}

		switch result.kind {
		case kindNotModified:
			artifact, hit, err := f.fetchCached(specifier, maxRedirects)
			if err != nil {
				return nil, err
			}
			if !hit {
				return nil, newError(ErrInternal, specifier, "not modified response but no cached body", nil)
			}
			return artifact, nil

		case kindRedirect:
			if err := f.httpCache.Write(specifier, result.headers, nil); err != nil {
				return nil, newError(Http, specifier, "writing redirect cache entry", err)
			}
			return f.fetchRemote(ctx, result.redirectTo, accept, setting, redirectLimit-1)

		case kindCode:
			if err := f.httpCache.Write(specifier, result.headers, result.body); err != nil {
				return nil, newError(Http, specifier, "writing cache entry", err)
			}
			return f.buildRemoteFile(specifier, result.body, result.headers)

		case kindTransientError, kindServerError:
			if !retried {
				retried = true
				select {
				case <-time.After(retryBackoff):
				case <-ctx.Done():
					return nil, newError(Http, specifier, "context canceled during retry backoff", ctx.Err())
				}
				continue
			}
			if result.kind == kindServerError {
				return nil, newError(Http, specifier, httpStatusMessage(result.status), nil)
			}
			return nil, newError(Http, specifier, result.message, nil)

		default:
			return nil, newError(ErrInternal, specifier, "unreachable fetch-once outcome", nil)
		}
	}
}

// fetchCached recursively resolves specifier from the persistent cache,
// following any stored redirect chain (spec §4.6). A false second return
// value means "no cache entry", distinct from an error.
func (f *Fetcher) fetchCached(specifier string, redirectLimit int) (*Artifact, bool, error) {
	if redirectLimit < 0 {
		return nil, false, newError(Http, specifier, "too many redirects", nil)
	}

	key, err := f.httpCache.KeyFor(specifier)
	if err != nil {
		return nil, false, newError(Http, specifier, "computing cache key", err)
	}

	meta, ok, err := f.httpCache.ReadMetadata(key)
	if err != nil {
		return nil, false, newError(Http, specifier, "reading cache metadata", err)
	}
	if !ok {
		return nil, false, nil
	}

	if redirectTo, ok := meta.Headers["location"]; ok {
		target, err := resolveLocation(specifier, redirectTo)
		if err != nil {
			return nil, false, newError(URI, specifier, "invalid cached redirect target", err)
		}
		return f.fetchCached(target, redirectLimit-1)
	}

	body, ok, err := f.httpCache.ReadBody(key)
	if err != nil {
		return nil, false, newError(Http, specifier, "reading cache body", err)
	}
	if !ok {
		return nil, false, nil
	}

	artifact, err := f.buildRemoteFile(specifier, body, meta.Headers)
	if err != nil {
		return nil, false, err
	}
	return artifact, true, nil
}

// shouldUseCache wires cachesetting.ShouldUseCache's deferred metadata
// lookup to the configured persistent cache (spec §4.4).
func (f *Fetcher) shouldUseCache(specifier string, setting cachesetting.Setting) bool {
	return cachesetting.ShouldUseCache(setting, specifier, func() (cachesetting.Metadata, bool) {
		key, err := f.httpCache.KeyFor(specifier)
		if err != nil {
			return cachesetting.Metadata{}, false
		}
		meta, ok, err := f.httpCache.ReadMetadata(key)
		if err != nil || !ok {
			return cachesetting.Metadata{}, false
		}
		return cachesetting.Metadata{Headers: meta.Headers, StoredAt: meta.StoredAt}, true
	})
}

func (f *Fetcher) lookupETag(specifier string) string {
	key, err := f.httpCache.KeyFor(specifier)
	if err != nil {
		return ""
	}
	meta, ok, err := f.httpCache.ReadMetadata(key)
	if err != nil || !ok {
		return ""
	}
	return meta.Headers["etag"]
}

func (f *Fetcher) lookupAuthorization(specifier string) string {
	u, err := url.Parse(specifier)
	if err != nil {
		return ""
	}
	tok, ok := f.authTokens.Get(u.Host)
	if !ok {
		return ""
	}
	return tok.Header()
}

// buildRemoteFile constructs an Artifact for a remote response (spec
// §4.6's build_remote_file): media type/charset resolution via the
// Content-Type Resolver, decode via the Byte Decoder, and the
// x-typescript-types passthrough restricted to JS-family media types.
func (f *Fetcher) buildRemoteFile(specifier string, body []byte, headers map[string]string) (*Artifact, error) {
	contentType := headers["content-type"]
	mt, charset := mediatype.Resolve(specifier, contentType)

	text, err := decodeBytes(body, charset, false)
	if err != nil {
		return nil, newError(Encoding, specifier, "decoding response body", err)
	}

	var declaredTypes string
	if mt.IsJSFamily() {
		declaredTypes = headers["x-typescript-types"]
	}

	return &Artifact{
		FinalSpecifier:         specifier,
		MediaType:              mt,
		SourceText:             text,
		DeclaredTypesSpecifier: declaredTypes,
		Headers:                headers,
	}, nil
}

func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	target, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(target).String(), nil
}

func httpStatusMessage(status int) string {
	return fmt.Sprintf("server error: %d %s", status, http.StatusText(status))
}

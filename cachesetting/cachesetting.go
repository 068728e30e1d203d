// Package cachesetting implements the CacheSetting tagged variant and the
// should-use-cache policy of spec §3/§4.4, including RFC 7234 freshness
// evaluation over stored response metadata.
package cachesetting

import (
	"net/url"
	"strings"
	"time"
)

// Setting mirrors deno_cache_dir's CacheSetting: how the orchestrator is
// allowed to consult the persistent HTTP cache for a given fetch.
type Setting struct {
	kind     kind
	prefixes []string
}

type kind int

const (
	kindUse kind = iota
	kindReloadAll
	kindReloadSome
	kindRespectHeaders
	kindOnly
)

// Use consults the cache freely whenever an entry is present.
func Use() Setting { return Setting{kind: kindUse} }

// ReloadAll ignores the cache on read, but fetched responses are still
// written back to it.
func ReloadAll() Setting { return Setting{kind: kindReloadAll} }

// ReloadSome bypasses the cache for any specifier whose URL, or any path
// prefix of it, matches an entry in prefixes.
func ReloadSome(prefixes []string) Setting {
	return Setting{kind: kindReloadSome, prefixes: prefixes}
}

// RespectHeaders uses RFC 7234 freshness computed from stored headers, the
// stored timestamp, and the current wall clock.
func RespectHeaders() Setting { return Setting{kind: kindRespectHeaders} }

// Only makes a cache miss fatal: the fetch never reaches the network.
func Only() Setting { return Setting{kind: kindOnly} }

// IsOnly reports whether the setting is the cache-only variant.
func (s Setting) IsOnly() bool { return s.kind == kindOnly }

// Metadata is the subset of persistent-cache metadata freshness evaluation
// needs: the stored response headers and when they were stored.
type Metadata struct {
	Headers  map[string]string
	StoredAt time.Time
}

// ShouldUseCache decides whether the orchestrator should attempt a cache
// read for specifier before going to the network, per spec §4.4. lookup
// fetches the stored metadata and is called only for RespectHeaders (the
// only variant that needs it), so the other variants never pay for the
// read.
func ShouldUseCache(s Setting, specifier string, lookup func() (Metadata, bool)) bool {
	switch s.kind {
	case kindReloadAll:
		return false
	case kindUse, kindOnly:
		return true
	case kindRespectHeaders:
		meta, ok := lookup()
		if !ok {
			// A failed or absent cache read is treated as "do not use
			// cache", equivalent to a miss (spec §7).
			return false
		}
		return isFresh(meta.Headers, meta.StoredAt, time.Now())
	case kindReloadSome:
		return !matchesReloadSome(specifier, s.prefixes)
	default:
		return false
	}
}

// matchesReloadSome implements the fragment-strip-then-path-prefix-walk
// matching rule of spec §4.4, transcribed from
// FileFetcher::should_use_cache's CacheSetting::ReloadSome arm.
func matchesReloadSome(specifier string, prefixes []string) bool {
	u, err := url.Parse(specifier)
	if err != nil {
		return false
	}
	u.Fragment = ""
	if contains(prefixes, u.String()) {
		return true
	}

	u.RawQuery = ""
	p := u.String()
	for {
		if contains(prefixes, p) {
			return true
		}
		trimmed := strings.TrimSuffix(p, "/")
		idx := strings.LastIndex(trimmed, "/")
		if idx < 0 {
			break
		}
		p = trimmed[:idx+1]
	}
	return false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// isFresh implements RFC 7234 §4.2 freshness, adapted from the
// Cache-Control/Expires/Date handling in ski-ext/fetch/cache.go's
// getFreshness, specialized to a private single-entry cache (no Vary
// separation, no request-side cache-control — the orchestrator never
// sends one) and reframed as a boolean rather than a three-way
// fresh/stale/transparent result, since RespectHeaders has no "transparent"
// case at this layer.
func isFresh(headers map[string]string, storedAt, now time.Time) bool {
	cc := parseCacheControl(headers["cache-control"])
	if _, ok := cc["no-cache"]; ok {
		return false
	}

	date := storedAt
	if dateHeader, ok := headers["date"]; ok {
		if parsed, err := time.Parse(time.RFC1123, dateHeader); err == nil {
			date = parsed
		}
	}
	currentAge := now.Sub(date)

	var lifetime time.Duration
	if maxAge, ok := cc["max-age"]; ok {
		if d, err := time.ParseDuration(maxAge + "s"); err == nil {
			lifetime = d
		}
	} else if expiresHeader, ok := headers["expires"]; ok {
		if expires, err := time.Parse(time.RFC1123, expiresHeader); err == nil {
			lifetime = expires.Sub(date)
		}
	}

	return lifetime > currentAge
}

func parseCacheControl(header string) map[string]string {
	cc := map[string]string{}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			cc[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
		} else {
			cc[part] = ""
		}
	}
	return cc
}

// Package httpcache defines the persistent HTTP cache contract the Fetch
// Orchestrator consumes (spec §4.4): a stable per-specifier key, separate
// metadata/body reads, and an atomic write. The core never implements a
// cache backend itself, only this capability interface; see the leveldb
// subpackage for one concrete implementation.
package httpcache

import "time"

// Key is an opaque, stable identifier for a specifier's cache entry.
type Key string

// Metadata is the stored response headers plus when they were written.
type Metadata struct {
	Headers  map[string]string
	StoredAt time.Time
}

// Cache is the capability set HttpCache implementations must satisfy.
// The orchestrator is parametric over any implementation satisfying it
// (spec §9, "Polymorphism over cache backends").
type Cache interface {
	// KeyFor derives the stable cache key for specifier.
	KeyFor(specifier string) (Key, error)

	// ReadMetadata returns the stored headers and timestamp for key, or
	// false if no entry exists.
	ReadMetadata(key Key) (Metadata, bool, error)

	// ReadBody returns the stored response body for key, or false if no
	// entry (or no body, e.g. a redirect-only entry) exists.
	ReadBody(key Key) ([]byte, bool, error)

	// Write atomically stores headers and body for specifier. A redirect
	// entry is written with an empty body (spec §4.6).
	Write(specifier string, headers map[string]string, body []byte) error
}

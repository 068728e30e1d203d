// Package sourcecache implements the Fetch Orchestrator's in-process
// Session Cache (spec §4.5): a memo from specifier to materialized
// SourceArtifact, safe for concurrent readers and writers. Mirroring
// original_source's FileCache (Arc<Mutex<HashMap<...>>>), the lock is held
// only across a single map access and never across a suspension point.
package sourcecache

import "sync"

// Cache is a concurrency-safe specifier → T memo. The zero value is not
// ready to use; construct with New.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New returns an empty Cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[string]T)}
}

// Get returns the cached value for specifier, if any.
func (c *Cache[T]) Get(specifier string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[specifier]
	return v, ok
}

// Insert stores value under specifier, returning the prior value if one
// was present. Insertion is idempotent-on-overwrite: callers may insert
// the same specifier repeatedly.
//
// Callers must never insert a file-scheme specifier (spec §4.5, §4.6):
// local files are read fresh on every fetch so on-disk edits are always
// observed. sourcefetch enforces this at the call site rather than here,
// since this package has no notion of URI schemes.
func (c *Cache[T]) Insert(specifier string, value T) (prior T, hadPrior bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prior, hadPrior = c.entries[specifier]
	c.entries[specifier] = value
	return prior, hadPrior
}

// Contains reports whether specifier is currently cached, used by the
// "session cache never stores file entries" test property (spec §8).
func (c *Cache[T]) Contains(specifier string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[specifier]
	return ok
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

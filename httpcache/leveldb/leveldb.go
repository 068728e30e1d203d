// Package leveldb implements httpcache.Cache with an on-disk leveldb
// database, the way rotationalio-httpcache/leveldb and mchtech-httpcache/
// leveldbcache back the same httpcache.Cache-shaped interface with
// github.com/syndtr/goleveldb.
package leveldb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/shiroyk/ski-ext/sourcefetch/httpcache"
)

// Cache is a leveldb-backed httpcache.Cache. Each specifier is stored as
// two sibling keys, "m:"+hash for metadata and "b:"+hash for body, written
// together in one leveldb.Batch so a write is atomic from the fetcher's
// perspective (spec §4.4): a reader never observes a metadata entry
// without its corresponding body, or vice versa, for a terminal entry.
type Cache struct {
	db *leveldb.DB
}

// New opens (creating if necessary) a leveldb database at path to back
// the cache.
func New(path string) (*Cache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("httpcache/leveldb: open %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// KeyFor derives a stable cache key by hashing the specifier, the same
// hashed-filename approach diskcache.keyToFilename and rotationalio's
// cache key hashing use to keep keys filesystem/db safe and bounded in
// length.
func (c *Cache) KeyFor(specifier string) (httpcache.Key, error) {
	sum := sha256.Sum256([]byte(specifier))
	return httpcache.Key(hex.EncodeToString(sum[:])), nil
}

type storedMetadata struct {
	Headers  map[string]string `json:"headers"`
	StoredAt time.Time         `json:"stored_at"`
}

func (c *Cache) ReadMetadata(key httpcache.Key) (httpcache.Metadata, bool, error) {
	raw, err := c.db.Get(metaKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return httpcache.Metadata{}, false, nil
		}
		return httpcache.Metadata{}, false, fmt.Errorf("httpcache/leveldb: read metadata: %w", err)
	}

	var stored storedMetadata
	if err := json.Unmarshal(raw, &stored); err != nil {
		return httpcache.Metadata{}, false, fmt.Errorf("httpcache/leveldb: decode metadata: %w", err)
	}
	return httpcache.Metadata{Headers: stored.Headers, StoredAt: stored.StoredAt}, true, nil
}

func (c *Cache) ReadBody(key httpcache.Key) ([]byte, bool, error) {
	raw, err := c.db.Get(bodyKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("httpcache/leveldb: read body: %w", err)
	}
	return raw, true, nil
}

func (c *Cache) Write(specifier string, headers map[string]string, body []byte) error {
	key, err := c.KeyFor(specifier)
	if err != nil {
		return err
	}

	encodedMeta, err := json.Marshal(storedMetadata{Headers: headers, StoredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("httpcache/leveldb: encode metadata: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(metaKey(key), encodedMeta)
	if body == nil {
		// Redirect-only entry: no body, so ReadBody reports false.
		batch.Delete(bodyKey(key))
	} else {
		batch.Put(bodyKey(key), body)
	}

	if err := c.db.Write(batch, nil); err != nil {
		slog.Warn("httpcache/leveldb: failed to persist entry", "specifier", specifier, "error", err)
		return fmt.Errorf("httpcache/leveldb: write: %w", err)
	}
	return nil
}

func metaKey(key httpcache.Key) []byte { return []byte("m:" + string(key)) }
func bodyKey(key httpcache.Key) []byte { return []byte("b:" + string(key)) }

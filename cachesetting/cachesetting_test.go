package cachesetting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noLookup() (Metadata, bool) { return Metadata{}, false }

func TestShouldUseCacheReloadAll(t *testing.T) {
	t.Parallel()
	assert.False(t, ShouldUseCache(ReloadAll(), "https://example.com/x.ts", noLookup))
}

func TestShouldUseCacheUseAndOnly(t *testing.T) {
	t.Parallel()
	assert.True(t, ShouldUseCache(Use(), "https://example.com/x.ts", noLookup))
	assert.True(t, ShouldUseCache(Only(), "https://example.com/x.ts", noLookup))
	assert.True(t, Only().IsOnly())
}

func TestShouldUseCacheRespectHeadersMiss(t *testing.T) {
	t.Parallel()
	assert.False(t, ShouldUseCache(RespectHeaders(), "https://example.com/x.ts", noLookup))
}

func TestShouldUseCacheRespectHeadersFresh(t *testing.T) {
	t.Parallel()
	storedAt := time.Now().Add(-10 * time.Second)
	lookup := func() (Metadata, bool) {
		return Metadata{Headers: map[string]string{"cache-control": "max-age=3600"}, StoredAt: storedAt}, true
	}
	assert.True(t, ShouldUseCache(RespectHeaders(), "https://example.com/x.ts", lookup))
}

func TestShouldUseCacheRespectHeadersStale(t *testing.T) {
	t.Parallel()
	storedAt := time.Now().Add(-10 * time.Hour)
	lookup := func() (Metadata, bool) {
		return Metadata{Headers: map[string]string{"cache-control": "max-age=60"}, StoredAt: storedAt}, true
	}
	assert.False(t, ShouldUseCache(RespectHeaders(), "https://example.com/x.ts", lookup))
}

func TestShouldUseCacheReloadSomeBoundary(t *testing.T) {
	t.Parallel()
	setting := ReloadSome([]string{"https://ex.com/a/"})

	assert.False(t, ShouldUseCache(setting, "https://ex.com/a/b.ts", noLookup))
	assert.False(t, ShouldUseCache(setting, "https://ex.com/a/", noLookup))
	assert.True(t, ShouldUseCache(setting, "https://ex.com/b/c.ts", noLookup))
}

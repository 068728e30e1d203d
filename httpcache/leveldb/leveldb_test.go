package leveldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	err := c.Write("https://example.com/x.ts", map[string]string{"content-type": "application/typescript"}, []byte("export {}"))
	require.NoError(t, err)

	key, err := c.KeyFor("https://example.com/x.ts")
	require.NoError(t, err)

	meta, ok, err := c.ReadMetadata(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "application/typescript", meta.Headers["content-type"])

	body, ok, err := c.ReadBody(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "export {}", string(body))
}

func TestReadMissingEntry(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	key, err := c.KeyFor("https://example.com/missing.ts")
	require.NoError(t, err)

	_, ok, err := c.ReadMetadata(key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.ReadBody(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyForIsStable(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	k1, _ := c.KeyFor("https://example.com/x.ts")
	k2, _ := c.KeyFor("https://example.com/x.ts")
	assert.Equal(t, k1, k2)
}

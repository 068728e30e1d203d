package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sourcefetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
allow-remote: true
cache-dir: /var/cache/sourcefetch
request-timeout: 30s
max-body-size: 1048576
download-log-level: info
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.AllowRemote)
	assert.Equal(t, "/var/cache/sourcefetch", cfg.CacheDir)

	setting, err := cfg.CacheSetting()
	require.NoError(t, err)
	assert.False(t, setting.IsOnly())
}

func TestLoadReloadSome(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
allow-remote: true
cache-mode: reload-some
reload-some:
  - https://example.com/a/
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a/"}, cfg.ReloadSome)

	_, err = cfg.CacheSetting()
	require.NoError(t, err)
}

func TestLoadUnrecognizedCacheMode(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "cache-mode: bogus\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.CacheSetting()
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewFetcherWiresProxiesAndCache(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, fmt.Sprintf(`
allow-remote: true
cache-dir: %s
request-timeout: 5s
max-body-size: 1024
download-log-level: warn
proxies:
  - http://127.0.0.1:9
`, filepath.Join(t.TempDir(), "cache")))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"http://127.0.0.1:9"}, cfg.Proxies)

	f, closeFn, err := cfg.NewFetcher()
	require.NoError(t, err)
	require.NotNil(t, f)
	defer closeFn()
}

func TestNewFetcherRequiresCacheDir(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "allow-remote: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	_, _, err = cfg.NewFetcher()
	assert.Error(t, err)
}

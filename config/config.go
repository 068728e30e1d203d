// Package config loads Fetcher construction options from YAML, the way
// the teacher's fetch.Options struct tags and loads its own settings
// (SPEC_FULL.md, AMBIENT STACK: Configuration).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shiroyk/ski-ext/sourcefetch"
	"github.com/shiroyk/ski-ext/sourcefetch/cachesetting"
	"github.com/shiroyk/ski-ext/sourcefetch/fetch"
	"github.com/shiroyk/ski-ext/sourcefetch/httpcache/leveldb"
)

// CacheMode is the YAML-friendly spelling of a cachesetting.Setting kind;
// the persistent-cache dir and reload-some prefix list are plain
// top-level fields instead of nesting under the variant, matching the
// teacher's flat struct-tag convention.
type CacheMode string

const (
	CacheUse            CacheMode = "use"
	CacheReloadAll      CacheMode = "reload-all"
	CacheReloadSome     CacheMode = "reload-some"
	CacheRespectHeaders CacheMode = "respect-headers"
	CacheOnly           CacheMode = "only"
)

// Config is the on-disk shape of a Fetcher's construction options.
type Config struct {
	AllowRemote      bool          `yaml:"allow-remote"`
	CacheMode        CacheMode     `yaml:"cache-mode"`
	ReloadSome       []string      `yaml:"reload-some,omitempty"`
	CacheDir         string        `yaml:"cache-dir"`
	RequestTimeout   time.Duration `yaml:"request-timeout"`
	MaxBodySize      int64         `yaml:"max-body-size"`
	DownloadLogLevel string        `yaml:"download-log-level"`
	Proxies          []string      `yaml:"proxies,omitempty"`
}

// Load reads and parses a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// CacheSetting converts the YAML-friendly CacheMode into a
// cachesetting.Setting, applying ReloadSome's prefix list only when
// CacheMode is "reload-some".
func (c *Config) CacheSetting() (cachesetting.Setting, error) {
	switch c.CacheMode {
	case "", CacheUse:
		return cachesetting.Use(), nil
	case CacheReloadAll:
		return cachesetting.ReloadAll(), nil
	case CacheReloadSome:
		return cachesetting.ReloadSome(c.ReloadSome), nil
	case CacheRespectHeaders:
		return cachesetting.RespectHeaders(), nil
	case CacheOnly:
		return cachesetting.Only(), nil
	default:
		return cachesetting.Setting{}, fmt.Errorf("config: unrecognized cache-mode %q", c.CacheMode)
	}
}

// NewFetcher builds a *sourcefetch.Fetcher from c: opens the leveldb
// persistent cache at CacheDir, constructs a fetch.Client honoring
// RequestTimeout/MaxBodySize, and carries Proxies through to the round-
// robin proxy rotation every remote fetch uses (fetch.WithRoundRobinProxy,
// consulted via fetch.DefaultRoundTripper's Proxy func). The returned
// close func releases the leveldb handle.
func (c *Config) NewFetcher() (f *sourcefetch.Fetcher, closeFn func() error, err error) {
	setting, err := c.CacheSetting()
	if err != nil {
		return nil, nil, err
	}

	if c.CacheDir == "" {
		return nil, nil, fmt.Errorf("config: cache-dir is required")
	}
	cache, err := leveldb.New(c.CacheDir)
	if err != nil {
		return nil, nil, err
	}

	client := fetch.NewClient(fetch.Options{
		MaxBodySize: c.MaxBodySize,
		Timeout:     c.RequestTimeout,
	})

	fetcher := sourcefetch.New(sourcefetch.Options{
		AllowRemote:  c.AllowRemote,
		CacheSetting: setting,
		HTTPCache:    cache,
		Client:       client,
		Proxies:      c.Proxies,
	})

	if c.DownloadLogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.DownloadLogLevel)); err != nil {
			_ = cache.Close()
			return nil, nil, fmt.Errorf("config: download-log-level: %w", err)
		}
		fetcher.SetDownloadLogLevel(level)
	}

	return fetcher, cache.Close, nil
}

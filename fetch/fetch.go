// Package fetch provides the HTTP transport the single-shot fetcher (spec
// §4.3) builds each attempt on: connection pooling/HTTP2 via a uTLS-backed
// RoundTripper, proxy rotation, response Content-Encoding decompression,
// and charset transcoding of the body. Redirect-following and retry are
// deliberately not this package's concern — the fetch orchestrator owns
// both (spec §4.3, §4.6), so callers configure the embedded *http.Client's
// CheckRedirect themselves.
package fetch

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/shiroyk/ski-ext/sourcefetch/fetch/http2"
)

// Client wraps *http.Client with response body post-processing: content
// decompression and, unless disabled, charset-to-UTF-8 transcoding.
type Client struct {
	*http.Client
	charsetDetectDisabled bool
	maxBodySize           int64
}

const (
	// DefaultMaxBodySize is the default response body size limit.
	DefaultMaxBodySize int64 = 1024 * 1024 * 1024
	// DefaultTimeout is the default overall request timeout.
	DefaultTimeout = time.Minute
)

// DefaultHeaders are the request headers applied by callers that want a
// browser-like default profile; the single-shot fetcher sets its own
// narrower set per spec §4.3 instead of using these directly.
var DefaultHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Encoding": "gzip, deflate, br",
	"Accept-Language": "en-US,en;",
}

// Options configures a Client.
type Options struct {
	CharsetDetectDisabled bool              `yaml:"charset-detect-disabled"`
	MaxBodySize           int64             `yaml:"max-body-size"`
	Timeout               time.Duration     `yaml:"timeout"`
	RoundTripper          http.RoundTripper `yaml:"-"`
	Jar                   *cookiejar.Jar    `yaml:"-"`
}

// NewClient returns a new Client with the given Options, defaulting
// MaxBodySize, Timeout, and the RoundTripper when left zero.
func NewClient(opt Options) *Client {
	c := &Client{
		charsetDetectDisabled: opt.CharsetDetectDisabled,
		maxBodySize:           zeroOr(opt.MaxBodySize, DefaultMaxBodySize),
	}

	timeout := zeroOr(opt.Timeout, DefaultTimeout)

	transport := opt.RoundTripper
	if transport == nil {
		transport = DefaultRoundTripper()
	}

	c.Client = &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
	if opt.Jar != nil {
		c.Client.Jar = opt.Jar
	}
	return c
}

func zeroOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

// DefaultRoundTripper returns the default HTTP/2-capable, proxy-aware
// RoundTripper new Clients use unless one is supplied in Options.
func DefaultRoundTripper() http.RoundTripper {
	return http2.ConfigureTransports(&http.Transport{
		Proxy: ProxyFromRequest,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	})
}

// Do sends req and post-processes the response body: Content-Encoding
// decompression followed by, unless disabled, charset transcoding
// informed by the response's Content-Type. This is the convenience path
// for general-purpose callers (such as DoString and DoByte) that want
// ready-to-use UTF-8 text.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	res, err := c.DoRaw(req)
	if err != nil {
		return nil, err
	}

	if req.Method != http.MethodHead && res.ContentLength != 0 && !c.charsetDetectDisabled {
		contentType := res.Header.Get("Content-Type")
		bodyReader, err := charset.NewReader(res.Body, contentType)
		if err != nil {
			return nil, fmt.Errorf("fetch: charset detection error on content-type %s: %w", contentType, err)
		}
		res.Body = io.NopCloser(bodyReader)
	}

	return res, nil
}

// DoRaw sends req and applies only Content-Encoding decompression,
// leaving the body's charset untouched. The single-shot fetcher (spec
// §4.3) uses this: charset resolution and decoding are the Content-Type
// Resolver and Byte Decoder's job, layered on top of the raw bytes this
// returns.
func (c *Client) DoRaw(req *http.Request) (*http.Response, error) {
	res, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}

	bodyReader := io.LimitReader(res.Body, c.maxBodySize)

	if req.Method != http.MethodHead {
		if encoding := res.Header.Get("Content-Encoding"); encoding != "" {
			bodyReader, err = DecodeReader(encoding, bodyReader)
			if err != nil {
				return nil, err
			}
		}
	}
	res.Body = io.NopCloser(bodyReader)

	return res, nil
}

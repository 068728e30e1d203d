package sourcefetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/shiroyk/ski-ext/sourcefetch/fetch"
)

// fetchOnceKind discriminates the outcome of a single, non-redirecting
// HTTP attempt (spec §4.3, FetchOnceResult).
type fetchOnceKind int

const (
	kindCode fetchOnceKind = iota
	kindNotModified
	kindRedirect
	kindTransientError
	kindServerError
)

// fetchOnceResult is the FetchOnceResult tagged variant of spec §4.3.
// Only the fields relevant to kind are meaningful: body and headers for
// kindCode, redirectTo and headers for kindRedirect, message for
// kindTransientError, status for kindServerError.
type fetchOnceResult struct {
	kind fetchOnceKind

	body    []byte
	headers map[string]string

	redirectTo string

	message string
	status  int
}

// fetchOnce performs one GET with redirects disabled, classifying the
// outcome per spec §4.3. It never returns a non-nil error for 5xx or
// transient transport failures — those come back as fetchOnceResult
// values the caller's retry loop interprets. A non-nil error return is
// always fatal: a 4xx response, a transport error that is not of the
// connect/timeout class, an invalid redirect target, a body read failure,
// or a request-construction failure.
func fetchOnce(ctx context.Context, client *fetch.Client, logger *slog.Logger, rawURL, accept, ifNoneMatch, authorization string) (fetchOnceResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchOnceResult{}, newError(URI, rawURL, "invalid request", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	res, err := client.DoRaw(req)
	if err != nil {
		if isTransientError(err) {
			return fetchOnceResult{kind: kindTransientError, message: err.Error()}, nil
		}
		return fetchOnceResult{}, newError(Http, rawURL, "request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotModified {
		return fetchOnceResult{kind: kindNotModified}, nil
	}

	headers := captureHeaders(res.Header)
	if warning := res.Header.Get("X-Deno-Warning"); warning != "" {
		logger.Warn("download warning", "specifier", rawURL, "warning", warning)
	}

	switch {
	case res.StatusCode >= 300 && res.StatusCode < 400:
		target, err := resolveRedirect(rawURL, res)
		if err != nil {
			return fetchOnceResult{}, newError(URI, rawURL, "invalid redirect target", err)
		}
		return fetchOnceResult{kind: kindRedirect, redirectTo: target, headers: headers}, nil

	case res.StatusCode >= 500:
		return fetchOnceResult{kind: kindServerError, status: res.StatusCode}, nil

	case res.StatusCode == http.StatusNotFound:
		return fetchOnceResult{}, newError(NotFound, rawURL, "not found", nil)

	case res.StatusCode >= 400:
		return fetchOnceResult{}, newError(Http, rawURL, http.StatusText(res.StatusCode), nil)

	default:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return fetchOnceResult{}, newError(Http, rawURL, "reading response body", err)
		}
		return fetchOnceResult{kind: kindCode, body: body, headers: headers}, nil
	}
}

// captureHeaders lowercases header names and comma-joins repeated values
// in the response's iteration order (spec §4.3).
func captureHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		out[strings.ToLower(key)] = strings.Join(values, ",")
	}
	return out
}

// resolveRedirect resolves the response's Location header against the
// request URL, supporting relative targets (spec's supplemental
// resolve_redirect_from_response behavior).
func resolveRedirect(rawURL string, res *http.Response) (string, error) {
	loc := res.Header.Get("Location")
	if loc == "" {
		return "", errors.New("redirect response missing Location header")
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	target, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(target).String(), nil
}

// isTransientError classifies a transport-level error as a connect or
// timeout class failure (spec §4.3: "if the underlying error is a
// connect or timeout class, classify as TransientRequestError").
func isTransientError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || isConnectError(err)
	}
	return isConnectError(err)
}

func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

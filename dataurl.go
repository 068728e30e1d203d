package sourcefetch

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/shiroyk/ski-ext/sourcefetch/mediatype"
)

// fetchDataURL decodes specifier as a data: URL (RFC 2397) into an
// Artifact, synchronously (spec §4.6). No pack library models this
// narrow, spec-specific grammar, so it is implemented directly against
// net/url + encoding/base64 — see DESIGN.md.
func fetchDataURL(specifier string) (*Artifact, error) {
	data, contentType, err := decodeDataURL(specifier)
	if err != nil {
		return nil, newError(URI, specifier, "invalid data URL", err)
	}

	mt, charset := mediatype.Resolve(specifier, contentType)
	text, err := decodeBytes(data, charset, false)
	if err != nil {
		return nil, newError(Encoding, specifier, "decoding data URL contents", err)
	}

	return &Artifact{
		FinalSpecifier: specifier,
		MediaType:      mt,
		SourceText:     text,
		Headers:        map[string]string{"content-type": contentType},
	}, nil
}

// decodeDataURL parses "data:[<mediatype>][;base64],<data>" returning the
// decoded payload and the mediatype string (defaulting per RFC 2397 to
// "text/plain;charset=US-ASCII" when omitted).
func decodeDataURL(specifier string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(specifier, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URL: %q", specifier)
	}

	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, "", fmt.Errorf("missing comma in data URL")
	}
	meta, payload := rest[:comma], rest[comma+1:]

	isBase64 := false
	if strings.HasSuffix(meta, ";base64") {
		isBase64 = true
		meta = strings.TrimSuffix(meta, ";base64")
	}

	contentType := meta
	if contentType == "" {
		contentType = "text/plain;charset=US-ASCII"
	}

	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
		}
		return decoded, contentType, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid percent-encoded payload: %w", err)
	}
	return []byte(decoded), contentType, nil
}

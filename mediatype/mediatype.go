// Package mediatype resolves the media type and charset of a source
// specifier from its path suffix and, when present, a response
// Content-Type header.
package mediatype

import (
	"net/url"
	"path"
	"strings"
)

// MediaType is a tagged enumeration of the source kinds the fetcher
// recognizes. Unlike a bare string, it can be switched on exhaustively by
// callers that need to decide how to treat the fetched source.
type MediaType int

const (
	Unknown MediaType = iota
	JavaScript
	Mjs
	Cjs
	Jsx
	TypeScript
	Mts
	Cts
	Tsx
	Json
	Wasm
	PlainText
	SourceMap
	Html
	Css
)

func (m MediaType) String() string {
	switch m {
	case JavaScript:
		return "JavaScript"
	case Mjs:
		return "Mjs"
	case Cjs:
		return "Cjs"
	case Jsx:
		return "Jsx"
	case TypeScript:
		return "TypeScript"
	case Mts:
		return "Mts"
	case Cts:
		return "Cts"
	case Tsx:
		return "Tsx"
	case Json:
		return "Json"
	case Wasm:
		return "Wasm"
	case PlainText:
		return "PlainText"
	case SourceMap:
		return "SourceMap"
	case Html:
		return "Html"
	case Css:
		return "Css"
	default:
		return "Unknown"
	}
}

// IsJSFamily reports whether m is one of the JavaScript-ish media types for
// which a declared `x-typescript-types` header is honored (spec §4.6).
func (m MediaType) IsJSFamily() bool {
	switch m {
	case JavaScript, Mjs, Cjs, Jsx:
		return true
	default:
		return false
	}
}

// fromSuffix derives a MediaType solely from a specifier's path suffix.
func fromSuffix(specifier string) MediaType {
	u, err := url.Parse(specifier)
	p := specifier
	if err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".ts":
		return TypeScript
	case ".mts":
		return Mts
	case ".cts":
		return Cts
	case ".tsx":
		return Tsx
	case ".js":
		return JavaScript
	case ".mjs":
		return Mjs
	case ".cjs":
		return Cjs
	case ".jsx":
		return Jsx
	case ".json":
		return Json
	case ".wasm":
		return Wasm
	case ".map":
		return SourceMap
	case ".html", ".htm":
		return Html
	case ".css":
		return Css
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}

// fromContentType maps the first, trimmed token of a Content-Type header
// value to a MediaType. When the path suffix is unambiguous (e.g. `.ts`)
// it takes precedence over a generic `application/javascript` label, the
// same tie-break `map_content_type` in the original file fetcher applies.
func fromContentType(specifier, contentType string) MediaType {
	bySuffix := fromSuffix(specifier)

	switch contentType {
	case "application/typescript", "text/typescript", "video/vnd.dlna.mpeg-tts", "video/mp2t", "application/x-typescript":
		if bySuffix == Mts || bySuffix == Cts || bySuffix == Tsx {
			return bySuffix
		}
		return TypeScript
	case "application/javascript", "text/javascript", "application/ecmascript", "text/ecmascript", "application/x-javascript":
		switch bySuffix {
		case TypeScript, Mts, Cts, Tsx, Mjs, Cjs, Jsx:
			return bySuffix
		default:
			return JavaScript
		}
	case "text/jsx":
		return Jsx
	case "text/tsx":
		return Tsx
	case "application/json", "text/json":
		return Json
	case "application/wasm":
		return Wasm
	case "text/plain":
		if bySuffix != Unknown {
			return bySuffix
		}
		return PlainText
	case "text/html":
		return Html
	case "text/css":
		return Css
	default:
		if bySuffix != Unknown {
			return bySuffix
		}
		return Unknown
	}
}

// Resolve derives the media type and, when present in the Content-Type
// header value, the charset for specifier. When contentType is empty, the
// media type is derived solely from specifier's path suffix and no charset
// is reported, per spec §4.2.
func Resolve(specifier, contentType string) (mt MediaType, charset string) {
	if contentType == "" {
		return fromSuffix(specifier), ""
	}

	parts := strings.Split(contentType, ";")
	head := strings.TrimSpace(parts[0])
	mt = fromContentType(specifier, head)

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if rest, ok := strings.CutPrefix(part, "charset="); ok {
			charset = strings.Trim(rest, `"`)
			break
		}
	}
	return mt, charset
}

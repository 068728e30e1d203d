// Package textdecode converts raw response or file bytes into UTF-8 text,
// the Byte Decoder component of the source fetcher (spec §4.1).
package textdecode

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// Decode converts bytes to a UTF-8 string. When label is non-empty and
// recognized, bytes are transcoded from that charset; an unrecognized
// label or an undecodable byte sequence is an error. When label is empty,
// bytes are required to already be valid UTF-8.
func Decode(bytes []byte, label string) (string, error) {
	if label == "" {
		if !utf8.Valid(bytes) {
			return "", fmt.Errorf("textdecode: invalid UTF-8 sequence")
		}
		return string(bytes), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", fmt.Errorf("textdecode: unrecognized charset %q: %w", label, err)
	}

	decoded, err := enc.NewDecoder().Bytes(bytes)
	if err != nil {
		return "", fmt.Errorf("textdecode: charset %q decode error: %w", label, err)
	}
	if !utf8.Valid(decoded) {
		return "", fmt.Errorf("textdecode: charset %q produced invalid UTF-8", label)
	}
	return string(decoded), nil
}

// DetectCharset guesses a charset label from a BOM or short byte prefix,
// for inputs with no charset known a priori (local files, per spec §4.1).
// The guess is advisory only: callers still fall back to strict UTF-8 on
// decode failure of the guessed label.
func DetectCharset(bytes []byte) string {
	switch {
	case hasBOM(bytes, 0xEF, 0xBB, 0xBF):
		return "utf-8"
	case hasBOM(bytes, 0xFE, 0xFF):
		return "utf-16be"
	case hasBOM(bytes, 0xFF, 0xFE):
		return "utf-16le"
	}

	// Look at a short prefix the way html/charset's determineEncoding does
	// for content lacking a declared charset, falling back to no guess
	// (caller should then attempt strict UTF-8).
	prefixLen := len(bytes)
	if prefixLen > 1024 {
		prefixLen = 1024
	}
	_, name, certain := charset.DetermineEncoding(bytes[:prefixLen], "")
	if certain && name != "" {
		return name
	}
	return ""
}

func hasBOM(b []byte, prefix ...byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if b[i] != p {
			return false
		}
	}
	return true
}

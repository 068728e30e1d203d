package sourcefetch

import "github.com/shiroyk/ski-ext/sourcefetch/textdecode"

// decodeBytes implements the Byte Decoder (C1, spec §4.1). When charset is
// non-empty it is authoritative (derived from a Content-Type header by the
// Content-Type Resolver). When charset is empty and detect is true — only
// local files have no a-priori charset — a BOM/heuristic guess is tried
// first; the guess is advisory only, so a failed decode of the guessed
// label falls back to strict UTF-8 rather than surfacing the guess's
// error.
func decodeBytes(bytes []byte, charset string, detect bool) (string, error) {
	if charset == "" && detect {
		if guess := textdecode.DetectCharset(bytes); guess != "" {
			if text, err := textdecode.Decode(bytes, guess); err == nil {
				return text, nil
			}
		}
	}
	return textdecode.Decode(bytes, charset)
}

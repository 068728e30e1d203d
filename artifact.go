package sourcefetch

import "github.com/shiroyk/ski-ext/sourcefetch/mediatype"

// Artifact is the fully materialized result of a successful fetch (spec
// §3, SourceArtifact): immutable once returned, and the same value the
// session cache hands back on a repeat fetch of a non-file specifier.
type Artifact struct {
	// FinalSpecifier is the specifier after following all redirects.
	FinalSpecifier string
	// MediaType is the resolved media type of the source.
	MediaType mediatype.MediaType
	// SourceText is the decoded, always-valid-UTF-8 source text.
	SourceText string
	// DeclaredTypesSpecifier is the x-typescript-types response header
	// value, present only for JS-family media types.
	DeclaredTypesSpecifier string
	// Headers is the lowercased, comma-joined response header map,
	// present only for non-local origins (spec §3).
	Headers map[string]string
}

package sourcefetch

import (
	"fmt"
	"net/url"
	"os"

	"github.com/shiroyk/ski-ext/sourcefetch/mediatype"
)

// fetchLocal reads specifier ("file://...") fresh off disk, synchronously
// (spec §4.6, §5: fetchLocal must not suspend). Local reads are never
// session-cached so on-disk edits are observed on every fetch (spec §4.5,
// §8).
func fetchLocal(specifier string) (*Artifact, error) {
	path, err := filePathFromSpecifier(specifier)
	if err != nil {
		return nil, newError(URI, specifier, "invalid file path", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(URI, specifier, "reading file", err)
	}

	text, err := decodeBytes(data, "", true)
	if err != nil {
		return nil, newError(Encoding, specifier, "decoding file contents", err)
	}

	mt, _ := mediatype.Resolve(specifier, "")
	return &Artifact{
		FinalSpecifier: specifier,
		MediaType:      mt,
		SourceText:     text,
	}, nil
}

func filePathFromSpecifier(specifier string) (string, error) {
	u, err := url.Parse(specifier)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file specifier: %q", specifier)
	}
	if u.Path == "" {
		return "", fmt.Errorf("empty file path in specifier: %q", specifier)
	}
	return u.Path, nil
}

package sourcefetch

import (
	"github.com/shiroyk/ski-ext/sourcefetch/blobstore"
	"github.com/shiroyk/ski-ext/sourcefetch/mediatype"
)

// fetchBlobURL resolves specifier against store, synchronously (spec
// §4.6; the blob body read is itself synchronous in Go, unlike the
// original's async BlobStore).
func fetchBlobURL(store *blobstore.Store, specifier string) (*Artifact, error) {
	blob, ok := store.GetObjectURL(specifier)
	if !ok {
		return nil, newError(NotFound, specifier, "blob URL not found", nil)
	}

	data, err := blob.ReadAll()
	if err != nil {
		return nil, newError(Encoding, specifier, "reading blob contents", err)
	}

	mt, charset := mediatype.Resolve(specifier, blob.MediaType)
	text, err := decodeBytes(data, charset, false)
	if err != nil {
		return nil, newError(Encoding, specifier, "decoding blob contents", err)
	}

	return &Artifact{
		FinalSpecifier: specifier,
		MediaType:      mt,
		SourceText:     text,
		Headers:        map[string]string{"content-type": blob.MediaType},
	}, nil
}

package fetch

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// DoString sends req and reads the response body as a string.
func DoString(c *Client, req *http.Request) (string, error) {
	body, err := DoByte(c, req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DoByte sends req and reads the full response body.
func DoByte(c *Client, req *http.Request) ([]byte, error) {
	res, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	return io.ReadAll(res.Body)
}

// DecodeReader decodes Content-Encoding (gzip, deflate, br) encodings,
// applied in the order listed by the header.
func DecodeReader(encoding string, reader io.Reader) (io.Reader, error) {
	bodyReader := reader
	var err error
	for _, encode := range strings.Split(encoding, ",") {
		switch strings.TrimSpace(encode) {
		case "deflate":
			bodyReader, err = zlib.NewReader(bodyReader)
		case "gzip":
			bodyReader, err = gzip.NewReader(bodyReader)
		case "br":
			bodyReader = brotli.NewReader(bodyReader)
		default:
			err = fmt.Errorf("unsupported compression type %s", encode)
		}
		if err != nil {
			return nil, err
		}
	}
	return bodyReader, nil
}

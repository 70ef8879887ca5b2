package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// isGzip reports whether the response body is gzip encoded.
func isGzip(header http.Header) bool {
	for _, v := range header.Values("Content-Encoding") {
		if strings.EqualFold(strings.TrimSpace(v), "gzip") {
			return true
		}
	}
	return false
}

// gunzip decompresses a complete gzip body.
func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pipeline: gzip header: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("pipeline: gzip body: %w", err)
	}
	return out, nil
}

// Package compress implements the gzip payload codec.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Extension is appended to the payload name of compressed backups.
const Extension = ".gz"

// DefaultThreshold is the size above which payloads are compressed when
// compression is enabled (100 KiB).
const DefaultThreshold int64 = 100 * 1024

// ShouldCompress reports whether a payload of size bytes should be compressed.
// Only sizes strictly above threshold qualify.
func ShouldCompress(size, threshold int64) bool {
	return size > threshold
}

// Compress returns the gzip encoding of data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}

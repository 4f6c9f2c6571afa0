// Package checksum computes the content digests recorded for every backup.
//
// Two digests are always produced over the raw, uncompressed bytes:
// SHA-256 (strong) and MD5 (fast). Both are compared during verification.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Digest holds the hex-encoded digests of a piece of content.
type Digest struct {
	Strong string // SHA-256
	Fast   string // MD5
}

// Sum computes both digests over data.
func Sum(data []byte) Digest {
	strong := sha256.Sum256(data)
	fast := md5.Sum(data)
	return Digest{
		Strong: hex.EncodeToString(strong[:]),
		Fast:   hex.EncodeToString(fast[:]),
	}
}

// SumReader computes both digests over everything read from r and
// returns the number of bytes consumed.
func SumReader(r io.Reader) (Digest, int64, error) {
	strong := sha256.New()
	fast := md5.New()

	n, err := io.Copy(io.MultiWriter(strong, fast), r)
	if err != nil {
		return Digest{}, n, fmt.Errorf("hashing content: %w", err)
	}

	return Digest{
		Strong: hex.EncodeToString(strong.Sum(nil)),
		Fast:   hex.EncodeToString(fast.Sum(nil)),
	}, n, nil
}

// SHA256 returns the hex-encoded SHA-256 of data.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Match reports which of the two digests differ from want.
// An empty want field is not compared.
func (d Digest) Match(want Digest) error {
	if want.Strong != "" && d.Strong != want.Strong {
		return fmt.Errorf("sha256 mismatch: got %s, want %s", d.Strong, want.Strong)
	}
	if want.Fast != "" && d.Fast != want.Fast {
		return fmt.Errorf("md5 mismatch: got %s, want %s", d.Fast, want.Fast)
	}
	return nil
}

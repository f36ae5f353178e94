// Package hashing computes the content hashes that key deduplication and
// integrity checks.
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
)

// Sums holds the two content digests of one upload: MD5 is the dedup key,
// SHA-1 is stored for integrity verification.
type Sums struct {
	MD5  string
	SHA1 string
}

// Stream consumes r in a single pass and returns both digests. Memory use is
// bounded regardless of input size; nothing is buffered beyond the copy window.
func Stream(r io.Reader) (Sums, int64, error) {
	md5h := md5.New()
	sha1h := sha1.New()
	n, err := io.Copy(io.MultiWriter(md5h, sha1h), r)
	if err != nil {
		return Sums{}, 0, fmt.Errorf("hash stream: %w", err)
	}
	return Sums{
		MD5:  hex.EncodeToString(md5h.Sum(nil)),
		SHA1: hex.EncodeToString(sha1h.Sum(nil)),
	}, n, nil
}


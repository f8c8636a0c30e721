// Package checksum derives stable digests for content and storage keys.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FileName maps an arbitrary key to a file name safe for any file system.
func FileName(key, ext string) string {
	return Sum([]byte(key)) + ext
}

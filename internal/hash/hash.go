package hash

import (
	"crypto/sha256"
	"encoding/base64"
)

// Code fingerprints the exact submitted byte sequence:
// base64(SHA-256(code)). No normalization is applied; two sources that
// differ in whitespace or line endings hash differently.
func Code(code []byte) string {
	sum := sha256.Sum256(code)
	return base64.StdEncoding.EncodeToString(sum[:])
}

package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is the number of hex characters kept by Short.
const shortLen = 7

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns an abbreviated digest of s, suitable for disambiguating file names.
func Short(s string) string {
	return Sum([]byte(s))[:shortLen]
}

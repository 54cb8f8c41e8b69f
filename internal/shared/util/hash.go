package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashKey returns a hex sha256 over the parts joined by a NUL separator.
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

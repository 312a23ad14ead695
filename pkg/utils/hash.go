package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns a short stable digest for cache keys and vector IDs.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}

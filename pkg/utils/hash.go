package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
)

// HashString returns a short md5 hex digest, used for cache keys.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// ContentHash fingerprints document content for embedding staleness checks.
func ContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}

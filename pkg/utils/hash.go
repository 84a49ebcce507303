package utils

import (
	"crypto/md5"
	"fmt"
)

// HashString produces the cache key digest used for embedding lookups.
// Not for anything security-sensitive.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

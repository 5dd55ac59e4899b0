// Package cache provides the memory and on-disk layers used to memoize
// embeddings and literature lookups.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a namespaced cache key from arbitrary parts.
// Parts are joined with a separator that cannot appear in a hex digest,
// so ("ab","c") and ("a","bc") never collide.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return "veracity:v1:" + strings.ToLower(namespace) + ":" + hex.EncodeToString(h.Sum(nil))
}

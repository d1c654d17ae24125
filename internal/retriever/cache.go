package retriever

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded LRU over RetrievalResult, keyed by
// (hash(query), k, weights, index fingerprint). It is invalidated wholesale
// on index reload, since a new fingerprint naturally misses every existing
// key and Invalidate() drops stale entries outright.
type Cache struct {
	inner *lru.LRU[string, *RetrievalResult]
}

// NewCache creates a Cache with the given capacity and optional TTL. A
// size of 0 or less yields a Cache that never stores anything (Get always
// misses, Put is a no-op) so callers can treat caching as always-safe to
// disable via config.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return &Cache{}
	}
	return &Cache{inner: lru.NewLRU[string, *RetrievalResult](size, nil, ttl)}
}

// Key computes the cache key for a query, k, weights, and index fingerprint.
func Key(query string, k int, weights Weights, indexFingerprint string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s:%d:%.4f:%.4f:%s", hex.EncodeToString(sum[:]), k, weights.Vector, weights.Lexical, indexFingerprint)
}

// Get returns the cached RetrievalResult for key, if present.
func (c *Cache) Get(key string) (*RetrievalResult, bool) {
	if c == nil || c.inner == nil {
		return nil, false
	}
	return c.inner.Get(key)
}

// Put stores a RetrievalResult under key.
func (c *Cache) Put(key string, result *RetrievalResult) {
	if c == nil || c.inner == nil {
		return
	}
	c.inner.Add(key, result)
}

// Invalidate drops every cached entry. Called on index reload, since every
// cached result was computed against the now-stale index fingerprint.
func (c *Cache) Invalidate() {
	if c == nil || c.inner == nil {
		return
	}
	c.inner.Purge()
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	if c == nil || c.inner == nil {
		return 0
	}
	return c.inner.Len()
}

package embedder

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the in-memory vector cache.
const DefaultCacheSize = 10000

// Cache provides in-memory LRU caching of vectors by content hash. It sits
// in front of the persistent embedding cache and dedups repeat lookups
// within a sync pass.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Only reachable with a non-positive size, which is guarded above
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get retrieves a copy of a cached vector. Returning a copy prevents
// caller mutations from polluting the cache.
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector with automatic LRU eviction.
func (c *Cache) Set(hash string, vector []float32) {
	c.cache.Add(hash, vector)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

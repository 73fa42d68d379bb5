package searcher

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

const (
	// DefaultQueryCacheSize bounds how many query results are retained.
	DefaultQueryCacheSize = 512

	// DefaultQueryTTL is how long a cached result stays valid. Expiry is
	// checked by the reader; the LRU only bounds entry count.
	DefaultQueryTTL = 60 * time.Second
)

// cacheEntry pairs results with their expiry time.
type cacheEntry struct {
	results   []types.SearchResult
	expiresAt time.Time
}

// QueryCache is a bounded LRU of recent search results. It is injected
// into the searcher rather than owned by it, so tests and callers control
// its size, TTL and lifetime.
type QueryCache struct {
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

// NewQueryCache creates a query cache. Non-positive size or ttl fall back
// to the defaults.
func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		cache, _ = lru.New[string, cacheEntry](DefaultQueryCacheSize)
	}
	return &QueryCache{cache: cache, ttl: ttl}
}

// Get returns unexpired cached results for the key. An expired entry is
// evicted and reported as a miss.
func (q *QueryCache) Get(key string) ([]types.SearchResult, bool) {
	entry, ok := q.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		q.cache.Remove(key)
		return nil, false
	}
	out := make([]types.SearchResult, len(entry.results))
	copy(out, entry.results)
	return out, true
}

// Set stores results under the key with a fresh expiry.
func (q *QueryCache) Set(key string, results []types.SearchResult) {
	stored := make([]types.SearchResult, len(results))
	copy(stored, results)
	q.cache.Add(key, cacheEntry{
		results:   stored,
		expiresAt: time.Now().Add(q.ttl),
	})
}

// Purge drops every cached query. Called after a sync pass lands new data.
func (q *QueryCache) Purge() {
	q.cache.Purge()
}

// Len returns the number of cached queries, expired entries included.
func (q *QueryCache) Len() int {
	return q.cache.Len()
}

// cacheKey builds the lookup key for a query and limit.
func cacheKey(query string, limit int) string {
	return fmt.Sprintf("%d:%s", limit, query)
}

// Package quote provides time-bounded quote caching and quote fetching with
// venue fallback and adaptive backoff.
package quote

import (
	"sync"
	"time"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

// stockRight is the sentinel distinguishing the underlying's cache entry
// from option entries.
const stockRight models.Right = "STK"

// Key is the composite cache identity for one contract.
type Key struct {
	Symbol string
	Expiry string // YYYYMMDD, empty for the underlying
	Strike float64
	Right  models.Right
}

// OptionKey builds the cache key for an option contract.
func OptionKey(symbol, expiry string, strike float64, right models.Right) Key {
	return Key{Symbol: symbol, Expiry: expiry, Strike: strike, Right: right}
}

// StockKey builds the sentinel cache key for the underlying stock.
func StockKey(symbol string) Key {
	return Key{Symbol: symbol, Right: stockRight}
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Expired       int64   `json:"expired"`
	TotalRequests int64   `json:"total_requests"`
	HitRate       float64 `json:"hit_rate"`
	Size          int     `json:"size"`
}

type cacheEntry struct {
	quote   *models.Quote
	created time.Time
}

// Cache memoizes quotes for a bounded TTL to keep call volume to the data
// source in check. All state, counters included, sits behind one mutex so
// the parallel fetch mode can share an instance.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Key]cacheEntry
	now     func() time.Time

	hits          int64
	misses        int64
	expired       int64
	totalRequests int64
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[Key]cacheEntry),
		now:     time.Now,
	}
}

// NewCacheWithClock creates a cache with an injected clock for deterministic tests.
func NewCacheWithClock(ttl time.Duration, now func() time.Time) *Cache {
	c := NewCache(ttl)
	c.now = now
	return c
}

// Get returns a copy of the cached quote if present and younger than the TTL.
// An entry past its TTL is evicted and counted as an expiration, not a miss.
func (c *Cache) Get(key Key) (*models.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if c.now().Sub(entry.created) > c.ttl {
		delete(c.entries, key)
		c.expired++
		return nil, false
	}

	c.hits++
	return entry.quote.Clone(), true
}

// Put stores a copy of the quote, overwriting any existing entry.
func (c *Cache) Put(key Key, q *models.Quote) {
	if q == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{quote: q.Clone(), created: c.now()}
}

// Clear drops all cached entries. Counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]cacheEntry)
}

// SweepExpired eagerly removes every entry past its TTL and returns the count.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.created) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Hits:          c.hits,
		Misses:        c.misses,
		Expired:       c.expired,
		TotalRequests: c.totalRequests,
		Size:          len(c.entries),
	}
	if stats.TotalRequests > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalRequests) * 100
	}
	return stats
}

// ResetStats zeroes the counters without touching cached entries.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.expired, c.totalRequests = 0, 0, 0, 0
}

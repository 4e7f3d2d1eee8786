package search

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is a bounded least-recently-used cache mapping a normalized query
// signature to a fully paginated, serialized response page.
//
// The whole get/check/evict/insert sequence for a key runs under one mutex,
// so concurrent queries can never race on the same eviction decision. Lock
// hold time is bounded by map and list operations, never by a backend query.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	maxSize int
	hits    int64
	misses  int64
	logger  *slog.Logger

	onEvict func()
}

type cacheEntry struct {
	key   string
	value []byte
}

// NewCache creates a Cache holding at most maxSize entries.
func NewCache(maxSize int) *Cache {
	return &Cache{
		entries: make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
		logger:  slog.Default().With("component", "response-cache"),
	}
}

// OnEvict registers a hook invoked (under the cache lock) for every LRU
// eviction; used to bump the eviction metric.
func (c *Cache) OnEvict(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Signature derives the deterministic cache key for a query page. mode keeps
// free-text and field-scoped queries with identical terms from colliding.
func Signature(mode, title, author string, page, pageSize int) string {
	raw := fmt.Sprintf("%s|t:%s|a:%s:%d:%d",
		mode,
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(author)),
		page, pageSize,
	)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:16])
}

// Get returns the cached page for the signature, promoting the entry to
// most-recently-used on a hit.
func (c *Cache) Get(signature string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[signature]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cacheEntry).value, true
	}
	c.misses++
	return nil, false
}

// Put stores a page under the signature. An existing key is replaced and
// promoted; a new key at capacity evicts the least-recently-used entry first.
func (c *Cache) Put(signature string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[signature]; ok {
		elem.Value.(*cacheEntry).value = value
		c.lru.MoveToFront(elem)
		return
	}
	if c.lru.Len() >= c.maxSize {
		oldest := c.lru.Back()
		if oldest != nil {
			evicted := oldest.Value.(*cacheEntry)
			delete(c.entries, evicted.key)
			c.lru.Remove(oldest)
			c.logger.Debug("cache evict", "key", evicted.key)
			if c.onEvict != nil {
				c.onEvict()
			}
		}
	}
	c.entries[signature] = c.lru.PushFront(&cacheEntry{key: signature, value: value})
}

// Clear drops every entry and resets the hit/miss counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, c.maxSize)
	c.lru.Init()
	c.hits = 0
	c.misses = 0
	c.logger.Info("cache cleared")
}

// Stats returns current size and hit/miss counters. HitRate is 0 before any
// lookup.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := CacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

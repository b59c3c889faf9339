// Package cache provides an in-process LRU+TTL cache for LLM responses.
//
// The cache is advisory: every internal problem degrades to a miss and
// nothing in this package returns an error to the caller. Entries are
// cloned on the way in and on the way out so callers never share a
// Response value with the cache.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/2ai-cx/llmcore/llm"
	"github.com/rs/zerolog"
)

const (
	// avgEntryBytes is the size estimate used to convert the configured
	// byte budget into an entry capacity. Chat responses with usage and
	// metadata land around this size once cloned.
	avgEntryBytes = 8 * 1024

	megabyte = 1024 * 1024
)

// Stats are the cache observability counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Expirations uint64
	Evictions   uint64
	Entries     int
}

type entry struct {
	key       string
	resp      *llm.Response
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a fixed-capacity LRU cache with per-entry TTL.
//
// All operations share one mutex. LRU recency is a single list shared
// by every key, so per-key locking cannot keep the eviction order
// coherent; the critical sections are pointer moves with no I/O.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	stats    Stats
	logger   zerolog.Logger

	now func() time.Time // injectable for tests
}

// New creates a Cache with the given byte budget and TTL. Capacity is
// derived from maxSizeMB divided by an average-entry-size estimate and
// never drops below one entry.
func New(maxSizeMB int, ttl time.Duration, logger zerolog.Logger) *Cache {
	capacity := maxSizeMB * megabyte / avgEntryBytes
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		logger:   logger.With().Str("component", "response_cache").Logger(),
		now:      time.Now,
	}
}

// Get returns a clone of the cached response for key, marked as served
// from cache, and promotes the entry to most recently used. An expired
// entry is evicted and counts as a miss.
func (c *Cache) Get(key string) (*llm.Response, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	ent := elem.Value.(*entry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(elem)
		c.stats.Expirations++
		c.stats.Misses++
		c.logger.Debug().Str("key", key).Msg("cache entry expired")
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.stats.Hits++

	resp := ent.resp.Clone()
	resp.Cached = true
	return resp, true
}

// Set inserts or overwrites the entry for key with the cache's TTL.
// When at capacity the least-recently-used entry is evicted before the
// insert.
func (c *Cache) Set(key string, resp *llm.Response) {
	if key == "" || resp == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry)
		ent.resp = resp.Clone()
		ent.createdAt = now
		ent.expiresAt = now.Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldestLocked()
	}

	elem := c.order.PushFront(&entry{
		key:       key,
		resp:      resp.Clone(),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	})
	c.entries[key] = elem
}

// Delete removes the entry for key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

// Clear removes all entries. Counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	return s
}

func (c *Cache) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	ent := oldest.Value.(*entry)
	c.removeLocked(oldest)
	c.stats.Evictions++
	c.logger.Debug().Str("key", ent.key).Msg("evicted least recently used entry")
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.entries, ent.key)
}

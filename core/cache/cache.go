// Package cache provides LRU caching for loaded volume content.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a generic LRU cache interface.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache.
	Get(key K) (V, bool)

	// Put stores a value in the cache.
	Put(key K, value V)

	// Remove removes a value from the cache.
	Remove(key K)

	// Clear removes all entries from the cache.
	Clear()

	// Len returns the number of entries in the cache.
	Len() int

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	MaxSize   int
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration

	// OnEvict is called when an entry is evicted.
	OnEvict func(key, value interface{})
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize: 100,
		TTL:     0,
		OnEvict: nil,
	}
}

// entry represents a cache entry.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// lruCache is a thread-safe LRU cache implementation.
type lruCache[K comparable, V any] struct {
	mu        sync.RWMutex
	config    Config
	entries   map[K]*list.Element
	evictList *list.List
	stats     Stats
}

// NewLRUCache creates a new LRU cache with the given configuration.
func NewLRUCache[K comparable, V any](config Config) Cache[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}

	return &lruCache[K, V]{
		config:    config,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	// Check if expired
	e := ent.Value.(*entry[K, V])
	if c.config.TTL > 0 && time.Now().After(e.expiresAt) {
		c.removeElement(ent)
		c.stats.Misses++
		var zero V
		return zero, false
	}

	// Move to front (most recently used)
	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return e.value, true
}

// Put stores a value in the cache.
func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if entry already exists
	if ent, ok := c.entries[key]; ok {
		c.evictList.MoveToFront(ent)
		e := ent.Value.(*entry[K, V])
		e.value = value
		if c.config.TTL > 0 {
			e.expiresAt = time.Now().Add(c.config.TTL)
		}
		return
	}

	// Add new entry
	e := &entry[K, V]{
		key:   key,
		value: value,
	}
	if c.config.TTL > 0 {
		e.expiresAt = time.Now().Add(c.config.TTL)
	}

	ent := c.evictList.PushFront(e)
	c.entries[key] = ent

	// Evict oldest entry if necessary
	if c.config.MaxSize > 0 && c.evictList.Len() > c.config.MaxSize {
		c.removeOldest()
	}
}

// Remove removes a value from the cache.
func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.removeElement(ent)
	}
}

// Clear removes all entries from the cache.
func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
	c.stats.Size = 0
}

// Len returns the number of entries in the cache.
func (c *lruCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evictList.Len()
}

// Stats returns cache statistics.
func (c *lruCache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.config.MaxSize
	return s
}

// removeOldest removes the oldest entry from the cache.
func (c *lruCache[K, V]) removeOldest() {
	ent := c.evictList.Back()
	if ent != nil {
		c.removeElement(ent)
		c.stats.Evictions++
	}
}

// removeElement removes an element from the cache.
func (c *lruCache[K, V]) removeElement(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry[K, V])
	delete(c.entries, e.key)

	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
}

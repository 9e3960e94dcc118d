// Package cache provides a generic in-memory cache used for compiled
// components and rendered public pages.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry represents a cached value.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time // zero means the entry never expires
}

// IsExpired returns true if the entry has expired
func (e *Entry[V]) IsExpired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// Memory is an in-memory cache with optional per-entry TTL.
// It is safe for concurrent use.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[V]

	hits   uint64
	misses uint64

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once // Ensures Stop() is idempotent
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// New creates a cache. A positive cleanupInterval starts a background
// goroutine that evicts expired entries; call Stop to end it.
func New[V any](cleanupInterval time.Duration) *Memory[V] {
	c := &Memory[V]{
		entries:         make(map[string]*Entry[V]),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Get retrieves a value from the cache.
func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists || entry.IsExpired() {
		if exists {
			c.Invalidate(key)
		}
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.Value, true
}

// Set stores a value. A ttl of zero keeps the entry until it is invalidated.
func (c *Memory[V]) Set(key string, value V, ttl time.Duration) {
	entry := &Entry[V]{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. Errors are not cached.
func (c *Memory[V]) GetOrCreate(key string, ttl time.Duration, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Invalidate removes an entry from the cache
func (c *Memory[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (c *Memory[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// InvalidateAll removes all entries from the cache
func (c *Memory[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()
}

// cleanupLoop periodically removes expired entries
func (c *Memory[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries
func (c *Memory[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, key)
		}
	}
}

// Stop stops the background cleanup goroutine
// Safe to call multiple times
func (c *Memory[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Len returns the number of entries in the cache
func (c *Memory[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of hit/miss counters.
func (c *Memory[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Package cache wraps github.com/hashicorp/golang-lru/v2 with load-once
// semantics and traffic counters.
package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a thread-safe cache holding at most capacity entries. Adding past
// the capacity evicts the least recently used entry.
type LRU[K comparable, V any] struct {
	// loadMu serializes GetOrLoad so a key is loaded once.
	loadMu sync.Mutex
	lru    *lru.Cache[K, V]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Stats counts cache traffic.
type Stats struct {
	Len       int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// New creates a cache. A capacity below 1 is treated as 1.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	// lru.New fails only for a non-positive size.
	l, _ := lru.New[K, V](max(capacity, 1))
	return &LRU[K, V]{lru: l}
}

// Get returns the value for key and marks it recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key.
func (c *LRU[K, V]) Set(key K, value V) {
	if c.lru.Add(key, value) {
		c.evictions.Add(1)
	}
}

// GetOrLoad returns the cached value for key or stores the result of load.
// Concurrent callers for a missing key load it once. Errors are returned and
// not cached.
func (c *LRU[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes key and reports whether it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	return c.lru.Remove(key)
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Len:       c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Package weakcache provides an identity-keyed cache that does not keep its
// keys alive.
package weakcache

import (
	"runtime"
	"sync"
	"weak"
)

// Cache maps *K to V by pointer identity. An entry disappears some time after
// its key becomes unreachable.
type Cache[K any, V any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[K]]V
}

// New creates an empty cache.
func New[K any, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[weak.Pointer[K]]V)}
}

// Get returns the value stored for key.
func (c *Cache[K, V]) Get(key *K) (V, bool) {
	wp := weak.Make(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[wp]
	return v, ok
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. compute runs without the lock held, so concurrent misses on the
// same key may compute more than once; the first stored value wins. loaded
// reports whether the value came from the cache.
func (c *Cache[K, V]) GetOrCompute(key *K, compute func() V) (v V, loaded bool) {
	wp := weak.Make(key)

	c.mu.Lock()
	if v, ok := c.entries[wp]; ok {
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	computed := compute()

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[wp]; ok {
		return v, true
	}
	c.entries[wp] = computed
	runtime.AddCleanup(key, c.remove, wp)
	return computed, false
}

// Len returns the number of live entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) remove(wp weak.Pointer[K]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, wp)
}

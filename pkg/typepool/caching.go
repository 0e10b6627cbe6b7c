package typepool

import (
	"sync"
	"weak"

	"github.com/golang/groupcache/lru"

	"github.com/daimatz/gomuzzle/pkg/classpath"
)

// DefaultTypeCapacity bounds the shared resolution cache.
const DefaultTypeCapacity = 64

// CachingStrategy shares one bounded LRU of resolutions between every pool
// it creates. Entries are keyed by loader identity and class name; the cache
// never keeps a loader reachable.
type CachingStrategy struct {
	mu    sync.Mutex
	cache *lru.Cache
}

type cacheKey struct {
	loader weak.Pointer[classpath.Loader]
	name   string
}

// NewCachingStrategy creates a strategy holding at most capacity
// resolutions. A non-positive capacity selects DefaultTypeCapacity.
func NewCachingStrategy(capacity int) *CachingStrategy {
	if capacity <= 0 {
		capacity = DefaultTypeCapacity
	}
	return &CachingStrategy{cache: lru.New(capacity)}
}

func (s *CachingStrategy) TypePool(loader *classpath.Loader) TypePool {
	wp := weak.Make(loader)
	return &Pool{
		loader:   loader,
		cache:    &sharedCache{strategy: s, loader: wp},
		resolver: &detachedPool{loader: wp, strategy: s},
	}
}

// Len returns the number of cached resolutions.
func (s *CachingStrategy) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Clear drops every cached resolution.
func (s *CachingStrategy) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
}

type sharedCache struct {
	strategy *CachingStrategy
	loader   weak.Pointer[classpath.Loader]
}

func (c *sharedCache) get(name string) (Resolution, bool) {
	c.strategy.mu.Lock()
	defer c.strategy.mu.Unlock()
	v, ok := c.strategy.cache.Get(cacheKey{loader: c.loader, name: name})
	if !ok {
		return Resolution{}, false
	}
	return v.(Resolution), true
}

func (c *sharedCache) put(name string, r Resolution) {
	c.strategy.mu.Lock()
	defer c.strategy.mu.Unlock()
	c.strategy.cache.Add(cacheKey{loader: c.loader, name: name}, r)
}

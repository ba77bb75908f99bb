package identity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// DefaultCacheSize bounds a MemoryCache when no size is given.
const DefaultCacheSize = 1000

// Cache stores resolved principals under opaque keys.
// A failed lookup is reported as a miss; Set is best effort.
type Cache interface {
	Get(ctx context.Context, key string) (tenant.Principal, bool)
	Set(ctx context.Context, key string, p tenant.Principal, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type cacheEntry struct {
	principal tenant.Principal
	expires   time.Time
}

// MemoryCache is an in-process LRU cache with per-entry TTL.
// Expired entries are dropped on access and by an optional janitor.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string // least recently used first
	maxSize int
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithCacheClock overrides time.Now.
func WithCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewMemoryCache(maxSize int, opts ...MemoryCacheOption) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	c := &MemoryCache{
		entries: make(map[string]cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (tenant.Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return tenant.Principal{}, false
	}
	if !c.now().Before(e.expires) {
		c.remove(key)
		return tenant.Principal{}, false
	}
	c.touch(key)
	return e.principal, true
}

func (c *MemoryCache) Set(_ context.Context, key string, p tenant.Principal, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.touch(key)
	} else {
		if len(c.entries) >= c.maxSize && len(c.order) > 0 {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{principal: p, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every expired entry and returns how many were removed.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			c.remove(key)
			n++
		}
	}
	return n
}

// StartJanitor purges expired entries every interval until Close.
func (c *MemoryCache) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Purge()
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops the janitor. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// touch moves key to the most recently used end. Must be called with mu held.
func (c *MemoryCache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

// remove must be called with mu held.
func (c *MemoryCache) remove(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

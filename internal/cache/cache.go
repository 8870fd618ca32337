// Package cache keeps rendered read responses and purges them by namespace
// after mutations.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	PrefixOrganization = "organization"
	PrefixTeam         = "team"
)

// Invalidator purges every cached entry whose key starts with prefix.
type Invalidator interface {
	Invalidate(prefix string)
}

type ResponseCache struct {
	items *ttlcache.Cache[string, []byte]

	// generations counts invalidations per family prefix
	mu          sync.Mutex
	generations map[string]uint64
}

func NewResponseCache(ttl time.Duration, capacity uint64) *ResponseCache {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}

	return &ResponseCache{
		items:       ttlcache.New(opts...),
		generations: map[string]uint64{},
	}
}

// Key builds the cache key of a read response. Entries of one family share
// the family prefix so Invalidate can drop them wholesale.
func Key(prefix, route, rawQuery, caller string) string {
	return prefix + ":" + route + "?" + rawQuery + "#" + caller
}

func (c *ResponseCache) Get(key string) ([]byte, bool) {
	item := c.items.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (c *ResponseCache) Set(key string, body []byte) {
	c.items.Set(key, body, ttlcache.DefaultTTL)
}

// Generation returns the invalidation count of the family key belongs to. A
// reader takes it before loading the data it is going to cache.
func (c *ResponseCache) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[family(key)]
}

// SetIfCurrent stores body unless the family of key was invalidated after gen
// was taken, and reports whether it did.
func (c *ResponseCache) SetIfCurrent(key string, gen uint64, body []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[family(key)] != gen {
		return false
	}
	c.items.Set(key, body, ttlcache.DefaultTTL)
	return true
}

// Invalidate drops the entries of a family and fails the pending
// SetIfCurrent calls of its readers.
func (c *ResponseCache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[prefix]++
	for _, key := range c.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
		}
	}
}

func family(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

func (c *ResponseCache) Len() int {
	return c.items.Len()
}

// Start runs the expiry loop until Stop is called.
func (c *ResponseCache) Start() {
	c.items.Start()
}

func (c *ResponseCache) Stop() {
	c.items.Stop()
}

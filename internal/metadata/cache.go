package metadata

import (
	"fmt"

	"github.com/zjrosen/metagraph/internal/cachemanager"
	"github.com/zjrosen/metagraph/internal/identifier"
)

// Cache is the bounded LRU store of computed items, keyed by instance
// identifier. It never holds class identifiers.
type Cache struct {
	lru *cachemanager.LRUCache[identifier.ID, Item]
}

// NewCache creates a cache holding at most capacity items.
func NewCache(capacity int) (*Cache, error) {
	lru, err := cachemanager.NewLRUCache[identifier.ID, Item](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: lru}, nil
}

// Put inserts or replaces item, keyed by its identifier.
func (c *Cache) Put(item Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", identifier.ErrInvalidIdentifier)
	}
	id := item.ID()
	if !id.IsInstance() {
		return fmt.Errorf("%w: cache keys must be instance identifiers, got %q", identifier.ErrInvalidIdentifier, id)
	}
	c.lru.Put(id, item)
	return nil
}

// Get returns the cached item for id. It never computes one.
func (c *Cache) Get(id identifier.ID) (Item, bool) {
	return c.lru.Get(id)
}

// Contains reports whether id is cached without touching its recency.
func (c *Cache) Contains(id identifier.ID) bool {
	return c.lru.Contains(id)
}

// Evict removes id if present and reports whether it was.
func (c *Cache) Evict(id identifier.ID) bool {
	return c.lru.Evict(id)
}

// EvictAll empties the cache.
func (c *Cache) EvictAll() {
	c.lru.EvictAll()
}

// SetMaxCapacity discards every entry and restarts with the new capacity.
func (c *Cache) SetMaxCapacity(capacity int) error {
	return c.lru.SetMaxCapacity(capacity)
}

// MaxCapacity returns the configured capacity.
func (c *Cache) MaxCapacity() int {
	return c.lru.MaxCapacity()
}

// Size returns the number of cached items.
func (c *Cache) Size() int {
	return c.lru.Len()
}

// CapacityEvictions returns how many items were dropped to stay within capacity.
func (c *Cache) CapacityEvictions() int64 {
	return c.lru.Evictions()
}

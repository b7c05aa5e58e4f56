package cachemanager

import (
	"errors"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/zjrosen/metagraph/internal/log"
)

const (
	// MinCapacity is the smallest capacity an LRUCache accepts.
	MinCapacity = 100
	// DefaultCapacity is the capacity used when none is configured.
	DefaultCapacity = 100000
)

// ErrInvalidCapacity is returned for capacities below MinCapacity.
var ErrInvalidCapacity = errors.New("invalid cache capacity")

// LRUCache is a bounded, access-ordered store. Both Put and Get count as a
// touch; inserting past capacity removes the least recently touched entry.
// Not safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	store     *simplelru.LRU[K, V]
	capacity  int
	evictions int64
}

// NewLRUCache creates an empty cache holding at most capacity entries.
func NewLRUCache[K comparable, V any](capacity int) (*LRUCache[K, V], error) {
	store, err := newStore[K, V](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUCache[K, V]{store: store, capacity: capacity}, nil
}

func newStore[K comparable, V any](capacity int) (*simplelru.LRU[K, V], error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: %d is below the minimum of %d", ErrInvalidCapacity, capacity, MinCapacity)
	}
	store, err := simplelru.NewLRU[K, V](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapacity, err)
	}
	return store, nil
}

// Put inserts or replaces the value for key and marks it most recently used.
// It reports whether an older entry was evicted to make room.
func (c *LRUCache[K, V]) Put(key K, value V) bool {
	evicted := c.store.Add(key, value)
	if evicted {
		c.evictions++
		log.Debug(log.CatCache, "capacity eviction", "capacity", c.capacity)
	}
	return evicted
}

// Get returns the value for key and marks it most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	return c.store.Get(key)
}

// Peek returns the value for key without touching it.
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	return c.store.Peek(key)
}

// Contains reports whether key is cached without touching it.
func (c *LRUCache[K, V]) Contains(key K) bool {
	return c.store.Contains(key)
}

// Evict removes key if present and reports whether it was.
func (c *LRUCache[K, V]) Evict(key K) bool {
	return c.store.Remove(key)
}

// EvictAll removes every entry.
func (c *LRUCache[K, V]) EvictAll() {
	c.store.Purge()
}

// Oldest returns the entry that would be evicted next.
func (c *LRUCache[K, V]) Oldest() (K, V, bool) {
	return c.store.GetOldest()
}

// Keys returns the cached keys from least to most recently used.
func (c *LRUCache[K, V]) Keys() []K {
	return c.store.Keys()
}

// SetMaxCapacity replaces the store with an empty one of the new capacity.
// On error the existing store is left untouched.
func (c *LRUCache[K, V]) SetMaxCapacity(capacity int) error {
	store, err := newStore[K, V](capacity)
	if err != nil {
		return err
	}
	c.store = store
	c.capacity = capacity
	log.Info(log.CatCache, "cache capacity changed", "capacity", capacity)
	return nil
}

// MaxCapacity returns the configured capacity.
func (c *LRUCache[K, V]) MaxCapacity() int {
	return c.capacity
}

// Len returns the number of cached entries.
func (c *LRUCache[K, V]) Len() int {
	return c.store.Len()
}

// Evictions returns how many entries were removed for capacity since creation.
func (c *LRUCache[K, V]) Evictions() int64 {
	return c.evictions
}

// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry wraps a value with access time for LRU eviction and TTL expiry
type entry[V any] struct {
	value      V
	stale      bool
	lastAccess int64 // Unix nano timestamp
}

// Cache is a concurrent read-through cache.
//
// Features:
//   - Optional load function: GetOrLoad fetches missing or stale entries,
//     collapsing concurrent loads of the same key into one call
//   - Invalidate: marks an entry stale while keeping its last value visible
//     through Peek until the next load replaces it
//   - Optional TTL and max size with LRU eviction
//
// Usage:
//
//	c := cache.New[string, []Asset](cache.WithLoadFunc(func(ctx context.Context, key string) ([]Asset, error) {
//	    return fetch(ctx, key)
//	}))
//	assets, err := c.GetOrLoad(ctx, "list")
//	c.Invalidate("list")
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	store map[K]*entry[V]
	// gens counts writes per key; a load only lands if none happened meanwhile
	gens map[K]uint64

	// Optional load function for cache misses
	loadFunc func(ctx context.Context, key K) (V, error)
	loads    singleflight.Group

	// Max size (0 = unlimited)
	maxSize int

	// TTL expiry (0 = no expiry)
	expiry time.Duration
}

// Option configures a Cache
type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxSize sets the maximum total number of entries in the cache.
// When capacity is reached, the least recently accessed entry is evicted.
func WithMaxSize[K comparable, V any](maxSize int) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.maxSize = maxSize
	}
}

// WithExpiry sets the TTL for cache entries. Entries not accessed for this
// long are treated as stale.
func WithExpiry[K comparable, V any](expiry time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.expiry = expiry
	}
}

// WithLoadFunc sets a function to call on cache misses.
// If set, GetOrLoad() will call this function when an entry is missing or
// stale and cache the result for future requests.
func WithLoadFunc[K comparable, V any](loadFunc func(ctx context.Context, key K) (V, error)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.loadFunc = loadFunc
	}
}

// New creates a new Cache with the given options.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		store: make(map[K]*entry[V]),
		gens:  make(map[K]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache[K, V]) fresh(e *entry[V], now int64) bool {
	if e.stale {
		return false
	}
	return c.expiry == 0 || now-e.lastAccess <= c.expiry.Nanoseconds()
}

// Get retrieves a fresh value from the cache.
// Returns the value and true if found, not stale and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store[key]
	now := time.Now().UnixNano()
	if !ok || !c.fresh(e, now) {
		var zero V
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

// Peek returns the cached value regardless of staleness, and whether it is
// still fresh.
func (c *Cache[K, V]) Peek(key K) (value V, present, fresh bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.store[key]
	if !ok {
		return value, false, false
	}
	return e.value, true, c.fresh(e, time.Now().UnixNano())
}

// IsStale reports whether key is cached but must be reloaded before use.
func (c *Cache[K, V]) IsStale(key K) bool {
	_, present, fresh := c.Peek(key)
	return present && !fresh
}

// GetOrLoad retrieves a value from the cache, loading it if missing or stale.
// Without a load function a miss returns the zero value.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}

	if c.loadFunc == nil {
		var zero V
		return zero, nil
	}

	v, err, _ := c.loads.Do(fmt.Sprint(key), func() (any, error) {
		c.mu.RLock()
		gen := c.gens[key]
		c.mu.RUnlock()

		val, err := c.loadFunc(ctx, key)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gens[key] == gen {
			c.setLocked(key, val)
		}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Set adds or updates a value in the cache.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.setLocked(key, value)
}

func (c *Cache[K, V]) setLocked(key K, value V) {
	if _, exists := c.store[key]; !exists && c.maxSize > 0 && len(c.store) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.store[key] = &entry[V]{value: value, lastAccess: time.Now().UnixNano()}
}

// Update replaces the value of key with fn(current, present) under the cache
// lock. When fn returns keep=false the entry is deleted. Staleness is kept.
func (c *Cache[K, V]) Update(key K, fn func(current V, present bool) (next V, keep bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[key]++
	var current V
	e, present := c.store[key]
	if present {
		current = e.value
	}

	next, keep := fn(current, present)
	if !keep {
		delete(c.store, key)
		return
	}
	if present {
		e.value = next
		e.lastAccess = time.Now().UnixNano()
		return
	}
	c.setLocked(key, next)
}

// Invalidate marks key stale so the next GetOrLoad refetches it. A load
// already in flight for key is not reused.
func (c *Cache[K, V]) Invalidate(key K) {
	c.loads.Forget(fmt.Sprint(key))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	if e, ok := c.store[key]; ok {
		e.stale = true
	}
}

// evictOldestLocked removes the least recently accessed entry from the cache.
func (c *Cache[K, V]) evictOldestLocked() {
	var oldestKey K
	var oldestTime int64
	first := true

	for k, e := range c.store {
		if first || e.lastAccess < oldestTime {
			oldestKey = k
			oldestTime = e.lastAccess
			first = false
		}
	}

	if !first {
		delete(c.store, oldestKey)
	}
}

// Delete removes a key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	delete(c.store, key)
}

// Size returns the current number of entries, stale ones included.
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Clear removes all entries from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.store {
		c.gens[k]++
	}
	clear(c.store)
}

// Entity represents a cache entry for bulk loading
type Entity[K, V any] struct {
	Key       K
	Value     V
	IsDeleted bool
}

// Load bulk applies entries from an iterator under one lock.
func (c *Cache[K, V]) Load(seq iter.Seq2[Entity[K, V], error]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for entity, err := range seq {
		if err != nil {
			return err
		}
		c.gens[entity.Key]++
		if entity.IsDeleted {
			delete(c.store, entity.Key)
			continue
		}
		c.setLocked(entity.Key, entity.Value)
	}
	return nil
}

// Iter returns an iterator over a snapshot of all fresh entries.
func (c *Cache[K, V]) Iter() iter.Seq2[K, V] {
	c.mu.RLock()
	now := time.Now().UnixNano()
	snapshot := make(map[K]V, len(c.store))
	for k, e := range c.store {
		if c.fresh(e, now) {
			snapshot[k] = e.value
		}
	}
	c.mu.RUnlock()

	return func(yield func(K, V) bool) {
		for k, v := range snapshot {
			if !yield(k, v) {
				return
			}
		}
	}
}

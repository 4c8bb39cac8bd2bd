package cache

import (
	"container/list"
	"sync"
)

// LRUCache is a thread-safe, capacity-bounded Least-Recently-Used cache.
// Entries pushed out by capacity or Prune are handed to the eviction callback
// after the cache lock is released.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most-recently used
	onEvict  func(K, V)
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRUCache creates a new cache with the given capacity.
// Capacity must be >= 1; values <= 0 are normalised to 1.
func NewLRUCache[K comparable, V any](capacity int, onEvict func(K, V)) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		onEvict:  onEvict,
	}
}

// Get returns the cached value and marks it most-recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

// Put inserts or replaces a value. Replacing does not fire the eviction
// callback for the old value.
func (c *LRUCache[K, V]) Put(key K, value V) {
	var evicted []*lruEntry[K, V]
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*lruEntry[K, V]).value = value
		c.mu.Unlock()
		return
	}
	if c.order.Len() >= c.capacity {
		if e := c.removeBackLocked(); e != nil {
			evicted = append(evicted, e)
		}
	}
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	c.mu.Unlock()

	c.notify(evicted)
}

// Remove deletes key and returns its value. The eviction callback is not run.
func (c *LRUCache[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return el.Value.(*lruEntry[K, V]).value, true
}

// Peek returns the cached value without touching recency.
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*lruEntry[K, V]).value, true
}

// Keys returns all keys, most-recently used first.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*lruEntry[K, V]).key)
	}
	return keys
}

// Len returns the current number of items in the cache.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Cap returns the configured maximum capacity.
func (c *LRUCache[K, V]) Cap() int {
	return c.capacity
}

// Prune evicts the given percentage of entries, least-recently used first,
// and returns how many were evicted. At least one entry goes when the cache
// is non-empty and percentage is positive.
func (c *LRUCache[K, V]) Prune(percentage int) int {
	if percentage <= 0 {
		return 0
	}
	if percentage > 100 {
		percentage = 100
	}
	c.mu.Lock()
	n := c.order.Len() * percentage / 100
	if n == 0 && c.order.Len() > 0 {
		n = 1
	}
	evicted := make([]*lruEntry[K, V], 0, n)
	for i := 0; i < n; i++ {
		if e := c.removeBackLocked(); e != nil {
			evicted = append(evicted, e)
		}
	}
	c.mu.Unlock()

	c.notify(evicted)
	return len(evicted)
}

// Clear removes every entry and returns them without firing the callback.
func (c *LRUCache[K, V]) Clear() map[K]V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[K]V, len(c.items))
	for k, el := range c.items {
		out[k] = el.Value.(*lruEntry[K, V]).value
	}
	c.order.Init()
	c.items = make(map[K]*list.Element, c.capacity)
	return out
}

// removeBackLocked removes the least-recently used element.
// Caller must hold c.mu.
func (c *LRUCache[K, V]) removeBackLocked() *lruEntry[K, V] {
	back := c.order.Back()
	if back == nil {
		return nil
	}
	c.order.Remove(back)
	e := back.Value.(*lruEntry[K, V])
	delete(c.items, e.key)
	return e
}

func (c *LRUCache[K, V]) notify(evicted []*lruEntry[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e.key, e.value)
	}
}

// Package cache provides the bounded least-recently-used cache
// gateway/portregistry uses to keep live VersionServer handles capped
// at a fixed capacity (spec.md §4.G).
package cache

import (
	"container/list"
	"sync"
)

// EvictionNotifier is implemented by cache values that need to react
// to being evicted by an Add. portregistry.Entry implements this to
// log that a VersionServer has dropped out of the capacity-bounded
// cache, without touching the VersionServer itself. It is not called
// by Remove.
type EvictionNotifier interface {
	// OnEviction is called on the value of an LRU entry when it's about
	// to be evicted from the cache. This method must not call the LRU
	// cache nor block indefinitely.
	OnEviction(key interface{})
}

// LRU is a least-recently used cache, safe for concurrent access.
// gateway/portregistry is its only caller, keyed by archive address
// with *Entry values, but the cache itself stays address-agnostic so
// it can be reasoned about independently of what it's holding.
type LRU struct {
	maxEntries int

	mu    sync.Mutex
	ll    *list.List
	cache map[interface{}]*list.Element
}

type slot struct {
	key, value interface{}
}

const notifyOnEvict = true

// NewLRU returns a new cache with the provided maximum items.
func NewLRU(maxEntries int) *LRU {
	return &LRU{
		maxEntries: maxEntries,
		ll:         list.New(),
		cache:      make(map[interface{}]*list.Element),
	}
}

// Add adds the provided key and value to the cache, evicting
// the oldest entry (and firing its EvictionNotifier, if any) if the
// cache is now over capacity. For portregistry this is the only path
// that can drop a VersionServer registration from the cache.
func (c *LRU) Add(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ee, ok := c.cache[key]; ok {
		c.ll.MoveToFront(ee)
		ee.Value.(*slot).value = value
		return
	}

	ele := c.ll.PushFront(&slot{key, value})
	c.cache[key] = ele

	if c.ll.Len() > c.maxEntries {
		c.removeOldest(notifyOnEvict)
	}
}

// Get fetches the key's value from the cache. ok is false if the item
// was not found.
func (c *LRU) Get(key interface{}) (value interface{}, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, hit := c.cache[key]; hit {
		c.ll.MoveToFront(ele)
		return ele.Value.(*slot).value, true
	}
	return nil, false
}

// Remove removes a key from the cache, without running its
// EvictionNotifier, and returns the removed value or nil.
func (c *LRU) Remove(key interface{}) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, found := c.cache[key]; found {
		_, value := c.remove(ele)
		return value
	}
	return nil
}

// note: must hold c.mu
func (c *LRU) removeOldest(notify bool) (key, value interface{}) {
	ele := c.ll.Back()
	if ele == nil {
		return nil, nil
	}
	if notify {
		s := ele.Value.(*slot)
		if notifier, ok := s.value.(EvictionNotifier); ok {
			notifier.OnEviction(s.key)
		}
	}
	return c.remove(ele)
}

// note: must hold c.mu
func (c *LRU) remove(ele *list.Element) (key, value interface{}) {
	c.ll.Remove(ele)
	s := ele.Value.(*slot)
	delete(c.cache, s.key)
	return s.key, s.value
}

// Len returns the number of items currently in the cache.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

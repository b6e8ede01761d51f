// internal/cache/lru.go
//
// Small generic LRU with per-entry expiry.  The settings cache keeps guild
// prefixes and repeat flags here so hot guilds skip the database.  Good
// for a few thousand entries; safe for concurrent use.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clock returns the current time.  Tests inject a fake.
type Clock func() time.Time

// LRU is a least-recently-used cache whose entries also expire after ttl.
// A ttl of zero disables expiry.
type LRU[K comparable, V any] struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	now  Clock
	ll   *list.List
	dict map[K]*list.Element
}

type pair[K comparable, V any] struct {
	key K
	val V
	exp time.Time
}

// New returns an LRU with the given capacity and ttl.  Panics on cap < 1.
func New[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	return NewWithClock[K, V](capacity, ttl, time.Now)
}

// NewWithClock is New with an injected clock.
func NewWithClock[K comparable, V any](capacity int, ttl time.Duration, now Clock) *LRU[K, V] {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU[K, V]{
		cap:  capacity,
		ttl:  ttl,
		now:  now,
		ll:   list.New(),
		dict: make(map[K]*list.Element, capacity),
	}
}

// Get retrieves a live value and marks it MRU.  Expired entries are
// dropped and reported as misses.
func (c *LRU[K, V]) Get(key K) (val V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, hit := c.dict[key]
	if !hit {
		return val, false
	}
	p := ele.Value.(*pair[K, V])
	if c.ttl > 0 && !c.now().Before(p.exp) {
		c.removeElement(ele)
		return val, false
	}
	c.ll.MoveToFront(ele)
	return p.val, true
}

// Add inserts or updates a value and restarts its ttl.
func (c *LRU[K, V]) Add(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp := c.now().Add(c.ttl)
	if ele, hit := c.dict[key]; hit {
		p := ele.Value.(*pair[K, V])
		p.val, p.exp = val, exp
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(&pair[K, V]{key: key, val: val, exp: exp})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		c.removeElement(c.ll.Back())
	}
}

// Remove drops key if present.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, hit := c.dict[key]; hit {
		c.removeElement(ele)
	}
}

// Purge drops every entry.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.dict)
}

// Len reports current size, expired entries included until touched.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU[K, V]) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.dict, ele.Value.(*pair[K, V]).key)
}

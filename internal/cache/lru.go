package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a size-bounded cache with per-entry TTL. When a weigher is set the
// cache is also bounded by the summed weight of its values, so large image
// payloads evict earlier than small ones.
type LRU[T any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	items      map[string]*list.Element
	order      *list.List

	weigh     func(T) int
	maxWeight int
	weight    int

	now func() time.Time
}

type entry[T any] struct {
	key       string
	value     T
	weight    int
	expiresAt time.Time
}

func NewLRU[T any](maxEntries int, ttl time.Duration) *LRU[T] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &LRU[T]{
		maxEntries: maxEntries,
		ttl:        ttl,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// WithWeight bounds the cache by the total weight of its values as well.
func (c *LRU[T]) WithWeight(weigh func(T) int, maxWeight int) *LRU[T] {
	c.weigh, c.maxWeight = weigh, maxWeight
	return c
}

func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[T])
	if c.now().After(e.expiresAt) {
		c.remove(elem)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return e.value, true
}

func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	if c.weigh != nil {
		e.weight = c.weigh(value)
		if c.maxWeight > 0 && e.weight > c.maxWeight {
			// never fits
			if old, ok := c.items[key]; ok {
				c.remove(old)
			}
			return
		}
	}

	if elem, ok := c.items[key]; ok {
		c.weight -= elem.Value.(*entry[T]).weight
		elem.Value = e
		c.order.MoveToFront(elem)
	} else {
		c.items[key] = c.order.PushFront(e)
	}
	c.weight += e.weight

	for c.order.Len() > c.maxEntries || (c.maxWeight > 0 && c.weight > c.maxWeight) {
		c.remove(c.order.Back())
	}
}

func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

func (c *LRU[T]) remove(elem *list.Element) {
	e := elem.Value.(*entry[T])
	delete(c.items, e.key)
	c.weight -= e.weight
	c.order.Remove(elem)
}

// CleanExpired drops expired entries and reports how many went.
func (c *LRU[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*entry[T]).expiresAt) {
			c.remove(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

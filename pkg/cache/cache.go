// Package cache keeps enrichment results around between requests: an LRU of
// enriched bodies keyed by procedure id, and a msgpack store for their fact
// tables.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with its bookkeeping.
type Entry[V any] struct {
	Key        string
	Value      V
	AccessedAt time.Time
	CreatedAt  time.Time
}

// LRU is a size-bounded map evicting the least recently used key.
// It is safe for concurrent use.
type LRU[V any] struct {
	mu      sync.Mutex
	items   map[string]*listItem[V]
	lru     *list[V]
	maxSize int
	onEvict func(key string, value V)
}

type listItem[V any] struct {
	Entry[V]
	prev *listItem[V]
	next *listItem[V]
}

// list is a doubly-linked list, most recently used at the head.
type list[V any] struct {
	head *listItem[V]
	tail *listItem[V]
	len  int
}

func (l *list[V]) unlink(item *listItem[V]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list[V]) pushFront(item *listItem[V]) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list[V]) moveToFront(item *listItem[V]) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

func (l *list[V]) removeBack() *listItem[V] {
	item := l.tail
	if item != nil {
		l.unlink(item)
	}
	return item
}

// Options configures an LRU.
type Options[V any] struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// OnEvict is called for entries dropped to make room or deleted.
	// It runs with the cache locked and must not call back into it.
	OnEvict func(key string, value V)
}

// NewLRU creates an empty LRU.
func NewLRU[V any](opts Options[V]) *LRU[V] {
	return &LRU[V]{
		items:   make(map[string]*listItem[V]),
		lru:     &list[V]{},
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
	}
}

// Get returns the value of key and marks it recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Value, true
}

// Peek returns the value of key without touching its recency.
func (c *LRU[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.items[key]; ok {
		return item.Value, true
	}
	var zero V
	return zero, false
}

// Set stores value under key, evicting the oldest entries when full.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if item, ok := c.items[key]; ok {
		item.Value = value
		item.AccessedAt = now
		c.lru.moveToFront(item)
		return
	}

	item := &listItem[V]{Entry: Entry[V]{Key: key, Value: value, AccessedAt: now, CreatedAt: now}}
	c.items[key] = item
	c.lru.pushFront(item)

	for c.maxSize > 0 && c.lru.len > c.maxSize {
		old := c.lru.removeBack()
		delete(c.items, old.Key)
		if c.onEvict != nil {
			c.onEvict(old.Key, old.Value)
		}
	}
}

// Delete removes key.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	if c.onEvict != nil {
		c.onEvict(key, item.Value)
	}
}

// Clear removes every entry without calling OnEvict.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem[V])
	c.lru = &list[V]{}
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Entries returns the entries from most to least recently used.
func (c *LRU[V]) Entries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry[V], 0, c.lru.len)
	for item := c.lru.head; item != nil; item = item.next {
		out = append(out, item.Entry)
	}
	return out
}

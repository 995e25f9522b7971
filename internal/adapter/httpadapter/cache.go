package httpadapter

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache is a thread-safe LRU of encoded responses. Keys embed the snapshot
// generation, so entries from an older snapshot are never served and age out.
type Cache struct {
	maxEntries int
	lookups    *prometheus.CounterVec

	mu      sync.Mutex
	entries map[string]*entry
	head    *entry // most recently used
	tail    *entry // least recently used
}

type entry struct {
	key         string
	contentType string
	body        []byte
	prev        *entry
	next        *entry
}

// NewCache creates a cache holding at most maxEntries responses. lookups may
// be nil; otherwise it is incremented with result "hit" or "miss".
func NewCache(maxEntries int, lookups *prometheus.CounterVec) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		lookups:    lookups,
		entries:    make(map[string]*entry),
	}
}

// Get returns a cached body and its content type.
func (c *Cache) Get(key string) (body []byte, contentType string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	c.observe(ok)
	if !ok {
		return nil, "", false
	}
	c.moveToFront(e)
	return e.body, e.contentType, true
}

// Put stores a body, evicting the least recently used entry when full.
func (c *Cache) Put(key, contentType string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.body = body
		e.contentType = contentType
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, contentType: contentType, body: body}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) observe(hit bool) {
	if c.lookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.lookups.WithLabelValues(result).Inc()
}

func (c *Cache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *Cache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *Cache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

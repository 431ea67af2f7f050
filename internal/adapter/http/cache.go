package http

import (
	"sync"

	"github.com/couchcryptid/aurora-field/internal/render"
)

// renderedImage is one encoded PNG and the draw stats that produced it.
type renderedImage struct {
	png   []byte
	stats render.Stats
}

// renderCache is a thread-safe LRU of rendered images. Keys include the
// field version, so entries for superseded fields are never served; they
// are simply evicted as new keys arrive. Memory is bounded by entry count
// only: each entry is one PNG of at most render.MaxImageSize squared, so
// RENDER_CACHE_SIZE should stay small.
type renderCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	head       *cacheEntry // most recently used
	tail       *cacheEntry // least recently used
}

type cacheEntry struct {
	key   string
	value renderedImage
	prev  *cacheEntry
	next  *cacheEntry
}

func newRenderCache(maxEntries int) *renderCache {
	return &renderCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[string]*cacheEntry),
	}
}

func (c *renderCache) get(key string) (renderedImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return renderedImage{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *renderCache) put(key string, value renderedImage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *renderCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *renderCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *renderCache) addToFront(e *cacheEntry) {
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

func (c *renderCache) unlink(e *cacheEntry) {
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

func (c *renderCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}

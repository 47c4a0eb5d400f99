package storage

import (
	"container/list"
	"regexp"
	"sync"
)

// maxCachedPatterns bounds the compiled REGEXP operands kept across queries.
// Listing by name compiles user text, so the key space is unbounded.
const maxCachedPatterns = 512

// patternCache is an LRU cache of compiled patterns keyed by their source.
type patternCache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type patternEntry struct {
	source string
	re     *regexp.Regexp
}

func newPatternCache(capacity int) *patternCache {
	return &patternCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the compiled pattern for source if present.
func (c *patternCache) Get(source string) (*regexp.Regexp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[source]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*patternEntry).re, true
	}
	return nil, false
}

// Set stores re under source, evicting the least recently used entry when full.
func (c *patternCache) Set(source string, re *regexp.Regexp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[source]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*patternEntry).re = re
		return
	}

	c.entries[source] = c.lru.PushFront(&patternEntry{source: source, re: re})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*patternEntry).source)
		}
	}
}

// Len returns the number of cached patterns.
func (c *patternCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

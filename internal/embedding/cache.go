package embedding

import (
	"container/list"
	"sync"
)

// TermCache is an LRU cache of term embeddings keyed by the normalized term.
// The mode controller consults it when rebuilding an adaptive context so that
// unchanged terms are never re-embedded.
type TermCache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.RWMutex
}

type termEntry struct {
	term   string
	vector []float32
}

// NewTermCache creates a cache with the given capacity.
func NewTermCache(capacity int) *TermCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &TermCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for term if present.
func (c *TermCache) Get(term string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[term]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*termEntry).vector, true
	}
	return nil, false
}

// Set stores the embedding for term, evicting the oldest entry at capacity.
func (c *TermCache) Set(term string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[term]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*termEntry).vector = vector
		return
	}

	elem := c.lru.PushFront(&termEntry{term: term, vector: vector})
	c.entries[term] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*termEntry).term)
		}
	}
}

// Len returns the number of cached terms.
func (c *TermCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

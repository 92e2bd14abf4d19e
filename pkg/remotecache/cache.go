// Package remotecache implements RemoteMetaCache and MetaPuller
// (spec.md §4.4): a bounded LRU of schemas pulled from remote replica
// groups, refilled on a local miss via a latency-ordered pull.
package remotecache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/driftdb/cluster/pkg/metrics"
)

// Entry is the cached value for one full measurement path: its schema and
// the last-known value pair, both opaque payloads (spec.md Non-goals).
type Entry struct {
	Schema        []byte
	LastValuePair []byte
}

// Cache is a bounded LRU mapping fullPath to Entry
// (spec.md §4.4, §3 "RemoteMetaCache").
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache
}

// NewCache builds a Cache with the given capacity
// (config's mRemoteSchemaCacheSize).
func NewCache(capacity int) (*Cache, error) {
	c := &Cache{}
	inner, err := lru.NewWithEvict(capacity, func(key, value interface{}) {
		metrics.MetaCacheEvictions.Inc()
	})
	if err != nil {
		return nil, err
	}
	c.inner = inner
	return c, nil
}

// Get looks up path, recording a cache hit/miss metric.
func (c *Cache) Get(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.inner.Get(path)
	if !ok {
		metrics.MetaCacheMisses.Inc()
		return Entry{}, false
	}
	metrics.MetaCacheHits.Inc()
	return v.(Entry), true
}

// Put inserts or overwrites path's entry.
func (c *Cache) Put(path string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(path, entry)
}

// RemovePrefix deletes every cached entry whose full path begins with
// prefix (spec.md §4.4).
func (c *Cache) RemovePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.inner.Keys() {
		path := k.(string)
		if strings.HasPrefix(path, prefix) {
			c.inner.Remove(path)
		}
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

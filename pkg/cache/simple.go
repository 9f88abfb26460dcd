package cache

import (
	"sync"
)

// simpleCache is a thread-safe cache with no automatic eviction. Entries
// live until explicitly deleted, evicted through EvictIf, or cleared.
type simpleCache[V any] struct {
	mu      sync.RWMutex
	items   map[string]V
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
}

// New creates a cache instance.
// Returns an error only if metrics registration fails when requested.
func New[V any](options ...Option[V]) (Cache[V], error) {
	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, err
		}
	}

	return &simpleCache[V]{
		items:   make(map[string]V),
		stats:   NewStatistics(),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

// Get retrieves a value by key.
func (c *simpleCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, exists := c.items[key]
	c.mu.RUnlock()

	if exists {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
	} else {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
	}
	return value, exists
}

// Set stores a value, replacing any existing entry wholesale.
func (c *simpleCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = value
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet(size)
	}
	return !exists, nil
}

// Delete removes an entry by key.
func (c *simpleCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	value, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			c.metrics.recordDelete(size)
		}
		if c.evictFn != nil {
			c.evictFn(key, value)
		}
	}
	return exists, nil
}

// EvictIf removes every entry for which pred returns true.
func (c *simpleCache[V]) EvictIf(pred func(key string, value V) bool) int {
	type evicted struct {
		key   string
		value V
	}

	c.mu.Lock()
	var out []evicted
	for key, value := range c.items {
		if pred(key, value) {
			out = append(out, evicted{key, value})
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(out) > 0 {
		c.stats.UpdateSize(int64(size))
		for range out {
			c.stats.Eviction()
		}
		if c.metrics != nil {
			c.metrics.recordEvictions(len(out), size)
		}
		if c.evictFn != nil {
			for _, e := range out {
				c.evictFn(e.key, e.value)
			}
		}
	}
	return len(out)
}

// Clear removes all entries.
func (c *simpleCache[V]) Clear() {
	c.mu.Lock()
	evictFn := c.evictFn
	var old map[string]V
	if evictFn != nil {
		old = c.items
	}
	c.items = make(map[string]V)
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	for key, value := range old {
		evictFn(key, value)
	}
}

// Size returns the current number of entries.
func (c *simpleCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns a slice of all keys currently in the cache.
func (c *simpleCache[V]) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	c.mu.RUnlock()
	return keys
}

// Stats returns cache statistics.
func (c *simpleCache[V]) Stats() *Statistics {
	return c.stats
}

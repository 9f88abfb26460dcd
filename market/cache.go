package market

import (
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/dan246/ff14-tw-market/feed"
	"github.com/dan246/ff14-tw-market/pkg/cache"
)

// fetchKind marks entries seeded by the HTTP collaborator rather than the
// feed. It never appears on the wire.
const fetchKind = feed.Kind("fetch")

// Entry is one cached market snapshot for an item. Replaced wholesale on
// every update; readers never observe a partial entry.
type Entry struct {
	Item      int
	World     int
	Kind      feed.Kind
	Body      bson.Raw
	UpdatedAt time.Time
}

// Fresh reports whether the entry was updated within maxAge of now.
// A non-positive maxAge means nothing is fresh.
func (e Entry) Fresh(maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(e.UpdatedAt) <= maxAge
}

// EntryCache is the item-keyed cache of market entries. It bounds the entry
// count to a capacity, evicting the oldest entries when exceeded.
type EntryCache struct {
	inner    cache.Cache[Entry]
	capacity int
}

// NewEntryCache creates an entry cache bounded to capacity entries.
func NewEntryCache(capacity int, options ...cache.Option[Entry]) (*EntryCache, error) {
	inner, err := cache.New[Entry](options...)
	if err != nil {
		return nil, err
	}
	if capacity <= 0 {
		capacity = 512
	}
	return &EntryCache{inner: inner, capacity: capacity}, nil
}

func entryKey(item int) string {
	return strconv.Itoa(item)
}

// Get returns the cached entry for an item, if any.
func (c *EntryCache) Get(item int) (Entry, bool) {
	return c.inner.Get(entryKey(item))
}

// Put stores an entry, replacing any previous one for the item, and trims
// the cache back to capacity if the put pushed it over.
func (c *EntryCache) Put(e Entry) error {
	if _, err := c.inner.Set(entryKey(e.Item), e); err != nil {
		return err
	}
	c.trim()
	return nil
}

// Fresh reports whether a cached entry exists for the item and was updated
// within maxAge of now.
func (c *EntryCache) Fresh(item int, maxAge time.Duration, now time.Time) bool {
	e, ok := c.Get(item)
	return ok && e.Fresh(maxAge, now)
}

// Delete removes the entry for an item. Returns true if one existed.
func (c *EntryCache) Delete(item int) bool {
	existed, _ := c.inner.Delete(entryKey(item))
	return existed
}

// EvictOlderThan removes every entry not updated within maxAge of now and
// returns how many were removed.
func (c *EntryCache) EvictOlderThan(maxAge time.Duration, now time.Time) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-maxAge)
	return c.inner.EvictIf(func(_ string, e Entry) bool {
		return e.UpdatedAt.Before(cutoff)
	})
}

// Clear removes all entries.
func (c *EntryCache) Clear() {
	c.inner.Clear()
}

// Size returns the current entry count.
func (c *EntryCache) Size() int {
	return c.inner.Size()
}

// Stats exposes the underlying cache statistics.
func (c *EntryCache) Stats() *cache.Statistics {
	return c.inner.Stats()
}

// trim evicts the oldest entries until the cache is back at capacity.
func (c *EntryCache) trim() {
	over := c.inner.Size() - c.capacity
	if over <= 0 {
		return
	}

	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, c.inner.Size())
	c.inner.EvictIf(func(key string, e Entry) bool {
		all = append(all, aged{key, e.UpdatedAt})
		return false
	})
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	victims := make(map[string]struct{}, over)
	for i := 0; i < over && i < len(all); i++ {
		victims[all[i].key] = struct{}{}
	}
	c.inner.EvictIf(func(key string, _ Entry) bool {
		_, ok := victims[key]
		return ok
	})
}

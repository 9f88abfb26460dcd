// Package cache provides a generic, thread-safe in-memory cache used as the
// base of the per-item market cache. Entries are replaced wholesale on Set,
// so readers always observe a self-consistent value.
//
// Statistics are always collected for observability; Prometheus metrics can
// be optionally enabled via the WithMetrics functional option.
package cache

import (
	"errors"
	"fmt"

	mkerrors "github.com/dan246/ff14-tw-market/errors"
)

// Cache is a generic thread-safe key/value cache.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found.
	Get(key string) (V, bool)

	// Set stores a value, replacing any existing entry wholesale.
	// Returns true if a new entry was created, false if one was replaced.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// EvictIf removes every entry for which pred returns true and returns
	// the number of evicted entries. Safe to call concurrently with
	// Get/Set.
	EvictIf(pred func(key string, value V) bool) int

	// Clear removes all entries.
	Clear()

	// Size returns the current number of entries.
	Size() int

	// Keys returns a slice of all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics (always available).
	Stats() *Statistics
}

// EvictCallback is called with the key and value of each evicted entry.
type EvictCallback[V any] func(key string, value V)

// maxKeyLength bounds keys to keep the map well-behaved under adversarial input.
const maxKeyLength = 256

func validateKey(key string) error {
	if key == "" {
		return mkerrors.WrapInvalid(errors.New("empty key"), "cache", "validateKey", "key validation")
	}
	if len(key) > maxKeyLength {
		return mkerrors.WrapInvalid(
			fmt.Errorf("key length %d exceeds maximum %d", len(key), maxKeyLength),
			"cache", "validateKey", "key validation")
	}
	return nil
}

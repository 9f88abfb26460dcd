// Package buffer provides a generic, thread-safe circular buffer with
// configurable overflow policies. It backs the feed's bounded recent-event
// ring: capacity-limited, oldest dropped first.
//
// Statistics are always collected for observability; Prometheus metrics can
// be optionally enabled via the WithMetrics functional option.
package buffer

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for a new one.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming item when the buffer is full.
	DropNewest
)

// DropCallback is called with the item that was dropped on overflow.
type DropCallback[T any] func(item T)

// Buffer is the interface satisfied by ring implementations in this package.
type Buffer[T any] interface {
	// Write adds an item to the buffer according to the overflow policy.
	Write(item T)

	// Read retrieves and removes the oldest item.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items, oldest first.
	ReadBatch(max int) []T

	// Latest returns up to limit of the newest items, oldest first,
	// without removing them.
	Latest(limit int) []T

	// Size returns the current number of buffered items.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// Clear removes all items.
	Clear()

	// Stats returns buffer statistics (always available).
	Stats() *Statistics
}

package buffer

import (
	"sync"
)

// Ring is a fixed-capacity circular buffer. The zero value is not usable;
// construct with NewRing.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *ringMetrics
	opts     *ringOptions[T]
}

// NewRing creates a circular buffer with the given capacity.
// Returns an error only if metrics registration fails when requested.
func NewRing[T any](capacity int, options ...Option[T]) (*Ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	opts := applyOptions(options...)

	var metrics *ringMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newRingMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, err
		}
	}

	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// Write adds an item to the buffer according to the overflow policy.
func (r *Ring[T]) Write(item T) {
	r.mu.Lock()

	var dropped *T
	if r.size == r.capacity {
		switch r.opts.overflowPolicy {
		case DropOldest:
			old := r.items[r.tail]
			dropped = &old
			r.tail = (r.tail + 1) % r.capacity
			r.size--
		case DropNewest:
			r.mu.Unlock()
			r.stats.Drop()
			if r.metrics != nil {
				r.metrics.recordDrop()
			}
			if r.opts.dropCallback != nil {
				r.opts.dropCallback(item)
			}
			return
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	size := r.size
	r.mu.Unlock()

	r.stats.Write()
	r.stats.UpdateSize(int64(size))
	if r.metrics != nil {
		r.metrics.recordWrite(size)
	}

	if dropped != nil {
		r.stats.Drop()
		if r.metrics != nil {
			r.metrics.recordDrop()
		}
		if r.opts.dropCallback != nil {
			r.opts.dropCallback(*dropped)
		}
	}
}

// Read retrieves and removes the oldest item.
func (r *Ring[T]) Read() (T, bool) {
	r.mu.Lock()
	if r.size == 0 {
		r.mu.Unlock()
		var zero T
		return zero, false
	}

	item := r.items[r.tail]
	var zero T
	r.items[r.tail] = zero // release reference
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	size := r.size
	r.mu.Unlock()

	r.stats.Read()
	r.stats.UpdateSize(int64(size))
	if r.metrics != nil {
		r.metrics.recordRead(size)
	}
	return item, true
}

// ReadBatch retrieves and removes up to max items, oldest first.
func (r *Ring[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}
	out := make([]T, 0, max)
	for len(out) < max {
		item, ok := r.Read()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}

// Latest returns up to limit of the newest items, oldest first, without
// removing them.
func (r *Ring[T]) Latest(limit int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]T, 0, limit)
	// Start limit positions back from head
	start := (r.head - limit + r.capacity*2) % r.capacity
	for i := 0; i < limit; i++ {
		out = append(out, r.items[(start+i)%r.capacity])
	}
	return out
}

// Size returns the current number of buffered items.
func (r *Ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	r.items = make([]T, r.capacity)
	r.head = 0
	r.tail = 0
	r.size = 0
	r.mu.Unlock()

	r.stats.UpdateSize(0)
	if r.metrics != nil {
		r.metrics.updateSize(0)
	}
}

// Stats returns buffer statistics.
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}

package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan246/ff14-tw-market/metric"
)

func TestWriteReadOrder(t *testing.T) {
	r, err := NewRing[int](4)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		r.Write(i)
	}
	assert.Equal(t, 3, r.Size())

	for i := 1; i <= 3; i++ {
		v, ok := r.Read()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := r.Read()
	assert.False(t, ok)
}

func TestDropOldestOnOverflow(t *testing.T) {
	var dropped []int
	r, err := NewRing[int](3, WithDropCallback[int](func(item int) {
		dropped = append(dropped, item)
	}))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		r.Write(i)
	}

	assert.Equal(t, 3, r.Size())
	assert.Equal(t, []int{1, 2}, dropped)
	assert.Equal(t, []int{3, 4, 5}, r.ReadBatch(10))
	assert.Equal(t, int64(2), r.Stats().Drops())
}

func TestDropNewestOnOverflow(t *testing.T) {
	r, err := NewRing[int](2, WithOverflowPolicy[int](DropNewest))
	require.NoError(t, err)

	r.Write(1)
	r.Write(2)
	r.Write(3) // discarded

	assert.Equal(t, []int{1, 2}, r.ReadBatch(10))
	assert.Equal(t, int64(1), r.Stats().Drops())
}

func TestLatestDoesNotConsume(t *testing.T) {
	r, err := NewRing[string](4)
	require.NoError(t, err)

	r.Write("a")
	r.Write("b")
	r.Write("c")

	assert.Equal(t, []string{"b", "c"}, r.Latest(2))
	assert.Equal(t, []string{"a", "b", "c"}, r.Latest(0))
	assert.Equal(t, 3, r.Size())
}

func TestLatestAfterWrap(t *testing.T) {
	r, err := NewRing[int](3)
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		r.Write(i)
	}
	assert.Equal(t, []int{5, 6, 7}, r.Latest(5))
}

func TestClear(t *testing.T) {
	r, err := NewRing[int](3)
	require.NoError(t, err)

	r.Write(1)
	r.Write(2)
	r.Clear()

	assert.Equal(t, 0, r.Size())
	_, ok := r.Read()
	assert.False(t, ok)

	// Ring remains usable after Clear
	r.Write(9)
	v, ok := r.Read()
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestConcurrentWriters(t *testing.T) {
	r, err := NewRing[int](128)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Write(base*1000 + i)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 128, r.Size())
	assert.Equal(t, int64(800), r.Stats().Writes())
	assert.Equal(t, int64(800-128), r.Stats().Drops())
}

func TestMetricsRegistration(t *testing.T) {
	reg := metric.NewRegistry()
	r, err := NewRing[int](2, WithMetrics[int](reg, "recent_events"))
	require.NoError(t, err)

	r.Write(1)
	r.Write(2)
	r.Write(3)

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "ffmarket_ring_drops_total" {
			found = true
		}
	}
	assert.True(t, found)

	// A second ring with the same prefix must be rejected
	_, err = NewRing[int](2, WithMetrics[int](reg, "recent_events"))
	assert.Error(t, err)
}

package feed

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIsIdempotent(t *testing.T) {
	s := NewSubscriptionSet()

	assert.True(t, s.Add("listings/add{world=4028}"))
	assert.False(t, s.Add("listings/add{world=4028}"))
	assert.Equal(t, 1, s.Len())
}

func TestRemove(t *testing.T) {
	s := NewSubscriptionSet()
	s.Add("sales/add")

	assert.True(t, s.Remove("sales/add"))
	assert.False(t, s.Remove("sales/add"))
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains("sales/add"))
}

func TestSnapshotIsSortedCopy(t *testing.T) {
	s := NewSubscriptionSet()
	s.Add("sales/add{world=4030}")
	s.Add("listings/add{world=4028}")
	s.Add("listings/add{world=4029}")

	snap := s.Snapshot()
	require.Equal(t, []Topic{
		"listings/add{world=4028}",
		"listings/add{world=4029}",
		"sales/add{world=4030}",
	}, snap)

	// Mutating the snapshot must not affect the set
	snap[0] = "mutated"
	assert.True(t, s.Contains("listings/add{world=4028}"))
}

func TestConcurrentAddsAllVisible(t *testing.T) {
	s := NewSubscriptionSet()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(TopicFor(KindListingsAdd, 4000+i))
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	require.Len(t, snap, n)
	seen := make(map[Topic]bool, n)
	for _, topic := range snap {
		seen[topic] = true
	}
	for i := 0; i < n; i++ {
		assert.True(t, seen[TopicFor(KindListingsAdd, 4000+i)],
			fmt.Sprintf("missing topic for world %d", 4000+i))
	}
}

func TestConcurrentAddRemoveDoesNotRace(t *testing.T) {
	s := NewSubscriptionSet()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Add(TopicFor(KindSalesAdd, 4028+w))
			}
		}(w)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Snapshot()
				s.Remove(TopicFor(KindSalesAdd, 4028+w))
			}
		}(w)
	}
	wg.Wait()
}

package market

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/dan246/ff14-tw-market/config"
	"github.com/dan246/ff14-tw-market/errors"
	"github.com/dan246/ff14-tw-market/feed"
)

type fakeFeed struct {
	mu         sync.Mutex
	subscribed []feed.Topic
	status     feed.Status
	recent     []feed.Frame
}

func (f *fakeFeed) Subscribe(t feed.Topic) error {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, t)
	f.mu.Unlock()
	return nil
}

func (f *fakeFeed) Unsubscribe(feed.Topic) error { return nil }
func (f *fakeFeed) Status() feed.Status          { return f.status }
func (f *fakeFeed) Recent(int) []feed.Frame      { return f.recent }

func (f *fakeFeed) subscribeCalls() []feed.Topic {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]feed.Topic, len(f.subscribed))
	copy(out, f.subscribed)
	return out
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	body  bson.Raw
	err   error
}

func (f *fakeFetcher) FetchMarketData(context.Context, string, int) (bson.Raw, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.body, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Worlds = map[int]string{4028: "伊弗利特", 4029: "迦樓羅"}
	return cfg
}

func mustBody(t *testing.T, price int) bson.Raw {
	t.Helper()
	data, err := bson.Marshal(bson.D{{Key: "pricePerUnit", Value: price}})
	require.NoError(t, err)
	return bson.Raw(data)
}

func newTestService(t *testing.T) (*Service, *fakeFeed, *fakeFetcher) {
	t.Helper()
	ff := &fakeFeed{status: feed.StatusConnected}
	fr := &fakeFetcher{body: mustBody(t, 999)}
	s, err := NewService(testConfig(), ff, fr)
	require.NoError(t, err)
	return s, ff, fr
}

func TestWatchSubscribesPerWorldOnce(t *testing.T) {
	s, ff, _ := newTestService(t)

	require.NoError(t, s.Watch(5506))
	require.NoError(t, s.Watch(5506)) // idempotent, no new sends

	calls := ff.subscribeCalls()
	// 2 worlds x 2 kinds
	require.Len(t, calls, 4)
	seen := make(map[feed.Topic]int)
	for _, topic := range calls {
		seen[topic]++
	}
	assert.Equal(t, 1, seen["listings/add{world=4028}"])
	assert.Equal(t, 1, seen["sales/add{world=4028}"])
	assert.Equal(t, 1, seen["listings/add{world=4029}"])
	assert.Equal(t, 1, seen["sales/add{world=4029}"])
	assert.True(t, s.IsWatched(5506))
}

func TestWatchRejectsInvalidItem(t *testing.T) {
	s, _, _ := newTestService(t)
	require.Error(t, s.Watch(0))
	require.Error(t, s.Watch(-5))
}

func TestApplyCachesWatchedItem(t *testing.T) {
	s, _, fr := newTestService(t)
	require.NoError(t, s.Watch(5506))

	at := time.Now()
	s.Apply(feed.Frame{
		Event: feed.KindListingsAdd, World: 4028, Item: 5506,
		Body: mustBody(t, 100), ReceivedAt: at,
	})

	entry, err := s.Read(context.Background(), 5506, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 4028, entry.World)
	assert.Equal(t, feed.KindListingsAdd, entry.Kind)
	assert.Equal(t, at, entry.UpdatedAt)
	assert.Equal(t, 0, fr.callCount(), "fresh watched entry must not hit the collaborator")
}

func TestApplyIgnoresUnwatchedItems(t *testing.T) {
	s, _, _ := newTestService(t)
	require.NoError(t, s.Watch(5506))

	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 9999, ReceivedAt: time.Now()})
	assert.Equal(t, 0, s.CacheSize())
}

func TestApplyLastWriteWins(t *testing.T) {
	s, _, _ := newTestService(t)
	require.NoError(t, s.Watch(5506))

	first := time.Now()
	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 5506,
		Body: mustBody(t, 100), ReceivedAt: first})
	s.Apply(feed.Frame{Event: feed.KindSalesAdd, World: 4029, Item: 5506,
		Body: mustBody(t, 200), ReceivedAt: first.Add(time.Second)})

	entry, err := s.Read(context.Background(), 5506, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, feed.KindSalesAdd, entry.Kind)
	assert.Equal(t, 4029, entry.World)
	assert.Equal(t, int32(200), entry.Body.Lookup("pricePerUnit").Int32())
}

func TestReadFetchesOnceThenServesFromCache(t *testing.T) {
	s, _, fr := newTestService(t)

	entry, err := s.Read(context.Background(), 9999, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 9999, entry.Item)
	assert.Equal(t, fetchKind, entry.Kind)
	assert.Equal(t, int32(999), entry.Body.Lookup("pricePerUnit").Int32())
	assert.Equal(t, 1, fr.callCount())

	// Second read within maxAge is a pure cache hit
	_, err = s.Read(context.Background(), 9999, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.callCount())
}

func TestReadStaleEntryRefetches(t *testing.T) {
	s, _, fr := newTestService(t)
	require.NoError(t, s.Watch(5506))

	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 5506,
		Body: mustBody(t, 100), ReceivedAt: time.Now().Add(-time.Hour)})

	entry, err := s.Read(context.Background(), 5506, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, fetchKind, entry.Kind)
	assert.Equal(t, 1, fr.callCount())
}

func TestReadFailureReturnsStaleEntryAndError(t *testing.T) {
	s, _, fr := newTestService(t)
	fr.err = errors.WrapTransient(errors.ErrCollaborator, "UniversalisFetcher", "FetchMarketData", "fetch snapshot")
	require.NoError(t, s.Watch(5506))

	stale := time.Now().Add(-time.Hour)
	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 5506,
		Body: mustBody(t, 100), ReceivedAt: stale})

	entry, err := s.Read(context.Background(), 5506, time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.True(t, stderrors.Is(err, errors.ErrCollaborator))
	assert.Equal(t, 5506, entry.Item, "stale entry returned alongside the error")
	assert.Equal(t, stale, entry.UpdatedAt)
}

func TestReadFailureWithoutEntry(t *testing.T) {
	s, _, fr := newTestService(t)
	fr.err = errors.WrapTransient(errors.ErrCollaborator, "UniversalisFetcher", "FetchMarketData", "fetch snapshot")

	entry, err := s.Read(context.Background(), 9999, time.Minute)
	require.Error(t, err)
	assert.Zero(t, entry.Item)
}

func TestUnwatchDropsEntryKeepsTopics(t *testing.T) {
	s, ff, _ := newTestService(t)
	require.NoError(t, s.Watch(5506))

	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 5506,
		Body: mustBody(t, 100), ReceivedAt: time.Now()})
	require.Equal(t, 1, s.CacheSize())

	before := len(ff.subscribeCalls())
	s.Unwatch(5506)

	assert.False(t, s.IsWatched(5506))
	assert.Equal(t, 0, s.CacheSize())
	assert.Len(t, ff.subscribeCalls(), before, "topics survive unwatch")

	// Unwatch of an unknown item is a no-op
	s.Unwatch(5506)
}

func TestHasUpdate(t *testing.T) {
	s, _, _ := newTestService(t)
	require.NoError(t, s.Watch(5506))

	mark := time.Now()
	assert.False(t, s.HasUpdate(5506, mark))

	s.Apply(feed.Frame{Event: feed.KindSalesAdd, World: 4028, Item: 5506,
		Body: mustBody(t, 100), ReceivedAt: mark.Add(time.Second)})

	assert.True(t, s.HasUpdate(5506, mark))
	assert.False(t, s.HasUpdate(5506, mark.Add(time.Minute)))
}

func TestClearCacheAndClearAll(t *testing.T) {
	s, _, _ := newTestService(t)
	require.NoError(t, s.Watch(1))
	require.NoError(t, s.Watch(2))

	now := time.Now()
	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 1, ReceivedAt: now})
	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 2, ReceivedAt: now})

	s.ClearCache(1)
	assert.Equal(t, 1, s.CacheSize())

	s.ClearAll()
	assert.Equal(t, 0, s.CacheSize())
	assert.True(t, s.IsWatched(1), "clearing the cache keeps the watch set")
}

func TestEvictStale(t *testing.T) {
	s, _, _ := newTestService(t)
	require.NoError(t, s.Watch(1))
	require.NoError(t, s.Watch(2))

	now := time.Now()
	s.now = func() time.Time { return now }

	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 1,
		ReceivedAt: now.Add(-2 * s.cfg.Market.MaxEntryAge())})
	s.Apply(feed.Frame{Event: feed.KindListingsAdd, World: 4028, Item: 2, ReceivedAt: now})

	assert.Equal(t, 1, s.EvictStale())
	assert.Equal(t, 1, s.CacheSize())
}

func TestConnectionStatusAndRecentEvents(t *testing.T) {
	ff := &fakeFeed{
		status: feed.StatusConnected,
		recent: []feed.Frame{{Event: feed.KindListingsAdd, Item: 5506}},
	}
	s, err := NewService(testConfig(), ff, &fakeFetcher{})
	require.NoError(t, err)

	assert.Equal(t, feed.StatusConnected, s.ConnectionStatus())
	events := s.RecentEvents(10)
	require.Len(t, events, 1)
	assert.Equal(t, 5506, events[0].Item)
}

func TestWatchedItemsSorted(t *testing.T) {
	s, _, _ := newTestService(t)
	for _, item := range []int{30, 10, 20} {
		require.NoError(t, s.Watch(item))
	}
	assert.Equal(t, []int{10, 20, 30}, s.WatchedItems())
}

package market

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dan246/ff14-tw-market/config"
	"github.com/dan246/ff14-tw-market/errors"
	"github.com/dan246/ff14-tw-market/feed"
	"github.com/dan246/ff14-tw-market/metric"
	"github.com/dan246/ff14-tw-market/pkg/cache"
)

// Feed is the slice of the feed client the façade needs. *feed.Client
// satisfies it; tests substitute fakes.
type Feed interface {
	Subscribe(t feed.Topic) error
	Unsubscribe(t feed.Topic) error
	Status() feed.Status
	Recent(limit int) []feed.Frame
}

// watchKinds are the topic kinds subscribed per configured world when an
// item is watched. Topics are world-scoped, so they are shared by every
// watched item and survive Unwatch.
var watchKinds = []feed.Kind{feed.KindListingsAdd, feed.KindSalesAdd}

// Service is the polling façade over the entity cache. Watched items stay
// fresh from the feed; Read falls back to the HTTP collaborator when the
// cache cannot answer.
type Service struct {
	cfg     *config.Config
	feed    Feed
	fetcher Fetcher
	cache   *EntryCache

	mu      sync.Mutex
	watched map[int]struct{}

	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithServiceMetrics wires cache hit/miss counters.
func WithServiceMetrics(m *metric.Metrics) ServiceOption {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// WithCacheMetrics exports entry cache gauges to the given registry.
func WithCacheMetrics(registry *metric.Registry) ServiceOption {
	return func(s *Service) error {
		c, err := NewEntryCache(s.cfg.Market.CacheCapacity,
			cache.WithMetrics[Entry](registry, "market_entries"))
		if err != nil {
			return err
		}
		s.cache = c
		return nil
	}
}

// NewService creates the façade. The returned Service implements the feed
// dispatcher's Store; wire it with dispatcher.SetStore.
func NewService(cfg *config.Config, feedClient Feed, fetcher Fetcher, options ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Service", "NewService", "nil config")
	}
	if feedClient == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Service", "NewService", "nil feed client")
	}
	if fetcher == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Service", "NewService", "nil fetcher")
	}

	c, err := NewEntryCache(cfg.Market.CacheCapacity)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		feed:    feedClient,
		fetcher: fetcher,
		cache:   c,
		watched: make(map[int]struct{}),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Apply stores a feed frame for a watched item. Unwatched items are ignored;
// the dispatcher has already filtered foreign worlds. Last write wins by
// arrival order.
func (s *Service) Apply(f feed.Frame) {
	if f.Item <= 0 || !s.IsWatched(f.Item) {
		return
	}
	entry := Entry{
		Item:      f.Item,
		World:     f.World,
		Kind:      f.Event,
		Body:      f.Body,
		UpdatedAt: f.ReceivedAt,
	}
	if err := s.cache.Put(entry); err != nil {
		s.logger.Warn("failed to cache feed update", "item", f.Item, "error", err)
	}
}

// Watch registers an item for streaming updates. Idempotent; watching an
// already watched item changes nothing and sends no subscribe requests.
// The world-scoped topics it subscribes are shared across items.
func (s *Service) Watch(item int) error {
	if item <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Service", "Watch", "item must be positive")
	}

	s.mu.Lock()
	if _, ok := s.watched[item]; ok {
		s.mu.Unlock()
		return nil
	}
	s.watched[item] = struct{}{}
	s.mu.Unlock()

	return s.subscribeWorldTopics()
}

// subscribeWorldTopics subscribes the watch kinds for every configured
// world. The feed client deduplicates, so repeated calls send nothing new.
func (s *Service) subscribeWorldTopics() error {
	for _, world := range s.cfg.WorldIDs() {
		for _, kind := range watchKinds {
			if err := s.feed.Subscribe(feed.TopicFor(kind, world)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unwatch removes an item from the watch set and drops its cache entry.
// Topics stay subscribed; they serve the remaining watched items.
func (s *Service) Unwatch(item int) {
	s.mu.Lock()
	_, ok := s.watched[item]
	delete(s.watched, item)
	s.mu.Unlock()

	if ok {
		s.cache.Delete(item)
	}
}

// IsWatched reports whether the item is in the watch set.
func (s *Service) IsWatched(item int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[item]
	return ok
}

// WatchedItems returns the watched item IDs in ascending order.
func (s *Service) WatchedItems() []int {
	s.mu.Lock()
	items := make([]int, 0, len(s.watched))
	for item := range s.watched {
		items = append(items, item)
	}
	s.mu.Unlock()
	sort.Ints(items)
	return items
}

// Read returns the market entry for an item. A cached entry fresher than
// maxAge is returned without touching the collaborator. Otherwise the
// collaborator is fetched and the result seeds the cache. When the fetch
// fails and a stale entry exists, both the stale entry and the error are
// returned so the caller can choose.
func (s *Service) Read(ctx context.Context, item int, maxAge time.Duration) (Entry, error) {
	if item <= 0 {
		return Entry{}, errors.WrapInvalid(errors.ErrInvalidConfig, "Service", "Read", "item must be positive")
	}

	entry, ok := s.cache.Get(item)
	if ok && entry.Fresh(maxAge, s.now()) {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		return entry, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Market.FetchTimeout())
	defer cancel()

	body, err := s.fetcher.FetchMarketData(fetchCtx, s.cfg.DataCenter, item)
	if err != nil {
		if ok {
			// Stale data beats no data; the error still tells the caller.
			return entry, err
		}
		return Entry{}, err
	}

	fresh := Entry{
		Item:      item,
		Kind:      fetchKind,
		Body:      body,
		UpdatedAt: s.now(),
	}
	if putErr := s.cache.Put(fresh); putErr != nil {
		s.logger.Warn("failed to cache fetched snapshot", "item", item, "error", putErr)
	}
	return fresh, nil
}

// HasUpdate reports whether the item's cached entry was updated after since.
func (s *Service) HasUpdate(item int, since time.Time) bool {
	entry, ok := s.cache.Get(item)
	return ok && entry.UpdatedAt.After(since)
}

// RecentEvents drains up to limit buffered feed events, oldest first.
func (s *Service) RecentEvents(limit int) []feed.Frame {
	return s.feed.Recent(limit)
}

// ConnectionStatus reports the feed connection status.
func (s *Service) ConnectionStatus() feed.Status {
	return s.feed.Status()
}

// ClearCache drops the cached entry for one item.
func (s *Service) ClearCache(item int) {
	s.cache.Delete(item)
}

// ClearAll drops every cached entry. The watch set is untouched.
func (s *Service) ClearAll() {
	s.cache.Clear()
}

// EvictStale removes entries older than the configured maximum age and
// returns how many were evicted. Intended to run on a maintenance ticker.
func (s *Service) EvictStale() int {
	return s.cache.EvictOlderThan(s.cfg.Market.MaxEntryAge(), s.now())
}

// CacheSize returns the current entry count.
func (s *Service) CacheSize() int {
	return s.cache.Size()
}

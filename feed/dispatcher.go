package feed

import (
	"log/slog"
	"sync"

	"github.com/dan246/ff14-tw-market/metric"
	"github.com/dan246/ff14-tw-market/pkg/buffer"
)

// Store receives frames that passed the world filter. The market façade
// implements it to fold frames for watched items into the entity cache.
type Store interface {
	Apply(Frame)
}

// Handler is a per-event-kind callback.
type Handler func(Frame)

// Dispatcher fans decoded frames out to the entity cache, the bounded
// recent-event ring, and registered per-kind callbacks. Frames for worlds
// outside the configured deployment are silently discarded.
type Dispatcher struct {
	worlds map[int]struct{}
	ring   *buffer.Ring[Frame]

	mu       sync.RWMutex
	store    Store
	handlers map[Kind][]Handler

	logger  *slog.Logger
	metrics *metric.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	ringCapacity int
	logger       *slog.Logger
	metrics      *metric.Metrics
	registry     *metric.Registry
}

// WithRingCapacity sets the recent-event ring capacity. Defaults to 256.
func WithRingCapacity(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.ringCapacity = n
		}
	}
}

// WithDispatcherLogger sets the logger. Defaults to slog.Default().
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDispatcherMetrics wires the core frame counters.
func WithDispatcherMetrics(m *metric.Metrics) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.metrics = m
	}
}

// WithRingMetrics exposes recent-event ring statistics on the registry.
func WithRingMetrics(reg *metric.Registry) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.registry = reg
	}
}

// NewDispatcher creates a dispatcher scoped to the given world IDs.
func NewDispatcher(worldIDs []int, opts ...DispatcherOption) (*Dispatcher, error) {
	o := &dispatcherOptions{
		ringCapacity: 256,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	var ringOpts []buffer.Option[Frame]
	if o.registry != nil {
		ringOpts = append(ringOpts, buffer.WithMetrics[Frame](o.registry, "recent_events"))
	}
	ring, err := buffer.NewRing[Frame](o.ringCapacity, ringOpts...)
	if err != nil {
		return nil, err
	}

	worlds := make(map[int]struct{}, len(worldIDs))
	for _, id := range worldIDs {
		worlds[id] = struct{}{}
	}

	return &Dispatcher{
		worlds:   worlds,
		ring:     ring,
		handlers: make(map[Kind][]Handler),
		logger:   o.logger,
		metrics:  o.metrics,
	}, nil
}

// SetStore binds the frame sink. May be called once during wiring, before
// the connection is started.
func (d *Dispatcher) SetStore(s Store) {
	d.mu.Lock()
	d.store = s
	d.mu.Unlock()
}

// On registers a callback for one event kind.
func (d *Dispatcher) On(kind Kind, fn Handler) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.handlers[kind] = append(d.handlers[kind], fn)
	d.mu.Unlock()
}

// Dispatch routes one decoded frame. Called from the connection read loop
// only, so frames for a given item reach the store in arrival order.
func (d *Dispatcher) Dispatch(f Frame) {
	if f.World != 0 {
		if _, ok := d.worlds[f.World]; !ok {
			if d.metrics != nil {
				d.metrics.FramesDropped.WithLabelValues("foreign_world").Inc()
			}
			return
		}
	}

	if d.metrics != nil {
		d.metrics.FramesReceived.WithLabelValues(string(f.Event)).Inc()
	}

	d.mu.RLock()
	store := d.store
	handlers := d.handlers[f.Event]
	d.mu.RUnlock()

	if store != nil {
		store.Apply(f)
	}

	d.ring.Write(f)

	for _, h := range handlers {
		d.invoke(h, f)
	}
}

// invoke isolates callback panics so one failing callback cannot stop
// dispatch to the rest or undo the cache update that already happened.
func (d *Dispatcher) invoke(h Handler, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event callback panicked",
				"event", string(f.Event), "item", f.Item, "panic", r)
		}
	}()
	h(f)
}

// Recent drains and returns up to limit of the buffered recent events,
// oldest first.
func (d *Dispatcher) Recent(limit int) []Frame {
	return d.ring.ReadBatch(limit)
}

// RingSize returns the number of currently buffered events.
func (d *Dispatcher) RingSize() int {
	return d.ring.Size()
}

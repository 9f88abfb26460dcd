package cache

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dan246/ff14-tw-market/metric"
)

// cacheMetrics exposes cache statistics as prometheus collectors.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(reg *metric.Registry, prefix string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"cache": prefix}
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Total cache hits", ConstLabels: labels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Total cache misses", ConstLabels: labels,
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "cache", Name: "sets_total",
			Help: "Total cache set operations", ConstLabels: labels,
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "cache", Name: "deletes_total",
			Help: "Total cache delete operations", ConstLabels: labels,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Total entries removed by eviction", ConstLabels: labels,
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "cache", Name: "size",
			Help: "Current number of cached entries", ConstLabels: labels,
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"hits": m.hits, "misses": m.misses, "sets": m.sets,
		"deletes": m.deletes, "evictions": m.evictions, "size": m.size,
	} {
		if err := reg.Register(fmt.Sprintf("%s.cache.%s", prefix, name), c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *cacheMetrics) recordHit()  { m.hits.Inc() }
func (m *cacheMetrics) recordMiss() { m.misses.Inc() }

func (m *cacheMetrics) recordSet(size int) {
	m.sets.Inc()
	m.size.Set(float64(size))
}

func (m *cacheMetrics) recordDelete(size int) {
	m.deletes.Inc()
	m.size.Set(float64(size))
}

func (m *cacheMetrics) recordEvictions(n, size int) {
	m.evictions.Add(float64(n))
	m.size.Set(float64(size))
}

func (m *cacheMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}

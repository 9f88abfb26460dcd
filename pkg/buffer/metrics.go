package buffer

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dan246/ff14-tw-market/metric"
)

// ringMetrics exposes ring statistics as prometheus collectors.
type ringMetrics struct {
	writes prometheus.Counter
	reads  prometheus.Counter
	drops  prometheus.Counter
	size   prometheus.Gauge
}

func newRingMetrics(reg *metric.Registry, prefix string) (*ringMetrics, error) {
	m := &ringMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "ring",
			Name:        "writes_total",
			Help:        "Total items written to the ring",
			ConstLabels: prometheus.Labels{"ring": prefix},
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "ring",
			Name:        "reads_total",
			Help:        "Total items read from the ring",
			ConstLabels: prometheus.Labels{"ring": prefix},
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "ring",
			Name:        "drops_total",
			Help:        "Total items dropped on overflow",
			ConstLabels: prometheus.Labels{"ring": prefix},
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "ring",
			Name:        "size",
			Help:        "Current number of buffered items",
			ConstLabels: prometheus.Labels{"ring": prefix},
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"writes": m.writes,
		"reads":  m.reads,
		"drops":  m.drops,
		"size":   m.size,
	} {
		if err := reg.Register(fmt.Sprintf("%s.ring.%s", prefix, name), c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *ringMetrics) recordWrite(size int) {
	m.writes.Inc()
	m.size.Set(float64(size))
}

func (m *ringMetrics) recordRead(size int) {
	m.reads.Inc()
	m.size.Set(float64(size))
}

func (m *ringMetrics) recordDrop() {
	m.drops.Inc()
}

func (m *ringMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}

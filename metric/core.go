package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the prometheus namespace shared by all collectors in this module.
const Namespace = "ffmarket"

// Metrics contains the platform-level metrics for the feed and read path.
type Metrics struct {
	// Feed metrics
	ConnectionStatus prometheus.Gauge // 0=disconnected 1=connecting 2=connected 3=closing
	Reconnects       prometheus.Counter
	FramesReceived   *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec
	SubscribesSent   *prometheus.CounterVec

	// Read-path metrics
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	Fetches       prometheus.Counter
	FetchFailures prometheus.Counter
	FetchDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "feed",
				Name:      "connection_status",
				Help:      "Feed connection status (0=disconnected, 1=connecting, 2=connected, 3=closing)",
			},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "feed",
				Name:      "reconnects_total",
				Help:      "Total number of feed reconnect attempts",
			},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "feed",
				Name:      "frames_received_total",
				Help:      "Total number of frames decoded from the feed",
			},
			[]string{"event"},
		),

		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "feed",
				Name:      "frames_dropped_total",
				Help:      "Total number of frames dropped before dispatch",
			},
			[]string{"reason"},
		),

		SubscribesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "feed",
				Name:      "subscribes_sent_total",
				Help:      "Total number of subscribe/unsubscribe requests sent",
			},
			[]string{"op"},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "read",
				Name:      "cache_hits_total",
				Help:      "Total number of reads served from the entity cache",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "read",
				Name:      "cache_misses_total",
				Help:      "Total number of reads that fell through to the market API",
			},
		),

		Fetches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "read",
				Name:      "fetches_total",
				Help:      "Total number of blocking market API fetches",
			},
		),

		FetchFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "read",
				Name:      "fetch_failures_total",
				Help:      "Total number of failed market API fetches",
			},
		),

		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "read",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of blocking market API fetches",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// collectors returns every collector owned by Metrics for registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionStatus,
		m.Reconnects,
		m.FramesReceived,
		m.FramesDropped,
		m.SubscribesSent,
		m.CacheHits,
		m.CacheMisses,
		m.Fetches,
		m.FetchFailures,
		m.FetchDuration,
	}
}

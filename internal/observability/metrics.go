package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lightning_feed"

// Metrics holds the Prometheus counters, histograms, and gauges for the feed session.
type Metrics struct {
	FramesReceived   prometheus.Counter
	FramesCompressed prometheus.Counter
	FrameErrors      prometheus.Counter
	PayloadsByKind   *prometheus.CounterVec // labels: kind={strike,other,raw}
	SessionConnected prometheus.Gauge

	// Strike metrics.
	StrikeTimeUnits *prometheus.CounterVec // labels: unit={seconds,microseconds,nanoseconds,unknown}
	StrikeDelay     prometheus.Histogram

	// Forwarder metrics.
	ForwardErrors prometheus.Counter
}

// NewMetrics creates and registers all feed metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FramesReceived,
		m.FramesCompressed,
		m.FrameErrors,
		m.PayloadsByKind,
		m.SessionConnected,
		m.StrikeTimeUnits,
		m.StrikeDelay,
		m.ForwardErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total frames read from the feed.",
		}),
		FramesCompressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_compressed_total",
			Help:      "Frames that needed dictionary decompression.",
		}),
		FrameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Frames whose strike fields could not be parsed.",
		}),
		PayloadsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_total",
			Help:      "Parsed frames by payload kind.",
		}, []string{"kind"}),
		SessionConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_connected",
			Help:      "1 while subscribed to the feed, 0 otherwise.",
		}),
		StrikeTimeUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strike_time_units_total",
			Help:      "Strikes by inferred unit of the raw strike time.",
		}, []string{"unit"}),
		StrikeDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strike_delay_seconds",
			Help:      "Network propagation delay reported with each strike.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 7.5, 10, 15, 30},
		}),
		ForwardErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_errors_total",
			Help:      "Strikes that could not be forwarded to Kafka.",
		}),
	}
}

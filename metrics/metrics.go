package metrics

import (
	"strconv"
	"time"

	"github.com/forest-web/forest/http/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the toolkit's Prometheus instrumentation. A nil *Metrics is
// valid and turns every observation into a no-op, so instrumentation stays
// optional.
type Metrics struct {
	connectionsTotal  prometheus.Counter
	activeConnections prometheus.Gauge
	requestsTotal     *prometheus.CounterVec
	parseErrorsTotal  prometheus.Counter
	dispatchDuration  prometheus.Histogram
}

// Config tunes metric registration.
type Config struct {
	// Namespace defaults to "forest".
	Namespace string
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

func New(cfg Config) *Metrics {
	if len(cfg.Namespace) == 0 {
		cfg.Namespace = "forest"
	}

	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "connections_total",
			Help:      "Connections accepted since start.",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "active_connections",
			Help:      "Connections currently being served.",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "requests_total",
			Help:      "Completed requests by status code.",
		}, []string{"code"}),
		parseErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "parse_errors_total",
			Help:      "Messages abandoned due to malformed input or exceeded limits.",
		}),
		dispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Handler dispatch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}

	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}

	m.activeConnections.Dec()
}

func (m *Metrics) RequestCompleted(code status.Code, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.requestsTotal.WithLabelValues(strconv.Itoa(int(code))).Inc()
	m.dispatchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ParseError() {
	if m == nil {
		return
	}

	m.parseErrorsTotal.Inc()
}

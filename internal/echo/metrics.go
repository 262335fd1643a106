package echo

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "benchkit"
const metricsSubsystem = "echo"

// Metrics holds the server's Prometheus collectors. Each server owns its own
// registry so several servers can live in one process.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	MessagesEchoed    *prometheus.CounterVec
	BytesEchoed       prometheus.Counter
	Uploads           prometheus.Counter
	BytesUploaded     prometheus.Counter
	Rejected          *prometheus.CounterVec

	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_connections",
			Help:      "WebSocket connections currently open",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_total",
			Help:      "WebSocket connections accepted",
		}),
		MessagesEchoed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_echoed_total",
			Help:      "WebSocket messages echoed by message type",
		}, []string{"type"}),
		BytesEchoed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "bytes_echoed_total",
			Help:      "Payload bytes echoed over WebSocket",
		}),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "uploads_total",
			Help:      "Uploads accepted",
		}),
		BytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "uploaded_bytes_total",
			Help:      "File part bytes received by /upload",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rejected_total",
			Help:      "Requests or connections refused by reason",
		}, []string{"reason"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.ActiveConnections,
		m.ConnectionsTotal,
		m.MessagesEchoed,
		m.BytesEchoed,
		m.Uploads,
		m.BytesUploaded,
		m.Rejected,
	)
	return m
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

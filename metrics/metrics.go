// Package metrics exposes Prometheus collectors for the capability server.
package metrics

import (
	"net/http"

	"github.com/kasuganosora/gamecaps/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gamecaps"

// StatusError labels calls that failed at the transport level.
const StatusError = "error"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	calls       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	pipelined   *prometheus.CounterVec
	connections prometheus.Gauge
	exports     *prometheus.GaugeVec

	entities    prometheus.Gauge
	rooms       prometheus.Gauge
	queued      prometheus.Gauge
	liveMatches prometheus.Gauge
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Delivered capability calls by interface, method and reply status.",
		}, []string{"interface", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Time spent inside capability methods.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"interface", "method"}),
		pipelined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_pipelined_calls_total",
			Help:      "Calls addressed to a promised capability.",
		}, []string{"interface"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		exports: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exported_capabilities",
			Help:      "Live exported capabilities by interface.",
		}, []string{"interface"}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "world_entities",
			Help:      "Entities currently in the world.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_rooms",
			Help:      "Chat rooms created.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matchmaking_queued_players",
			Help:      "Players waiting in the matchmaking queue.",
		}),
		liveMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matches",
			Help:      "Matches created and not yet cancelled or completed.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.calls, m.duration, m.pipelined, m.connections, m.exports,
		m.entities, m.rooms, m.queued, m.liveMatches,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveCall records one delivered call.
func (m *Metrics) ObserveCall(ci rpc.CallInfo) {
	status := ci.Status
	if ci.Err != nil {
		status = StatusError
	} else if status == "" {
		status = "none"
	}
	m.calls.WithLabelValues(ci.Interface, ci.Method, status).Inc()
	m.duration.WithLabelValues(ci.Interface, ci.Method).Observe(ci.Duration.Seconds())
	if ci.Pipelined {
		m.pipelined.WithLabelValues(ci.Interface).Inc()
	}
}

// Export adjusts the live capability gauge for iface.
func (m *Metrics) Export(iface string, delta int) {
	m.exports.WithLabelValues(iface).Add(float64(delta))
}

// ConnOpened and ConnClosed track live connections.
func (m *Metrics) ConnOpened() { m.connections.Inc() }
func (m *Metrics) ConnClosed() { m.connections.Dec() }

// Snapshot is the periodic domain state reported by the stats ticker.
type Snapshot struct {
	Entities int
	Rooms    int
	Queued   int
	Matches  int
}

// SetSnapshot updates the domain gauges.
func (m *Metrics) SetSnapshot(s Snapshot) {
	m.entities.Set(float64(s.Entities))
	m.rooms.Set(float64(s.Rooms))
	m.queued.Set(float64(s.Queued))
	m.liveMatches.Set(float64(s.Matches))
}

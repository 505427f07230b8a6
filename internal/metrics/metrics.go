// Package metrics exposes Prometheus collectors for the lobby engine and
// the HTTP handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lobbychat"

// Metrics groups the engine's collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	gatherer prometheus.Gatherer

	lobbies            prometheus.Gauge
	clients            prometheus.Gauge
	watchers           prometheus.Gauge
	events             *prometheus.CounterVec
	sendFailures       prometheus.Counter
	malformedEvents    prometheus.Counter
	rejectedHandshakes prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lobbies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lobbies_active",
			Help:      "Number of lobbies with at least one member.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_joined",
			Help:      "Number of connections currently joined to a lobby.",
		}),
		watchers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_watchers",
			Help:      "Number of discovery connections receiving directory updates.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_routed_total",
			Help:      "Outbound events fanned out, by kind.",
		}, []string{"kind"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Frames that could not be queued for a target connection.",
		}),
		malformedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_events_total",
			Help:      "Inbound frames dropped as unparseable or unrecognized.",
		}),
		rejectedHandshakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_handshakes_total",
			Help:      "Connections refused for a missing username or lobby.",
		}),
	}

	reg.MustRegister(m.lobbies, m.clients, m.watchers, m.events,
		m.sendFailures, m.malformedEvents, m.rejectedHandshakes)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registered collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// SetOccupancy records the current lobby and client counts.
func (m *Metrics) SetOccupancy(lobbies, clients int) {
	if m == nil {
		return
	}
	m.lobbies.Set(float64(lobbies))
	m.clients.Set(float64(clients))
}

// SetWatchers records the number of discovery connections.
func (m *Metrics) SetWatchers(n int) {
	if m == nil {
		return
	}
	m.watchers.Set(float64(n))
}

// EventRouted counts one fanned-out event of the given kind.
func (m *Metrics) EventRouted(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// SendFailed counts one frame that a target could not accept.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

// MalformedEvent counts one dropped inbound frame.
func (m *Metrics) MalformedEvent() {
	if m == nil {
		return
	}
	m.malformedEvents.Inc()
}

// HandshakeRejected counts one refused connection.
func (m *Metrics) HandshakeRejected() {
	if m == nil {
		return
	}
	m.rejectedHandshakes.Inc()
}

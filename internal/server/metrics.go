package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

const metricsNamespace = "packetchat"

// Metrics holds the Prometheus collectors updated by the hub and router.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessions       prometheus.Gauge
	users          prometheus.Gauge
	packetsIn      *prometheus.CounterVec
	packetsOut     *prometheus.CounterVec
	sendFailures   prometheus.Counter
	protocolErrors prometheus.Counter
	rateLimited    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions",
			Help:      "Number of connected sessions, registered or not",
		}),
		users: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_users",
			Help:      "Number of sessions with a bound username",
		}),
		packetsIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_received_total",
			Help:      "Packets decoded from clients",
		}, []string{"kind"}),
		packetsOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_sent_total",
			Help:      "Packets queued for delivery to clients",
		}, []string{"kind"}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "send_failures_total",
			Help:      "Packets that could not be queued for a recipient",
		}),
		protocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Connections closed because of malformed framing",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Packets discarded by the per-session rate limiter",
		}),
	}
}

func (m *Metrics) observeRegistry(r *Registry) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(r.Len()))
	m.users.Set(float64(r.ActiveLen()))
}

func (m *Metrics) packetReceived(kind protocol.Kind) {
	if m == nil {
		return
	}
	m.packetsIn.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) packetSent(kind protocol.Kind) {
	if m == nil {
		return
	}
	m.packetsOut.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) sendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) protocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

func (m *Metrics) rateLimitHit() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

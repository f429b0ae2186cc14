package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the relay's operational counters. All methods are nil-safe
// so wiring metrics stays optional in tests and dev.
type Metrics struct {
	connections  prometheus.Gauge
	onlineUsers  prometheus.Gauge
	broadcasts   *prometheus.CounterVec
	dropped      prometheus.Counter
	authRejects  *prometheus.CounterVec
	statusMoves  *prometheus.CounterVec
	rateLimited  prometheus.Counter
}

// NewMetrics registers the relay metric set on reg (DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ripple_relay_connections",
			Help: "Current number of live websocket connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ripple_relay_online_users",
			Help: "Current number of users with at least one live connection.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ripple_relay_broadcast_events_total",
			Help: "Envelopes delivered to client send queues, by event type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripple_relay_dropped_events_total",
			Help: "Envelopes dropped due to full client send queues.",
		}),
		authRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ripple_relay_auth_rejects_total",
			Help: "Connection attempts rejected at authentication, by reason.",
		}, []string{"reason"}),
		statusMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ripple_relay_status_transitions_total",
			Help: "Message status transitions applied, by target status.",
		}, []string{"status"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripple_relay_rate_limited_total",
			Help: "Connections closed for exceeding the per-connection event rate.",
		}),
	}

	reg.MustRegister(
		m.connections,
		m.onlineUsers,
		m.broadcasts,
		m.dropped,
		m.authRejects,
		m.statusMoves,
		m.rateLimited,
	)
	return m
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

func (m *Metrics) RecordBroadcast(eventType string, delivered, dropped int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.broadcasts.WithLabelValues(eventType).Add(float64(delivered))
	}
	if dropped > 0 {
		m.dropped.Add(float64(dropped))
	}
}

func (m *Metrics) RecordAuthReject(reason string) {
	if m == nil {
		return
	}
	m.authRejects.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordStatusTransition(status Status) {
	if m == nil {
		return
	}
	m.statusMoves.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

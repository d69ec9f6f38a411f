package ws

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	connections   *prometheus.GaugeVec
	notifications prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "electionday",
			Subsystem: "sockets",
			Name:      "connections",
			Help:      "The number of open websocket connections by mode.",
		}, []string{"mode"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "electionday",
			Subsystem: "sockets",
			Name:      "notifications_total",
			Help:      "The number of notifications sent to listeners.",
		}),
	}
	registerer.MustRegister(m.connections, m.notifications)
	return m
}

func (m *Metrics) connected(mode string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(mode).Inc()
}

func (m *Metrics) disconnected(mode string) {
	if m == nil || mode == "" {
		return
	}
	m.connections.WithLabelValues(mode).Dec()
}

func (m *Metrics) notified(n int) {
	if m == nil {
		return
	}
	m.notifications.Add(float64(n))
}

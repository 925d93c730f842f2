// Copyright 2024-2026 Aiku AI

package relay

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Metrics counts relay traffic. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Routed     prometheus.Counter
	Dropped    prometheus.Counter
	Dispatched *prometheus.CounterVec
	Relayed    *prometheus.CounterVec
	Blocked    prometheus.Counter
}

// NewMetrics creates the relay counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Routed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperwire",
			Name:      "messages_routed_total",
			Help:      "Messages accepted by a running bridge.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperwire",
			Name:      "messages_dropped_total",
			Help:      "Messages rejected by the bridge filter chain.",
		}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperwire",
			Name:      "endpoint_dispatches_total",
			Help:      "Per-endpoint deliveries by outcome.",
		}, []string{"endpoint", "outcome"}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperwire",
			Name:      "link_relays_total",
			Help:      "Deliveries across duplex links by outcome.",
		}, []string{"outcome"}),
		Blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperwire",
			Name:      "messages_blocked_total",
			Help:      "Messages blocked by a link relay predicate.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Routed, m.Dropped, m.Dispatched, m.Relayed, m.Blocked)
	}
	return m
}

func (m *Metrics) routed() {
	if m != nil {
		m.Routed.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) blocked() {
	if m != nil {
		m.Blocked.Inc()
	}
}

func (m *Metrics) dispatched(endpoint string, err error) {
	if m != nil {
		m.Dispatched.WithLabelValues(endpoint, outcome(err)).Inc()
	}
}

func (m *Metrics) relayed(err error) {
	if m != nil {
		m.Relayed.WithLabelValues(outcome(err)).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailed
	}
	return outcomeOK
}

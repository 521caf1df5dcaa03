package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Event outcomes recorded on gatekeeper_auth_events_total.
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Metrics holds the auth plugin's Prometheus collectors. A nil *Metrics is
// valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	events       *prometheus.CounterVec
	hashDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the auth collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_auth_events_total",
				Help: "Total number of authentication events by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		hashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_password_hash_seconds",
				Help:    "Time spent hashing or verifying passwords",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(m.events, m.hashDuration)
	return m
}

func (m *Metrics) record(event, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) observeHash(op string, started time.Time) {
	if m == nil {
		return
	}
	m.hashDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// outcomeOf classifies a service error for the events counter: client
// mistakes are "rejected", everything else is "error".
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case isClientError(err):
		return outcomeRejected
	default:
		return outcomeError
	}
}

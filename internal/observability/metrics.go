package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes recorded by Metrics.Submitted.
const (
	OutcomeAccepted    = "accepted"
	OutcomeHoneypot    = "honeypot"
	OutcomeInvalid     = "invalid"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Metrics are the domain collectors exposed next to the HTTP ones on
// /metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	submitted     *prometheus.CounterVec
	moderated     *prometheus.CounterVec
	dispatched    *prometheus.CounterVec
	subscriptions prometheus.Gauge
}

// NewMetrics creates the domain collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comments_submitted_total",
			Help: "Comment submissions by outcome.",
		}, []string{"outcome"}),
		moderated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comments_moderated_total",
			Help: "Moderation actions by resulting status (deleted for cascade deletes).",
		}, []string{"status"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_dispatch_total",
			Help: "Push delivery attempts by result.",
		}, []string{"result"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "push_subscriptions",
			Help: "Registered push subscriptions as last observed.",
		}),
	}
	reg.MustRegister(m.submitted, m.moderated, m.dispatched, m.subscriptions)
	return m
}

// Submitted counts one comment submission.
func (m *Metrics) Submitted(outcome string) {
	if m != nil {
		m.submitted.WithLabelValues(outcome).Inc()
	}
}

// Moderated counts one moderation action.
func (m *Metrics) Moderated(status string) {
	if m != nil {
		m.moderated.WithLabelValues(status).Inc()
	}
}

// Dispatched counts one push delivery attempt.
func (m *Metrics) Dispatched(result string) {
	if m != nil {
		m.dispatched.WithLabelValues(result).Inc()
	}
}

// Subscriptions records the current registry size.
func (m *Metrics) Subscriptions(n int64) {
	if m != nil {
		m.subscriptions.Set(float64(n))
	}
}

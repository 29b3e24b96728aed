// Package metrics exposes Prometheus counters for the auth flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics owns its registry so tests can create independent instances.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	authTotal  *prometheus.CounterVec
	guardTotal *prometheus.CounterVec
	uploads    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userauth",
			Name:      "auth_operations_total",
			Help:      "Auth flow outcomes by operation.",
		}, []string{"operation", "outcome"}),
		guardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userauth",
			Name:      "session_guard_total",
			Help:      "Session guard decisions.",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userauth",
			Name:      "image_uploads_total",
			Help:      "Profile and cover image uploads.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authTotal, m.guardTotal, m.uploads,
	)
	return m
}

func (m *Metrics) Auth(operation, outcome string) {
	if m == nil {
		return
	}
	m.authTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Guard(outcome string) {
	if m == nil {
		return
	}
	m.guardTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Upload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

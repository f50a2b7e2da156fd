package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks     *prometheus.CounterVec
	Denials    *prometheus.CounterVec
	StoreFails *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_ratelimit_checks_total",
			Help: "Rate limit checks by resource",
		}, []string{"resource"}),
		Denials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_ratelimit_denials_total",
			Help: "Requests refused by the rate limiter by resource",
		}, []string{"resource"}),
		StoreFails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_ratelimit_store_errors_total",
			Help: "Bucket store failures by resource",
		}, []string{"resource"}),
	}
}

func (m *Metrics) IncrementChecks(resource string) {
	m.Checks.WithLabelValues(resource).Inc()
}

func (m *Metrics) IncrementDenials(resource string) {
	m.Denials.WithLabelValues(resource).Inc()
}

func (m *Metrics) IncrementStoreErrors(resource string) {
	m.StoreFails.WithLabelValues(resource).Inc()
}

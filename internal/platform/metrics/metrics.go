package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the onboarding Prometheus collectors.
type Metrics struct {
	ApplicationsCreated     prometheus.Counter
	Transitions             *prometheus.CounterVec
	DuplicateRejections     *prometheus.CounterVec
	OTPSent                 *prometheus.CounterVec
	OTPVerifications        *prometheus.CounterVec
	TokensIssued            *prometheus.CounterVec
	AccountNumbersGenerated prometheus.Counter
	AccountNumberExhausted  prometheus.Counter
	ActionDuration          *prometheus.HistogramVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ApplicationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_applications_created_total",
			Help: "Total number of onboarding applications created",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_application_transitions_total",
			Help: "Application state transitions by target status",
		}, []string{"status"}),
		DuplicateRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_duplicate_rejections_total",
			Help: "Applications refused because an identifying field was already registered",
		}, []string{"field"}),
		OTPSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_otp_sent_total",
			Help: "One-time passwords issued by channel",
		}, []string{"channel"}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_otp_verifications_total",
			Help: "One-time password verification attempts by outcome",
		}, []string{"outcome"}),
		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_tokens_issued_total",
			Help: "Session tokens issued by role",
		}, []string{"role"}),
		AccountNumbersGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_account_numbers_generated_total",
			Help: "Unique account numbers handed out",
		}),
		AccountNumberExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_account_number_exhausted_total",
			Help: "Account number generation runs that exhausted their retry budget",
		}),
		ActionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_action_duration_seconds",
			Help:    "Latency of onboarding use cases",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
	}
}

func (m *Metrics) IncrementApplicationsCreated() {
	m.ApplicationsCreated.Inc()
}

func (m *Metrics) IncrementTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementDuplicateRejection(field string) {
	m.DuplicateRejections.WithLabelValues(field).Inc()
}

func (m *Metrics) IncrementOTPSent(channel string) {
	m.OTPSent.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncrementOTPVerification(outcome string) {
	m.OTPVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementTokensIssued(role string) {
	m.TokensIssued.WithLabelValues(role).Inc()
}

func (m *Metrics) IncrementAccountNumbersGenerated() {
	m.AccountNumbersGenerated.Inc()
}

func (m *Metrics) IncrementAccountNumberExhausted() {
	m.AccountNumberExhausted.Inc()
}

// ObserveAction records the elapsed time since start for action.
func (m *Metrics) ObserveAction(action string, start time.Time) {
	m.ActionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

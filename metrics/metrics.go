package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for verification traffic.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Started          prometheus.Counter
	Decisions        *prometheus.CounterVec
	Mismatches       prometheus.Counter
	PortalErrors     *prometheus.CounterVec
	CodeFillFailures prometheus.Counter
	LayoutDrift      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Started: f.NewCounter(prometheus.CounterOpts{
			Name: "certcheck_verifications_started_total",
			Help: "Verification sessions opened against the portal",
		}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certcheck_verification_decisions_total",
			Help: "Terminal verification decisions by status",
		}, []string{"status"}),
		Mismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "certcheck_identity_mismatches_total",
			Help: "Result pages whose masked identifier did not match the expected one",
		}),
		PortalErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certcheck_portal_errors_total",
			Help: "Failures talking to the portal by stage",
		}, []string{"stage"}),
		CodeFillFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "certcheck_code_fill_failures_total",
			Help: "Sessions where the verification code field could not be filled",
		}),
		LayoutDrift: f.NewCounter(prometheus.CounterOpts{
			Name: "certcheck_layout_drift_total",
			Help: "Decided result pages whose layout differs from the reference layout",
		}),
	}
}

// IncStarted counts an opened session.
func (m *Metrics) IncStarted() {
	if m == nil {
		return
	}
	m.Started.Inc()
}

// ObserveDecision counts a terminal decision.
func (m *Metrics) ObserveDecision(status string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(status).Inc()
}

// IncMismatch counts an identity mismatch.
func (m *Metrics) IncMismatch() {
	if m == nil {
		return
	}
	m.Mismatches.Inc()
}

// IncPortalError counts a portal failure at the given stage ("open", "navigate").
func (m *Metrics) IncPortalError(stage string) {
	if m == nil {
		return
	}
	m.PortalErrors.WithLabelValues(stage).Inc()
}

// IncCodeFillFailure counts a session whose code could not be autofilled.
func (m *Metrics) IncCodeFillFailure() {
	if m == nil {
		return
	}
	m.CodeFillFailures.Inc()
}

// IncLayoutDrift counts a result page that no longer looks like the reference.
func (m *Metrics) IncLayoutDrift() {
	if m == nil {
		return
	}
	m.LayoutDrift.Inc()
}

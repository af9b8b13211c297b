package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// ProvisioningMetrics tracks each step of the merchant provisioning pipeline.
type ProvisioningMetrics struct {
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	domains  *prometheus.CounterVec
}

// NewProvisioningMetrics registers the provisioning collectors on reg. A nil
// registerer yields a recorder whose methods are no-ops.
func NewProvisioningMetrics(reg prometheus.Registerer) *ProvisioningMetrics {
	if reg == nil {
		return &ProvisioningMetrics{}
	}
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provisioning_steps_total",
		Help:      "Provisioning step executions by outcome.",
	}, []string{"step", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provisioning_step_duration_seconds",
		Help:      "Duration of provisioning steps in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"step"})
	domains := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "domain_checks_total",
		Help:      "Custom domain DNS checks by resulting status.",
	}, []string{"status"})
	reg.MustRegister(steps, duration, domains)
	return &ProvisioningMetrics{steps: steps, duration: duration, domains: domains}
}

// ObserveStep records one execution of a pipeline step.
func (p *ProvisioningMetrics) ObserveStep(step, outcome string, took time.Duration) {
	if p == nil || p.steps == nil {
		return
	}
	p.steps.WithLabelValues(normalizeLabel(step), normalizeLabel(outcome)).Inc()
	if outcome != OutcomeSkipped {
		p.duration.WithLabelValues(normalizeLabel(step)).Observe(took.Seconds())
	}
}

// IncDomainCheck counts a completed DNS verification by its resulting status.
func (p *ProvisioningMetrics) IncDomainCheck(status string) {
	if p == nil || p.domains == nil {
		return
	}
	p.domains.WithLabelValues(normalizeLabel(status)).Inc()
}

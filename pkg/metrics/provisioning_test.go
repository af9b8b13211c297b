package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestProvisioningMetricsStepOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProvisioningMetrics(reg)

	m.ObserveStep("tenant_database", OutcomeSuccess, 120*time.Millisecond)
	m.ObserveStep("tenant_database", OutcomeSuccess, 80*time.Millisecond)
	m.ObserveStep("deployment", OutcomeFailure, time.Second)
	m.ObserveStep("domain", OutcomeSkipped, 0)
	m.IncDomainCheck("verified")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	mf := findMetricFamily(mfs, "provisioner_provisioning_steps_total")
	require.NotNil(t, mf)
	counts := map[string]float64{}
	for _, metric := range mf.GetMetric() {
		var step, outcome string
		for _, l := range metric.GetLabel() {
			switch l.GetName() {
			case "step":
				step = l.GetValue()
			case "outcome":
				outcome = l.GetValue()
			}
		}
		counts[step+"/"+outcome] = metric.GetCounter().GetValue()
	}
	require.Equal(t, 2.0, counts["tenant_database/success"])
	require.Equal(t, 1.0, counts["deployment/failure"])
	require.Equal(t, 1.0, counts["domain/skipped"])

	sum, err := fetchHistogramSum(mfs, "provisioner_provisioning_step_duration_seconds", "step", "tenant_database")
	require.NoError(t, err)
	require.InDelta(t, 0.2, sum, 0.0001)

	_, err = fetchHistogramSum(mfs, "provisioner_provisioning_step_duration_seconds", "step", "domain")
	require.Error(t, err, "skipped steps should not be timed")

	got, err := fetchCounterValue(mfs, "provisioner_domain_checks_total", "status", "verified")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)
}

func TestProvisioningMetricsNilSafe(t *testing.T) {
	var m *ProvisioningMetrics
	m.ObserveStep("x", OutcomeSuccess, time.Second)
	m.IncDomainCheck("pending")

	NewProvisioningMetrics(nil).ObserveStep("x", OutcomeFailure, time.Second)
}

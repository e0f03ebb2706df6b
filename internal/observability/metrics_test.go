package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitMetricsRegistersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	m.HTTPRequestsTotal.WithLabelValues("GET", "/api/workflows", "200").Inc()
	m.WorkflowsCreatedTotal.WithLabelValues("waterfall").Inc()
	m.WorkflowsActive.Inc()
	m.AdaptiveAdjustmentsTotal.Inc()
	m.TaskRetriesTotal.WithLabelValues("echo").Inc()
	m.BreakerState.WithLabelValues("echo").Set(1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"tce_http_requests_total",
		"tce_workflows_created_total",
		"tce_workflows_active",
		"tce_adaptive_adjustments_total",
		"tce_task_retries_total",
		"tce_breaker_state",
	} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestObserveTaskAndWorkflow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)

	m.ObserveTask("echo", "completed", 50*time.Millisecond)
	m.ObserveTask("echo", "failed", 10*time.Millisecond)
	m.ObserveWorkflow("ci_ar", "partial", time.Second)

	if got := testutil.ToFloat64(m.TaskExecutionsTotal.WithLabelValues("echo", "completed")); got != 1 {
		t.Errorf("completed executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TaskExecutionsTotal.WithLabelValues("echo", "failed")); got != 1 {
		t.Errorf("failed executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WorkflowCompletionsTotal.WithLabelValues("ci_ar", "partial")); got != 1 {
		t.Errorf("completions = %v, want 1", got)
	}
}

func TestNilMetricsObserversAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTask("echo", "completed", time.Millisecond)
	m.ObserveWorkflow("waterfall", "completed", time.Millisecond)
}

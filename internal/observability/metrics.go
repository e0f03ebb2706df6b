package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	taskDurationBuckets     = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	workflowDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	WorkflowsCreatedTotal    *prometheus.CounterVec
	WorkflowCompletionsTotal *prometheus.CounterVec
	WorkflowDuration         *prometheus.HistogramVec
	WorkflowsActive          prometheus.Gauge
	AdaptiveAdjustmentsTotal prometheus.Counter

	// Task metrics
	TaskExecutionsTotal *prometheus.CounterVec
	TaskDuration        *prometheus.HistogramVec
	TaskRetriesTotal    *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerState *prometheus.GaugeVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tce_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tce_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		WorkflowsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tce_workflows_created_total",
			Help: "Workflows created, by selected execution mode.",
		}, []string{"mode"}),
		WorkflowCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tce_workflow_completions_total",
			Help: "Workflow runs reaching a terminal status.",
		}, []string{"mode", "status"}),
		WorkflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tce_workflow_duration_seconds",
			Help:    "End-to-end workflow run duration in seconds.",
			Buckets: workflowDurationBuckets,
		}, []string{"mode"}),
		WorkflowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tce_workflows_active",
			Help: "Workflows currently executing.",
		}),
		AdaptiveAdjustmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tce_adaptive_adjustments_total",
			Help: "Adaptive reasoning adjustment records appended.",
		}),

		TaskExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tce_task_executions_total",
			Help: "Task executions reaching a terminal status, by executor.",
		}, []string{"executor", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tce_task_duration_seconds",
			Help:    "Task execution duration in seconds, by executor.",
			Buckets: taskDurationBuckets,
		}, []string{"executor"}),
		TaskRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tce_task_retries_total",
			Help: "Task retry attempts, by executor.",
		}, []string{"executor"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tce_breaker_state",
			Help: "Circuit breaker state per executor (0=closed, 1=open, 2=half-open).",
		}, []string{"executor"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WorkflowsCreatedTotal,
		m.WorkflowCompletionsTotal,
		m.WorkflowDuration,
		m.WorkflowsActive,
		m.AdaptiveAdjustmentsTotal,
		m.TaskExecutionsTotal,
		m.TaskDuration,
		m.TaskRetriesTotal,
		m.BreakerState,
	)
	return m
}

// ObserveTask records a terminal task execution.
func (m *Metrics) ObserveTask(executor, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TaskExecutionsTotal.WithLabelValues(executor, status).Inc()
	m.TaskDuration.WithLabelValues(executor).Observe(d.Seconds())
}

// ObserveWorkflow records a terminal workflow run.
func (m *Metrics) ObserveWorkflow(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.WorkflowCompletionsTotal.WithLabelValues(mode, status).Inc()
	m.WorkflowDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the JSON response for the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the result of a single readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks holds the dependency checkers for the readiness endpoint.
type ReadinessChecks struct {
	// Always run.
	ExecutorsRegistered func() bool
	DefinitionsLoaded   func() bool

	// Run only when non-nil.
	WorkflowStore HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth returns an HTTP handler for the liveness endpoint.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
		})
	}
}

// HandleReady returns an HTTP handler for the readiness endpoint. It reports
// 503 when any check fails.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]CheckResult)
		healthy := true

		if checks.ExecutorsRegistered != nil {
			if checks.ExecutorsRegistered() {
				results["executors"] = CheckResult{Status: "ok"}
			} else {
				results["executors"] = CheckResult{Status: "fail", Error: "no executors registered"}
				healthy = false
			}
		}

		if checks.DefinitionsLoaded != nil {
			if checks.DefinitionsLoaded() {
				results["definitions"] = CheckResult{Status: "ok"}
			} else {
				results["definitions"] = CheckResult{Status: "fail", Error: "definitions not loaded"}
				healthy = false
			}
		}

		if checks.WorkflowStore != nil {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			start := time.Now()
			err := checks.WorkflowStore.HealthCheck(ctx)
			cancel()

			result := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				result.Status = "fail"
				result.Error = err.Error()
				healthy = false
			}
			results["workflow_store"] = result
		}

		status := http.StatusOK
		overall := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "not_ready"
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(ReadinessResponse{Status: overall, Checks: results})
	}
}

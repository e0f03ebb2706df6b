package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStore struct {
	err error
}

func (f *fakeStore) HealthCheck(context.Context) error { return f.err }

func readyChecks(executors, definitions bool, store HealthChecker) ReadinessChecks {
	return ReadinessChecks{
		ExecutorsRegistered: func() bool { return executors },
		DefinitionsLoaded:   func() bool { return definitions },
		WorkflowStore:       store,
	}
}

func TestHandleHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleHealth()(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status field = %q, want ok", body.Status)
	}
}

func TestHandleReadyAllHealthy(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleReady(readyChecks(true, true, &fakeStore{}))(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rr.Code, rr.Body.String())
	}
	var body ReadinessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "ready" {
		t.Errorf("status = %q, want ready", body.Status)
	}
	if len(body.Checks) != 3 {
		t.Errorf("checks = %v, want executors, definitions, workflow_store", body.Checks)
	}
}

func TestHandleReadyFailures(t *testing.T) {
	tests := []struct {
		name   string
		checks ReadinessChecks
		failed string
	}{
		{"no executors", readyChecks(false, true, &fakeStore{}), "executors"},
		{"definitions missing", readyChecks(true, false, &fakeStore{}), "definitions"},
		{"store down", readyChecks(true, true, &fakeStore{err: errors.New("unreachable")}), "workflow_store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			HandleReady(tt.checks)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", rr.Code)
			}
			var body ReadinessResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.Status != "not_ready" {
				t.Errorf("status = %q, want not_ready", body.Status)
			}
			if body.Checks[tt.failed].Status != "fail" {
				t.Errorf("check %s = %+v, want fail", tt.failed, body.Checks[tt.failed])
			}
		})
	}
}

func TestHandleReadySkipsNilChecks(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleReady(ReadinessChecks{})(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with no checks configured", rr.Code)
	}
}

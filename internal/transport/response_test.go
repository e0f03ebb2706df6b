package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/usemanusai/tce/model"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{model.NewBadRequestError("x"), http.StatusBadRequest},
		{model.NewUnauthorizedError("x"), http.StatusUnauthorized},
		{model.NewNotFoundError("x"), http.StatusNotFound},
		{model.NewConflictError("x"), http.StatusConflict},
		{model.NewValidationError(nil), http.StatusUnprocessableEntity},
		{model.NewCyclicDependencyError("x"), http.StatusUnprocessableEntity},
		{model.NewUnknownDependencyError("x"), http.StatusUnprocessableEntity},
		{model.NewWorkflowNotActiveError("x"), http.StatusConflict},
		{model.NewInternalError(), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err)
		if rec.Code != tc.wantStatus {
			t.Errorf("WriteError(%v) status = %d, want %d", tc.err, rec.Code, tc.wantStatus)
		}

		var body struct {
			Error *model.ErrorEnvelope `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not JSON: %v", err)
		}
		if body.Error == nil || body.Error.Code == "" {
			t.Errorf("WriteError(%v) body = %s, want an envelope with a code", tc.err, rec.Body.String())
		}
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("db password is hunter2"))

	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Error.Code != model.ErrInternalError {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Error.Code)
	}
	if body.Error.Message == "db password is hunter2" {
		t.Error("internal error detail leaked to the client")
	}
}

func TestWriteJSONHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"a": "b"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
}

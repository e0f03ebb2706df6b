package model

import (
	"errors"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "workflow not found"}
	want := "NOT_FOUND: workflow not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestConstructorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"bad request", NewBadRequestError("x"), ErrBadRequest},
		{"unauthorized", NewUnauthorizedError("x"), ErrUnauthorized},
		{"not found", NewNotFoundError("x"), ErrNotFound},
		{"conflict", NewConflictError("x"), ErrConflict},
		{"internal", NewInternalError(), ErrInternalError},
		{"cyclic", NewCyclicDependencyError("x"), ErrCyclicDependency},
		{"unknown dep", NewUnknownDependencyError("x"), ErrUnknownDependency},
		{"executor not found", NewExecutorNotFoundError("worker"), ErrExecutorNotFound},
		{"task timeout", NewTaskTimeoutError("x"), ErrTaskTimeout},
		{"deadline", NewWorkflowDeadlineExceededError(), ErrWorkflowDeadlineExceeded},
		{"not active", NewWorkflowNotActiveError("x"), ErrWorkflowNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "tasks[0].id", Code: "required", Message: "task id is required"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 || e.Details[0].Field != "tasks[0].id" {
		t.Fatalf("Details = %+v", e.Details)
	}
}

func TestNewTaskExecutionError(t *testing.T) {
	e := NewTaskExecutionError(errors.New("boom"))
	if e.Code != ErrTaskExecutionFailed {
		t.Errorf("Code = %q, want %q", e.Code, ErrTaskExecutionFailed)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewConflictError("x")); got != ErrConflict {
		t.Errorf("CodeOf(envelope) = %q, want %q", got, ErrConflict)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternalError {
		t.Errorf("CodeOf(plain) = %q, want %q", got, ErrInternalError)
	}
}

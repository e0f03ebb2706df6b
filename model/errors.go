package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrNotFound      = "NOT_FOUND"
	ErrConflict      = "CONFLICT"
	ErrInternalError = "INTERNAL_ERROR"
)

// Validation error codes. Workflows carrying these never start executing.
const (
	ErrValidationError   = "VALIDATION_ERROR"
	ErrCyclicDependency  = "CYCLIC_DEPENDENCY"
	ErrUnknownDependency = "UNKNOWN_DEPENDENCY"
)

// Execution error codes. Per-task codes are captured into task state and
// never propagate to the caller of ExecuteWorkflow; only the deadline code
// aborts a whole run.
const (
	ErrExecutorNotFound         = "EXECUTOR_NOT_FOUND"
	ErrTaskTimeout              = "TASK_TIMEOUT"
	ErrTaskExecutionFailed      = "TASK_EXECUTION_FAILED"
	ErrWorkflowDeadlineExceeded = "WORKFLOW_DEADLINE_EXCEEDED"
	ErrWorkflowCancelled        = "WORKFLOW_CANCELLED"
	ErrWorkflowNotActive        = "WORKFLOW_NOT_ACTIVE"
)

// ErrorEnvelope is the standard error returned across the engine's API
// surface. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf returns the envelope code of err, or INTERNAL_ERROR when err is not
// an *ErrorEnvelope.
func CodeOf(err error) string {
	if ee, ok := err.(*ErrorEnvelope); ok {
		return ee.Code
	}
	return ErrInternalError
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInternalError, Message: "An unexpected error occurred"}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewCyclicDependencyError returns a CYCLIC_DEPENDENCY error naming the
// offending cycle path.
func NewCyclicDependencyError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCyclicDependency, Message: msg}
}

// NewUnknownDependencyError returns an UNKNOWN_DEPENDENCY error.
func NewUnknownDependencyError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnknownDependency, Message: msg}
}

// NewExecutorNotFoundError returns an EXECUTOR_NOT_FOUND error for a task
// whose executor name has no registration.
func NewExecutorNotFoundError(name string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrExecutorNotFound,
		Message: fmt.Sprintf("executor %q is not registered", name),
	}
}

// NewTaskTimeoutError returns a TASK_TIMEOUT error.
func NewTaskTimeoutError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrTaskTimeout, Message: msg}
}

// NewTaskExecutionError wraps an executor-returned error.
func NewTaskExecutionError(err error) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrTaskExecutionFailed, Message: err.Error()}
}

// NewWorkflowDeadlineExceededError returns a WORKFLOW_DEADLINE_EXCEEDED
// error. This is the only mid-execution error that aborts a whole run.
func NewWorkflowDeadlineExceededError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrWorkflowDeadlineExceeded,
		Message: "the workflow deadline elapsed before all tasks finished",
	}
}

// NewWorkflowCancelledError returns a WORKFLOW_CANCELLED error.
func NewWorkflowCancelledError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrWorkflowCancelled, Message: msg}
}

// NewWorkflowNotActiveError returns a WORKFLOW_NOT_ACTIVE error.
func NewWorkflowNotActiveError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrWorkflowNotActive, Message: msg}
}

package definition

import (
	"fmt"

	"github.com/usemanusai/tce/internal/executor"
	"github.com/usemanusai/tce/internal/graph"
	"github.com/usemanusai/tce/model"
)

// VError describes a single validation error in a template.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates templates structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all templates. The executor registry may be nil to skip
// executor existence checks, e.g. when executors register after loading.
func (v *Validator) Validate(templates []Template, executors *executor.Registry) []VError {
	var errs []VError

	seen := make(map[string]int, len(templates))
	for i, tpl := range templates {
		prefix := fmt.Sprintf("templates[%d]", i)
		if tpl.ID != "" {
			if first, dup := seen[tpl.ID]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".id",
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("template ID %q already used by templates[%d]", tpl.ID, first),
				})
			} else {
				seen[tpl.ID] = i
			}
		}
		errs = append(errs, v.validateTemplate(prefix, tpl, executors)...)
	}
	return errs
}

func (v *Validator) validateTemplate(prefix string, tpl Template, executors *executor.Registry) []VError {
	var errs []VError

	if tpl.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if tpl.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if tpl.Mode != "" && !model.Mode(tpl.Mode).Valid() {
		errs = append(errs, VError{
			Path:    prefix + ".mode",
			Code:    "INVALID",
			Message: fmt.Sprintf("unknown mode %q", tpl.Mode),
		})
	}
	if len(tpl.Tasks) == 0 {
		errs = append(errs, VError{Path: prefix + ".tasks", Code: "REQUIRED", Message: "at least one task is required"})
	}

	for i, tt := range tpl.Tasks {
		tp := fmt.Sprintf("%s.tasks[%d]", prefix, i)
		errs = append(errs, v.validateTask(tp, tt, executors)...)
	}

	// Structural task errors make the graph check meaningless noise.
	if len(errs) == 0 {
		if err := graph.Validate(tpl.Instantiate(nil).Tasks); err != nil {
			errs = append(errs, VError{
				Path:    prefix + ".tasks",
				Code:    model.CodeOf(err),
				Message: err.Error(),
			})
		}
	}

	return errs
}

func (v *Validator) validateTask(prefix string, tt TaskTemplate, executors *executor.Registry) []VError {
	var errs []VError

	if tt.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "task id is required"})
	}
	if tt.Executor == "" {
		errs = append(errs, VError{Path: prefix + ".executor", Code: "REQUIRED", Message: "executor is required"})
	} else if executors != nil && !executors.Has(tt.Executor) {
		errs = append(errs, VError{
			Path:    prefix + ".executor",
			Code:    "UNKNOWN_EXECUTOR",
			Message: fmt.Sprintf("executor %q is not registered", tt.Executor),
		})
	}
	if tt.Priority != "" && !model.Priority(tt.Priority).Valid() {
		errs = append(errs, VError{
			Path:    prefix + ".priority",
			Code:    "INVALID",
			Message: fmt.Sprintf("unknown priority %q", tt.Priority),
		})
	}
	if tt.TimeoutMs != nil && *tt.TimeoutMs <= 0 {
		errs = append(errs, VError{Path: prefix + ".timeout_ms", Code: "INVALID", Message: "timeout_ms must be positive"})
	}
	if tt.MaxRetries != nil && *tt.MaxRetries < 0 {
		errs = append(errs, VError{Path: prefix + ".max_retries", Code: "INVALID", Message: "max_retries must not be negative"})
	}

	return errs
}

// Package definition loads reusable workflow templates from YAML files and
// provides a fast-lookup registry with atomic pointer swap, so operators can
// ship a catalog of named workflows alongside the binary and submit them by
// ID instead of posting a full task graph each time.
package definition

import (
	"time"

	"github.com/usemanusai/tce/model"
)

// Template is a named, reusable workflow blueprint. Instantiating a template
// produces a fresh WorkflowSpec; the template itself is immutable after load.
type Template struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description,omitempty"`
	Mode        string         `yaml:"mode" json:"mode,omitempty"`
	Context     map[string]any `yaml:"context" json:"context,omitempty"`
	Tasks       []TaskTemplate `yaml:"tasks" json:"tasks"`

	// Populated by the loader, not by the YAML file.
	Checksum   string `yaml:"-" json:"checksum"`
	SourceFile string `yaml:"-" json:"-"`
}

// TaskTemplate is one task within a template. TimeoutMs and MaxRetries are
// pointers so an absent field can fall back to the engine defaults while an
// explicit zero stays meaningful.
type TaskTemplate struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description" json:"description,omitempty"`
	Executor     string         `yaml:"executor" json:"executor"`
	Dependencies []string       `yaml:"dependencies" json:"dependencies,omitempty"`
	Inputs       map[string]any `yaml:"inputs" json:"inputs,omitempty"`
	Priority     string         `yaml:"priority" json:"priority,omitempty"`
	TimeoutMs    *int64         `yaml:"timeout_ms" json:"timeout_ms,omitempty"`
	MaxRetries   *int           `yaml:"max_retries" json:"max_retries,omitempty"`
}

// Instantiate builds a WorkflowSpec from the template. The supplied context
// overlays the template's own context, caller keys winning.
func (t Template) Instantiate(overrides map[string]any) model.WorkflowSpec {
	ctx := make(map[string]any, len(t.Context)+len(overrides))
	for k, v := range t.Context {
		ctx[k] = v
	}
	for k, v := range overrides {
		ctx[k] = v
	}

	tasks := make([]model.Task, len(t.Tasks))
	for i, tt := range t.Tasks {
		tasks[i] = tt.task()
	}

	return model.WorkflowSpec{
		Name:    t.Name,
		Mode:    model.Mode(t.Mode),
		Context: ctx,
		Tasks:   tasks,
	}
}

func (tt TaskTemplate) task() model.Task {
	task := model.Task{
		ID:           tt.ID,
		Name:         tt.Name,
		Description:  tt.Description,
		Executor:     tt.Executor,
		Dependencies: append([]string(nil), tt.Dependencies...),
		Inputs:       tt.Inputs,
		Priority:     model.Priority(tt.Priority),
		MaxRetries:   model.DefaultMaxRetries,
	}
	if tt.TimeoutMs != nil {
		task.Timeout = time.Duration(*tt.TimeoutMs) * time.Millisecond
	}
	if tt.MaxRetries != nil {
		task.MaxRetries = *tt.MaxRetries
	}
	return task
}

// Package model contains the shared domain types for the task contexting
// engine: task definitions, workflow specs and runtime aggregates, the
// complexity profile, and the standard error envelope.
package model

import "time"

// Task priority levels, ordered from least to most urgent.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priority is the scheduling priority of a task.
type Priority string

// priorityOrdinals maps each priority to its position in the enum ordering.
// Used for deterministic tie-breaking in the dependency resolver.
var priorityOrdinals = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// Ordinal returns the position of the priority in the enum ordering.
// Unknown priorities sort after all known ones.
func (p Priority) Ordinal() int {
	if ord, ok := priorityOrdinals[p]; ok {
		return ord
	}
	return len(priorityOrdinals)
}

// Valid reports whether p is a known priority level.
func (p Priority) Valid() bool {
	_, ok := priorityOrdinals[p]
	return ok
}

// Task defaults applied when a field is left unset at the decode boundary.
const (
	DefaultTaskTimeout = 300 * time.Second
	DefaultMaxRetries  = 3
)

// Task is an immutable task definition within a workflow. Dependencies
// reference other task IDs in the same workflow; cycles are a validation
// error. The executor field is a key into the executor registry.
type Task struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Executor     string         `json:"executor"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Priority     Priority       `json:"priority"`
	Timeout      time.Duration  `json:"timeout"`
	MaxRetries   int            `json:"max_retries"`
}

// Clone returns a deep copy of the task definition.
func (t Task) Clone() Task {
	cp := t
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Inputs != nil {
		cp.Inputs = make(map[string]any, len(t.Inputs))
		for k, v := range t.Inputs {
			cp.Inputs[k] = v
		}
	}
	return cp
}

// Task runtime status constants.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusBlocked   = "blocked"
	TaskStatusCancelled = "cancelled"
)

// TaskState is the mutable execution state of a task. It is owned
// exclusively by the workflow engine's coordinating goroutine; callers only
// ever see copies.
type TaskState struct {
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Clone returns a deep copy of the task state.
func (s TaskState) Clone() TaskState {
	cp := s
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	if s.Outputs != nil {
		cp.Outputs = make(map[string]any, len(s.Outputs))
		for k, v := range s.Outputs {
			cp.Outputs[k] = v
		}
	}
	return cp
}

// Terminal reports whether the status is a terminal task status.
func (s TaskState) Terminal() bool {
	switch s.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked, TaskStatusCancelled:
		return true
	}
	return false
}

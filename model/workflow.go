package model

import "time"

// Execution mode constants. Auto defers the choice to the mode selector.
const (
	ModeWaterfall Mode = "waterfall"
	ModeCIAR      Mode = "ci_ar"
	ModeHybrid    Mode = "hybrid"
	ModeAuto      Mode = "auto"
)

// Mode is the workflow execution strategy.
type Mode string

// Valid reports whether m is a known execution mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeWaterfall, ModeCIAR, ModeHybrid, ModeAuto:
		return true
	}
	return false
}

// Workflow status constants.
const (
	WorkflowStatusCreated   = "created"
	WorkflowStatusRunning   = "running"
	WorkflowStatusCompleted = "completed"
	WorkflowStatusPartial   = "partial"
	WorkflowStatusFailed    = "failed"
	WorkflowStatusCancelled = "cancelled"
)

// WorkflowSpec is a caller-submitted unit of work: a task graph plus an
// optional pinned execution mode. An empty mode is treated as auto.
type WorkflowSpec struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Tasks   []Task         `json:"tasks"`
	Mode    Mode           `json:"mode,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// WorkflowMetrics are the rolling execution metrics of a workflow, recomputed
// after every task transition.
type WorkflowMetrics struct {
	Completed         int     `json:"completed"`
	Failed            int     `json:"failed"`
	Blocked           int     `json:"blocked"`
	SuccessRate       float64 `json:"success_rate"`
	AvgTaskDurationMs float64 `json:"avg_task_duration_ms"`
}

// AdjustmentRecord is an adaptive reasoning observation appended after a
// dependency level completes with a failure rate above the configured
// threshold. It is surfaced to the caller as a recommendation for the next
// submission; the running plan is never changed mid-flight.
type AdjustmentRecord struct {
	Level       int       `json:"level"`
	LevelSize   int       `json:"level_size"`
	FailedTasks int       `json:"failed_tasks"`
	FailureRate float64   `json:"failure_rate"`
	Recommended Mode      `json:"recommended_mode"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

// Workflow is the runtime aggregate for a submitted workflow. It is mutated
// only by the workflow engine during execution and becomes an immutable
// completed record once a terminal status is reached. Callers receive deep
// copies, never the engine's own reference.
type Workflow struct {
	ID           string               `json:"id"`
	Spec         WorkflowSpec         `json:"spec"`
	Profile      ComplexityProfile    `json:"profile"`
	SelectedMode Mode                 `json:"selected_mode"`
	Status       string               `json:"status"`
	TaskStates   map[string]TaskState `json:"task_states"`
	Context      map[string]any       `json:"context,omitempty"`
	Metrics      WorkflowMetrics      `json:"metrics"`
	Adjustments  []AdjustmentRecord   `json:"adjustments,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	Version      int                  `json:"version"`
}

// Clone returns a deep copy of the workflow aggregate.
func (w Workflow) Clone() Workflow {
	cp := w
	if w.StartedAt != nil {
		t := *w.StartedAt
		cp.StartedAt = &t
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		cp.CompletedAt = &t
	}
	if w.TaskStates != nil {
		cp.TaskStates = make(map[string]TaskState, len(w.TaskStates))
		for id, st := range w.TaskStates {
			cp.TaskStates[id] = st.Clone()
		}
	}
	if w.Context != nil {
		cp.Context = make(map[string]any, len(w.Context))
		for k, v := range w.Context {
			cp.Context[k] = v
		}
	}
	if w.Adjustments != nil {
		cp.Adjustments = append([]AdjustmentRecord(nil), w.Adjustments...)
	}
	if w.Spec.Tasks != nil {
		cp.Spec.Tasks = make([]Task, len(w.Spec.Tasks))
		for i, t := range w.Spec.Tasks {
			cp.Spec.Tasks[i] = t.Clone()
		}
	}
	if w.Spec.Context != nil {
		cp.Spec.Context = make(map[string]any, len(w.Spec.Context))
		for k, v := range w.Spec.Context {
			cp.Spec.Context[k] = v
		}
	}
	return cp
}

// Terminal reports whether the workflow has reached a terminal status.
func (w Workflow) Terminal() bool {
	switch w.Status {
	case WorkflowStatusCompleted, WorkflowStatusPartial, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	}
	return false
}

// WorkflowResult is the terminal outcome of a workflow execution.
type WorkflowResult struct {
	WorkflowID      string               `json:"workflow_id"`
	FinalStatus     string               `json:"final_status"`
	SuccessRate     float64              `json:"success_rate"`
	TaskResults     map[string]TaskState `json:"task_results"`
	TotalDurationMs int64                `json:"total_duration_ms"`
	Adjustments     []AdjustmentRecord   `json:"adaptive_adjustments,omitempty"`
}

// Audit trail event names appended by the engine.
const (
	EventWorkflowCreated    = "workflow_created"
	EventWorkflowStarted    = "workflow_started"
	EventWorkflowCompleted  = "workflow_completed"
	EventWorkflowCancelled  = "workflow_cancelled"
	EventTaskStarted        = "task_started"
	EventTaskCompleted      = "task_completed"
	EventTaskFailed         = "task_failed"
	EventTaskBlocked        = "task_blocked"
	EventTaskCancelled      = "task_cancelled"
	EventTaskRetried        = "task_retried"
	EventAdaptiveAdjustment = "adaptive_adjustment"
)

// WorkflowEvent records an entry in a workflow's audit trail.
type WorkflowEvent struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	TaskID     string         `json:"task_id,omitempty"`
	Event      string         `json:"event"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

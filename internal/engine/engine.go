// Package engine orchestrates workflow execution: it validates and profiles
// submitted task sets, selects an execution mode, resolves an executable
// plan, and runs it with per-task timeout, retry with exponential backoff,
// and adaptive failure-rate observation. The engine owns the only mutable
// reference to a running workflow; all shared state is mutated by a single
// coordinating goroutine per run.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usemanusai/tce/internal/analyzer"
	"github.com/usemanusai/tce/internal/config"
	"github.com/usemanusai/tce/internal/executor"
	"github.com/usemanusai/tce/internal/graph"
	"github.com/usemanusai/tce/internal/mode"
	"github.com/usemanusai/tce/internal/observability"
	"github.com/usemanusai/tce/model"
)

// runHandle tracks one in-flight workflow run.
type runHandle struct {
	cancel  context.CancelCauseFunc
	started time.Time
	done    chan struct{}
}

// Engine manages the lifecycle of workflows.
type Engine struct {
	store     Store
	executors *executor.Registry
	cfg       config.EngineConfig
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu       sync.Mutex
	running  map[string]*runHandle
	breakers map[string]*CircuitBreaker

	// sleep waits for the backoff duration, honoring context cancellation.
	// Tests swap it out to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a workflow engine. The metrics argument may be nil; a
// nil logger is replaced with a no-op logger.
func NewEngine(store Store, executors *executor.Registry, cfg config.EngineConfig, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:     store,
		executors: executors,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		running:   make(map[string]*runHandle),
		breakers:  make(map[string]*CircuitBreaker),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// CreateWorkflow validates a spec, computes its complexity profile, selects
// an execution mode when the spec does not pin one, and persists the
// workflow in the created state. Unknown executors are a warning, not an
// error: registries may be populated after submission.
func (e *Engine) CreateWorkflow(ctx context.Context, spec model.WorkflowSpec) (string, error) {
	normalized, err := normalizeSpec(spec)
	if err != nil {
		return "", err
	}
	if err := graph.Validate(normalized.Tasks); err != nil {
		return "", err
	}

	for _, t := range normalized.Tasks {
		if !e.executors.Has(t.Executor) {
			e.logger.Warn("workflow references unregistered executor",
				zap.String("workflow_id", normalized.ID),
				zap.String("task_id", t.ID),
				zap.String("executor", t.Executor))
		}
	}

	profile := analyzer.Analyze(normalized.Tasks)

	selected := normalized.Mode
	if selected == model.ModeAuto {
		selected = mode.Select(profile)
		waterfallScore, ciarScore := mode.Scores(profile)
		e.logger.Info("execution mode selected",
			zap.String("workflow_id", normalized.ID),
			zap.String("mode", string(selected)),
			zap.Float64("waterfall_score", waterfallScore),
			zap.Float64("ci_ar_score", ciarScore))
	}

	now := time.Now().UTC()
	wf := model.Workflow{
		ID:           normalized.ID,
		Spec:         normalized,
		Profile:      profile,
		SelectedMode: selected,
		Status:       model.WorkflowStatusCreated,
		TaskStates:   make(map[string]model.TaskState, len(normalized.Tasks)),
		Context:      cloneValues(normalized.Context),
		CreatedAt:    now,
		Version:      1,
	}
	for _, t := range normalized.Tasks {
		wf.TaskStates[t.ID] = model.TaskState{Status: model.TaskStatusPending}
	}

	if err := e.store.Create(ctx, wf); err != nil {
		return "", err
	}
	e.appendEvent(ctx, wf.ID, "", model.EventWorkflowCreated, map[string]any{
		"mode":       string(selected),
		"task_count": len(normalized.Tasks),
	})

	if e.metrics != nil {
		e.metrics.WorkflowsCreatedTotal.WithLabelValues(string(selected)).Inc()
	}
	e.logger.Info("workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("mode", string(selected)),
		zap.Int("tasks", len(normalized.Tasks)))

	return wf.ID, nil
}

// ExecuteWorkflow runs a created workflow to completion and returns its
// terminal result. Per-task errors never surface here; only validation
// problems, not-found/conflict conditions, and store failures do.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string) (model.WorkflowResult, error) {
	wf, err := e.beginRun(ctx, workflowID)
	if err != nil {
		return model.WorkflowResult{}, err
	}
	return e.runToCompletion(ctx, wf)
}

// ExecuteWorkflowAsync starts a workflow run in the background. Progress is
// observable through GetWorkflowStatus and the audit trail.
func (e *Engine) ExecuteWorkflowAsync(ctx context.Context, workflowID string) error {
	wf, err := e.beginRun(ctx, workflowID)
	if err != nil {
		return err
	}

	// The run must outlive the submitting request.
	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.runToCompletion(detached, wf); err != nil {
			e.logger.Error("async workflow run failed",
				zap.String("workflow_id", workflowID), zap.Error(err))
		}
	}()
	return nil
}

// beginRun transitions a workflow from created to running and persists the
// transition. The returned aggregate is the coordinator's working copy.
func (e *Engine) beginRun(ctx context.Context, workflowID string) (*model.Workflow, error) {
	wf, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != model.WorkflowStatusCreated {
		return nil, model.NewWorkflowNotActiveError(
			fmt.Sprintf("workflow %q is %s, not executable", workflowID, wf.Status),
		)
	}

	now := time.Now().UTC()
	wf.Status = model.WorkflowStatusRunning
	wf.StartedAt = &now
	if err := e.persist(ctx, &wf); err != nil {
		return nil, err
	}
	e.appendEvent(ctx, wf.ID, "", model.EventWorkflowStarted, nil)
	return &wf, nil
}

// runToCompletion drives a workflow run and finalizes its terminal state.
func (e *Engine) runToCompletion(ctx context.Context, wf *model.Workflow) (model.WorkflowResult, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	if e.cfg.WorkflowDeadline > 0 {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadlineCause(runCtx,
			time.Now().Add(e.cfg.WorkflowDeadline.Std()),
			model.NewWorkflowDeadlineExceededError())
		defer cancelDeadline()
	}

	handle := &runHandle{cancel: cancel, started: time.Now(), done: make(chan struct{})}
	e.mu.Lock()
	e.running[wf.ID] = handle
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.WorkflowsActive.Inc()
	}

	defer func() {
		cancel(nil)
		close(handle.done)
		e.mu.Lock()
		delete(e.running, wf.ID)
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.WorkflowsActive.Dec()
		}
	}()

	spanCtx, span := observability.StartSpan(runCtx, "engine.run",
		observability.AttrWorkflowID.String(wf.ID),
		observability.AttrMode.String(string(wf.SelectedMode)))
	runErr := e.run(spanCtx, wf)
	observability.EndSpanWithError(span, runErr)

	return e.finalize(ctx, wf, runCtx, runErr)
}

// GetWorkflowStatus returns a snapshot of a workflow.
func (e *Engine) GetWorkflowStatus(ctx context.Context, workflowID string) (model.Workflow, error) {
	return e.store.Get(ctx, workflowID)
}

// GetWorkflowEvents returns a workflow's audit trail.
func (e *Engine) GetWorkflowEvents(ctx context.Context, workflowID string) ([]model.WorkflowEvent, error) {
	return e.store.Events(ctx, workflowID)
}

// ListWorkflows returns workflow snapshots matching the filters.
func (e *Engine) ListWorkflows(ctx context.Context, filters ListFilters) ([]model.Workflow, error) {
	return e.store.List(ctx, filters)
}

// CancelWorkflow cancels a created or running workflow. For a running
// workflow the cancellation signal propagates to all in-flight dispatches;
// the coordinating goroutine applies the terminal state. Cancelling an
// already terminal workflow is a conflict.
func (e *Engine) CancelWorkflow(ctx context.Context, workflowID string) error {
	e.mu.Lock()
	handle, inFlight := e.running[workflowID]
	e.mu.Unlock()

	if inFlight {
		handle.cancel(model.NewWorkflowCancelledError("cancelled by caller"))
		return nil
	}

	wf, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status != model.WorkflowStatusCreated {
		return model.NewWorkflowNotActiveError(
			fmt.Sprintf("workflow %q is %s, cannot cancel", workflowID, wf.Status),
		)
	}

	now := time.Now().UTC()
	wf.Status = model.WorkflowStatusCancelled
	wf.CompletedAt = &now
	for id, st := range wf.TaskStates {
		if st.Status == model.TaskStatusPending {
			st.Status = model.TaskStatusCancelled
			wf.TaskStates[id] = st
		}
	}
	if err := e.persist(ctx, &wf); err != nil {
		return err
	}
	e.appendEvent(ctx, wf.ID, "", model.EventWorkflowCancelled, nil)
	e.logger.Info("workflow cancelled before execution", zap.String("workflow_id", wf.ID))
	return nil
}

// DeleteWorkflow removes a terminal workflow and its audit trail. Deleting
// a workflow that is still created or running is a conflict; cancel it
// first.
func (e *Engine) DeleteWorkflow(ctx context.Context, workflowID string) error {
	wf, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return err
	}
	if !wf.Terminal() {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q is %s, cannot delete", workflowID, wf.Status),
		)
	}
	if err := e.store.Delete(ctx, workflowID); err != nil {
		return err
	}
	e.logger.Info("workflow deleted", zap.String("workflow_id", workflowID))
	return nil
}

// WaitForWorkflow blocks until an in-flight run finishes or ctx is done.
// Returns immediately when no run is in flight.
func (e *Engine) WaitForWorkflow(ctx context.Context, workflowID string) error {
	e.mu.Lock()
	handle, inFlight := e.running[workflowID]
	e.mu.Unlock()
	if !inFlight {
		return nil
	}
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunDeadlineSweeper periodically cancels in-flight runs that exceed the
// configured overall deadline. The inline deadline on the run context
// normally fires first; the sweeper is a safety net for runs whose timers
// were lost (e.g. a store-reported running workflow after restart).
func (e *Engine) RunDeadlineSweeper(ctx context.Context) {
	if e.cfg.WorkflowDeadline <= 0 {
		return
	}
	interval := e.cfg.DeadlineSweepInterval.Std()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepDeadlines()
		}
	}
}

func (e *Engine) sweepDeadlines() {
	cutoff := time.Now().Add(-e.cfg.WorkflowDeadline.Std())

	e.mu.Lock()
	var expired []*runHandle
	for id, handle := range e.running {
		if handle.started.Before(cutoff) {
			e.logger.Warn("workflow exceeded overall deadline", zap.String("workflow_id", id))
			expired = append(expired, handle)
		}
	}
	e.mu.Unlock()

	for _, handle := range expired {
		handle.cancel(model.NewWorkflowDeadlineExceededError())
	}
}

// breakerFor returns the circuit breaker for an executor, creating it on
// first use. Returns nil when the breaker is disabled.
func (e *Engine) breakerFor(name string) *CircuitBreaker {
	if !e.cfg.CircuitBreaker.Enabled {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cb, ok := e.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(
			e.cfg.CircuitBreaker.FailureThreshold,
			e.cfg.CircuitBreaker.SuccessThreshold,
			e.cfg.CircuitBreaker.Timeout.Std(),
		)
		e.breakers[name] = cb
	}
	return cb
}

// persist updates the workflow in the store and advances the local version
// to match the store's optimistic increment.
func (e *Engine) persist(ctx context.Context, wf *model.Workflow) error {
	if err := e.store.Update(ctx, *wf); err != nil {
		return err
	}
	wf.Version++
	return nil
}

// appendEvent records an audit trail entry. Audit failures are logged, never
// propagated.
func (e *Engine) appendEvent(ctx context.Context, workflowID, taskID, event string, data map[string]any) {
	err := e.store.AppendEvent(ctx, model.WorkflowEvent{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		TaskID:     taskID,
		Event:      event,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("audit event append failed",
			zap.String("workflow_id", workflowID),
			zap.String("event", event),
			zap.Error(err))
	}
}

// normalizeSpec validates spec-level fields and fills task defaults. It
// returns a copy; the caller's spec is never mutated.
func normalizeSpec(spec model.WorkflowSpec) (model.WorkflowSpec, error) {
	var details []model.FieldError
	if len(spec.Tasks) == 0 {
		details = append(details, model.FieldError{
			Field: "tasks", Code: "required", Message: "a workflow needs at least one task",
		})
	}
	if spec.Mode == "" {
		spec.Mode = model.ModeAuto
	}
	if !spec.Mode.Valid() {
		details = append(details, model.FieldError{
			Field: "mode", Code: "invalid", Message: fmt.Sprintf("unknown mode %q", spec.Mode),
		})
	}

	tasks := make([]model.Task, len(spec.Tasks))
	copy(tasks, spec.Tasks)
	for i := range tasks {
		if tasks[i].ID == "" {
			tasks[i].ID = uuid.New().String()
		}
		if tasks[i].Executor == "" {
			details = append(details, model.FieldError{
				Field: fmt.Sprintf("tasks[%d].executor", i), Code: "required",
				Message: "task executor is required",
			})
		}
		if tasks[i].Priority == "" {
			tasks[i].Priority = model.PriorityMedium
		}
		if !tasks[i].Priority.Valid() {
			details = append(details, model.FieldError{
				Field: fmt.Sprintf("tasks[%d].priority", i), Code: "invalid",
				Message: fmt.Sprintf("unknown priority %q", tasks[i].Priority),
			})
		}
		if tasks[i].Timeout <= 0 {
			tasks[i].Timeout = model.DefaultTaskTimeout
		}
		if tasks[i].MaxRetries < 0 {
			details = append(details, model.FieldError{
				Field: fmt.Sprintf("tasks[%d].max_retries", i), Code: "invalid",
				Message: "max_retries must not be negative",
			})
		}
	}
	spec.Tasks = tasks

	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}

	if len(details) > 0 {
		return model.WorkflowSpec{}, model.NewValidationError(details)
	}
	return spec, nil
}

func cloneValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

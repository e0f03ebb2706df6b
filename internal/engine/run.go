package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/usemanusai/tce/internal/graph"
	"github.com/usemanusai/tce/internal/observability"
	"github.com/usemanusai/tce/model"
)

// hybridCriticalDependencyCount is the dependency count above which the
// hybrid partitioner treats a task as critical.
const hybridCriticalDependencyCount = 2

// run executes the workflow's task graph under its selected mode. It is the
// coordinating goroutine: all mutation of wf happens here, while dispatches
// run in worker goroutines and report back over a channel.
func (e *Engine) run(ctx context.Context, wf *model.Workflow) error {
	switch wf.SelectedMode {
	case model.ModeCIAR:
		return e.runLevels(ctx, wf, wf.Spec.Tasks)
	case model.ModeHybrid:
		return e.runHybrid(ctx, wf)
	default:
		return e.runWaterfall(ctx, wf, wf.Spec.Tasks)
	}
}

// runWaterfall walks the resolved topological order sequentially. An unmet
// dependency blocks the task and stops the walk; a failed task also halts
// the remaining sequence, leaving later tasks pending.
func (e *Engine) runWaterfall(ctx context.Context, wf *model.Workflow, tasks []model.Task) error {
	ordered, err := graph.Order(tasks)
	if err != nil {
		return err
	}

	for _, task := range ordered {
		if ctx.Err() != nil {
			e.cancelRemaining(ctx, wf)
			return nil
		}
		if wf.TaskStates[task.ID].Status != model.TaskStatusPending {
			continue
		}

		if missing := e.unmetDependencies(wf, task.ID); len(missing) > 0 {
			e.markBlocked(ctx, wf, task.ID, missing)
			return nil
		}

		e.markRunning(ctx, wf, task.ID)
		res := e.dispatchTask(ctx, wf, e.specTask(wf, task.ID), snapshotContext(wf))
		e.applyResult(ctx, wf, res)

		switch res.State.Status {
		case model.TaskStatusFailed:
			e.logger.Warn("sequential run halted by task failure",
				zap.String("workflow_id", wf.ID), zap.String("task_id", task.ID))
			return nil
		case model.TaskStatusCancelled:
			e.cancelRemaining(ctx, wf)
			return nil
		}
	}
	return nil
}

// runLevels executes tasks level by level: all tasks within a level dispatch
// concurrently, bounded by the configured concurrency limit, and the level
// must fully settle before the next one starts. Failures within a level do
// not stop its siblings. After each level, adaptive reasoning inspects the
// level's failure rate.
func (e *Engine) runLevels(ctx context.Context, wf *model.Workflow, tasks []model.Task) error {
	levels, err := graph.Levels(tasks)
	if err != nil {
		return err
	}

	keys := make([]int, 0, len(levels))
	for k := range levels {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	for _, lvl := range keys {
		if ctx.Err() != nil {
			e.cancelRemaining(ctx, wf)
			return nil
		}

		var runnable []model.Task
		for _, task := range levels[lvl] {
			if wf.TaskStates[task.ID].Status != model.TaskStatusPending {
				continue
			}
			if missing := e.unmetDependencies(wf, task.ID); len(missing) > 0 {
				e.markBlocked(ctx, wf, task.ID, missing)
				continue
			}
			runnable = append(runnable, e.specTask(wf, task.ID))
		}
		if len(runnable) == 0 {
			continue
		}

		failed := e.runLevel(ctx, wf, lvl, runnable)
		e.adapt(ctx, wf, lvl, len(runnable), failed)
	}
	return nil
}

// runLevel dispatches one level's runnable tasks and collects every result.
// Returns the number of tasks that ended failed.
func (e *Engine) runLevel(ctx context.Context, wf *model.Workflow, lvl int, runnable []model.Task) int {
	spanCtx, span := observability.StartSpan(ctx, "engine.level",
		observability.AttrWorkflowID.String(wf.ID),
		observability.AttrLevel.Int(lvl))
	defer span.End()

	for _, task := range runnable {
		e.markRunning(spanCtx, wf, task.ID)
	}
	snapshot := snapshotContext(wf)

	var sem chan struct{}
	if e.cfg.MaxConcurrency > 0 {
		sem = make(chan struct{}, e.cfg.MaxConcurrency)
	}

	results := make(chan dispatchResult, len(runnable))
	for _, task := range runnable {
		go func(t model.Task) {
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results <- e.dispatchTask(spanCtx, wf, t, snapshot)
		}(task)
	}

	failed := 0
	for range runnable {
		res := <-results
		e.applyResult(spanCtx, wf, res)
		if res.State.Status == model.TaskStatusFailed {
			failed++
		}
	}
	return failed
}

// adapt appends an adjustment record when a level's failure rate crosses the
// configured threshold. The running plan is never switched mid-flight; the
// record is a recommendation for the caller's next submission.
func (e *Engine) adapt(ctx context.Context, wf *model.Workflow, lvl, levelSize, failed int) {
	if levelSize == 0 {
		return
	}
	rate := float64(failed) / float64(levelSize)
	if rate <= e.cfg.AdaptiveFailureThreshold {
		return
	}

	record := model.AdjustmentRecord{
		Level:       lvl,
		LevelSize:   levelSize,
		FailedTasks: failed,
		FailureRate: rate,
		Recommended: model.ModeWaterfall,
		Reason: fmt.Sprintf("%d of %d tasks failed at level %d (%.0f%% > %.0f%% threshold); sequential execution would isolate the failures",
			failed, levelSize, lvl, rate*100, e.cfg.AdaptiveFailureThreshold*100),
		At: time.Now().UTC(),
	}
	wf.Adjustments = append(wf.Adjustments, record)

	e.appendEvent(ctx, wf.ID, "", model.EventAdaptiveAdjustment, map[string]any{
		"level":            lvl,
		"level_size":       levelSize,
		"failed_tasks":     failed,
		"failure_rate":     rate,
		"recommended_mode": string(record.Recommended),
	})
	if e.metrics != nil {
		e.metrics.AdaptiveAdjustmentsTotal.Inc()
	}
	e.logger.Warn("adaptive adjustment recorded",
		zap.String("workflow_id", wf.ID),
		zap.Int("level", lvl),
		zap.Float64("failure_rate", rate))

	if err := e.persist(ctx, wf); err != nil {
		e.logger.Error("adjustment persist failed", zap.String("workflow_id", wf.ID), zap.Error(err))
	}
}

// runHybrid partitions the task set into a critical sequential phase and a
// parallel remainder. Critical tasks finish (or halt) before the parallel
// phase begins; remainder tasks depending on an unfinished critical task end
// up blocked at dispatch time.
func (e *Engine) runHybrid(ctx context.Context, wf *model.Workflow) error {
	critical, remainder := partitionHybrid(wf.Spec.Tasks)

	if len(critical) > 0 {
		if err := e.runWaterfall(ctx, wf, restrictDependencies(critical)); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		e.cancelRemaining(ctx, wf)
		return nil
	}
	if len(remainder) > 0 {
		return e.runLevels(ctx, wf, restrictDependencies(remainder))
	}
	return nil
}

// partitionHybrid splits tasks into critical (many dependencies or critical
// priority) and the remainder, preserving input order within each part.
func partitionHybrid(tasks []model.Task) (critical, remainder []model.Task) {
	for _, t := range tasks {
		if len(t.Dependencies) > hybridCriticalDependencyCount || t.Priority == model.PriorityCritical {
			critical = append(critical, t)
		} else {
			remainder = append(remainder, t)
		}
	}
	return critical, remainder
}

// restrictDependencies returns copies of tasks whose dependency lists only
// name members of the subset, so the subset forms a self-contained graph for
// ordering and leveling. Dispatch-time dependency checks still consult the
// full dependency list.
func restrictDependencies(subset []model.Task) []model.Task {
	members := make(map[string]bool, len(subset))
	for _, t := range subset {
		members[t.ID] = true
	}
	out := make([]model.Task, len(subset))
	copy(out, subset)
	for i := range out {
		var deps []string
		for _, dep := range out[i].Dependencies {
			if members[dep] {
				deps = append(deps, dep)
			}
		}
		out[i].Dependencies = deps
	}
	return out
}

// unmetDependencies returns the dependencies of a task that are not
// completed, consulting the task's full dependency list from the spec.
func (e *Engine) unmetDependencies(wf *model.Workflow, taskID string) []string {
	task := e.specTask(wf, taskID)
	var missing []string
	for _, dep := range task.Dependencies {
		if wf.TaskStates[dep].Status != model.TaskStatusCompleted {
			missing = append(missing, dep)
		}
	}
	return missing
}

// specTask returns the authoritative task definition from the spec.
func (e *Engine) specTask(wf *model.Workflow, taskID string) model.Task {
	for _, t := range wf.Spec.Tasks {
		if t.ID == taskID {
			return t
		}
	}
	return model.Task{ID: taskID}
}

// markRunning transitions a pending task to running and records the start.
func (e *Engine) markRunning(ctx context.Context, wf *model.Workflow, taskID string) {
	now := time.Now().UTC()
	st := wf.TaskStates[taskID]
	st.Status = model.TaskStatusRunning
	st.StartedAt = &now
	wf.TaskStates[taskID] = st

	e.appendEvent(ctx, wf.ID, taskID, model.EventTaskStarted, nil)
	if err := e.persist(ctx, wf); err != nil {
		e.logger.Error("task start persist failed",
			zap.String("workflow_id", wf.ID), zap.String("task_id", taskID), zap.Error(err))
	}
}

// markBlocked transitions a pending task to blocked because of unmet
// dependencies.
func (e *Engine) markBlocked(ctx context.Context, wf *model.Workflow, taskID string, missing []string) {
	now := time.Now().UTC()
	st := wf.TaskStates[taskID]
	st.Status = model.TaskStatusBlocked
	st.CompletedAt = &now
	st.Error = fmt.Sprintf("dependencies not completed: %v", missing)
	wf.TaskStates[taskID] = st

	e.appendEvent(ctx, wf.ID, taskID, model.EventTaskBlocked, map[string]any{"missing": missing})
	e.logger.Warn("task blocked on unmet dependencies",
		zap.String("workflow_id", wf.ID),
		zap.String("task_id", taskID),
		zap.Strings("missing", missing))

	e.recomputeMetrics(wf)
	if err := e.persist(ctx, wf); err != nil {
		e.logger.Error("blocked persist failed",
			zap.String("workflow_id", wf.ID), zap.String("task_id", taskID), zap.Error(err))
	}
}

// applyResult folds a dispatch result into the workflow: the task state,
// completed outputs merged into the shared context (last writer wins), the
// rolling metrics, and the audit trail.
func (e *Engine) applyResult(ctx context.Context, wf *model.Workflow, res dispatchResult) {
	wf.TaskStates[res.TaskID] = res.State

	event := model.EventTaskFailed
	switch res.State.Status {
	case model.TaskStatusCompleted:
		event = model.EventTaskCompleted
		for k, v := range res.Outputs {
			wf.Context[k] = v
		}
	case model.TaskStatusCancelled:
		event = model.EventTaskCancelled
	}

	data := map[string]any{"attempts": res.State.Attempts}
	if res.State.Error != "" {
		data["error"] = res.State.Error
	}
	e.appendEvent(ctx, wf.ID, res.TaskID, event, data)

	e.recomputeMetrics(wf)
	if err := e.persist(ctx, wf); err != nil {
		e.logger.Error("task result persist failed",
			zap.String("workflow_id", wf.ID), zap.String("task_id", res.TaskID), zap.Error(err))
	}
}

// cancelRemaining transitions every still-pending task to cancelled after
// the run context ended. In-flight tasks settle through their own dispatch
// results.
func (e *Engine) cancelRemaining(ctx context.Context, wf *model.Workflow) {
	now := time.Now().UTC()
	changed := false
	for id, st := range wf.TaskStates {
		if st.Status != model.TaskStatusPending {
			continue
		}
		st.Status = model.TaskStatusCancelled
		st.CompletedAt = &now
		wf.TaskStates[id] = st
		e.appendEvent(ctx, wf.ID, id, model.EventTaskCancelled, nil)
		changed = true
	}
	if changed {
		e.recomputeMetrics(wf)
		if err := e.persist(ctx, wf); err != nil {
			e.logger.Error("cancellation persist failed", zap.String("workflow_id", wf.ID), zap.Error(err))
		}
	}
}

// recomputeMetrics refreshes the workflow's rolling metrics from its task
// states. Success rate counts completed tasks over all tasks; the average
// duration covers completed tasks only.
func (e *Engine) recomputeMetrics(wf *model.Workflow) {
	var m model.WorkflowMetrics
	var totalDuration time.Duration
	for _, st := range wf.TaskStates {
		switch st.Status {
		case model.TaskStatusCompleted:
			m.Completed++
			if st.StartedAt != nil && st.CompletedAt != nil {
				totalDuration += st.CompletedAt.Sub(*st.StartedAt)
			}
		case model.TaskStatusFailed:
			m.Failed++
		case model.TaskStatusBlocked:
			m.Blocked++
		}
	}
	if total := len(wf.TaskStates); total > 0 {
		m.SuccessRate = float64(m.Completed) / float64(total)
	}
	if m.Completed > 0 {
		m.AvgTaskDurationMs = float64(totalDuration.Milliseconds()) / float64(m.Completed)
	}
	wf.Metrics = m
}

// finalize settles the workflow's terminal status after the run loop ends
// and produces the caller-facing result.
func (e *Engine) finalize(ctx context.Context, wf *model.Workflow, runCtx context.Context, runErr error) (model.WorkflowResult, error) {
	e.recomputeMetrics(wf)

	cause := context.Cause(runCtx)
	status := terminalStatus(wf, cause, runErr)

	now := time.Now().UTC()
	wf.Status = status
	wf.CompletedAt = &now
	if err := e.persist(ctx, wf); err != nil {
		return model.WorkflowResult{}, err
	}

	var totalMs int64
	if wf.StartedAt != nil {
		totalMs = now.Sub(*wf.StartedAt).Milliseconds()
	}

	e.appendEvent(ctx, wf.ID, "", model.EventWorkflowCompleted, map[string]any{
		"status":       status,
		"success_rate": wf.Metrics.SuccessRate,
		"duration_ms":  totalMs,
	})
	if e.metrics != nil {
		e.metrics.ObserveWorkflow(string(wf.SelectedMode), status, time.Duration(totalMs)*time.Millisecond)
	}
	e.logger.Info("workflow finished",
		zap.String("workflow_id", wf.ID),
		zap.String("status", status),
		zap.Float64("success_rate", wf.Metrics.SuccessRate),
		zap.Int64("duration_ms", totalMs))

	snapshot := wf.Clone()
	return model.WorkflowResult{
		WorkflowID:      wf.ID,
		FinalStatus:     status,
		SuccessRate:     wf.Metrics.SuccessRate,
		TaskResults:     snapshot.TaskStates,
		TotalDurationMs: totalMs,
		Adjustments:     snapshot.Adjustments,
	}, nil
}

// terminalStatus derives the workflow's terminal status. A deadline beats
// everything, an explicit cancellation beats task outcomes, then task
// outcomes decide between completed, partial, and failed.
func terminalStatus(wf *model.Workflow, cause, runErr error) string {
	switch {
	case runErr != nil:
		return model.WorkflowStatusFailed
	case cause != nil && model.CodeOf(cause) == model.ErrWorkflowDeadlineExceeded:
		return model.WorkflowStatusFailed
	case cause != nil:
		return model.WorkflowStatusCancelled
	}

	allDone := true
	for _, st := range wf.TaskStates {
		if st.Status != model.TaskStatusCompleted && st.Status != model.TaskStatusCancelled {
			allDone = false
			break
		}
	}
	switch {
	case allDone && wf.Metrics.Completed > 0:
		return model.WorkflowStatusCompleted
	case wf.Metrics.SuccessRate == 0:
		return model.WorkflowStatusFailed
	case wf.Metrics.SuccessRate < 1:
		return model.WorkflowStatusPartial
	default:
		return model.WorkflowStatusCompleted
	}
}

// snapshotContext copies the shared workflow context for workers to read
// while the coordinator keeps merging results.
func snapshotContext(wf *model.Workflow) map[string]any {
	out := make(map[string]any, len(wf.Context))
	for k, v := range wf.Context {
		out[k] = v
	}
	return out
}

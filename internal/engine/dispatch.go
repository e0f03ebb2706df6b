package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/usemanusai/tce/internal/observability"
	"github.com/usemanusai/tce/model"
)

// dispatchResult is what a single task dispatch hands back to the
// coordinator. State carries the terminal task state; Outputs is non-nil
// only on success.
type dispatchResult struct {
	TaskID  string
	State   model.TaskState
	Outputs map[string]any
}

// execOutcome carries one executor invocation's result across the goroutine
// boundary so the dispatch loop can race it against the timeout.
type execOutcome struct {
	outputs map[string]any
	err     error
}

// dispatchTask runs one task to a terminal state. It resolves the executor,
// consults the circuit breaker, and retries on execution errors with
// exponential backoff. Timeouts and cancellation are terminal immediately
// and never retried.
//
// snapshot is a read-only copy of the workflow context taken by the
// coordinator; dispatchTask never touches shared state.
func (e *Engine) dispatchTask(ctx context.Context, wf *model.Workflow, task model.Task, snapshot map[string]any) dispatchResult {
	log := e.logger.With(
		zap.String("workflow_id", wf.ID),
		zap.String("task_id", task.ID),
		zap.String("executor", task.Executor),
	)

	fn, ok := e.executors.Resolve(task.Executor)
	if !ok {
		log.Error("executor not registered")
		return failed(task.ID, 0, model.NewExecutorNotFoundError(task.Executor))
	}

	breaker := e.breakerFor(task.Executor)

	started := time.Now().UTC()
	state := model.TaskState{Status: model.TaskStatusRunning, StartedAt: &started}

	for attempt := 0; attempt <= task.MaxRetries; attempt++ {
		state.Attempts = attempt + 1

		if breaker != nil {
			err := breaker.Allow()
			e.observeBreaker(task.Executor, breaker)
			if err != nil {
				log.Warn("circuit breaker rejected dispatch", zap.Int("attempt", attempt))
				return terminal(task.ID, state, model.TaskStatusFailed,
					model.NewTaskExecutionError(err), nil)
			}
		}

		spanCtx, span := observability.StartSpan(ctx, "engine.dispatch",
			observability.AttrWorkflowID.String(wf.ID),
			observability.AttrTaskID.String(task.ID),
			observability.AttrExecutor.String(task.Executor),
			observability.AttrAttempt.Int(attempt))

		outputs, execErr, timedOut := runAttempt(spanCtx, fn, task, snapshot)
		observability.EndSpanWithError(span, execErr)

		if execErr == nil {
			if breaker != nil {
				breaker.RecordSuccess()
				e.observeBreaker(task.Executor, breaker)
			}
			e.observeTask(task.Executor, "completed", started)
			return terminal(task.ID, state, model.TaskStatusCompleted, nil, outputs)
		}

		if breaker != nil {
			breaker.RecordFailure()
			e.observeBreaker(task.Executor, breaker)
		}

		if timedOut {
			log.Warn("task timed out", zap.Duration("timeout", task.Timeout), zap.Int("attempt", attempt))
			e.observeTask(task.Executor, "timeout", started)
			return terminal(task.ID, state, model.TaskStatusFailed,
				model.NewTaskTimeoutError(fmt.Sprintf("task %q exceeded its %s timeout", task.ID, task.Timeout)), nil)
		}

		if cause := context.Cause(ctx); ctx.Err() != nil {
			e.observeTask(task.Executor, "cancelled", started)
			return cancelledState(task.ID, state, cause)
		}

		if attempt == task.MaxRetries {
			log.Error("task failed, retries exhausted",
				zap.Int("attempts", state.Attempts), zap.Error(execErr))
			e.observeTask(task.Executor, "failed", started)
			return terminal(task.ID, state, model.TaskStatusFailed,
				model.NewTaskExecutionError(execErr), nil)
		}

		wait := backoff(e.cfg.BackoffBase.Std(), e.cfg.BackoffCeiling.Std(), attempt)
		log.Warn("task attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(execErr))
		e.appendEvent(ctx, wf.ID, task.ID, model.EventTaskRetried, map[string]any{
			"attempt":    attempt + 1,
			"backoff_ms": wait.Milliseconds(),
			"error":      execErr.Error(),
		})
		if e.metrics != nil {
			e.metrics.TaskRetriesTotal.WithLabelValues(task.Executor).Inc()
		}

		if err := e.sleep(ctx, wait); err != nil {
			e.observeTask(task.Executor, "cancelled", started)
			return cancelledState(task.ID, state, err)
		}
	}

	// Unreachable: the loop always returns from its final iteration.
	return failed(task.ID, state.Attempts, model.NewInternalError())
}

// runAttempt invokes the executor under the task's timeout. The third return
// reports whether the attempt ended because the per-task timeout elapsed, as
// opposed to the surrounding run context being cancelled.
func runAttempt(ctx context.Context, fn func(context.Context, map[string]any, map[string]any) (map[string]any, error), task model.Task, snapshot map[string]any) (map[string]any, error, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execOutcome{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		outputs, err := fn(attemptCtx, task.Inputs, snapshot)
		done <- execOutcome{outputs: outputs, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err, errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil
		}
		return out.outputs, nil, false
	case <-attemptCtx.Done():
		// The executor goroutine is abandoned; well-behaved executors observe
		// attemptCtx and return shortly after.
		if ctx.Err() != nil {
			return nil, context.Cause(ctx), false
		}
		return nil, attemptCtx.Err(), true
	}
}

// backoff computes the wait before retry attempt n: base * 2^n, capped.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt >= 62 {
		return ceiling
	}
	wait := base << uint(attempt)
	if wait > ceiling || wait <= 0 {
		return ceiling
	}
	return wait
}

func (e *Engine) observeTask(executorName, status string, started time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveTask(executorName, status, time.Since(started))
}

func (e *Engine) observeBreaker(executorName string, cb *CircuitBreaker) {
	if e.metrics == nil {
		return
	}
	e.metrics.BreakerState.WithLabelValues(executorName).Set(float64(cb.State()))
}

func terminal(taskID string, state model.TaskState, status string, err error, outputs map[string]any) dispatchResult {
	now := time.Now().UTC()
	state.Status = status
	state.CompletedAt = &now
	if err != nil {
		state.Error = err.Error()
	}
	if status == model.TaskStatusCompleted {
		state.Outputs = outputs
	}
	return dispatchResult{TaskID: taskID, State: state, Outputs: outputs}
}

func failed(taskID string, attempts int, err error) dispatchResult {
	now := time.Now().UTC()
	return dispatchResult{
		TaskID: taskID,
		State: model.TaskState{
			Status:      model.TaskStatusFailed,
			Attempts:    attempts,
			CompletedAt: &now,
			Error:       err.Error(),
		},
	}
}

// cancelledState maps a run-level cancellation cause onto a task state. A
// workflow deadline marks the task failed; an explicit cancel marks it
// cancelled.
func cancelledState(taskID string, state model.TaskState, cause error) dispatchResult {
	status := model.TaskStatusCancelled
	if model.CodeOf(cause) == model.ErrWorkflowDeadlineExceeded {
		status = model.TaskStatusFailed
	}
	return terminal(taskID, state, status, cause, nil)
}

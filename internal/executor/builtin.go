package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Built-in executor names. These are deterministic units used by tests, the
// bundled demo definitions, and smoke deployments; real deployments register
// their own executors alongside them.
const (
	BuiltinNoopSuccess  = "noop_success"
	BuiltinNoopFailure  = "noop_failure"
	BuiltinEcho         = "echo"
	BuiltinSleep        = "sleep"
	BuiltinMergeContext = "merge_context"
)

// RegisterBuiltins registers the built-in executors.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]Func{
		BuiltinNoopSuccess:  NoopSuccess,
		BuiltinNoopFailure:  NoopFailure,
		BuiltinEcho:         Echo,
		BuiltinSleep:        Sleep,
		BuiltinMergeContext: MergeContext,
	}
	for name, fn := range builtins {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// NoopSuccess completes immediately with a marker output.
func NoopSuccess(_ context.Context, _, _ map[string]any) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

// NoopFailure always fails. The error message can be overridden through the
// "message" input.
func NoopFailure(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
	if msg, ok := inputs["message"].(string); ok && msg != "" {
		return nil, errors.New(msg)
	}
	return nil, errors.New("noop_failure: intentional failure")
}

// Echo returns its inputs unchanged as outputs.
func Echo(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}

// Sleep blocks for the duration named by the "duration_ms" input, honoring
// context cancellation.
func Sleep(ctx context.Context, inputs, _ map[string]any) (map[string]any, error) {
	ms, err := intInput(inputs, "duration_ms")
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]any{"slept_ms": ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MergeContext overlays its inputs onto a copy of the workflow context and
// returns the merged map, so downstream tasks observe the combined view.
func MergeContext(_ context.Context, inputs, workflowContext map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(workflowContext)+len(inputs))
	for k, v := range workflowContext {
		out[k] = v
	}
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}

func intInput(inputs map[string]any, key string) (int64, error) {
	switch v := inputs[key].(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// JSON numbers decode as float64.
		return int64(v), nil
	default:
		return 0, fmt.Errorf("input %q must be a number, got %T", key, inputs[key])
	}
}

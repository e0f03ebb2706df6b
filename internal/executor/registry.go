// Package executor defines the unit-of-work contract between the engine and
// the opaque task executors, and the registry that resolves executor names at
// dispatch time.
package executor

import (
	"context"
	"sort"
	"sync"

	"github.com/usemanusai/tce/model"
)

// Func is the execution contract for a single task. It receives the task's
// configured inputs and a snapshot of the workflow's running context, and
// returns the task outputs. The context carries the task's timeout as a hard
// deadline; well-behaved executors observe ctx.Done. Executors must not
// retain or mutate engine-owned state; they communicate only through the
// returned outputs.
type Func func(ctx context.Context, inputs, workflowContext map[string]any) (map[string]any, error)

// Registry maps executor names to their implementations. It is safe for
// concurrent use; registration normally happens once at startup, but late
// registration is allowed since unknown executors are a per-task runtime
// error rather than a submission error.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Func
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Func)}
}

// Register binds a name to an executor. Registering an already-bound name
// returns a CONFLICT error; replacing a live executor under a running engine
// is never intended.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return model.NewBadRequestError("executor name is required")
	}
	if fn == nil {
		return model.NewBadRequestError("executor function is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[name]; exists {
		return model.NewConflictError("executor " + name + " is already registered")
	}
	r.executors[name] = fn
	return nil
}

// Resolve returns the executor bound to name.
func (r *Registry) Resolve(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.executors[name]
	return fn, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Names returns all registered executor names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

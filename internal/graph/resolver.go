// Package graph validates task dependency graphs and produces executable
// plans: a strict topological order for waterfall execution and dependency
// levels for parallel execution. Validation is fail-fast: a cyclic or
// unresolvable graph is reported before any execution begins.
package graph

import (
	"container/heap"
	"fmt"
	"strings"

	"github.com/usemanusai/tce/model"
)

// graphIndex is the adjacency view of a task list. Node identity is the
// position in the input slice, which doubles as the stable tie-breaker.
type graphIndex struct {
	tasks    []model.Task
	byID     map[string]int
	outgoing [][]int // dependents, by input index
	indeg    []int   // dependency count, by input index
}

// buildIndex validates id uniqueness and dependency resolvability while
// building the adjacency lists.
func buildIndex(tasks []model.Task) (*graphIndex, error) {
	g := &graphIndex{
		tasks:    tasks,
		byID:     make(map[string]int, len(tasks)),
		outgoing: make([][]int, len(tasks)),
		indeg:    make([]int, len(tasks)),
	}

	var details []model.FieldError
	for i, t := range tasks {
		if t.ID == "" {
			details = append(details, model.FieldError{
				Field: fmt.Sprintf("tasks[%d].id", i), Code: "required", Message: "task id is required",
			})
			continue
		}
		if _, exists := g.byID[t.ID]; exists {
			details = append(details, model.FieldError{
				Field: fmt.Sprintf("tasks[%d].id", i), Code: "duplicate",
				Message: fmt.Sprintf("duplicate task id %q", t.ID),
			})
			continue
		}
		g.byID[t.ID] = i
	}
	if len(details) > 0 {
		return nil, model.NewValidationError(details)
	}

	for i, t := range tasks {
		for _, dep := range t.Dependencies {
			from, ok := g.byID[dep]
			if !ok {
				return nil, model.NewUnknownDependencyError(
					fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep),
				)
			}
			if from == i {
				return nil, model.NewCyclicDependencyError(
					fmt.Sprintf("task %q depends on itself", t.ID),
				)
			}
			g.outgoing[from] = append(g.outgoing[from], i)
			g.indeg[i]++
		}
	}
	return g, nil
}

// Validate checks a task set for empty/duplicate ids, unknown dependency
// references, and cycles. A nil return guarantees the set is an executable
// DAG.
func Validate(tasks []model.Task) error {
	g, err := buildIndex(tasks)
	if err != nil {
		return err
	}
	return g.checkAcyclic()
}

// checkAcyclic proves the graph has no cycles by exhausting a Kahn ordering.
// If nodes remain, a deterministic witness cycle is extracted for the error.
func (g *graphIndex) checkAcyclic() error {
	if len(g.topoIndices()) == len(g.tasks) {
		return nil
	}
	cycle := g.findCycle()
	ids := make([]string, 0, len(cycle))
	for _, idx := range cycle {
		ids = append(ids, g.tasks[idx].ID)
	}
	return model.NewCyclicDependencyError(
		fmt.Sprintf("dependency cycle: %s", strings.Join(ids, " -> ")),
	)
}

// taskHeap orders ready nodes by (priority ordinal asc, input index asc) so
// ties among zero-in-degree tasks break deterministically.
type taskHeap struct {
	indices []int
	tasks   []model.Task
}

func (h *taskHeap) Len() int { return len(h.indices) }
func (h *taskHeap) Less(i, j int) bool {
	a, b := h.indices[i], h.indices[j]
	ao, bo := h.tasks[a].Priority.Ordinal(), h.tasks[b].Priority.Ordinal()
	if ao != bo {
		return ao < bo
	}
	return a < b
}
func (h *taskHeap) Swap(i, j int) { h.indices[i], h.indices[j] = h.indices[j], h.indices[i] }
func (h *taskHeap) Push(x any)    { h.indices = append(h.indices, x.(int)) }
func (h *taskHeap) Pop() any {
	old := h.indices
	n := len(old)
	x := old[n-1]
	h.indices = old[:n-1]
	return x
}

// topoIndices returns a deterministic Kahn ordering of input indices. The
// returned slice is shorter than the task list iff the graph has a cycle.
func (g *graphIndex) topoIndices() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &taskHeap{tasks: g.tasks}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle extracts one cycle path with an iterative DFS that tracks the
// recursion stack explicitly. It returns a single stable witness, not every
// cycle.
func (g *graphIndex) findCycle() []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.tasks))
	parent := make([]int, len(g.tasks))
	for i := range parent {
		parent[i] = -1
	}

	type frame struct {
		node int
		next int
	}

	for start := range g.tasks {
		if color[start] != white {
			continue
		}
		stack := []frame{{node: start}}
		color[start] = gray

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next < len(g.outgoing[f.node]) {
				v := g.outgoing[f.node][f.next]
				f.next++
				switch color[v] {
				case white:
					color[v] = gray
					parent[v] = f.node
					stack = append(stack, frame{node: v})
				case gray:
					// Back-edge f.node -> v closes the cycle v ... f.node -> v.
					var chain []int
					for cur := f.node; cur != -1 && cur != v; cur = parent[cur] {
						chain = append(chain, cur)
					}
					cycle := []int{v}
					for i := len(chain) - 1; i >= 0; i-- {
						cycle = append(cycle, chain[i])
					}
					return append(cycle, v)
				}
				continue
			}
			color[f.node] = black
			stack = stack[:len(stack)-1]
		}
	}
	return nil
}

// Order resolves a strict sequential execution order for waterfall mode:
// every task appears after all of its dependencies.
func Order(tasks []model.Task) ([]model.Task, error) {
	g, err := buildIndex(tasks)
	if err != nil {
		return nil, err
	}
	indices := g.topoIndices()
	if len(indices) != len(tasks) {
		return nil, g.checkAcyclic()
	}

	out := make([]model.Task, 0, len(indices))
	for _, idx := range indices {
		out = append(out, tasks[idx])
	}
	return out, nil
}

// Levels groups tasks into dependency levels for parallel execution:
// level(t) is 0 for root tasks, otherwise one past the deepest dependency.
// Tasks sharing a level have no dependency relationship and are safe to run
// concurrently; levels execute strictly in increasing order. Within a level,
// tasks keep the same deterministic order as Order.
func Levels(tasks []model.Task) (map[int][]model.Task, error) {
	g, err := buildIndex(tasks)
	if err != nil {
		return nil, err
	}
	indices := g.topoIndices()
	if len(indices) != len(tasks) {
		return nil, g.checkAcyclic()
	}

	// Walking in topological order guarantees every dependency's level is
	// known before its dependents are visited, with no recursion.
	level := make([]int, len(tasks))
	for _, idx := range indices {
		for _, dep := range tasks[idx].Dependencies {
			depIdx := g.byID[dep]
			if level[depIdx]+1 > level[idx] {
				level[idx] = level[depIdx] + 1
			}
		}
	}

	levels := make(map[int][]model.Task)
	for _, idx := range indices {
		levels[level[idx]] = append(levels[level[idx]], tasks[idx])
	}
	return levels, nil
}

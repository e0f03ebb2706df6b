package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/usemanusai/tce/model"
)

func task(id string, priority model.Priority, deps ...string) model.Task {
	return model.Task{ID: id, Executor: "noop", Priority: priority, Dependencies: deps}
}

func ids(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func assertIDs(t *testing.T, got []model.Task, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("order = %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("order = %v, want %v", gotIDs, want)
		}
	}
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) {
		t.Fatalf("error %v is not an envelope", err)
	}
	return env.Code
}

func TestOrderRespectsDependencies(t *testing.T) {
	tasks := []model.Task{
		task("deploy", model.PriorityMedium, "build", "test"),
		task("test", model.PriorityMedium, "build"),
		task("build", model.PriorityMedium),
	}

	ordered, err := Order(tasks)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	assertIDs(t, ordered, "build", "test", "deploy")
}

func TestOrderBreaksTiesByPriorityThenPosition(t *testing.T) {
	tasks := []model.Task{
		task("low", model.PriorityLow),
		task("crit", model.PriorityCritical),
		task("med-b", model.PriorityMedium),
		task("med-a", model.PriorityMedium),
	}

	ordered, err := Order(tasks)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	// Ascending priority ordinal first; equal priorities keep input position.
	assertIDs(t, ordered, "low", "med-b", "med-a", "crit")
}

func TestOrderDeterministic(t *testing.T) {
	tasks := []model.Task{
		task("a", model.PriorityMedium),
		task("b", model.PriorityMedium),
		task("c", model.PriorityMedium, "a"),
		task("d", model.PriorityMedium, "b"),
	}

	first, err := Order(tasks)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	for n := 0; n < 20; n++ {
		again, err := Order(tasks)
		if err != nil {
			t.Fatalf("Order: %v", err)
		}
		for i := range first {
			if again[i].ID != first[i].ID {
				t.Fatalf("order changed between runs: %v vs %v", ids(first), ids(again))
			}
		}
	}
}

func TestLevels(t *testing.T) {
	tasks := []model.Task{
		task("a", model.PriorityMedium),
		task("b", model.PriorityMedium),
		task("c", model.PriorityMedium, "a", "b"),
		task("d", model.PriorityMedium, "a"),
		task("e", model.PriorityMedium, "c"),
	}

	levels, err := Levels(tasks)
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("got %d levels, want 3", len(levels))
	}
	assertIDs(t, levels[0], "a", "b")
	assertIDs(t, levels[1], "c", "d")
	assertIDs(t, levels[2], "e")
}

func TestLevelsSingleTask(t *testing.T) {
	levels, err := Levels([]model.Task{task("only", model.PriorityMedium)})
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	if len(levels) != 1 || len(levels[0]) != 1 {
		t.Fatalf("unexpected levels: %v", levels)
	}
}

func TestValidateUnknownDependency(t *testing.T) {
	tasks := []model.Task{task("a", model.PriorityMedium, "ghost")}

	err := Validate(tasks)
	if code := codeOf(t, err); code != model.ErrUnknownDependency {
		t.Fatalf("code = %s, want %s", code, model.ErrUnknownDependency)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("error should name the missing dependency: %v", err)
	}
}

func TestValidateSelfDependency(t *testing.T) {
	err := Validate([]model.Task{task("a", model.PriorityMedium, "a")})
	if code := codeOf(t, err); code != model.ErrCyclicDependency {
		t.Fatalf("code = %s, want %s", code, model.ErrCyclicDependency)
	}
}

func TestValidateCycleReportsWitnessPath(t *testing.T) {
	tasks := []model.Task{
		task("a", model.PriorityMedium, "c"),
		task("b", model.PriorityMedium, "a"),
		task("c", model.PriorityMedium, "b"),
	}

	err := Validate(tasks)
	if code := codeOf(t, err); code != model.ErrCyclicDependency {
		t.Fatalf("code = %s, want %s", code, model.ErrCyclicDependency)
	}
	msg := err.Error()
	if !strings.Contains(msg, "->") {
		t.Fatalf("cycle error should show a witness path: %q", msg)
	}
	for _, id := range []string{"a", "b", "c"} {
		if !strings.Contains(msg, id) {
			t.Fatalf("witness path missing %q: %q", id, msg)
		}
	}
}

func TestValidateDuplicateAndMissingIDs(t *testing.T) {
	tasks := []model.Task{
		task("a", model.PriorityMedium),
		task("a", model.PriorityMedium),
		task("", model.PriorityMedium),
	}

	err := Validate(tasks)
	if code := codeOf(t, err); code != model.ErrValidationError {
		t.Fatalf("code = %s, want %s", code, model.ErrValidationError)
	}
	var env *model.ErrorEnvelope
	errors.As(err, &env)
	if len(env.Details) != 2 {
		t.Fatalf("got %d field errors, want 2: %+v", len(env.Details), env.Details)
	}
}

func TestOrderEmpty(t *testing.T) {
	ordered, err := Order(nil)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(ordered) != 0 {
		t.Fatalf("expected empty order, got %v", ids(ordered))
	}
}

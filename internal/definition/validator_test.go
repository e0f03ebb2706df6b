package definition

import (
	"strings"
	"testing"

	"github.com/usemanusai/tce/internal/executor"
)

func validTemplate() Template {
	return Template{
		ID:   "demo",
		Name: "Demo",
		Mode: "ci_ar",
		Tasks: []TaskTemplate{
			{ID: "a", Executor: executor.BuiltinNoopSuccess},
			{ID: "b", Executor: executor.BuiltinEcho, Dependencies: []string{"a"}},
		},
	}
}

func builtinRegistry(t *testing.T) *executor.Registry {
	t.Helper()
	reg := executor.NewRegistry()
	if err := executor.RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return reg
}

func TestValidator_ValidTemplate(t *testing.T) {
	v := NewValidator()
	if errs := v.Validate([]Template{validTemplate()}, builtinRegistry(t)); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidator_StructuralErrors(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name     string
		mutate   func(*Template)
		wantCode string
		wantPath string
	}{
		{"missing id", func(tpl *Template) { tpl.ID = "" }, "REQUIRED", ".id"},
		{"missing name", func(tpl *Template) { tpl.Name = "" }, "REQUIRED", ".name"},
		{"bad mode", func(tpl *Template) { tpl.Mode = "psychic" }, "INVALID", ".mode"},
		{"no tasks", func(tpl *Template) { tpl.Tasks = nil }, "REQUIRED", ".tasks"},
		{"missing executor", func(tpl *Template) { tpl.Tasks[0].Executor = "" }, "REQUIRED", ".executor"},
		{"bad priority", func(tpl *Template) { tpl.Tasks[0].Priority = "urgent" }, "INVALID", ".priority"},
		{"zero timeout", func(tpl *Template) { z := int64(0); tpl.Tasks[0].TimeoutMs = &z }, "INVALID", ".timeout_ms"},
		{"negative retries", func(tpl *Template) { n := -1; tpl.Tasks[0].MaxRetries = &n }, "INVALID", ".max_retries"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := validTemplate()
			tc.mutate(&tpl)
			errs := v.Validate([]Template{tpl}, nil)
			if len(errs) == 0 {
				t.Fatal("Validate() = no errors, want at least one")
			}
			found := false
			for _, e := range errs {
				if e.Code == tc.wantCode && strings.HasSuffix(e.Path, tc.wantPath) {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want %s at *%s", errs, tc.wantCode, tc.wantPath)
			}
		})
	}
}

func TestValidator_DuplicateIDs(t *testing.T) {
	v := NewValidator()
	errs := v.Validate([]Template{validTemplate(), validTemplate()}, nil)
	if len(errs) != 1 || errs[0].Code != "DUPLICATE" {
		t.Errorf("Validate() = %v, want a single DUPLICATE error", errs)
	}
}

func TestValidator_UnknownExecutor(t *testing.T) {
	v := NewValidator()
	tpl := validTemplate()
	tpl.Tasks[0].Executor = "nope"

	if errs := v.Validate([]Template{tpl}, nil); len(errs) != 0 {
		t.Errorf("Validate(nil registry) = %v, want executor checks skipped", errs)
	}

	errs := v.Validate([]Template{tpl}, builtinRegistry(t))
	if len(errs) != 1 || errs[0].Code != "UNKNOWN_EXECUTOR" {
		t.Errorf("Validate() = %v, want UNKNOWN_EXECUTOR", errs)
	}
}

func TestValidator_GraphErrors(t *testing.T) {
	v := NewValidator()

	cyclic := validTemplate()
	cyclic.Tasks[0].Dependencies = []string{"b"}
	errs := v.Validate([]Template{cyclic}, nil)
	if len(errs) != 1 || errs[0].Code != "CYCLIC_DEPENDENCY" {
		t.Errorf("Validate(cycle) = %v, want CYCLIC_DEPENDENCY", errs)
	}

	dangling := validTemplate()
	dangling.Tasks[1].Dependencies = []string{"ghost"}
	errs = v.Validate([]Template{dangling}, nil)
	if len(errs) != 1 || errs[0].Code != "UNKNOWN_DEPENDENCY" {
		t.Errorf("Validate(dangling) = %v, want UNKNOWN_DEPENDENCY", errs)
	}
}

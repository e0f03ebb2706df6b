package executor

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/usemanusai/tce/model"
)

func stub(_ context.Context, _, _ map[string]any) (map[string]any, error) {
	return nil, nil
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("worker", stub); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fn, ok := r.Resolve("worker")
	if !ok || fn == nil {
		t.Fatal("registered executor should resolve")
	}
	if !r.Has("worker") {
		t.Fatal("Has should report registered name")
	}
	if _, ok := r.Resolve("ghost"); ok {
		t.Fatal("unregistered name should not resolve")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("worker", stub); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := r.Register("worker", stub)
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrConflict {
		t.Fatalf("duplicate registration error = %v, want %s", err, model.ErrConflict)
	}
}

func TestRegistryRejectsInvalidArguments(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", stub); err == nil {
		t.Fatal("empty name should be rejected")
	}
	if err := r.Register("worker", nil); err == nil {
		t.Fatal("nil function should be rejected")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(name, stub); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	want := []string{"alpha", "mid", "zeta"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	for _, name := range []string{BuiltinNoopSuccess, BuiltinNoopFailure, BuiltinEcho, BuiltinSleep, BuiltinMergeContext} {
		if !r.Has(name) {
			t.Errorf("builtin %s not registered", name)
		}
	}
}

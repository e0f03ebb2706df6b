package definition

import (
	"testing"
	"time"

	"github.com/usemanusai/tce/model"
)

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	tpl, err := l.LoadFile("testdata/deploy/pipeline.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if tpl.ID != "deploy.pipeline" {
		t.Errorf("ID = %q, want deploy.pipeline", tpl.ID)
	}
	if tpl.Name != "Deploy Pipeline" {
		t.Errorf("Name = %q, want Deploy Pipeline", tpl.Name)
	}
	if tpl.Mode != "hybrid" {
		t.Errorf("Mode = %q, want hybrid", tpl.Mode)
	}
	if tpl.Context["environment"] != "staging" {
		t.Errorf("Context[environment] = %v, want staging", tpl.Context["environment"])
	}
	if len(tpl.Tasks) != 4 {
		t.Fatalf("Tasks = %d, want 4", len(tpl.Tasks))
	}
	if tpl.Tasks[0].ID != "build" || tpl.Tasks[0].Priority != "critical" {
		t.Errorf("Tasks[0] = %+v, want build/critical", tpl.Tasks[0])
	}
	if tpl.Tasks[1].TimeoutMs == nil || *tpl.Tasks[1].TimeoutMs != 60000 {
		t.Errorf("Tasks[1].TimeoutMs = %v, want 60000", tpl.Tasks[1].TimeoutMs)
	}
	if tpl.Tasks[2].MaxRetries == nil || *tpl.Tasks[2].MaxRetries != 0 {
		t.Errorf("Tasks[2].MaxRetries = %v, want explicit 0", tpl.Tasks[2].MaxRetries)
	}
	if tpl.Tasks[3].MaxRetries != nil {
		t.Errorf("Tasks[3].MaxRetries = %v, want nil for an absent field", tpl.Tasks[3].MaxRetries)
	}
	if tpl.Checksum == "" {
		t.Error("Checksum is empty")
	}
	if tpl.SourceFile != "testdata/deploy/pipeline.yaml" {
		t.Errorf("SourceFile = %q", tpl.SourceFile)
	}
}

func TestLoader_LoadAll(t *testing.T) {
	l := NewLoader()
	templates, err := l.LoadAll([]string{"testdata"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(templates) != 1 {
		t.Fatalf("templates = %d, want 1", len(templates))
	}
	if templates[0].ID != "deploy.pipeline" {
		t.Errorf("ID = %q, want deploy.pipeline", templates[0].ID)
	}
}

func TestLoader_MissingDirectory(t *testing.T) {
	l := NewLoader()
	if _, err := l.LoadAll([]string{"testdata/nope"}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestTemplate_Instantiate(t *testing.T) {
	l := NewLoader()
	tpl, err := l.LoadFile("testdata/deploy/pipeline.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	spec := tpl.Instantiate(map[string]any{"environment": "production", "ticket": "OPS-42"})

	if spec.Mode != model.ModeHybrid {
		t.Errorf("Mode = %q, want hybrid", spec.Mode)
	}
	if spec.Context["environment"] != "production" {
		t.Errorf("Context[environment] = %v, want caller override to win", spec.Context["environment"])
	}
	if spec.Context["ticket"] != "OPS-42" {
		t.Errorf("Context[ticket] = %v, want OPS-42", spec.Context["ticket"])
	}

	byID := map[string]model.Task{}
	for _, task := range spec.Tasks {
		byID[task.ID] = task
	}
	if got := byID["verify"].Timeout; got != 60*time.Second {
		t.Errorf("verify timeout = %v, want 60s", got)
	}
	if got := byID["verify"].MaxRetries; got != 2 {
		t.Errorf("verify max retries = %d, want 2", got)
	}
	if got := byID["release"].MaxRetries; got != 0 {
		t.Errorf("release max retries = %d, want explicit 0 preserved", got)
	}
	if got := byID["announce"].MaxRetries; got != model.DefaultMaxRetries {
		t.Errorf("announce max retries = %d, want default %d", got, model.DefaultMaxRetries)
	}
	if got := byID["build"].Priority; got != model.PriorityCritical {
		t.Errorf("build priority = %q, want critical", got)
	}

	// The template itself must stay untouched.
	if tpl.Context["environment"] != "staging" {
		t.Errorf("template context mutated: %v", tpl.Context)
	}
}

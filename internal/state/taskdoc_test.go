package state_test

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/state/statetest"
)

func TestTaskDocument_SetPreservesOrderAndComments(t *testing.T) {
	p := statetest.New(t)
	p.Task("iter-1", "CR-001", `# owned by analyst
id: CR-001
status: in_progress # updated by developer
design:
  why_this_approach: keep it small
`)
	s := state.NewStore(p.Dir)

	doc, err := s.OpenTaskDocument("iter-1", "CR-001")
	if err != nil {
		t.Fatalf("OpenTaskDocument() error = %v", err)
	}
	if err := doc.Set("status", "ready_for_review"); err != nil {
		t.Fatalf("Set(status) error = %v", err)
	}
	if err := doc.Set("notes", []any{"first"}); err != nil {
		t.Fatalf("Set(notes) error = %v", err)
	}
	if err := doc.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out := p.ReadFile(p.TaskPath("iter-1", "CR-001"))
	for _, want := range []string{"# owned by analyst", "status: ready_for_review", "# updated by developer", "- first"} {
		if !strings.Contains(out, want) {
			t.Errorf("saved document missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "id:") > strings.Index(out, "design:") || strings.Index(out, "design:") > strings.Index(out, "notes:") {
		t.Errorf("key order not preserved:\n%s", out)
	}

	task, err := s.LoadTask("iter-1", "CR-001")
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if task.Rationale() != "keep it small" {
		t.Errorf("Rationale() = %q after edit", task.Rationale())
	}
}

func TestTaskDocument_ApplyAndMap(t *testing.T) {
	p := statetest.New(t)
	p.Task("iter-1", "CR-002", "id: CR-002\nstatus: pending\n")
	s := state.NewStore(p.Dir)

	doc, err := s.OpenTaskDocument("iter-1", "CR-002")
	if err != nil {
		t.Fatalf("OpenTaskDocument() error = %v", err)
	}
	rec, err := doc.Map()
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	rec["status"] = "rework"
	rec["review_result"] = map[string]any{"verdict": "REWORK"}
	if err := doc.Apply(rec); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := doc.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	task, err := s.LoadTask("iter-1", "CR-002")
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if task.Status != "rework" || task.Verdict() != "REWORK" {
		t.Errorf("task = %+v", task)
	}
}

func TestTaskDocument_RejectsNonMapping(t *testing.T) {
	p := statetest.New(t)
	p.Task("iter-1", "CR-003", "- just\n- a list\n")
	if _, err := state.NewStore(p.Dir).OpenTaskDocument("iter-1", "CR-003"); err == nil {
		t.Error("OpenTaskDocument() error = nil, want non-mapping error")
	}
}

package state_test

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/state/statetest"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

func TestStore_ResolveIteration(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)

	got, err := s.ResolveIteration("")
	if err != nil || got != "" {
		t.Errorf("ResolveIteration() without session = %q, %v; want empty", got, err)
	}

	p.Session("iter-2", "phase_1")
	if got, _ := s.ResolveIteration(""); got != "iter-2" {
		t.Errorf("ResolveIteration() = %q, want iter-2", got)
	}
	if got, _ := s.ResolveIteration("iter-5"); got != "iter-5" {
		t.Errorf("ResolveIteration(explicit) = %q, want iter-5", got)
	}
	if _, err := s.ResolveIteration("../x"); !errors.Is(err, state.ErrUnsafeID) {
		t.Errorf("ResolveIteration(unsafe) error = %v, want ErrUnsafeID", err)
	}

	p.WriteFile(".claude/dev-state/session-state.json", "{not json")
	got, err = s.ResolveIteration("")
	if err != nil || got != "" {
		t.Errorf("ResolveIteration() with malformed session = %q, %v; want empty, nil", got, err)
	}
}

func TestStore_LoadTasks(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)

	p.Task("iter-1", "CR-002", fmt.Sprintf(statetest.ValidTask, "CR-002", "pending"))
	p.Task("iter-1", "CR-001", "title: no id here\nstatus: PASS\n")
	p.Task("iter-1", "CR-003", "status: [broken\n")
	p.Task("iter-1", "CR-004", "")

	files, err := s.LoadTasks("iter-1")
	if err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("LoadTasks() returned %d files, want 4", len(files))
	}
	if files[0].Stem != "CR-001" || files[0].Task.ID != "CR-001" {
		t.Errorf("files[0] = %+v, want id defaulted from stem", files[0])
	}
	if files[1].Task.Rationale() != "reuse the existing router" {
		t.Errorf("files[1] rationale = %q", files[1].Task.Rationale())
	}
	if !errors.Is(files[2].Err, state.ErrMalformed) {
		t.Errorf("files[2].Err = %v, want ErrMalformed", files[2].Err)
	}
	if files[3].Task != nil || files[3].Err != nil {
		t.Errorf("files[3] = %+v, want empty document skipped", files[3])
	}

	tasks, err := s.Tasks("iter-1")
	if err != nil {
		t.Fatalf("Tasks() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("Tasks() returned %d tasks, want 2", len(tasks))
	}

	missing, err := s.LoadTasks("iter-9")
	if err != nil || len(missing) != 0 {
		t.Errorf("LoadTasks(missing) = %v, %v; want empty", missing, err)
	}
}

func TestStore_LoadTask(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)
	p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "ready_for_review"))

	task, err := s.LoadTask("iter-1", "CR-001")
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if task.Status != models.TaskStatusReadyForReview {
		t.Errorf("Status = %q, want ready_for_review", task.Status)
	}
	if _, err := s.LoadTask("iter-1", "CR-404"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("LoadTask(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListVerifyScriptsAndCheckpoints(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)
	p.Verify("iter-1", "CR-002", "")
	p.Verify("iter-1", "CR-001", "")
	p.WriteFile(".claude/dev-state/iter-1/verify/README.md", "")
	p.WriteFile(".claude/dev-state/iter-1/checkpoints/cp-002.md", "")
	p.WriteFile(".claude/dev-state/iter-1/checkpoints/cp-001.md", "")
	p.WriteFile(".claude/dev-state/iter-1/checkpoints/notes.md", "")

	scripts, err := s.ListVerifyScripts("iter-1")
	if err != nil {
		t.Fatalf("ListVerifyScripts() error = %v", err)
	}
	if !reflect.DeepEqual(scripts, []string{"CR-001", "CR-002"}) {
		t.Errorf("ListVerifyScripts() = %v", scripts)
	}

	cps, err := s.ListCheckpoints("iter-1")
	if err != nil {
		t.Fatalf("ListCheckpoints() error = %v", err)
	}
	if !reflect.DeepEqual(cps, []string{"cp-001.md", "cp-002.md"}) {
		t.Errorf("ListCheckpoints() = %v", cps)
	}
}

func TestStore_SetPhase_DualWrite(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)
	p.Manifest("iter-1", "phase_2")
	p.Session("iter-1", "phase_2")
	p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "PASS"))
	p.Task("iter-1", "CR-002", fmt.Sprintf(statetest.ValidTask, "CR-002", "rework"))

	if err := s.SetPhase("iter-1", models.Phase3); err != nil {
		t.Fatalf("SetPhase() error = %v", err)
	}

	manifest := p.ReadJSON(p.ManifestPath("iter-1"))
	if manifest["phase"] != "phase_3" {
		t.Errorf("manifest phase = %v, want phase_3", manifest["phase"])
	}
	if manifest["created_at"] != "2026-01-01T00:00:00Z" {
		t.Errorf("manifest created_at lost: %v", manifest)
	}

	st, err := s.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if st.CurrentPhase != models.Phase3 {
		t.Errorf("session phase = %q, want phase_3", st.CurrentPhase)
	}
	want := models.Progress{TotalTasks: 2, Completed: 1, Rework: 1}
	if st.Progress != want {
		t.Errorf("session progress = %+v, want %+v", st.Progress, want)
	}
	if st.LastUpdated == "" {
		t.Error("expected last_updated to be stamped")
	}
}

func TestStore_SetPhase_MalformedSessionIsSkipped(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)
	p.Manifest("iter-1", "phase_0")
	p.WriteFile(".claude/dev-state/session-state.json", "{oops")

	if err := s.SetPhase("iter-1", models.Phase1); err != nil {
		t.Fatalf("SetPhase() error = %v", err)
	}
	if got := p.ReadFile(p.SessionPath()); got != "{oops" {
		t.Errorf("malformed session was rewritten: %q", got)
	}
	if p.ReadJSON(p.ManifestPath("iter-1"))["phase"] != "phase_1" {
		t.Error("manifest phase not updated")
	}
}

func TestStore_SetPhase_ForeignTimestampStaysInSync(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)
	p.Manifest("iter-1", "phase_0")
	p.WriteJSON(p.SessionPath(), map[string]any{
		"session_id":        "s-1",
		"current_iteration": "iter-1",
		"current_phase":     "phase_0",
		"last_updated":      "2026-01-01T00:00:00.123456",
	})

	if got, err := s.ResolveIteration(""); err != nil || got != "iter-1" {
		t.Errorf("ResolveIteration() = %q, %v; want iter-1", got, err)
	}
	if err := s.SetPhase("iter-1", models.Phase1); err != nil {
		t.Fatalf("SetPhase() error = %v", err)
	}
	if p.ReadJSON(p.ManifestPath("iter-1"))["phase"] != "phase_1" {
		t.Error("manifest phase not updated")
	}
	st, err := s.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if st.CurrentPhase != models.Phase1 {
		t.Errorf("session phase = %q, want phase_1", st.CurrentPhase)
	}
}

func TestStore_SetPhase_MalformedManifestFails(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)
	p.WriteFile(".claude/dev-state/iter-1/manifest.json", "[1,2")

	err := s.SetPhase("iter-1", models.Phase1)
	if !errors.Is(err, state.ErrMalformed) {
		t.Errorf("SetPhase() error = %v, want ErrMalformed", err)
	}
}

func TestStore_BaselineRoundTrip(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)

	if _, err := s.LoadBaseline(); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("LoadBaseline() error = %v, want ErrNotFound", err)
	}

	b := &models.Baseline{Iteration: "iter-1", GitCommit: "abc123 init", LintClean: true}
	b.TestResults.L1Passed = 42
	if err := s.SaveBaseline(b); err != nil {
		t.Fatalf("SaveBaseline() error = %v", err)
	}
	if raw := p.ReadFile(p.BaselinePath()); !strings.Contains(raw, `"pre_existing_failures": []`) {
		t.Errorf("baseline.json = %s, want empty pre_existing_failures list", raw)
	}

	loaded, err := s.LoadBaseline()
	if err != nil {
		t.Fatalf("LoadBaseline() error = %v", err)
	}
	if loaded.TestResults.L1Passed != 42 || !loaded.LintClean {
		t.Errorf("loaded = %+v", loaded)
	}

	if err := s.ResetBaseline(); err != nil {
		t.Fatalf("ResetBaseline() error = %v", err)
	}
	if err := s.ResetBaseline(); err != nil {
		t.Errorf("second ResetBaseline() error = %v", err)
	}
}

func TestStore_LoadFeatureChecklist(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr error
	}{
		{"list", `[{"name":"login","status":"PASS"},{"id":"F2","status":"pending"}]`, 2, nil},
		{"wrapped", `{"features":[{"name":"login","status":"PASS"}]}`, 1, nil},
		{"malformed", `{"features": 3}`, 0, state.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := statetest.New(t)
			p.WriteFile(".claude/dev-state/feature-checklist.json", tt.content)
			got, err := state.NewStore(p.Dir).LoadFeatureChecklist()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("LoadFeatureChecklist() error = %v, want %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("LoadFeatureChecklist() returned %d features, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNewSessionState(t *testing.T) {
	a := state.NewSessionState("iter-0", models.Phase0)
	b := state.NewSessionState("iter-0", models.Phase0)
	if a.SessionID == "" || a.SessionID == b.SessionID {
		t.Errorf("session ids = %q, %q; want unique non-empty", a.SessionID, b.SessionID)
	}
}

func TestStore_AppendDecision(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)

	if err := s.AppendDecision("iter-1", "forced phase_2->phase_3: analyst away"); err != nil {
		t.Fatalf("AppendDecision() error = %v", err)
	}
	if err := s.AppendDecision("iter-1", "second entry"); err != nil {
		t.Fatalf("AppendDecision() error = %v", err)
	}
	got := s.ReadDecisions("iter-1")
	if strings.Count(got, "\n- ") != 2 || !strings.Contains(got, ": forced phase_2->phase_3: analyst away\n") {
		t.Errorf("decisions.md = %q", got)
	}
	if err := s.AppendDecision("../x", "nope"); !errors.Is(err, state.ErrUnsafeID) {
		t.Errorf("AppendDecision(unsafe) error = %v, want ErrUnsafeID", err)
	}
}

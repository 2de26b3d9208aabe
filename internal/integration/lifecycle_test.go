//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/ShayCichocki/phasegate/internal/config"
	"github.com/ShayCichocki/phasegate/internal/exec/exectest"
	"github.com/ShayCichocki/phasegate/internal/gates"
	"github.com/ShayCichocki/phasegate/internal/phase"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/session"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/state/statetest"
	"github.com/ShayCichocki/phasegate/internal/taskfield"
)

const verifyScript = `import subprocess

def main():
    result = subprocess.run(["curl", "-s", "localhost:8000/login"], capture_output=True)
    assert result.returncode == 0
    print("--- EVIDENCE_JSON ---")

if __name__ == "__main__":
    main()
`

const evidenceOutput = `login ok
--- EVIDENCE_JSON ---
{"tests": ["test_login"], "logs": [], "notes": "login returns 200"}
--- END_EVIDENCE ---
`

func transition(t *testing.T, m *phase.Machine, from, to string) *phase.Outcome {
	t.Helper()
	out, err := m.Transition(phase.Request{Iteration: "iter-1", From: from, To: to})
	if err != nil {
		t.Fatalf("Transition(%s->%s) error = %v", from, to, err)
	}
	return out
}

// TestIterationLifecycle walks one task from an empty iteration to a
// completed delivery.
func TestIterationLifecycle(t *testing.T) {
	ctx := context.Background()
	p := statetest.New(t)
	p.Manifest("iter-1", "phase_0")
	p.Session("iter-1", "phase_0")

	journal, err := state.OpenJournal(p.HistoryPath())
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}
	defer journal.Close()

	store := state.NewStore(p.Dir)
	rep := report.Discard()
	fake := exectest.NewFakeRunner()
	machine := phase.NewMachine(p.Dir, rep, phase.WithJournal(journal))
	engine := gates.NewEngine(p.Dir, config.Default(), fake, rep, gates.WithJournal(journal))
	manager := session.NewManager(p.Dir, config.Default(), rep, session.WithJournal(journal))

	if out := transition(t, machine, "phase_0", "phase_1"); !out.Allowed {
		t.Fatalf("phase_0->phase_1 blocked: %v", out.Violations)
	}

	if out := transition(t, machine, "phase_1", "phase_2"); out.Allowed {
		t.Fatal("phase_1->phase_2 allowed without requirement-spec.md")
	}
	p.WriteFile(".claude/dev-state/iter-1/requirement-spec.md", "# Login\n\nUsers log in with email and password.\n")
	if out := transition(t, machine, "phase_1", "phase_2"); !out.Allowed {
		t.Fatalf("phase_1->phase_2 blocked: %v", out.Violations)
	}

	p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "pending"))
	p.Verify("iter-1", "CR-001", verifyScript)
	if out := transition(t, machine, "phase_2", "phase_3"); !out.Allowed {
		t.Fatalf("phase_2->phase_3 blocked: %v", out.Violations)
	}

	if out := transition(t, machine, "phase_3", "phase_3.5"); out.Allowed {
		t.Fatal("phase_3->phase_3.5 allowed with a pending task")
	}
	fake.On("python3 "+p.VerifyScriptPath("iter-1", "CR-001"), exectest.Response{Output: evidenceOutput})
	res, err := engine.Run(ctx, gates.Gate3, gates.Request{Iteration: "iter-1", TaskID: "CR-001"})
	if err != nil || res != gates.Pass {
		t.Fatalf("Gate3 = %v, %v; want PASS", res, err)
	}
	if out := transition(t, machine, "phase_3", "phase_3.5"); !out.Allowed {
		t.Fatalf("phase_3->phase_3.5 blocked: %v", out.Violations)
	}
	if out := transition(t, machine, "phase_3.5", "phase_4"); !out.Allowed {
		t.Fatalf("phase_3.5->phase_4 blocked: %v", out.Violations)
	}

	if err := taskfield.Write(store, "iter-1", "CR-001", "review_result", `{"verdict":"PASS","issues":[]}`); err != nil {
		t.Fatalf("write review_result: %v", err)
	}
	if err := taskfield.Write(store, "iter-1", "CR-001", "status", "PASS"); err != nil {
		t.Fatalf("write status: %v", err)
	}
	if err := taskfield.Write(store, "iter-1", "CR-001", "acceptance_criteria", "[]"); err == nil {
		t.Fatal("acceptance_criteria should be protected")
	}
	if res, err := engine.Run(ctx, gates.Gate6, gates.Request{Iteration: "iter-1"}); err != nil || res != gates.Pass {
		t.Fatalf("Gate6 = %v, %v; want PASS", res, err)
	}
	if out := transition(t, machine, "phase_4", "phase_5"); !out.Allowed {
		t.Fatalf("phase_4->phase_5 blocked: %v", out.Violations)
	}

	if out, err := machine.CheckCompletion("iter-1"); err != nil || out.Allowed {
		t.Fatalf("CheckCompletion() before checkpoint = %+v, %v; want blocked", out, err)
	}
	if _, err := manager.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	if out, err := machine.CheckCompletion("iter-1"); err != nil || !out.Allowed {
		t.Fatalf("CheckCompletion() = %+v, %v; want allowed", out, err)
	}

	sess, err := store.LoadSession()
	if err != nil {
		t.Fatal(err)
	}
	if sess.CurrentPhase != "phase_5" || sess.Progress.Completed != 1 || sess.LastCheckpoint != "cp-001.md" {
		t.Errorf("session = %+v", sess)
	}

	entries, err := journal.Recent("iter-1", 50)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Kind+"/"+e.Verdict]++
	}
	if counts["phase/PASS"] != 6 || counts["phase/BLOCKED"] != 2 || counts["gate/PASS"] != 2 {
		t.Errorf("journal counts = %v", counts)
	}
}

// TestForcedTransitionIsAudited checks that a forced move leaves a trail in
// decisions.md and the journal, and that force never skips a phase.
func TestForcedTransitionIsAudited(t *testing.T) {
	p := statetest.New(t)
	p.Manifest("iter-1", "phase_3")
	p.Session("iter-1", "phase_3")
	p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "in_progress"))

	journal, err := state.OpenJournal(p.HistoryPath())
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()
	machine := phase.NewMachine(p.Dir, report.Discard(), phase.WithJournal(journal))

	out, err := machine.Transition(phase.Request{Iteration: "iter-1", From: "phase_3", To: "phase_5", Force: true, Reason: "demo"})
	if err != nil || out.Allowed {
		t.Fatalf("forced skip = %+v, %v; want blocked", out, err)
	}

	out, err = machine.Transition(phase.Request{Iteration: "iter-1", From: "phase_3", To: "phase_3.5", Force: true, Reason: "verifier offline"})
	if err != nil || !out.Allowed || !out.Forced {
		t.Fatalf("forced transition = %+v, %v", out, err)
	}
	if got := state.NewStore(p.Dir).ReadDecisions("iter-1"); got == "" {
		t.Error("decisions.md not written")
	}
	entries, _ := journal.Recent("iter-1", 10)
	if len(entries) != 2 || entries[0].Verdict != "FORCED" || entries[1].Verdict != "BLOCKED" {
		t.Errorf("journal = %+v", entries)
	}
}

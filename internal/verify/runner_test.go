package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ShayCichocki/phasegate/internal/config"
	"github.com/ShayCichocki/phasegate/internal/exec/exectest"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/state/statetest"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

const goodScript = `def main():
    assert True
    print("--- EVIDENCE_JSON ---")

if __name__ == "__main__":
    main()
`

func newProject(t *testing.T) (*statetest.Project, *exectest.FakeRunner, *Runner) {
	t.Helper()
	p := statetest.New(t)
	fake := exectest.NewFakeRunner()
	return p, fake, NewRunner(p.Dir, config.Default(), fake, report.Discard())
}

func taskStatus(t *testing.T, p *statetest.Project, id string) models.TaskStatus {
	t.Helper()
	task, err := state.NewStore(p.Dir).LoadTask("iter-1", id)
	if err != nil {
		t.Fatalf("LoadTask(%s) error = %v", id, err)
	}
	return task.Status
}

func TestRunner_Verify_Pass(t *testing.T) {
	p, fake, r := newProject(t)
	p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "ready_for_verify"))
	p.Verify("iter-1", "CR-001", goodScript)
	fake.On("python3 "+p.VerifyScriptPath("iter-1", "CR-001"), exectest.Response{
		Output: "ok\n--- EVIDENCE_JSON ---\n{\"http_status\": 200}\n--- END_EVIDENCE ---\n",
	})

	out, err := r.Verify(context.Background(), "iter-1", "CR-001")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !out.Passed {
		t.Fatalf("Passed = false, reason %q", out.Reason)
	}
	if out.Evidence["http_status"] != float64(200) {
		t.Errorf("Evidence = %v", out.Evidence)
	}
	if got := taskStatus(t, p, "CR-001"); got != models.TaskStatusReadyForReview {
		t.Errorf("status = %q, want ready_for_review", got)
	}
	calls := fake.Calls()
	if len(calls) != 1 || calls[0].WorkDir != p.Dir {
		t.Errorf("calls = %+v, want one run in the project dir", calls)
	}
	if calls[0].Timeout != config.Default().Timeouts.Verify {
		t.Errorf("timeout = %v", calls[0].Timeout)
	}
}

func TestRunner_Verify_FailSetsRework(t *testing.T) {
	p, fake, r := newProject(t)
	p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "ready_for_verify"))
	p.Verify("iter-1", "CR-001", goodScript)
	fake.On("python3 "+p.VerifyScriptPath("iter-1", "CR-001"), exectest.Response{Output: "AssertionError", ExitCode: 1})

	out, err := r.Verify(context.Background(), "iter-1", "CR-001")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if out.Passed || out.ExitCode != 1 {
		t.Errorf("outcome = %+v, want failed with exit 1", out)
	}
	if got := taskStatus(t, p, "CR-001"); got != models.TaskStatusRework {
		t.Errorf("status = %q, want rework", got)
	}
}

func TestRunner_Verify_TimeoutFails(t *testing.T) {
	p, fake, r := newProject(t)
	p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "ready_for_verify"))
	p.Verify("iter-1", "CR-001", goodScript)
	fake.On("python3", exectest.Response{TimedOut: true})

	out, err := r.Verify(context.Background(), "iter-1", "CR-001")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if out.Passed || !strings.Contains(out.Reason, "timed out") {
		t.Errorf("outcome = %+v, want timeout failure", out)
	}
	if got := taskStatus(t, p, "CR-001"); got != models.TaskStatusRework {
		t.Errorf("status = %q, want rework", got)
	}
}

func TestRunner_Verify_FailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		script string
		reason string
	}{
		{name: "missing script", reason: "missing"},
		{name: "placeholder", script: "def main():\n    raise NotImplementedError\n", reason: "1 placeholder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, fake, r := newProject(t)
			p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "ready_for_verify"))
			if tt.script != "" {
				p.Verify("iter-1", "CR-001", tt.script)
			}

			out, err := r.Verify(context.Background(), "iter-1", "CR-001")
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if out.Passed || !strings.Contains(out.Reason, tt.reason) {
				t.Errorf("outcome = %+v, want failure mentioning %q", out, tt.reason)
			}
			if n := len(fake.Calls()); n != 0 {
				t.Errorf("ran %d commands, want none", n)
			}
			if got := taskStatus(t, p, "CR-001"); got != models.TaskStatusReadyForVerify {
				t.Errorf("status = %q, want unchanged", got)
			}
		})
	}
}

func TestRunner_Verify_MissingTaskFileStillReports(t *testing.T) {
	p, _, r := newProject(t)
	p.Verify("iter-1", "CR-009", goodScript)

	out, err := r.Verify(context.Background(), "iter-1", "CR-009")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !out.Passed {
		t.Error("Passed = false, want true")
	}
}

func TestRunner_Verify_RejectsUnsafeIDs(t *testing.T) {
	_, _, r := newProject(t)
	if _, err := r.Verify(context.Background(), "../iter-1", "CR-001"); !errors.Is(err, state.ErrUnsafeID) {
		t.Errorf("error = %v, want ErrUnsafeID", err)
	}
	if _, err := r.Verify(context.Background(), "iter-1", "a/b"); !errors.Is(err, state.ErrUnsafeID) {
		t.Errorf("error = %v, want ErrUnsafeID", err)
	}
}

func TestRunner_VerifyAll(t *testing.T) {
	p, fake, r := newProject(t)
	for _, id := range []string{"CR-002", "CR-001"} {
		p.Task("iter-1", id, fmt.Sprintf(statetest.ValidTask, id, "ready_for_verify"))
		p.Verify("iter-1", id, goodScript)
	}
	fake.On("python3 "+p.VerifyScriptPath("iter-1", "CR-002"), exectest.Response{ExitCode: 1})

	outcomes, err := r.VerifyAll(context.Background(), "iter-1")
	if err != nil {
		t.Fatalf("VerifyAll() error = %v", err)
	}
	if len(outcomes) != 2 || outcomes[0].TaskID != "CR-001" || outcomes[1].TaskID != "CR-002" {
		t.Fatalf("outcomes = %+v, want CR-001 then CR-002", outcomes)
	}
	if !outcomes[0].Passed || outcomes[1].Passed {
		t.Errorf("passed = %v/%v, want true/false", outcomes[0].Passed, outcomes[1].Passed)
	}
	if AllPassed(outcomes) {
		t.Error("AllPassed() = true, want false")
	}
}

func TestRunner_VerifyAll_MissingDir(t *testing.T) {
	_, _, r := newProject(t)
	if _, err := r.VerifyAll(context.Background(), "iter-1"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRunner_DryRun(t *testing.T) {
	p, fake, r := newProject(t)
	p.Verify("iter-1", "CR-001", goodScript)
	p.Verify("iter-1", "CR-002", "def helper():\n    raise NotImplementedError\n")
	fake.On("python3 -m py_compile "+p.VerifyScriptPath("iter-1", "CR-002"), exectest.Response{
		Output: "SyntaxError: invalid syntax", ExitCode: 1,
	})

	ok, err := r.DryRun(context.Background(), "iter-1", "CR-001")
	if err != nil || !ok {
		t.Errorf("DryRun(CR-001) = %v, %v, want true", ok, err)
	}

	problems, err := r.dryRunOne(context.Background(), "iter-1", "CR-002")
	if err != nil {
		t.Fatalf("dryRunOne() error = %v", err)
	}
	if len(problems) != 4 {
		t.Errorf("problems = %q, want syntax, placeholder, main and evidence", problems)
	}

	ok, err = r.DryRun(context.Background(), "iter-1", "")
	if err != nil || ok {
		t.Errorf("DryRun(all) = %v, %v, want false", ok, err)
	}

	ok, _ = r.DryRun(context.Background(), "iter-1", "CR-404")
	if ok {
		t.Error("DryRun(missing script) = true, want false")
	}
}

func TestRunner_DryRun_NoScripts(t *testing.T) {
	p, _, r := newProject(t)
	ok, err := r.DryRun(context.Background(), "iter-1", "")
	if err != nil || ok {
		t.Errorf("DryRun(no dir) = %v, %v, want false", ok, err)
	}

	p.WriteFile(".claude/dev-state/iter-1/verify/README.md", "notes")
	ok, err = r.DryRun(context.Background(), "iter-1", "")
	if err != nil || !ok {
		t.Errorf("DryRun(empty dir) = %v, %v, want true", ok, err)
	}
}

func TestParseEvidence(t *testing.T) {
	tests := []struct {
		name   string
		output string
		ok     bool
	}{
		{name: "block", output: "x\n--- EVIDENCE_JSON ---\n{\"a\": 1}\n--- END_EVIDENCE ---\n", ok: true},
		{name: "no block", output: "all good"},
		{name: "unterminated", output: "--- EVIDENCE_JSON ---\n{\"a\": 1}"},
		{name: "not json", output: "--- EVIDENCE_JSON ---\nnope\n--- END_EVIDENCE ---"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseEvidence(tt.output)
			if ok != tt.ok {
				t.Errorf("ParseEvidence() ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}

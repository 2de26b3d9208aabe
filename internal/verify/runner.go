// Package verify runs the per-task acceptance scripts
// (<iteration>/verify/<task>.py) and records their outcome on the task.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ShayCichocki/phasegate/internal/config"
	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/exec"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/toolchain"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

// Script markers.
const (
	PlaceholderMarker = "raise NotImplementedError"
	EvidenceStart     = "--- EVIDENCE_JSON ---"
	EvidenceEnd       = "--- END_EVIDENCE ---"
	MainMarker        = "def main()"
	EvidenceMarker    = "EVIDENCE_JSON"
)

// Outcome is the result of running one verification script.
type Outcome struct {
	TaskID   string
	Passed   bool
	ExitCode int
	// Evidence is the parsed EVIDENCE_JSON block, if the script printed one.
	Evidence map[string]any
	// Reason explains a failure that happened before or instead of a run.
	Reason string
}

// Runner executes verification scripts with the project's interpreter.
type Runner struct {
	projectDir string
	cfg        *config.Config
	tc         toolchain.Toolchain
	cmd        exec.CommandRunner
	store      *state.Store
	rep        *report.Reporter
}

// NewRunner creates a verification runner for projectDir.
func NewRunner(projectDir string, cfg *config.Config, cmd exec.CommandRunner, rep *report.Reporter) *Runner {
	return &Runner{
		projectDir: projectDir,
		cfg:        cfg,
		tc:         toolchain.Resolve(projectDir, cfg),
		cmd:        cmd,
		store:      state.NewStore(projectDir),
		rep:        rep,
	}
}

// Verify runs the script for one task. A missing or placeholder script
// fails closed. On completion the task status becomes ready_for_review
// (exit 0) or rework.
func (r *Runner) Verify(ctx context.Context, iteration, taskID string) (*Outcome, error) {
	if err := state.ValidateSafeID(iteration, "iteration-id"); err != nil {
		return nil, err
	}
	if err := state.ValidateSafeID(taskID, "task-id"); err != nil {
		return nil, err
	}

	out := &Outcome{TaskID: taskID, ExitCode: -1}
	path := r.store.VerifyScriptPath(iteration, taskID)
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		out.Reason = fmt.Sprintf("verify script missing (%s)", path)
		r.rep.Item(report.Fail, "%s: %s", taskID, out.Reason)
		r.rep.Detail("every task needs its own verify script")
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read verify script: %w", err)
	}
	if n := strings.Count(string(content), PlaceholderMarker); n > 0 {
		out.Reason = fmt.Sprintf("verify script contains %d placeholder(s) %q", n, PlaceholderMarker)
		r.rep.Item(report.Fail, "%s: %s", taskID, out.Reason)
		return out, nil
	}

	argv, err := r.tc.PythonCommand(path)
	if err != nil {
		return nil, err
	}
	r.rep.Section("verify %s", taskID)
	r.rep.Info("script: %s", path)

	res, err := r.cmd.Run(ctx, r.projectDir, r.cfg.Timeouts.Verify, argv[0], argv[1:]...)
	switch {
	case err != nil:
		out.Reason = err.Error()
	case res.TimedOut:
		out.Reason = fmt.Sprintf("verify script timed out (>%s)", r.cfg.Timeouts.Verify)
	default:
		r.rep.Plain(res.String())
		out.ExitCode = res.ExitCode
		out.Passed = res.ExitCode == 0
		out.Evidence, _ = ParseEvidence(res.String())
	}
	if out.Reason != "" {
		r.rep.Item(report.Fail, "%s: %s", taskID, out.Reason)
	}
	debuglog.Printf("verify %s/%s exit=%d passed=%v", iteration, taskID, out.ExitCode, out.Passed)

	r.recordStatus(iteration, out)
	return out, nil
}

// recordStatus writes the handoff status (and evidence on success) back to
// the task record. Failures here are warnings; the verdict stands.
func (r *Runner) recordStatus(iteration string, out *Outcome) {
	status := models.TaskStatusRework
	level := report.Fail
	if out.Passed {
		status = models.TaskStatusReadyForReview
		level = report.Pass
	}
	r.rep.Item(level, "acceptance result: %s", out.TaskID)

	doc, err := r.store.OpenTaskDocument(iteration, out.TaskID)
	if errors.Is(err, state.ErrNotFound) {
		r.rep.Item(report.Warn, "task file missing, status not updated")
		return
	}
	if err != nil {
		r.rep.Item(report.Warn, "task status not updated: %v", err)
		return
	}
	if err := doc.Set("status", string(status)); err != nil {
		r.rep.Item(report.Warn, "task status not updated: %v", err)
		return
	}
	if out.Passed && out.Evidence != nil {
		if err := doc.Set("done_evidence", out.Evidence); err != nil {
			r.rep.Item(report.Warn, "done_evidence not recorded: %v", err)
		}
	}
	if err := doc.Save(); err != nil {
		r.rep.Item(report.Warn, "task status not updated: %v", err)
		return
	}
	r.rep.Info("task status: %s -> %s", out.TaskID, status)
}

// VerifyAll runs every script of the iteration in name order.
func (r *Runner) VerifyAll(ctx context.Context, iteration string) ([]*Outcome, error) {
	if err := state.ValidateSafeID(iteration, "iteration-id"); err != nil {
		return nil, err
	}
	if _, err := os.Stat(r.store.VerifyDir(iteration)); err != nil {
		return nil, fmt.Errorf("%s: %w", r.store.VerifyDir(iteration), state.ErrNotFound)
	}
	ids, err := r.store.ListVerifyScripts(iteration)
	if err != nil {
		return nil, err
	}
	r.rep.Info("running %d verify scripts", len(ids))

	outcomes := make([]*Outcome, 0, len(ids))
	for _, id := range ids {
		out, err := r.Verify(ctx, iteration, id)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out)
	}

	passed := 0
	for _, o := range outcomes {
		if o.Passed {
			passed++
		}
	}
	r.rep.Rule()
	for _, o := range outcomes {
		if o.Passed {
			r.rep.Item(report.Pass, "%s", o.TaskID)
		} else {
			r.rep.Item(report.Fail, "%s", o.TaskID)
		}
	}
	level := report.Pass
	if passed < len(outcomes) {
		level = report.Fail
	}
	r.rep.Verdict("verify", level, fmt.Sprintf("%d/%d PASS", passed, len(outcomes)))
	return outcomes, nil
}

// AllPassed reports whether every outcome passed.
func AllPassed(outcomes []*Outcome) bool {
	for _, o := range outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}

// DryRun checks scripts without running their acceptance logic: syntax,
// placeholders, a main() definition and the evidence marker. An empty
// taskID checks every script.
func (r *Runner) DryRun(ctx context.Context, iteration, taskID string) (bool, error) {
	if err := state.ValidateSafeID(iteration, "iteration-id"); err != nil {
		return false, err
	}
	dir := r.store.VerifyDir(iteration)
	if _, err := os.Stat(dir); err != nil {
		r.rep.Banner(report.Fail, "verify directory missing: %s", dir)
		return false, nil
	}

	ids := []string{taskID}
	if taskID == "" {
		var err error
		if ids, err = r.store.ListVerifyScripts(iteration); err != nil {
			return false, err
		}
		if len(ids) == 0 {
			r.rep.Banner(report.Warn, "no verify scripts to check")
			return true, nil
		}
	} else if err := state.ValidateSafeID(taskID, "task-id"); err != nil {
		return false, err
	}

	allPassed := true
	for _, id := range ids {
		problems, err := r.dryRunOne(ctx, iteration, id)
		if err != nil {
			return false, err
		}
		if len(problems) > 0 {
			allPassed = false
			r.rep.List(report.Fail, id+":", problems, 0)
			continue
		}
		r.rep.Item(report.Pass, "%s: dry-run checks passed", id)
	}
	return allPassed, nil
}

func (r *Runner) dryRunOne(ctx context.Context, iteration, id string) ([]string, error) {
	path := r.store.VerifyScriptPath(iteration, id)
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{"file does not exist"}, nil
	}
	if err != nil {
		return []string{fmt.Sprintf("cannot read: %v", err)}, nil
	}

	var problems []string
	if argv, err := r.tc.PythonCommand("-m", "py_compile", path); err == nil {
		res, err := r.cmd.Run(ctx, r.projectDir, r.cfg.Timeouts.Verify, argv[0], argv[1:]...)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("syntax check unavailable: %v", err))
		case !res.Success():
			problems = append(problems, "syntax error: "+strings.TrimSpace(res.String()))
		}
	}

	text := string(content)
	if n := strings.Count(text, PlaceholderMarker); n > 0 {
		problems = append(problems, fmt.Sprintf("contains %d %q placeholder(s)", n, PlaceholderMarker))
	}
	if !strings.Contains(text, MainMarker) {
		problems = append(problems, "missing main() definition")
	}
	if !strings.Contains(text, EvidenceMarker) {
		problems = append(problems, "missing EVIDENCE_JSON output marker")
	}
	return problems, nil
}

// ParseEvidence extracts the JSON object printed between the evidence
// delimiters.
func ParseEvidence(output string) (map[string]any, bool) {
	start := strings.Index(output, EvidenceStart)
	if start < 0 {
		return nil, false
	}
	rest := output[start+len(EvidenceStart):]
	end := strings.Index(rest, EvidenceEnd)
	if end < 0 {
		return nil, false
	}
	var evidence map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &evidence); err != nil {
		return nil, false
	}
	return evidence, true
}

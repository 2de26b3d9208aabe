package gates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"unicode/utf8"

	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
)

// requirement is Gate 1: the iteration must have a requirement spec.
func (e *Engine) requirement(_ context.Context, req *Request) (Result, string, error) {
	iter, err := e.resolveIteration(req)
	if err != nil {
		return Fail, "", err
	}
	if iter == "" {
		e.rep.Item(report.Skip, "no iteration id given and none in session state")
		e.rep.Detail("Gate 1 only checks that the requirement spec exists; confirm it manually")
		return Skip, "not a pass: iteration unknown, confirm the requirement spec manually", nil
	}

	path := e.store.RequirementSpecPath(iter)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		e.rep.Item(report.Fail, "requirement-spec.md missing: %s", path)
		e.rep.Detail("finish requirement deepening (phase 1) to produce it")
		return Fail, "", nil
	}
	if err != nil {
		return Fail, "", fmt.Errorf("read requirement spec: %w", err)
	}
	e.rep.Item(report.Pass, "requirement-spec.md present (%d chars)", utf8.RuneCount(data))
	return Pass, "needs human confirmation", nil
}

// taskPlan is Gate 2: structural validation of every task record plus a
// 1:1 task to verify-script match. Every violation is reported.
func (e *Engine) taskPlan(_ context.Context, req *Request) (Result, string, error) {
	iter, err := e.resolveIteration(req)
	if err != nil {
		return Fail, "", err
	}
	if iter == "" {
		e.rep.Item(report.Skip, "no iteration id given and none in session state")
		return Skip, "not a pass: iteration unknown", nil
	}

	sum, err := CheckPlan(e.store, iter)
	if err != nil {
		return Fail, "", err
	}
	if sum.Tasks > 0 {
		e.rep.Info("task files: %d", sum.Tasks)
		e.rep.Info("verify scripts: %d", sum.Scripts)
	}
	if violations := sum.Violations; len(violations) > 0 {
		e.rep.List(report.Fail, fmt.Sprintf("structural check found %d problem(s):", len(violations)), violations, 0)
		return Fail, "", nil
	}
	e.rep.Item(report.Pass, "structural check passed")
	return Pass, "needs human confirmation of the task split", nil
}

// PlanSummary is the outcome of the task-plan structural check.
type PlanSummary struct {
	Tasks      int
	Scripts    int
	Violations []string
}

// CheckPlan validates every task record of iter and matches each task to
// its verify script. Hotfix tasks only need the script.
func CheckPlan(store *state.Store, iter string) (*PlanSummary, error) {
	files, err := store.LoadTasks(iter)
	if err != nil {
		return nil, err
	}
	scripts, err := store.ListVerifyScripts(iter)
	if err != nil {
		return nil, err
	}
	hasScript := make(map[string]bool, len(scripts))
	for _, id := range scripts {
		hasScript[id] = true
	}

	sum := &PlanSummary{Tasks: len(files), Scripts: len(scripts)}
	if len(files) == 0 {
		sum.Violations = append(sum.Violations, "tasks directory empty or missing")
		return sum, nil
	}
	for _, tf := range files {
		if tf.Err != nil {
			sum.Violations = append(sum.Violations, fmt.Sprintf("%s: YAML parse failed", tf.Stem))
			continue
		}
		if tf.Task == nil {
			continue
		}
		sum.Violations = append(sum.Violations, tf.Task.PlanViolations()...)
		if !hasScript[tf.Task.ID] {
			sum.Violations = append(sum.Violations, fmt.Sprintf("%s: missing verify/%s.py", tf.Task.ID, tf.Task.ID))
		}
	}
	return sum, nil
}

package phase

import (
	"errors"
	"fmt"
	"os"

	"github.com/ShayCichocki/phasegate/internal/gates"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

// Checker returns the violations blocking a transition for iter. An empty
// list means the edge may be taken.
type Checker func(iter string) ([]string, error)

func (m *Machine) manifestExists(iter string) ([]string, error) {
	if _, err := os.Stat(m.store.ManifestPath(iter)); err != nil {
		return []string{"manifest.json missing, scaffold the iteration first"}, nil
	}
	return nil, nil
}

func (m *Machine) requirementSpecExists(iter string) ([]string, error) {
	if _, err := os.Stat(m.store.RequirementSpecPath(iter)); err != nil {
		return []string{"requirement-spec.md missing, requirement deepening is not finished"}, nil
	}
	return nil, nil
}

// planApproved guards phase_2 -> phase_3: an approved task plan, a verify
// script per task that asserts at runtime, and a manifest already at
// phase_2.
func (m *Machine) planApproved(iter string) ([]string, error) {
	plan, err := gates.CheckPlan(m.store, iter)
	if err != nil {
		return nil, err
	}
	violations := plan.Violations

	scripts, err := m.store.ListVerifyScripts(iter)
	if err != nil {
		return nil, err
	}
	for _, id := range scripts {
		content, err := os.ReadFile(m.store.VerifyScriptPath(iter, id))
		if err != nil {
			violations = append(violations, fmt.Sprintf("verify/%s.py: cannot read file", id))
			continue
		}
		if !m.heuristic.LooksLikeRealVerification(string(content)) {
			violations = append(violations, fmt.Sprintf(
				"verify/%s.py: no runtime assertion (needs at least one subprocess.run, assert or pytest call)", id))
		}
	}

	manifest, err := m.store.LoadManifest(iter)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return violations, nil
	case errors.Is(err, state.ErrMalformed):
		return append(violations, fmt.Sprintf("manifest.json unreadable: %v", err)), nil
	case err != nil:
		return nil, err
	}
	for _, problem := range models.ValidateManifest(manifest) {
		m.rep.Item(report.Warn, "manifest: %s", problem)
	}
	if phase, _ := manifest["phase"].(string); phase != string(models.Phase2) {
		violations = append(violations, fmt.Sprintf(
			"manifest.json phase=%v, expected phase_2; run the phase_1 -> phase_2 transition first", manifest["phase"]))
	}
	return violations, nil
}

// statusesReached returns a Checker requiring every non-hotfix task to be
// in one of allowed.
func (m *Machine) statusesReached(expected string, allowed ...models.TaskStatus) Checker {
	return func(iter string) ([]string, error) {
		if _, err := os.Stat(m.store.TasksDir(iter)); err != nil {
			return []string{"tasks directory missing"}, nil
		}
		files, err := m.store.LoadTasks(iter)
		if err != nil {
			return nil, err
		}
		var violations []string
		for _, tf := range files {
			if tf.Err != nil {
				violations = append(violations, fmt.Sprintf("%s.yaml: YAML parse failed: %v", tf.Stem, tf.Err))
				continue
			}
			if tf.Task == nil || tf.Task.IsHotfix() {
				continue
			}
			if status := tf.Task.EffectiveStatus(); !statusIn(status, allowed) {
				violations = append(violations, fmt.Sprintf("%s.yaml: status=%s, expected %s", tf.Stem, status, expected))
			}
		}
		return violations, nil
	}
}

// deliveryReady guards phase_4 -> phase_5. Hotfix tasks need PASS and
// done evidence but no review.
func (m *Machine) deliveryReady(iter string) ([]string, error) {
	if _, err := os.Stat(m.store.TasksDir(iter)); err != nil {
		return []string{"tasks directory missing"}, nil
	}
	files, err := m.store.LoadTasks(iter)
	if err != nil {
		return nil, err
	}
	var violations []string
	for _, tf := range files {
		if tf.Err != nil {
			violations = append(violations, fmt.Sprintf("%s.yaml: YAML parse failed: %v", tf.Stem, tf.Err))
			continue
		}
		t := tf.Task
		if t == nil {
			continue
		}
		kind := ""
		if t.IsHotfix() {
			kind = "hotfix "
		}
		if status := t.EffectiveStatus(); status != models.TaskStatusPass {
			violations = append(violations, fmt.Sprintf("%s: %sstatus=%s, expected PASS", t.ID, kind, status))
		}
		if !t.HasDoneEvidence() {
			violations = append(violations, fmt.Sprintf("%s: %sdone_evidence is empty (at least one of tests/logs/notes required)", t.ID, kind))
		}
		if !t.IsHotfix() && t.Verdict() == "" {
			violations = append(violations, fmt.Sprintf("%s: review_result is empty or has no verdict", t.ID))
		}
	}
	if scripts, err := m.store.ListVerifyScripts(iter); err != nil {
		return nil, err
	} else if len(scripts) == 0 {
		violations = append(violations, "verify directory is empty")
	}
	return violations, nil
}

// completionViolations checks end-of-iteration delivery readiness.
func (m *Machine) completionViolations(iter string) ([]string, error) {
	if _, err := os.Stat(m.store.TasksDir(iter)); err != nil {
		return []string{"tasks directory missing"}, nil
	}
	files, err := m.store.LoadTasks(iter)
	if err != nil {
		return nil, err
	}

	var violations []string
	if len(files) == 0 {
		violations = append(violations, "tasks directory is empty")
	}
	var tasks []*models.Task
	for _, tf := range files {
		if tf.Err != nil {
			violations = append(violations, fmt.Sprintf("%s.yaml: read/parse failed: %v", tf.Stem, tf.Err))
			continue
		}
		if tf.Task == nil {
			continue
		}
		tasks = append(tasks, tf.Task)
		if status := tf.Task.EffectiveStatus(); status != models.TaskStatusPass {
			violations = append(violations, fmt.Sprintf("%s: status=%s, expected PASS", tf.Task.ID, status))
		}
	}
	for _, t := range tasks {
		if !t.IsHotfix() && t.Verdict() != models.VerdictPass {
			violations = append(violations, fmt.Sprintf("%s: review_result.verdict is not PASS", t.ID))
		}
	}

	checkpoints, err := m.store.ListCheckpoints(iter)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		violations = append(violations, "checkpoints directory is empty, no progress snapshot")
	}
	scripts, err := m.store.ListVerifyScripts(iter)
	if err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		violations = append(violations, "verify directory is empty, no acceptance scripts")
	}
	return violations, nil
}

func statusIn(s models.TaskStatus, allowed []models.TaskStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

package state

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/phasegate/pkg/models"
)

// ErrUnsafeID is returned for identifiers that could escape the state root.
var ErrUnsafeID = errors.New("unsafe identifier")

// File names inside the state root.
const (
	SessionFile          = "session-state.json"
	BaselineFile         = "baseline.json"
	FeatureChecklistFile = "feature-checklist.json"
	HistoryFile          = "history.db"
	ManifestFile         = "manifest.json"
	RequirementSpecFile  = "requirement-spec.md"
	DecisionsFile        = "decisions.md"
	DebugLogFile         = "phasegate-debug.log"
)

// Layout maps logical state documents to paths under a project.
type Layout struct {
	ProjectDir string
}

// Root returns <project>/.claude/dev-state.
func (l Layout) Root() string {
	return filepath.Join(l.ProjectDir, filepath.FromSlash(models.StateDir))
}

// SessionPath returns the session-state.json path.
func (l Layout) SessionPath() string { return filepath.Join(l.Root(), SessionFile) }

// BaselinePath returns the baseline.json path.
func (l Layout) BaselinePath() string { return filepath.Join(l.Root(), BaselineFile) }

// FeatureChecklistPath returns the feature-checklist.json path.
func (l Layout) FeatureChecklistPath() string {
	return filepath.Join(l.Root(), FeatureChecklistFile)
}

// HistoryPath returns the journal database path.
func (l Layout) HistoryPath() string { return filepath.Join(l.Root(), HistoryFile) }

// DebugLogPath returns the debug log path.
func (l Layout) DebugLogPath() string { return filepath.Join(l.Root(), "logs", DebugLogFile) }

// IterationDir returns the directory of one iteration.
func (l Layout) IterationDir(iter string) string { return filepath.Join(l.Root(), iter) }

// ManifestPath returns <iter>/manifest.json.
func (l Layout) ManifestPath(iter string) string {
	return filepath.Join(l.IterationDir(iter), ManifestFile)
}

// RequirementSpecPath returns <iter>/requirement-spec.md.
func (l Layout) RequirementSpecPath(iter string) string {
	return filepath.Join(l.IterationDir(iter), RequirementSpecFile)
}

// DecisionsPath returns <iter>/decisions.md.
func (l Layout) DecisionsPath(iter string) string {
	return filepath.Join(l.IterationDir(iter), DecisionsFile)
}

// TasksDir returns <iter>/tasks.
func (l Layout) TasksDir(iter string) string { return filepath.Join(l.IterationDir(iter), "tasks") }

// TaskPath returns <iter>/tasks/<task>.yaml.
func (l Layout) TaskPath(iter, task string) string {
	return filepath.Join(l.TasksDir(iter), task+".yaml")
}

// VerifyDir returns <iter>/verify.
func (l Layout) VerifyDir(iter string) string { return filepath.Join(l.IterationDir(iter), "verify") }

// VerifyScriptPath returns <iter>/verify/<task>.py.
func (l Layout) VerifyScriptPath(iter, task string) string {
	return filepath.Join(l.VerifyDir(iter), task+".py")
}

// CheckpointsDir returns <iter>/checkpoints.
func (l Layout) CheckpointsDir(iter string) string {
	return filepath.Join(l.IterationDir(iter), "checkpoints")
}

// LedgerDir returns <iter>/ledger.
func (l Layout) LedgerDir(iter string) string { return filepath.Join(l.IterationDir(iter), "ledger") }

// ValidateSafeID rejects empty identifiers and identifiers containing path
// separators or "..". kind names the identifier in the error.
func ValidateSafeID(id, kind string) error {
	if id == "" {
		return fmt.Errorf("%s is empty: %w", kind, ErrUnsafeID)
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%s %q contains a path separator or '..': %w", kind, id, ErrUnsafeID)
	}
	return nil
}

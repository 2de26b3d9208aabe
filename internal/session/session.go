// Package session reports on and records the cross-conversation session
// state: status summaries, checkpoints, resume digests, team ledgers and the
// consecutive-failure counter of retry loops.
package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/phasegate/internal/config"
	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

var (
	// ErrNoIteration is returned when the session names no current iteration.
	ErrNoIteration = errors.New("session has no current iteration")
	// ErrSessionExists is returned by Init when session-state.json is present.
	ErrSessionExists = errors.New("session already initialized")
)

const (
	resumeCheckpointChars = 500
	resumeDecisionChars   = 300
	// decisions.md shorter than this holds only its header.
	minDecisionsChars = 50
	ledgerTitleChars  = 40
)

// Manager reads and updates session-state.json and the per-iteration
// checkpoint and ledger documents.
type Manager struct {
	store   *state.Store
	cfg     *config.Config
	rep     *report.Reporter
	journal state.Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal records run outcomes in the decision journal.
func WithJournal(j state.Recorder) Option {
	return func(m *Manager) { m.journal = j }
}

// WithStore replaces the state store, e.g. one with a fixed clock.
func WithStore(s *state.Store) Option {
	return func(m *Manager) { m.store = s }
}

// NewManager creates a session manager for projectDir.
func NewManager(projectDir string, cfg *config.Config, rep *report.Reporter, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Manager{
		store: state.NewStore(projectDir),
		cfg:   cfg,
		rep:   rep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) load() (*models.SessionState, error) {
	st, err := m.store.LoadSession()
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w (initialize the project first)", state.SessionFile, err)
	}
	return st, err
}

func (m *Manager) iteration(st *models.SessionState) (string, error) {
	if st.CurrentIteration == "" {
		return "", ErrNoIteration
	}
	if err := state.ValidateSafeID(st.CurrentIteration, "current_iteration"); err != nil {
		return "", err
	}
	return st.CurrentIteration, nil
}

// Init writes a fresh session-state.json for iter. The phase comes from the
// iteration manifest when it names a legal one, otherwise phase_0.
func (m *Manager) Init(iter string, force bool) (*models.SessionState, error) {
	if err := state.ValidateSafeID(iter, "iteration-id"); err != nil {
		return nil, err
	}
	if _, err := m.store.LoadSession(); err == nil && !force {
		return nil, fmt.Errorf("%s: %w (use --force to replace it)", state.SessionFile, ErrSessionExists)
	}

	phase := models.Phase0
	manifest, err := m.store.LoadManifest(iter)
	switch {
	case err == nil:
		if raw, ok := manifest["phase"].(string); ok {
			if p, perr := models.ParsePhase(raw); perr == nil {
				phase = p
			}
		}
	case !errors.Is(err, state.ErrNotFound):
		return nil, err
	}

	tasks, err := m.store.Tasks(iter)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}

	st := state.NewSessionState(iter, phase)
	st.Progress = models.TallyProgress(tasks)
	if err := m.store.SaveSession(st); err != nil {
		return nil, err
	}
	debuglog.Printf("session %s initialized iteration=%s phase=%s", st.SessionID, iter, phase)
	m.rep.Item(report.Pass, "session %s initialized at %s %s", st.SessionID, iter, phase)
	return st, nil
}

// Status prints the session summary and progress tally.
func (m *Manager) Status() error {
	st, err := m.load()
	if err != nil {
		return err
	}
	m.rep.Section("Session %s", orDash(st.SessionID))
	m.printState(st)

	p := st.Progress
	m.rep.Info("progress: %d/%d complete", p.Completed, p.TotalTasks)
	m.rep.Detail("in progress: %d", p.InProgress)
	m.rep.Detail("pending: %d", p.Pending)
	m.rep.Detail("ready for verify: %d", p.ReadyForVerify)
	m.rep.Detail("ready for review: %d", p.ReadyForReview)
	m.rep.Detail("rework: %d", p.Rework)
	if st.ConsecutiveFailures > 0 {
		m.rep.Item(report.Warn, "consecutive failures: %d/%d", st.ConsecutiveFailures, m.cfg.Session.MaxConsecutiveFailures)
	}
	return nil
}

func (m *Manager) printState(st *models.SessionState) {
	m.rep.Info("iteration: %s", orDash(st.CurrentIteration))
	m.rep.Info("phase: %s", orDash(string(st.CurrentPhase)))
	m.rep.Info("current task: %s", orDash(st.CurrentTask))
	m.rep.Info("last updated: %s", orDash(st.LastUpdated))
}

// Checkpoint writes the next <iter>/checkpoints/cp-NNN.md snapshot and
// points last_checkpoint at it. It returns the checkpoint path.
func (m *Manager) Checkpoint() (string, error) {
	st, err := m.load()
	if err != nil {
		return "", err
	}
	iter, err := m.iteration(st)
	if err != nil {
		return "", err
	}
	path, err := m.store.NextCheckpointPath(iter)
	if err != nil {
		return "", err
	}
	tasks, err := m.store.Tasks(iter)
	if err != nil {
		return "", err
	}

	name := strings.TrimSuffix(filepath.Base(path), ".md")
	now := m.store.Now().UTC()
	done := byStatus(tasks, models.TaskStatusPass)
	active := byStatus(tasks, models.TaskStatusInProgress)
	pending := byStatus(tasks, models.TaskStatusPending)

	var b strings.Builder
	fmt.Fprintf(&b, "# Checkpoint %s (%s)\n\n", name, now.Format(time.RFC3339))
	b.WriteString("## Current state\n")
	fmt.Fprintf(&b, "- iteration: %s\n", iter)
	fmt.Fprintf(&b, "- phase: %s\n", orDash(string(st.CurrentPhase)))
	fmt.Fprintf(&b, "- progress: %d/%d tasks complete\n", len(done), len(tasks))
	b.WriteString("\n## Completed\n")
	for _, t := range done {
		fmt.Fprintf(&b, "- %s: %s (PASS)\n", t.ID, orDash(t.Title))
	}
	b.WriteString("\n## In progress\n")
	for _, t := range active {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", t.ID, orDash(t.Title), orDash(t.Owner))
	}
	b.WriteString("\n## Pending\n")
	for _, t := range pending {
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, orDash(t.Title))
	}
	b.WriteString("\n## Next steps\n- (filled in by the leader)\n")

	if err := m.store.WriteText(path, b.String()); err != nil {
		return "", err
	}
	st.LastCheckpoint = name + ".md"
	if err := m.store.SaveSession(st); err != nil {
		return "", err
	}
	debuglog.Printf("[session] checkpoint %s written for %s", name, iter)
	m.rep.Item(report.Pass, "checkpoint written: %s", path)
	return path, nil
}

// Resume prints a digest for a fresh conversation: session state, the
// head of the latest checkpoint and the tail of the decision log.
func (m *Manager) Resume() error {
	st, err := m.store.LoadSession()
	if errors.Is(err, state.ErrNotFound) {
		m.rep.Info("no session state; this is a fresh session")
		return nil
	}
	if err != nil {
		return err
	}

	m.rep.Rule()
	m.rep.Info("session resume digest")
	m.rep.Rule()
	m.printState(st)
	m.rep.Info("progress: %d/%d tasks complete", st.Progress.Completed, st.Progress.TotalTasks)

	iter, err := m.iteration(st)
	if err != nil {
		return err
	}
	name, content, err := m.store.LatestCheckpoint(iter)
	switch {
	case errors.Is(err, state.ErrNotFound):
	case err != nil:
		return err
	default:
		m.rep.Section("Latest checkpoint %s", name)
		m.rep.Plain(head(content, resumeCheckpointChars) + "\n")
	}

	if decisions := m.store.ReadDecisions(iter); len(decisions) > minDecisionsChars {
		m.rep.Section("Key decisions")
		m.rep.Plain(tail(decisions, resumeDecisionChars) + "\n")
	}
	m.rep.Info("read the above before continuing work")
	return nil
}

// ledgerStatuses are the task states listed in a team ledger.
var ledgerStatuses = []models.TaskStatus{
	models.TaskStatusInProgress, models.TaskStatusReadyForVerify,
	models.TaskStatusReadyForReview, models.TaskStatusPass, models.TaskStatusRework,
}

// Ledger writes <iter>/ledger/session-YYYYMMDD-NN.md, a table of the
// tasks parallel agents are working on. It returns the ledger path.
func (m *Manager) Ledger() (string, error) {
	st, err := m.load()
	if err != nil {
		return "", err
	}
	iter, err := m.iteration(st)
	if err != nil {
		return "", err
	}
	now := m.store.Now().UTC()
	path, err := m.store.NextLedgerPath(iter, now)
	if err != nil {
		return "", err
	}
	tasks, err := m.store.Tasks(iter)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Session Ledger %s\n\n", strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "session-"), ".md"))
	b.WriteString("## Session\n")
	fmt.Fprintf(&b, "- iteration: %s\n", iter)
	fmt.Fprintf(&b, "- phase: %s\n", orDash(string(st.CurrentPhase)))
	fmt.Fprintf(&b, "- timestamp: %s\n\n", now.Format(time.RFC3339))
	b.WriteString("## Team tasks\n\n")
	b.WriteString("| Agent | Task | Status | Title |\n")
	b.WriteString("|-------|------|--------|-------|\n")
	for _, t := range tasks {
		if !containsStatus(ledgerStatuses, t.Status) {
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", orDash(t.Owner), t.ID, t.Status, head(orDash(t.Title), ledgerTitleChars))
	}
	b.WriteString("\n## Decisions\n- (filled in by the leader)\n")
	b.WriteString("\n## Next actions\n- (filled in by the leader)\n")

	if err := m.store.WriteText(path, b.String()); err != nil {
		return "", err
	}
	if err := m.store.SaveSession(st); err != nil {
		return "", err
	}
	m.rep.Item(report.Pass, "ledger written: %s", path)
	return path, nil
}

func byStatus(tasks []*models.Task, status models.TaskStatus) []*models.Task {
	var out []*models.Task
	for _, t := range tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func containsStatus(list []models.TaskStatus, s models.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

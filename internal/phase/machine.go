// Package phase implements the phase transition state machine: a table of
// per-edge precondition checkers over the fixed phase sequence plus a
// default rule for edges without a checker.
package phase

import (
	"errors"
	"fmt"
	"log"

	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

// ErrInvalidPhase is returned when --from or --to is not a legal phase.
var ErrInvalidPhase = errors.New("invalid phase")

// Journal verdicts for phase transitions.
const (
	verdictPass    = "PASS"
	verdictForced  = "FORCED"
	verdictBlocked = "BLOCKED"
)

type edge struct {
	from, to models.Phase
}

// Request describes one transition attempt.
type Request struct {
	Iteration string
	From      string
	To        string
	// Force bypasses failing preconditions of a registered edge. It never
	// bypasses the no-skip rule.
	Force bool
	// Reason is appended to decisions.md when Force is used.
	Reason string
}

// Outcome is the result of a transition or completion check.
type Outcome struct {
	Allowed    bool
	Forced     bool
	Violations []string
}

// ExitCode maps the outcome onto the process exit status.
func (o *Outcome) ExitCode() int {
	if o.Allowed {
		return 0
	}
	return 1
}

// Machine evaluates phase transitions for one project.
type Machine struct {
	store     *state.Store
	rep       *report.Reporter
	heuristic VerificationHeuristic
	journal   state.Recorder
	checkers  map[edge]Checker
}

// Option configures a Machine.
type Option func(*Machine)

// WithHeuristic replaces the verify-script quality heuristic.
func WithHeuristic(h VerificationHeuristic) Option {
	return func(m *Machine) { m.heuristic = h }
}

// WithJournal records every transition to r.
func WithJournal(r state.Recorder) Option {
	return func(m *Machine) { m.journal = r }
}

// NewMachine creates a state machine for projectDir.
func NewMachine(projectDir string, rep *report.Reporter, opts ...Option) *Machine {
	m := &Machine{
		store:     state.NewStore(projectDir),
		rep:       rep,
		heuristic: NewKeywordHeuristic(),
	}
	m.checkers = map[edge]Checker{
		{models.Phase0, models.Phase1}:   m.manifestExists,
		{models.Phase1, models.Phase2}:   m.requirementSpecExists,
		{models.Phase2, models.Phase3}:   m.planApproved,
		{models.Phase3, models.Phase3_5}: m.statusesReached("ready_for_verify or later", models.TaskStatusReadyForVerify, models.TaskStatusReadyForReview, models.TaskStatusPass),
		{models.Phase3_5, models.Phase4}: m.statusesReached("ready_for_review or PASS", models.TaskStatusReadyForReview, models.TaskStatusPass),
		{models.Phase4, models.Phase5}:   m.deliveryReady,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition checks whether the iteration may move From -> To and, when
// allowed, writes the new phase to the manifest and the session state.
func (m *Machine) Transition(req Request) (*Outcome, error) {
	if err := state.ValidateSafeID(req.Iteration, "iteration-id"); err != nil {
		return nil, err
	}
	from, to := models.Phase(req.From), models.Phase(req.To)
	label := fmt.Sprintf("%s->%s", req.From, req.To)

	checker, ok := m.checkers[edge{from, to}]
	if !ok {
		return m.defaultRule(req, from, to, label)
	}

	violations, err := checker(req.Iteration)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", label, err)
	}

	switch {
	case len(violations) > 0 && req.Force:
		m.rep.Banner(report.Force, "%s gate has %d problem(s), bypassed with --force:", label, len(violations))
		m.bullets(violations)
		m.rep.Plain("\n")
		m.rep.Banner(report.Warn, "the reason for bypassing this gate must be recorded in decisions.md")
		if req.Reason != "" {
			if err := m.store.AppendDecision(req.Iteration, fmt.Sprintf("forced %s: %s", label, req.Reason)); err != nil {
				log.Printf("[phase] warning: decisions.md not updated: %v", err)
			}
		}
		if err := m.store.SetPhase(req.Iteration, to); err != nil {
			return nil, err
		}
		m.record(req, label, verdictForced, violations)
		return &Outcome{Allowed: true, Forced: true, Violations: violations}, nil

	case len(violations) > 0:
		m.rep.Banner(report.Blocked, "%s transition blocked (%d problem(s)):", label, len(violations))
		m.bullets(violations)
		m.record(req, label, verdictBlocked, violations)
		return &Outcome{Violations: violations}, nil
	}

	m.rep.Banner(report.Pass, "%s gate passed", label)
	if err := m.store.SetPhase(req.Iteration, to); err != nil {
		return nil, err
	}
	m.record(req, label, verdictPass, nil)
	return &Outcome{Allowed: true}, nil
}

// defaultRule handles edges without a checker: backward moves and
// same-phase re-entry are allowed, forward jumps over a phase are blocked
// even with --force.
func (m *Machine) defaultRule(req Request, from, to models.Phase, label string) (*Outcome, error) {
	if _, err := models.ParsePhase(req.From); err != nil {
		return nil, fmt.Errorf("%w: --from: %v", ErrInvalidPhase, err)
	}
	if _, err := models.ParsePhase(req.To); err != nil {
		return nil, fmt.Errorf("%w: --to: %v", ErrInvalidPhase, err)
	}

	if to.Index() < from.Index() {
		m.rep.Banner(report.Pass, "%s: backward move, allowed", label)
		m.rep.Banner(report.Warn, "record the reason for going back in decisions.md")
		if err := m.store.SetPhase(req.Iteration, to); err != nil {
			return nil, err
		}
		m.record(req, label, verdictPass, nil)
		return &Outcome{Allowed: true}, nil
	}

	if to.Index()-from.Index() > 1 {
		next, _ := from.Next()
		violation := fmt.Sprintf("phases must advance one at a time, move to %s first", next)
		m.rep.Banner(report.Blocked, "%s: %s", label, violation)
		m.record(req, label, verdictBlocked, []string{violation})
		return &Outcome{Violations: []string{violation}}, nil
	}

	m.rep.Banner(report.Warn, "%s: no gate check registered, allowed", label)
	if err := m.store.SetPhase(req.Iteration, to); err != nil {
		return nil, err
	}
	m.record(req, label, verdictPass, nil)
	return &Outcome{Allowed: true}, nil
}

// CheckCompletion verifies end-of-iteration delivery readiness. It never
// mutates state.
func (m *Machine) CheckCompletion(iter string) (*Outcome, error) {
	if err := state.ValidateSafeID(iter, "iteration-id"); err != nil {
		return nil, err
	}
	violations, err := m.completionViolations(iter)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		m.rep.Banner(report.Blocked, "completion check failed (%d problem(s)):", len(violations))
		m.bullets(violations)
		return &Outcome{Violations: violations}, nil
	}
	m.rep.Banner(report.Pass, "completion check passed: every task PASS, reviews passed, checkpoints and verify scripts present")
	return &Outcome{Allowed: true}, nil
}

func (m *Machine) bullets(items []string) {
	for _, item := range items {
		m.rep.Plain(fmt.Sprintf("  - %s\n", item))
	}
}

func (m *Machine) record(req Request, label, verdict string, violations []string) {
	debuglog.Printf("phase %s iteration=%s verdict=%s violations=%d", label, req.Iteration, verdict, len(violations))
	if m.journal == nil {
		return
	}
	detail := fmt.Sprintf("%d violation(s)", len(violations))
	if req.Reason != "" {
		detail += "; reason: " + req.Reason
	}
	err := m.journal.Record(state.Entry{
		Kind:      state.KindPhase,
		Iteration: req.Iteration,
		Subject:   label,
		Verdict:   verdict,
		Detail:    detail,
	})
	if err != nil {
		log.Printf("[phase] warning: journal: %v", err)
	}
}

// Package gates implements the eight quality gates (Gate 0 to Gate 7) that
// guard progress through an iteration. Each gate prints a PASS/FAIL/WARN
// line per item and finishes with its aggregate verdict.
package gates

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/phasegate/internal/config"
	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/exec"
	"github.com/ShayCichocki/phasegate/internal/git"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/toolchain"
	"github.com/ShayCichocki/phasegate/internal/verify"
)

// ErrUnknownGate is returned for a gate name outside gate_0..gate_7.
var ErrUnknownGate = errors.New("unknown gate")

// Request carries the optional identifiers a gate may need.
type Request struct {
	Iteration string
	TaskID    string
}

// Verifier runs the acceptance script of one task.
type Verifier interface {
	Verify(ctx context.Context, iteration, taskID string) (*verify.Outcome, error)
}

type gateFunc func(ctx context.Context, req *Request) (Result, string, error)

type cacheKey struct {
	check      string
	projectDir string
}

// Engine evaluates gates for one project. Expensive checks shared between
// gates run at most once per Engine.
type Engine struct {
	projectDir string
	cfg        *config.Config
	tc         toolchain.Toolchain
	cmd        exec.CommandRunner
	git        git.Runner
	store      *state.Store
	verifier   Verifier
	journal    state.Recorder
	rep        *report.Reporter

	gates map[Gate]gateFunc
	cache map[cacheKey]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithVerifier replaces the Gate 3 delegate.
func WithVerifier(v Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithJournal records every verdict to r.
func WithJournal(r state.Recorder) Option {
	return func(e *Engine) { e.journal = r }
}

// WithGit replaces the git client.
func WithGit(g git.Runner) Option {
	return func(e *Engine) { e.git = g }
}

// NewEngine creates a gate engine for projectDir.
func NewEngine(projectDir string, cfg *config.Config, cmd exec.CommandRunner, rep *report.Reporter, opts ...Option) *Engine {
	e := &Engine{
		projectDir: projectDir,
		cfg:        cfg,
		tc:         toolchain.Resolve(projectDir, cfg),
		cmd:        cmd,
		git:        git.NewRunner(projectDir, cmd, cfg.Timeouts.Git),
		store:      state.NewStore(projectDir),
		rep:        rep,
		cache:      make(map[cacheKey]bool),
	}
	e.verifier = verify.NewRunner(projectDir, cfg, cmd, rep)
	e.gates = map[Gate]gateFunc{
		Gate0: e.environment,
		Gate1: e.requirement,
		Gate2: e.taskPlan,
		Gate3: e.acceptance,
		Gate4: e.regression,
		Gate5: e.integration,
		Gate6: e.codeReview,
		Gate7: e.final,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates one gate. Expected conditions (missing files, failing
// tools) become Fail or Skip; only unexpected I/O is returned as an error.
func (e *Engine) Run(ctx context.Context, g Gate, req Request) (Result, error) {
	fn, ok := e.gates[g]
	if !ok {
		return Fail, fmt.Errorf("%w: %q", ErrUnknownGate, g)
	}

	e.rep.Section("%s: %s", g.Label(), g.Title())
	res, note, err := fn(ctx, &req)
	if err != nil {
		return Fail, fmt.Errorf("%s: %w", g, err)
	}
	e.rep.Verdict(g.Label(), res.Level(), note)

	debuglog.Printf("gate %s iteration=%q task=%q result=%s", g, req.Iteration, req.TaskID, res)
	e.record(g, req, res, note)
	return res, nil
}

// RunAll evaluates every gate in order. Gate 3 is skipped without a task
// id. The returned bool is false iff a non-skipped gate failed.
func (e *Engine) RunAll(ctx context.Context, req Request) (bool, []Verdict, error) {
	verdicts := make([]Verdict, 0, len(Order))
	for _, g := range Order {
		if g == Gate3 && req.TaskID == "" {
			e.rep.Section("%s: %s", g.Label(), g.Title())
			e.rep.Item(report.Skip, "%s needs --task-id", g)
			verdicts = append(verdicts, Verdict{Gate: g, Result: Skip})
			continue
		}
		res, err := e.Run(ctx, g, req)
		if err != nil {
			return false, verdicts, err
		}
		verdicts = append(verdicts, Verdict{Gate: g, Result: res})
	}

	var passed, failed int
	var skipped []string
	for _, v := range verdicts {
		switch v.Result {
		case Pass:
			passed++
		case Skip:
			skipped = append(skipped, string(v.Gate))
		default:
			failed++
		}
	}

	e.rep.Rule()
	e.rep.Info("gate summary:")
	for _, v := range verdicts {
		e.rep.Item(v.Result.Level(), "%s", v.Gate)
	}
	if len(skipped) > 0 {
		e.rep.Info("note: skipped gates are not passes, confirm manually: %s", strings.Join(skipped, ", "))
	}
	ok := failed == 0
	e.rep.Verdict("All gates", resultOf(ok).Level(),
		fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, len(skipped)))
	return ok, verdicts, nil
}

// resolveIteration fills req.Iteration from the session when it is unset.
func (e *Engine) resolveIteration(req *Request) (string, error) {
	iter, err := e.store.ResolveIteration(req.Iteration)
	if err != nil {
		return "", err
	}
	req.Iteration = iter
	return iter, nil
}

func (e *Engine) record(g Gate, req Request, res Result, note string) {
	if e.journal == nil {
		return
	}
	err := e.journal.Record(state.Entry{
		Kind:      state.KindGate,
		Iteration: req.Iteration,
		Subject:   string(g),
		Verdict:   res.String(),
		Detail:    note,
	})
	if err != nil {
		log.Printf("[gates] warning: journal: %v", err)
	}
}

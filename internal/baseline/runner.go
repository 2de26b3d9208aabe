// Package baseline captures the regression floor: test counts per tier,
// lint cleanliness and the names of tests that were already failing.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/phasegate/internal/config"
	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/exec"
	"github.com/ShayCichocki/phasegate/internal/git"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/toolchain"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

// Runner executes the test tiers and linter once and records the outcome.
type Runner struct {
	projectDir string
	cfg        *config.Config
	tc         toolchain.Toolchain
	cmd        exec.CommandRunner
	git        git.Runner
	store      *state.Store
	rep        *report.Reporter
	now        func() time.Time
}

// NewRunner creates a baseline runner for projectDir.
func NewRunner(projectDir string, cfg *config.Config, cmd exec.CommandRunner, rep *report.Reporter) *Runner {
	return &Runner{
		projectDir: projectDir,
		cfg:        cfg,
		tc:         toolchain.Resolve(projectDir, cfg),
		cmd:        cmd,
		git:        git.NewRunner(projectDir, cmd, cfg.Timeouts.Git),
		store:      state.NewStore(projectDir),
		rep:        rep,
		now:        time.Now,
	}
}

// tierRun is the outcome of one test-tier invocation.
type tierRun struct {
	counts toolchain.Counts
	ran    bool
}

// Capture runs the suites, writes baseline.json and returns the snapshot.
func (r *Runner) Capture(ctx context.Context, iteration string) (*models.Baseline, error) {
	if err := state.ValidateSafeID(iteration, "iteration-id"); err != nil {
		return nil, err
	}
	if _, err := os.Stat(r.store.Root()); err != nil {
		return nil, fmt.Errorf("state root %s: %w", r.store.Root(), state.ErrNotFound)
	}

	r.rep.Section("Baseline %s", r.projectDir)
	r.rep.Info("toolchain: test_runner=%s", r.tc.TestRunner)

	b := &models.Baseline{
		Iteration:           iteration,
		Timestamp:           r.now().UTC().Format(time.RFC3339),
		GitCommit:           r.gitCommit(ctx),
		LintClean:           true,
		PreExistingFailures: []string{},
	}

	unitDir := r.cfg.UnitTestDir()
	r.rep.Info("[1/3] L1 unit tests (%s)", unitDir)
	l1 := r.runTier(ctx, "L1", unitDir)
	if !l1.ran {
		b.L1Note = fmt.Sprintf("N/A - test directory not found (%s)", unitDir)
	}

	integrationDir := r.cfg.Toolchain.IntegrationDir
	r.rep.Info("[2/3] L2 integration tests (%s)", integrationDir)
	l2 := r.runTier(ctx, "L2", integrationDir)

	r.rep.Info("[3/3] lint")
	b.LintClean = r.lintClean(ctx)

	b.TestResults = models.TestResults{
		L1Passed:  l1.counts.Passed,
		L1Failed:  l1.counts.Failed,
		L1Skipped: l1.counts.Skipped,
		L2Passed:  l2.counts.Passed,
		L2Failed:  l2.counts.Failed,
		L2Skipped: l2.counts.Skipped,
	}

	if l1.ran && l1.counts.Failed > 0 {
		b.PreExistingFailures = r.failingTests(ctx, unitDir)
	}

	if err := r.store.SaveBaseline(b); err != nil {
		return nil, err
	}

	r.rep.Rule()
	r.rep.Info("baseline recorded: %s", r.store.BaselinePath())
	r.rep.Info("L1: %d passed", b.TestResults.L1Passed)
	r.rep.Info("L2: %d passed", b.TestResults.L2Passed)
	r.rep.Info("lint: %s", cleanLabel(b.LintClean))
	if n := len(b.PreExistingFailures); n > 0 {
		r.rep.Info("pre-existing failures: %d", n)
	}
	return b, nil
}

func cleanLabel(clean bool) string {
	if clean {
		return "clean"
	}
	return "has problems"
}

// gitCommit returns the abbreviated HEAD hash, or "" when git fails.
func (r *Runner) gitCommit(ctx context.Context) string {
	head, err := r.git.ShortHead(ctx)
	if err != nil {
		r.rep.Item(report.Warn, "git log failed, commit not recorded: %v", err)
		return ""
	}
	fields := strings.Fields(head)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (r *Runner) runTier(ctx context.Context, tier, dir string) tierRun {
	if _, err := os.Stat(filepath.Join(r.projectDir, filepath.FromSlash(dir))); err != nil {
		r.rep.Item(report.Skip, "%s: no %s directory", tier, dir)
		return tierRun{}
	}
	argv, err := r.tc.TestCommand(dir, "-q", "--tb=no")
	if err != nil {
		r.rep.Item(report.Fail, "%s: %v", tier, err)
		return tierRun{ran: true}
	}
	res, err := r.cmd.Run(ctx, r.projectDir, r.cfg.Timeouts.Test, argv[0], argv[1:]...)
	if err != nil {
		r.rep.Item(report.Fail, "%s: %v", tier, err)
		return tierRun{ran: true}
	}
	if res.TimedOut {
		r.rep.Item(report.Fail, "%s: test run timed out (>%s)", tier, r.cfg.Timeouts.Test)
		return tierRun{ran: true}
	}
	counts := toolchain.ParseCounts(res.String())
	debuglog.Printf("baseline %s exit=%d counts=%+v", tier, res.ExitCode, counts)
	r.rep.Item(report.Pass, "%s: %d passed, %d failed, %d skipped", tier, counts.Passed, counts.Failed, counts.Skipped)
	return tierRun{counts: counts, ran: true}
}

// lintClean runs the linter. A missing linter leaves the baseline clean.
func (r *Runner) lintClean(ctx context.Context) bool {
	argv, err := r.tc.LintCommand()
	if err != nil {
		r.rep.Item(report.Warn, "lint: %v", err)
		return true
	}
	res, err := r.cmd.Run(ctx, r.projectDir, r.cfg.Timeouts.Lint, argv[0], argv[1:]...)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		r.rep.Item(report.Skip, "lint: tool not installed")
		return true
	case err != nil:
		r.rep.Item(report.Warn, "lint: %v", err)
		return true
	case !res.Success():
		r.rep.Item(report.Fail, "lint: has problems")
		return false
	default:
		r.rep.Item(report.Pass, "lint: clean")
		return true
	}
}

// failingTests reruns the unit tier with one-line tracebacks to collect the
// ids of failing tests.
func (r *Runner) failingTests(ctx context.Context, dir string) []string {
	argv, err := r.tc.TestCommand(dir, "-q", "--tb=line")
	if err != nil {
		return []string{}
	}
	res, err := r.cmd.Run(ctx, r.projectDir, r.cfg.Timeouts.Test, argv[0], argv[1:]...)
	if err != nil || res.TimedOut {
		r.rep.Item(report.Warn, "could not collect pre-existing failure names")
		return []string{}
	}
	names := toolchain.ParseFailedTests(res.String())
	if names == nil {
		return []string{}
	}
	return names
}

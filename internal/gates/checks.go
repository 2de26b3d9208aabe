package gates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/phasegate/internal/exec"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/toolchain"
)

// Names of the cached checks shared by Gates 4, 5 and 7.
const (
	checkL1   = "L1 regression"
	checkL2   = "L2 integration"
	checkMock = "mock compliance"
	checkLint = "lint"
)

// outputTail is how much test-runner output is echoed.
const outputTail = 300

// cached runs check once per (name, project) and replays the result after.
func (e *Engine) cached(name string, check func() (bool, error)) (bool, error) {
	key := cacheKey{check: name, projectDir: e.projectDir}
	if ok, hit := e.cache[key]; hit {
		e.rep.Info("%s: (cached result)", name)
		return ok, nil
	}
	e.rep.Info("%s...", name)
	ok, err := check()
	if err != nil {
		return false, err
	}
	e.cache[key] = ok
	return ok, nil
}

// l1Regression runs the unit tier and compares the pass count with the
// baseline. A drop in passed tests fails even when the run exits 0.
func (e *Engine) l1Regression(ctx context.Context) (bool, error) {
	return e.cached(checkL1, func() (bool, error) {
		argv, err := e.tc.TestCommand(e.cfg.UnitTestDir(), "-q", "--tb=no")
		if err != nil {
			e.rep.Item(report.Fail, "L1: %v", err)
			return false, nil
		}
		res, err := e.cmd.Run(ctx, e.projectDir, e.cfg.Timeouts.Test, argv[0], argv[1:]...)
		if err != nil {
			e.rep.Item(report.Fail, "L1: cannot run test runner: %v", err)
			return false, nil
		}
		if res.TimedOut {
			e.rep.Item(report.Fail, "L1: test run timed out (>%s)", e.cfg.Timeouts.Test)
			return false, nil
		}
		e.rep.Info("output: %s", tail(res.String(), outputTail))
		if res.ExitCode != 0 {
			e.rep.Item(report.Fail, "L1 tests have failures")
			return false, nil
		}

		current := toolchain.ParsePassed(res.String())
		b, err := e.store.LoadBaseline()
		switch {
		case errors.Is(err, state.ErrNotFound):
			e.rep.Item(report.Pass, "no baseline, only checked for failures (%d passed)", current)
			return true, nil
		case errors.Is(err, state.ErrMalformed):
			e.rep.Item(report.Fail, "baseline unreadable, regression floor unknown: %v", err)
			return false, nil
		case err != nil:
			return false, err
		}

		floor := b.TestResults.L1Passed
		e.rep.Info("baseline: %d passed", floor)
		e.rep.Info("current:  %d passed", current)
		if current < floor {
			e.rep.Item(report.Fail, "passed count dropped: %d < %d (tests may have been deleted)", current, floor)
			return false, nil
		}
		e.rep.Item(report.Pass, "no regression (baseline %d, current %d)", floor, current)
		return true, nil
	})
}

// l2Integration runs the integration tier when its directory exists.
func (e *Engine) l2Integration(ctx context.Context) (bool, error) {
	return e.cached(checkL2, func() (bool, error) {
		dir := e.cfg.Toolchain.IntegrationDir
		if _, err := os.Stat(filepath.Join(e.projectDir, filepath.FromSlash(dir))); err != nil {
			e.rep.Item(report.Skip, "no L2 test directory (%s)", dir)
			return true, nil
		}
		argv, err := e.tc.TestCommand(dir, "-q", "--tb=no")
		if err != nil {
			e.rep.Item(report.Fail, "L2: %v", err)
			return false, nil
		}
		res, err := e.cmd.Run(ctx, e.projectDir, e.cfg.Timeouts.Test, argv[0], argv[1:]...)
		switch {
		case err != nil:
			e.rep.Item(report.Fail, "L2: cannot run test runner: %v", err)
			return false, nil
		case res.TimedOut:
			e.rep.Item(report.Fail, "L2: test run timed out (>%s)", e.cfg.Timeouts.Test)
			return false, nil
		case res.ExitCode != 0:
			e.rep.Item(report.Fail, "L2 integration tests have failures")
			return false, nil
		}
		e.rep.Item(report.Pass, "L2 integration tests passed")
		return true, nil
	})
}

// lint runs the linter. A missing linter only fails when lint_required.
func (e *Engine) lint(ctx context.Context) (bool, error) {
	return e.cached(checkLint, func() (bool, error) {
		argv, err := e.tc.LintCommand()
		if err != nil {
			e.rep.Item(report.Fail, "lint: %v", err)
			return false, nil
		}
		res, err := e.cmd.Run(ctx, e.projectDir, e.cfg.Timeouts.Lint, argv[0], argv[1:]...)
		switch {
		case errors.Is(err, exec.ErrNotFound):
			if e.cfg.Toolchain.LintRequired {
				e.rep.Item(report.Fail, "lint tool not installed (lint_required=true)")
				return false, nil
			}
			e.rep.Item(report.Skip, "lint tool not installed (lint_required=false)")
			e.rep.Item(report.Warn, "lint was skipped, not passed")
			e.rep.Detail("configure toolchain.linter in %s, or set toolchain.lint_required=true", "run-config.yaml")
			return true, nil
		case err != nil:
			e.rep.Item(report.Fail, "lint: %v", err)
			return false, nil
		case res.TimedOut:
			e.rep.Item(report.Fail, "lint timed out (>%s)", e.cfg.Timeouts.Lint)
			return false, nil
		case res.ExitCode != 0:
			e.rep.Item(report.Fail, "lint reported problems")
			return false, nil
		}
		e.rep.Item(report.Pass, "lint clean")
		return true, nil
	})
}

// mockCompliance runs the mock-usage scan over the test tree.
func (e *Engine) mockCompliance() (bool, error) {
	return e.cached(checkMock, func() (bool, error) {
		violations, scanned, err := MockViolations(e.projectDir, e.cfg.Scan.TestDir, e.cfg.Scan.TestExtensions)
		if err != nil {
			return false, err
		}
		if !scanned {
			e.rep.Item(report.Skip, "no %s directory", e.cfg.Scan.TestDir)
			return true, nil
		}
		if len(violations) > 0 {
			e.rep.List(report.Fail, fmt.Sprintf("%d mock compliance problem(s):", len(violations)), violations, 10)
			return false, nil
		}
		e.rep.Item(report.Pass, "mock usage compliant (declarations complete, real tests exist)")
		return true, nil
	})
}

// sharedChecks runs the Gate 5 check set in order and stops at the first
// failure.
func (e *Engine) sharedChecks(ctx context.Context) (bool, string, error) {
	steps := []struct {
		name string
		run  func() (bool, error)
	}{
		{checkL1, func() (bool, error) { return e.l1Regression(ctx) }},
		{checkL2, func() (bool, error) { return e.l2Integration(ctx) }},
		{checkMock, e.mockCompliance},
		{checkLint, func() (bool, error) { return e.lint(ctx) }},
	}
	for _, s := range steps {
		ok, err := s.run()
		if err != nil {
			return false, s.name, err
		}
		if !ok {
			return false, s.name, nil
		}
	}
	return true, "", nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

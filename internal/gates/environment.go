package gates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
)

// environment is Gate 0. A dirty working tree only warns; the gate fails
// when the interpreter or the test runner is unavailable.
func (e *Engine) environment(ctx context.Context, _ *Request) (Result, string, error) {
	dirty, err := e.git.HasChanges(ctx)
	switch {
	case err != nil:
		e.rep.Item(report.Warn, "git status unavailable: %v", err)
	case !dirty:
		e.rep.Item(report.Pass, "git working tree clean")
	default:
		e.rep.Item(report.Warn, "git working tree has uncommitted changes")
	}

	pyOK, pyVersion := e.probe(ctx, e.tc.PythonCommand)
	if pyOK {
		e.rep.Item(report.Pass, "python: %s", pyVersion)
	} else {
		e.rep.Item(report.Fail, "python unavailable (%s): %s", e.tc.Python, pyVersion)
	}

	runnerOK, _ := e.probe(ctx, e.tc.RunnerCommand)
	e.rep.Item(resultOf(runnerOK).Level(), "test runner (via %s)", e.tc.TestRunner)

	b, err := e.store.LoadBaseline()
	switch {
	case err == nil && b.GitCommit == "":
		e.rep.Item(report.Warn, "baseline not captured yet (git_commit empty), run phasegate baseline capture")
	case errors.Is(err, state.ErrMalformed):
		e.rep.Item(report.Warn, "baseline unreadable: %v", err)
	}

	return resultOf(pyOK && runnerOK), "", nil
}

// probeTimeout bounds each "--version" availability check.
const probeTimeout = 30 * time.Second

// probe runs "<command> --version" and returns success and the trimmed
// output or failure reason.
func (e *Engine) probe(ctx context.Context, build func(extra ...string) ([]string, error)) (bool, string) {
	argv, err := build("--version")
	if err != nil {
		return false, err.Error()
	}
	res, err := e.cmd.Run(ctx, e.projectDir, probeTimeout, argv[0], argv[1:]...)
	if err != nil {
		return false, err.Error()
	}
	return res.Success(), strings.TrimSpace(res.String())
}

package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/phasegate/internal/exec"
)

// DefaultTimeout bounds every git invocation.
const DefaultTimeout = 30 * time.Second

// ExecRunner implements Runner by shelling out to git.
type ExecRunner struct {
	repoPath string
	runner   exec.CommandRunner
	timeout  time.Duration
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string, runner exec.CommandRunner, timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{repoPath: repoPath, runner: runner, timeout: timeout}
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	res, err := r.runner.Run(ctx, r.repoPath, r.timeout, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	if res.TimedOut {
		return "", fmt.Errorf("git %s: timed out after %s", strings.Join(args, " "), r.timeout)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git %s: exit status %d: %s", strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.String()))
	}
	return strings.TrimSpace(res.String()), nil
}

// Status returns the output of git status --porcelain.
func (r *ExecRunner) Status(ctx context.Context) (string, error) {
	return r.run(ctx, "status", "--porcelain")
}

// HasChanges returns true if there are uncommitted changes.
func (r *ExecRunner) HasChanges(ctx context.Context) (bool, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	return len(status) > 0, nil
}

// ShortHead returns the abbreviated hash and subject of HEAD.
func (r *ExecRunner) ShortHead(ctx context.Context) (string, error) {
	return r.run(ctx, "log", "--oneline", "-1")
}

// ChangedFiles returns a list of files changed since the base ref.
func (r *ExecRunner) ChangedFiles(ctx context.Context, base string) ([]string, error) {
	out, err := r.run(ctx, "diff", "--name-only", base)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

var _ Runner = (*ExecRunner)(nil)

// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested executable is not on PATH.
var ErrNotFound = errors.New("executable not found")

// Result is the outcome of a finished (or timed out) command.
type Result struct {
	// Output is combined stdout/stderr.
	Output []byte
	// ExitCode is the process exit status, or -1 when it did not exit normally.
	ExitCode int
	// TimedOut is set when the command was killed at its deadline.
	TimedOut bool
	// Duration is the wall time spent running.
	Duration time.Duration
}

// Success returns true if the command exited 0 before its deadline.
func (r *Result) Success() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// String returns the output as text.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	return string(r.Output)
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command bounded by timeout and returns its result.
	// A non-zero exit or a timeout is reported through Result, not err;
	// err is only set when the command could not be started.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, timeout time.Duration, name string, args ...string) (*Result, error)

	// LookPath resolves an executable name, returning ErrNotFound if absent.
	LookPath(name string) (string, error)
}

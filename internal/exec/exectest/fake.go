// Package exectest provides a scripted CommandRunner for tests.
package exectest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/phasegate/internal/exec"
)

// Response is the canned outcome for a matching command.
type Response struct {
	Output   string
	ExitCode int
	TimedOut bool
	Err      error
}

type rule struct {
	prefix   string
	response Response
}

// Call records one invocation of Run.
type Call struct {
	WorkDir string
	Timeout time.Duration
	Argv    []string
}

// Line returns the call as a space-joined command line.
func (c Call) Line() string {
	return strings.Join(c.Argv, " ")
}

// FakeRunner answers Run with the response of the longest registered
// command-line prefix. Unmatched commands exit 0 with no output.
type FakeRunner struct {
	mu      sync.Mutex
	rules   []rule
	missing map[string]bool
	calls   []Call
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{missing: make(map[string]bool)}
}

// On registers a response for commands whose line starts with prefix.
func (f *FakeRunner) On(prefix string, resp Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{prefix: prefix, response: resp})
	return f
}

// Missing marks executables that LookPath and Run should report as absent.
func (f *FakeRunner) Missing(names ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.missing[n] = true
	}
	return f
}

// Run implements exec.CommandRunner.
func (f *FakeRunner) Run(_ context.Context, workDir string, timeout time.Duration, name string, args ...string) (*exec.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	argv := append([]string{name}, args...)
	f.calls = append(f.calls, Call{WorkDir: workDir, Timeout: timeout, Argv: argv})
	if f.missing[name] {
		return nil, exec.ErrNotFound
	}

	line := strings.Join(argv, " ")
	var best *rule
	for i := range f.rules {
		r := &f.rules[i]
		if strings.HasPrefix(line, r.prefix) && (best == nil || len(r.prefix) > len(best.prefix)) {
			best = r
		}
	}
	if best == nil {
		return &exec.Result{}, nil
	}
	if best.response.Err != nil {
		return nil, best.response.Err
	}
	res := &exec.Result{
		Output:   []byte(best.response.Output),
		ExitCode: best.response.ExitCode,
		TimedOut: best.response.TimedOut,
	}
	if res.TimedOut {
		res.ExitCode = -1
	}
	return res, nil
}

// LookPath implements exec.CommandRunner.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", exec.ErrNotFound
	}
	return "/usr/bin/" + name, nil
}

// Calls returns a copy of every recorded invocation.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many recorded invocations start with prefix.
func (f *FakeRunner) Count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.Line(), prefix) {
			n++
		}
	}
	return n
}

var _ exec.CommandRunner = (*FakeRunner)(nil)

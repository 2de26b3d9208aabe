package gates

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
)

// acceptance is Gate 3. It needs an explicit iteration and task and fails
// closed without them.
func (e *Engine) acceptance(ctx context.Context, req *Request) (Result, string, error) {
	if req.Iteration == "" || req.TaskID == "" {
		e.rep.Item(report.Fail, "Gate 3 needs --iteration-id and --task-id")
		return Fail, "", nil
	}
	if err := state.ValidateSafeID(req.Iteration, "iteration-id"); err != nil {
		return Fail, "", err
	}
	out, err := e.verifier.Verify(ctx, req.Iteration, req.TaskID)
	if err != nil {
		return Fail, "", err
	}
	if !out.Passed && out.Reason != "" {
		return Fail, out.Reason, nil
	}
	return resultOf(out.Passed), "", nil
}

// regression is Gate 4.
func (e *Engine) regression(ctx context.Context, _ *Request) (Result, string, error) {
	ok, err := e.l1Regression(ctx)
	if err != nil {
		return Fail, "", err
	}
	return resultOf(ok), "", nil
}

// integration is Gate 5: the shared check set followed by a TODO/FIXME
// scan of the last commit that never fails the gate.
func (e *Engine) integration(ctx context.Context, _ *Request) (Result, string, error) {
	ok, failed, err := e.sharedChecks(ctx)
	if err != nil {
		return Fail, "", err
	}
	if !ok {
		return Fail, failed + " failed", nil
	}
	e.todoScan(ctx)
	return Pass, "", nil
}

// todoLimit caps the TODO/FIXME lines echoed by Gate 5.
const todoLimit = 10

func (e *Engine) todoScan(ctx context.Context) {
	e.rep.Info("TODO/FIXME scan...")
	changed, err := e.git.ChangedFiles(ctx, "HEAD~1")
	if err != nil {
		debuglog.Printf("todo scan: %v", err)
		changed = nil
	}

	var hits []string
	for _, name := range changed {
		if !hasExtension(name, e.cfg.Scan.TestExtensions) {
			continue
		}
		found, err := grepLines(filepath.Join(e.projectDir, filepath.FromSlash(name)), name, "TODO", "FIXME")
		if err != nil {
			continue
		}
		hits = append(hits, found...)
	}
	if len(hits) > 0 {
		e.rep.List(report.Warn, fmt.Sprintf("%d TODO/FIXME found:", len(hits)), hits, todoLimit)
		return
	}
	e.rep.Item(report.Pass, "no TODO/FIXME")
}

// grepLines returns "label:line: text" for every line of path containing
// any of the needles.
func grepLines(path, label string, needles ...string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hits []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		for _, needle := range needles {
			if strings.Contains(line, needle) {
				hits = append(hits, fmt.Sprintf("%s:%d: %s", label, n, strings.TrimSpace(line)))
				break
			}
		}
	}
	return hits, scanner.Err()
}

package gates

import (
	"context"
	"fmt"
	"os"

	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

// codeReview is Gate 6: every task handed to review must carry a PASS
// verdict. A REWORK verdict or a task still waiting for review fails.
func (e *Engine) codeReview(_ context.Context, req *Request) (Result, string, error) {
	iter, err := e.resolveIteration(req)
	if err != nil {
		return Fail, "", err
	}
	if iter == "" {
		e.rep.Item(report.Skip, "no iteration id given and none in session state")
		return Skip, "not a pass: iteration unknown, confirm code review manually", nil
	}
	if _, err := os.Stat(e.store.TasksDir(iter)); err != nil {
		e.rep.Item(report.Warn, "tasks directory missing: %s", e.store.TasksDir(iter))
		return Pass, "", nil
	}

	files, err := e.store.LoadTasks(iter)
	if err != nil {
		return Fail, "", err
	}
	if req.TaskID != "" {
		if err := state.ValidateSafeID(req.TaskID, "task-id"); err != nil {
			return Fail, "", err
		}
		files = onlyTask(files, req.TaskID)
	}

	var reviewed, pending int
	for _, tf := range files {
		if tf.Err != nil {
			e.rep.Item(report.Warn, "cannot parse %s: %v", tf.Stem, tf.Err)
			continue
		}
		t := tf.Task
		if t == nil {
			continue
		}
		status := t.EffectiveStatus()
		if status != models.TaskStatusReadyForReview && status != models.TaskStatusPass {
			continue
		}
		switch {
		case t.Verdict() == models.VerdictPass:
			e.rep.Item(report.Pass, "%s: reviewer passed", t.ID)
			reviewed++
		case t.Verdict() == models.VerdictRework:
			e.rep.Item(report.Fail, "%s: reviewer requested REWORK", t.ID)
			pending++
		case status == models.TaskStatusReadyForReview:
			e.rep.Item(report.Wait, "%s: waiting for review", t.ID)
			pending++
		}
	}

	if pending > 0 {
		return Fail, fmt.Sprintf("%d task(s) not through review", pending), nil
	}
	return Pass, fmt.Sprintf("%d task(s) reviewed", reviewed), nil
}

func onlyTask(files []state.TaskFile, id string) []state.TaskFile {
	for _, tf := range files {
		if tf.Stem == id {
			return []state.TaskFile{tf}
		}
	}
	return nil
}

package session

import (
	"fmt"
	"log"

	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
)

// RunResult is the counter state after a recorded run.
type RunResult struct {
	ConsecutiveFailures int
	Max                 int
}

// LimitReached reports whether the retry loop should stop.
func (r RunResult) LimitReached() bool {
	return r.Max > 0 && r.ConsecutiveFailures >= r.Max
}

// RecordRun updates consecutive_failures after one retry-loop round. A
// failed round or a round with no progress increments the counter; any
// other round resets it.
func (m *Manager) RecordRun(failed bool, progress int) (RunResult, error) {
	st, err := m.load()
	if err != nil {
		return RunResult{}, err
	}

	if failed || progress == 0 {
		st.ConsecutiveFailures++
	} else {
		st.ConsecutiveFailures = 0
	}
	if err := m.store.SaveSession(st); err != nil {
		return RunResult{}, err
	}

	res := RunResult{ConsecutiveFailures: st.ConsecutiveFailures, Max: m.cfg.Session.MaxConsecutiveFailures}
	verdict := "PASS"
	if failed || progress == 0 {
		verdict = "FAIL"
	}
	debuglog.Printf("[session] run recorded: failed=%v progress=%d consecutive_failures=%d", failed, progress, res.ConsecutiveFailures)
	m.record(st.CurrentIteration, verdict, fmt.Sprintf("progress=%d consecutive_failures=%d", progress, res.ConsecutiveFailures))

	if res.LimitReached() {
		m.rep.Item(report.Warn, "consecutive failures %d reached the limit of %d, stop the loop", res.ConsecutiveFailures, res.Max)
	} else {
		m.rep.Info("consecutive_failures -> %d", res.ConsecutiveFailures)
	}
	return res, nil
}

func (m *Manager) record(iter, verdict, detail string) {
	if m.journal == nil {
		return
	}
	err := m.journal.Record(state.Entry{
		Kind:      state.KindRun,
		Iteration: iter,
		Subject:   "run",
		Verdict:   verdict,
		Detail:    detail,
		At:        m.store.Now(),
	})
	if err != nil {
		log.Printf("[session] warning: journal: %v", err)
	}
}

// HistoryReader lists journal entries newest first.
type HistoryReader interface {
	Recent(iteration string, limit int) ([]state.Entry, error)
}

// PrintHistory prints up to limit journal entries for iter (all iterations
// when empty).
func PrintHistory(rep *report.Reporter, h HistoryReader, iter string, limit int) error {
	entries, err := h.Recent(iter, limit)
	if err != nil {
		return err
	}
	scope := iter
	if scope == "" {
		scope = "all iterations"
	}
	rep.Section("History (%s)", scope)
	if len(entries) == 0 {
		rep.Info("no entries")
		return nil
	}
	for _, e := range entries {
		line := e.At.Local().Format("2006-01-02 15:04:05") + "  " + e.Kind + "  " + e.Subject
		if e.Iteration != "" {
			line += "  [" + e.Iteration + "]"
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		rep.Item(historyLevel(e.Verdict), "%s", line)
	}
	rep.Info("%d entries shown", len(entries))
	return nil
}

func historyLevel(verdict string) report.Level {
	switch verdict {
	case "PASS":
		return report.Pass
	case "FAIL":
		return report.Fail
	case "SKIP":
		return report.Skip
	case "BLOCKED":
		return report.Blocked
	case "FORCED":
		return report.Force
	default:
		return report.Warn
	}
}

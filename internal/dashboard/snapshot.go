// Package dashboard renders a live terminal view of session state and the
// current iteration's task records, refreshed when files under the state
// root change.
package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

// TaskRow is one line of the task table.
type TaskRow struct {
	ID      string
	Title   string
	Status  string
	Owner   string
	Step    string
	Verdict string
	Problem string
}

// Snapshot is everything the dashboard shows at one point in time.
type Snapshot struct {
	Session   *models.SessionState
	Iteration string
	Tasks     []TaskRow
	// Problems lists non-fatal load issues such as unparseable task files.
	Problems []string
	LoadedAt time.Time
	Err      error
}

// LoadSnapshot reads session state and the current iteration's tasks.
func LoadSnapshot(store *state.Store) Snapshot {
	snap := Snapshot{LoadedAt: store.Now()}

	st, err := store.LoadSession()
	switch {
	case errors.Is(err, state.ErrNotFound):
		snap.Err = fmt.Errorf("no %s yet", state.SessionFile)
		return snap
	case err != nil:
		snap.Err = err
		return snap
	}
	snap.Session = st
	snap.Iteration = st.CurrentIteration
	if snap.Iteration == "" {
		return snap
	}

	files, err := store.LoadTasks(snap.Iteration)
	if err != nil {
		snap.Err = err
		return snap
	}
	for _, tf := range files {
		switch {
		case tf.Err != nil:
			snap.Problems = append(snap.Problems, tf.Err.Error())
			snap.Tasks = append(snap.Tasks, TaskRow{ID: tf.Stem, Status: "?", Problem: "parse failed"})
		case tf.Task != nil:
			t := tf.Task
			snap.Tasks = append(snap.Tasks, TaskRow{
				ID:      t.ID,
				Title:   t.Title,
				Status:  string(t.EffectiveStatus()),
				Owner:   t.Owner,
				Step:    t.CurrentStep,
				Verdict: t.Verdict(),
			})
		}
	}
	return snap
}

// Progress tallies the snapshot's task rows.
func (s Snapshot) Progress() (done, total int) {
	for _, r := range s.Tasks {
		if r.Status == string(models.TaskStatusPass) {
			done++
		}
	}
	return done, len(s.Tasks)
}

// Package state reads and writes the file-based project state: session
// state, baseline, iteration manifests and task records under
// .claude/dev-state, plus an SQLite journal of gate and phase decisions.
package state

// Recorder accepts journal entries.
type Recorder interface {
	Record(e Entry) error
}

// Compile-time verification that Journal implements Recorder.
var _ Recorder = (*Journal)(nil)

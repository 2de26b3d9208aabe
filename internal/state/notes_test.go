package state_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/state/statetest"
)

func TestStore_Checkpoints(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)

	if _, _, err := s.LatestCheckpoint("iter-1"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("LatestCheckpoint() error = %v, want ErrNotFound", err)
	}

	for i, want := range []string{"cp-001.md", "cp-002.md"} {
		path, err := s.NextCheckpointPath("iter-1")
		if err != nil {
			t.Fatalf("NextCheckpointPath() error = %v", err)
		}
		if filepath.Base(path) != want {
			t.Errorf("checkpoint %d = %s, want %s", i, filepath.Base(path), want)
		}
		if err := s.WriteText(path, "# "+want+"\n"); err != nil {
			t.Fatalf("WriteText() error = %v", err)
		}
	}

	name, content, err := s.LatestCheckpoint("iter-1")
	if err != nil {
		t.Fatalf("LatestCheckpoint() error = %v", err)
	}
	if name != "cp-002.md" || content != "# cp-002.md\n" {
		t.Errorf("LatestCheckpoint() = %q, %q", name, content)
	}
	if _, err := s.NextCheckpointPath("a/b"); !errors.Is(err, state.ErrUnsafeID) {
		t.Errorf("NextCheckpointPath(unsafe) error = %v, want ErrUnsafeID", err)
	}
}

func TestStore_NextLedgerPath(t *testing.T) {
	p := statetest.New(t)
	s := state.NewStore(p.Dir)
	day := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	first, err := s.NextLedgerPath("iter-1", day)
	if err != nil {
		t.Fatalf("NextLedgerPath() error = %v", err)
	}
	if filepath.Base(first) != "session-20260309-01.md" {
		t.Errorf("first ledger = %s", filepath.Base(first))
	}
	p.WriteFile(".claude/dev-state/iter-1/ledger/session-20260308-01.md", "older day")
	if err := s.WriteText(first, "x"); err != nil {
		t.Fatal(err)
	}

	second, _ := s.NextLedgerPath("iter-1", day)
	if filepath.Base(second) != "session-20260309-02.md" {
		t.Errorf("second ledger = %s", filepath.Base(second))
	}
}

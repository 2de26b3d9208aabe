package dashboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/state/statetest"
)

func TestLoadSnapshot(t *testing.T) {
	p := statetest.New(t)
	store := state.NewStore(p.Dir)

	if snap := LoadSnapshot(store); snap.Err == nil || !strings.Contains(snap.Err.Error(), state.SessionFile) {
		t.Errorf("LoadSnapshot() without session Err = %v", snap.Err)
	}

	p.Session("iter-1", "phase_3")
	p.Task("iter-1", "CR-001", "id: CR-001\ntitle: login form\nstatus: PASS\nreview_result:\n  verdict: PASS\n")
	p.Task("iter-1", "CR-002", "id: CR-002\ntitle: audit log\nowner: dev-2\ncurrent_step: coding\n")
	p.Task("iter-1", "CR-003", "status: [broken\n")

	snap := LoadSnapshot(store)
	if snap.Err != nil {
		t.Fatalf("LoadSnapshot() Err = %v", snap.Err)
	}
	if snap.Iteration != "iter-1" || len(snap.Tasks) != 3 || len(snap.Problems) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	want := []TaskRow{
		{ID: "CR-001", Title: "login form", Status: "PASS", Verdict: "PASS"},
		{ID: "CR-002", Title: "audit log", Status: "pending", Owner: "dev-2", Step: "coding"},
		{ID: "CR-003", Status: "?", Problem: "parse failed"},
	}
	for i, w := range want {
		if snap.Tasks[i] != w {
			t.Errorf("Tasks[%d] = %+v, want %+v", i, snap.Tasks[i], w)
		}
	}
	if done, total := snap.Progress(); done != 1 || total != 3 {
		t.Errorf("Progress() = %d/%d, want 1/3", done, total)
	}
}

func TestModel_View(t *testing.T) {
	p := statetest.New(t)
	p.Session("iter-1", "phase_3")
	p.Task("iter-1", "CR-001", "id: CR-001\ntitle: login form\nstatus: rework\nowner: dev-1\n")
	store := state.NewStore(p.Dir)

	m := NewModel(store, nil)
	if !strings.Contains(m.View(), "loading") {
		t.Errorf("initial view = %q", m.View())
	}

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m.Update(snapshotMsg(LoadSnapshot(store)))
	view := m.View()
	for _, want := range []string{"iter-1", "phase_3", "0/1", "CR-001", "rework", "login form"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_ViewError(t *testing.T) {
	p := statetest.New(t)
	m := NewModel(state.NewStore(p.Dir), nil)
	m.Update(snapshotMsg(LoadSnapshot(state.NewStore(p.Dir))))
	if !strings.Contains(m.View(), "no session-state.json yet") {
		t.Errorf("view = %q", m.View())
	}
}

func TestModel_Keys(t *testing.T) {
	p := statetest.New(t)
	m := NewModel(state.NewStore(p.Dir), nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("r returned no command")
	}
	if _, ok := cmd().(snapshotMsg); !ok {
		t.Error("r did not reload")
	}
}

func TestModel_ChangeTriggersReload(t *testing.T) {
	p := statetest.New(t)
	changes := make(chan struct{}, 1)
	m := NewModel(state.NewStore(p.Dir), changes)

	_, cmd := m.Update(changedMsg{})
	if cmd == nil {
		t.Fatal("changedMsg returned no command")
	}

	wait := m.waitForChange()
	changes <- struct{}{}
	if _, ok := wait().(changedMsg); !ok {
		t.Error("waitForChange did not report the change")
	}
	close(changes)
	if msg := m.waitForChange()(); msg != nil {
		t.Errorf("closed channel msg = %v, want nil", msg)
	}
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{path: "/p/.claude/dev-state/session-state.json", want: false},
		{path: "/p/.claude/dev-state/iter-1/tasks/CR-001.yaml", want: false},
		{path: "/p/.claude/dev-state/history.db", want: true},
		{path: "/p/.claude/dev-state/history.db-wal", want: true},
		{path: "/p/.claude/dev-state/logs", want: true},
		{path: "/p/.claude/dev-state/logs/phasegate-debug.log", want: true},
		{path: "/p/.claude/dev-state/session-state.json.tmp.123", want: true},
	}
	for _, tt := range tests {
		if got := ignored(tt.path); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcher_SignalsTaskChanges(t *testing.T) {
	root := t.TempDir()
	tasks := filepath.Join(root, "iter-1", "tasks")
	if err := os.MkdirAll(tasks, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(root)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "history.db"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.Changes():
		t.Fatal("journal write should be ignored")
	case <-time.After(300 * time.Millisecond):
	}

	for i := 1; i <= 2; i++ {
		name := filepath.Join(tasks, fmt.Sprintf("CR-%03d.yaml", i))
		if err := os.WriteFile(name, []byte("id: x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case <-w.Changes():
		case <-time.After(5 * time.Second):
			t.Fatalf("no change signalled for %s", name)
		}
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewWatcher_MissingRoot(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("NewWatcher() on missing root succeeded")
	}
}

package git

import (
	"context"
	"reflect"
	"testing"

	"github.com/ShayCichocki/phasegate/internal/exec/exectest"
)

func TestExecRunner_ChangedFiles(t *testing.T) {
	fake := exectest.NewFakeRunner().
		On("git diff --name-only HEAD~1", exectest.Response{Output: "app/a.py\napp/b.py\n"})
	r := NewRunner(t.TempDir(), fake, 0)

	got, err := r.ChangedFiles(context.Background(), "HEAD~1")
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	want := []string{"app/a.py", "app/b.py"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ChangedFiles() = %v, want %v", got, want)
	}
	if calls := fake.Calls(); calls[0].Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", calls[0].Timeout, DefaultTimeout)
	}
}

func TestExecRunner_Errors(t *testing.T) {
	tests := []struct {
		name string
		resp exectest.Response
	}{
		{"non-zero exit", exectest.Response{Output: "fatal: not a git repository", ExitCode: 128}},
		{"timeout", exectest.Response{TimedOut: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := exectest.NewFakeRunner().On("git status", tt.resp)
			r := NewRunner(t.TempDir(), fake, 0)
			if _, err := r.HasChanges(context.Background()); err == nil {
				t.Error("HasChanges() error = nil, want error")
			}
		})
	}
}

func TestExecRunner_HasChanges(t *testing.T) {
	fake := exectest.NewFakeRunner().On("git status --porcelain", exectest.Response{Output: " M app.py\n"})
	r := NewRunner(t.TempDir(), fake, 0)
	dirty, err := r.HasChanges(context.Background())
	if err != nil || !dirty {
		t.Errorf("HasChanges() = %v, %v; want true, nil", dirty, err)
	}
}

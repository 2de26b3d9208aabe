package taskfield

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/state/statetest"
)

func TestUpdateField_ProtectedFieldsAlwaysRejected(t *testing.T) {
	for field := range ProtectedFields {
		for _, value := range []string{"", "x", `{"tests":[],"logs":[],"notes":[]}`, "PASS"} {
			if _, err := UpdateField(map[string]any{}, field, value); !errors.Is(err, ErrProtectedField) {
				t.Errorf("UpdateField(%s, %q) error = %v, want ErrProtectedField", field, value, err)
			}
		}
	}
}

func TestUpdateField_Whitelist(t *testing.T) {
	tests := []struct {
		field string
		raw   string
		want  any
	}{
		{field: "status", raw: "ready_for_review", want: "ready_for_review"},
		{field: "status", raw: "PASS", want: "PASS"},
		{field: "current_step", raw: "self_check", want: "self_check"},
		{
			field: "done_evidence",
			raw:   `{"tests":["test_api.py::test_ok"],"logs":[],"notes":"green"}`,
			want:  map[string]any{"tests": []any{"test_api.py::test_ok"}, "logs": []any{}, "notes": "green"},
		},
		{field: "review_result", raw: `{"verdict":"PASS"}`, want: map[string]any{"verdict": "PASS"}},
		{field: "notes", raw: "first note", want: "first note"},
	}
	for _, tt := range tests {
		t.Run(tt.field+"="+tt.raw, func(t *testing.T) {
			record := map[string]any{"id": "CR-001"}
			got, err := UpdateField(record, tt.field, tt.raw)
			if err != nil {
				t.Fatalf("UpdateField() error = %v", err)
			}
			if !reflect.DeepEqual(got[tt.field], tt.want) {
				t.Errorf("%s = %#v, want %#v", tt.field, got[tt.field], tt.want)
			}
			if got["id"] != "CR-001" {
				t.Errorf("id lost: %v", got)
			}
			if _, touched := record[tt.field]; touched {
				t.Error("input record was mutated")
			}
		})
	}
}

func TestUpdateField_InvalidValues(t *testing.T) {
	tests := []struct {
		field string
		raw   string
		err   error
	}{
		{field: "status", raw: "in_progress", err: ErrInvalidValue},
		{field: "status", raw: "pass", err: ErrInvalidValue},
		{field: "current_step", raw: "napping", err: ErrInvalidValue},
		{field: "done_evidence", raw: `{"tests":[]}`, err: ErrInvalidValue},
		{field: "done_evidence", raw: `["tests"]`, err: ErrInvalidValue},
		{field: "review_result", raw: `not json`, err: ErrInvalidValue},
		{field: "owner", raw: "dev", err: ErrFieldNotWritable},
		{field: "title", raw: "x", err: ErrFieldNotWritable},
	}
	for _, tt := range tests {
		t.Run(tt.field+"="+tt.raw, func(t *testing.T) {
			if _, err := UpdateField(map[string]any{}, tt.field, tt.raw); !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestUpdateField_NotesAppend(t *testing.T) {
	tests := []struct {
		name     string
		existing any
		want     any
	}{
		{name: "absent", existing: nil, want: "new"},
		{name: "string", existing: "old", want: "old\nnew"},
		{name: "list", existing: []any{"a", "b"}, want: []any{"a", "b", "new"}},
		{name: "other", existing: 42, want: []any{42, "new"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := map[string]any{}
			if tt.existing != nil {
				record["notes"] = tt.existing
			}
			got, err := UpdateField(record, "notes", "new")
			if err != nil {
				t.Fatalf("UpdateField() error = %v", err)
			}
			if !reflect.DeepEqual(got["notes"], tt.want) {
				t.Errorf("notes = %#v, want %#v", got["notes"], tt.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	p := statetest.New(t)
	p.Task("iter-1", "CR-001", fmt.Sprintf(statetest.ValidTask, "CR-001", "ready_for_verify"))
	store := state.NewStore(p.Dir)

	if err := Write(store, "iter-1", "CR-001", "status", "ready_for_review"); err != nil {
		t.Fatalf("Write(status) error = %v", err)
	}
	if err := Write(store, "iter-1", "CR-001", "notes", "first"); err != nil {
		t.Fatalf("Write(notes) error = %v", err)
	}
	if err := Write(store, "iter-1", "CR-001", "notes", "second"); err != nil {
		t.Fatalf("Write(notes) error = %v", err)
	}

	task, err := store.LoadTask("iter-1", "CR-001")
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if task.Status != "ready_for_review" {
		t.Errorf("status = %q", task.Status)
	}
	if task.Notes != "first\nsecond" {
		t.Errorf("notes = %#v, want both notes", task.Notes)
	}
	if task.Rationale() != "reuse the existing router" {
		t.Errorf("design changed: %q", task.Rationale())
	}

	content := p.ReadFile(p.TaskPath("iter-1", "CR-001"))
	if strings.Index(content, "id: CR-001") > strings.Index(content, "status:") {
		t.Errorf("key order changed:\n%s", content)
	}

	if err := Write(store, "iter-1", "CR-001", "design", "{}"); !errors.Is(err, ErrProtectedField) {
		t.Errorf("Write(design) error = %v, want ErrProtectedField", err)
	}
	if err := Write(store, "iter-1", "CR-404", "status", "PASS"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("Write(missing task) error = %v, want ErrNotFound", err)
	}
	if err := Write(store, "iter-1", "../CR-001", "status", "PASS"); !errors.Is(err, state.ErrUnsafeID) {
		t.Errorf("Write(unsafe id) error = %v, want ErrUnsafeID", err)
	}
}

// Package statetest builds on-disk project fixtures for tests.
package statetest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/phasegate/internal/state"
)

// Project is a temporary project directory with helpers to populate its
// state root.
type Project struct {
	t   *testing.T
	Dir string
	state.Layout
}

// New creates an empty project in t.TempDir().
func New(t *testing.T) *Project {
	t.Helper()
	dir := t.TempDir()
	return &Project{t: t, Dir: dir, Layout: state.Layout{ProjectDir: dir}}
}

// WriteFile writes content to a project-relative path.
func (p *Project) WriteFile(rel, content string) string {
	p.t.Helper()
	path := filepath.Join(p.Dir, filepath.FromSlash(rel))
	p.write(path, content)
	return path
}

// WriteJSON writes v as JSON to an absolute path.
func (p *Project) WriteJSON(path string, v any) {
	p.t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		p.t.Fatalf("encode %s: %v", path, err)
	}
	p.write(path, string(data))
}

// Manifest writes <iter>/manifest.json with the given phase.
func (p *Project) Manifest(iter, phase string) {
	p.t.Helper()
	p.WriteJSON(p.ManifestPath(iter), map[string]any{
		"id":         iter,
		"mode":       "iterate",
		"status":     "active",
		"created_at": "2026-01-01T00:00:00Z",
		"phase":      phase,
	})
}

// Session writes session-state.json.
func (p *Project) Session(iter, phase string) {
	p.t.Helper()
	p.WriteJSON(p.SessionPath(), map[string]any{
		"session_id":        "test-session",
		"current_iteration": iter,
		"current_phase":     phase,
		"current_task":      "",
		"progress":          map[string]any{"total_tasks": 0},
		"last_checkpoint":   "",
	})
}

// Task writes <iter>/tasks/<id>.yaml verbatim.
func (p *Project) Task(iter, id, yamlBody string) {
	p.t.Helper()
	p.write(p.TaskPath(iter, id), yamlBody)
}

// Verify writes <iter>/verify/<id>.py.
func (p *Project) Verify(iter, id, body string) {
	p.t.Helper()
	p.write(p.VerifyScriptPath(iter, id), body)
}

// ReadFile returns the content of an absolute path.
func (p *Project) ReadFile(path string) string {
	p.t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		p.t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// ReadJSON decodes an absolute path into a generic map.
func (p *Project) ReadJSON(path string) map[string]any {
	p.t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(p.ReadFile(path)), &m); err != nil {
		p.t.Fatalf("decode %s: %v", path, err)
	}
	return m
}

func (p *Project) write(path, content string) {
	p.t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		p.t.Fatalf("write %s: %v", path, err)
	}
}

// ValidTask is a normal task that satisfies every structural rule.
const ValidTask = `id: %s
title: add endpoint
status: %s
acceptance_criteria:
  functional:
    - id: AC-1
      desc: returns 200
      status: pending
design:
  why_this_approach: reuse the existing router
affected_files:
  - app/api.py
`

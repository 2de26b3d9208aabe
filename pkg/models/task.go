package models

import (
	"fmt"
	"strings"
)

// TaskStatus represents the current state of a task record.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates a developer is working on the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusReadyForVerify indicates the change awaits acceptance verification.
	TaskStatusReadyForVerify TaskStatus = "ready_for_verify"
	// TaskStatusReadyForReview indicates verification passed and review is pending.
	TaskStatusReadyForReview TaskStatus = "ready_for_review"
	// TaskStatusRework indicates verification or review sent the task back.
	TaskStatusRework TaskStatus = "rework"
	// TaskStatusPass indicates the task is delivered.
	TaskStatusPass TaskStatus = "PASS"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusBlocked indicates the task cannot proceed.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusTimeout indicates the task exceeded its time allowance.
	TaskStatusTimeout TaskStatus = "timeout"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusReadyForVerify,
		TaskStatusReadyForReview, TaskStatusRework, TaskStatusPass,
		TaskStatusFailed, TaskStatusBlocked, TaskStatusTimeout:
		return true
	default:
		return false
	}
}

// TaskTypeHotfix marks a task that takes the fast lane past structural checks.
const TaskTypeHotfix = "hotfix"

// MaxAffectedFiles is the largest affected_files list a normal task may carry.
const MaxAffectedFiles = 5

// CriteriaDimensions lists the acceptance-criteria groups in display order.
var CriteriaDimensions = []string{
	"functional", "robustness", "performance",
	"ux_states", "ux_interaction", "security", "observability",
}

// Verdict values written by the reviewer role.
const (
	VerdictPass   = "PASS"
	VerdictRework = "REWORK"
)

// Task is a change record ("CR") loaded from <iteration>/tasks/<id>.yaml.
// Loosely shaped fields stay untyped so malformed records can be reported
// instead of failing to decode.
type Task struct {
	// ID is the task identifier, e.g. CR-001.
	ID string `yaml:"id"`
	// Title is the short description of the change.
	Title string `yaml:"title,omitempty"`
	// Type is empty for normal tasks or "hotfix".
	Type string `yaml:"type,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `yaml:"status,omitempty"`
	// Owner is the role or agent currently holding the task.
	Owner string `yaml:"owner,omitempty"`
	// CurrentStep tracks developer progress inside a task.
	CurrentStep string `yaml:"current_step,omitempty"`
	// AcceptanceCriteria maps dimension name to a list of {id, desc, status}.
	AcceptanceCriteria any `yaml:"acceptance_criteria,omitempty"`
	// Design carries the design rationale (why_this_approach).
	Design any `yaml:"design,omitempty"`
	// AffectedFiles lists the files the change may touch.
	AffectedFiles []any `yaml:"affected_files,omitempty"`
	// Depends lists task ids this task waits on.
	Depends any `yaml:"depends,omitempty"`
	// DoneEvidence holds tests/logs/notes proof attached on verification.
	DoneEvidence any `yaml:"done_evidence,omitempty"`
	// ReviewResult holds the reviewer verdict and issues.
	ReviewResult any `yaml:"review_result,omitempty"`
	// Notes is free-form, append-only commentary.
	Notes any `yaml:"notes,omitempty"`
}

// Criterion is a single acceptance criterion.
type Criterion struct {
	Dimension string
	ID        string
	Desc      string
	Status    string
}

// IsHotfix reports whether the task is a hotfix.
func (t *Task) IsHotfix() bool {
	return t.Type == TaskTypeHotfix
}

// EffectiveStatus returns the status, defaulting to pending.
func (t *Task) EffectiveStatus() TaskStatus {
	if t.Status == "" {
		return TaskStatusPending
	}
	return t.Status
}

// FunctionalCriteriaCount returns the number of functional criteria and
// whether acceptance_criteria is dimension-shaped at all.
func (t *Task) FunctionalCriteriaCount() (int, bool) {
	groups, ok := asMap(t.AcceptanceCriteria)
	if !ok {
		return 0, false
	}
	list, _ := groups["functional"].([]any)
	return len(list), true
}

// Criteria flattens acceptance criteria in dimension order.
func (t *Task) Criteria() []Criterion {
	groups, ok := asMap(t.AcceptanceCriteria)
	if !ok {
		return nil
	}
	var out []Criterion
	for _, dim := range CriteriaDimensions {
		list, _ := groups[dim].([]any)
		for i, item := range list {
			c := Criterion{Dimension: dim, ID: fmt.Sprintf("%s-AC%d", t.ID, i+1)}
			if m, ok := asMap(item); ok {
				if id := stringOf(m["id"]); id != "" {
					c.ID = id
				}
				c.Desc = stringOf(m["desc"])
				c.Status = stringOf(m["status"])
			} else {
				c.Desc = stringOf(item)
			}
			out = append(out, c)
		}
	}
	return out
}

// Rationale returns design.why_this_approach, trimmed.
func (t *Task) Rationale() string {
	design, ok := asMap(t.Design)
	if !ok {
		return ""
	}
	return strings.TrimSpace(stringOf(design["why_this_approach"]))
}

// HasDoneEvidence reports whether at least one of tests/logs/notes is populated.
func (t *Task) HasDoneEvidence() bool {
	evidence, ok := asMap(t.DoneEvidence)
	if !ok {
		return false
	}
	for _, key := range []string{"tests", "logs", "notes"} {
		if !isEmpty(evidence[key]) {
			return true
		}
	}
	return false
}

// Verdict returns review_result.verdict, or "" when there is none.
func (t *Task) Verdict() string {
	review, ok := asMap(t.ReviewResult)
	if !ok {
		return ""
	}
	return stringOf(review["verdict"])
}

// PlanViolations returns the structural problems that block task-plan
// approval. Hotfix tasks are exempt.
func (t *Task) PlanViolations() []string {
	if t.IsHotfix() {
		return nil
	}
	var violations []string
	if n := len(t.AffectedFiles); n > MaxAffectedFiles {
		violations = append(violations, fmt.Sprintf("%s: affected_files=%d > %d", t.ID, n, MaxAffectedFiles))
	}
	count, shaped := t.FunctionalCriteriaCount()
	switch {
	case !shaped:
		violations = append(violations, fmt.Sprintf("%s: acceptance_criteria missing or malformed (dimension map required)", t.ID))
	case count < 1:
		violations = append(violations, fmt.Sprintf("%s: acceptance_criteria.functional is empty", t.ID))
	}
	if t.Rationale() == "" {
		violations = append(violations, fmt.Sprintf("%s: design is missing why_this_approach", t.ID))
	}
	return violations
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case bool:
		return !val
	default:
		return false
	}
}

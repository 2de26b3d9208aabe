// Package taskfield is the restricted writer agent roles use to update a
// task record. Only whitelisted handoff fields can be written; structural
// fields are protected.
package taskfield

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/phasegate/internal/state"
)

var (
	// ErrProtectedField is returned for structural fields no role may write.
	ErrProtectedField = errors.New("protected field")
	// ErrFieldNotWritable is returned for fields outside the whitelist.
	ErrFieldNotWritable = errors.New("field not writable")
	// ErrInvalidValue is returned when a writable field gets a bad value.
	ErrInvalidValue = errors.New("invalid value")
)

// Field policies.
var (
	ProtectedFields = set("id", "type", "design", "affected_files", "acceptance_criteria", "depends")
	WritableFields  = set("status", "done_evidence", "review_result", "notes", "current_step")

	// HandoffStatuses is deliberately narrower than the full status enum.
	HandoffStatuses = set("ready_for_review", "rework", "PASS")
	ProgressSteps   = set("reading_code", "coding", "self_check", "testing", "regression", "committing", "ready_for_verify")

	doneEvidenceKeys = []string{"tests", "logs", "notes"}
)

// UpdateField validates field and raw and returns a copy of record with the
// update applied. Notes are appended, never replaced.
func UpdateField(record map[string]any, field, raw string) (map[string]any, error) {
	if ProtectedFields[field] {
		return nil, fmt.Errorf("%w: %q cannot be written by agent roles", ErrProtectedField, field)
	}
	if !WritableFields[field] {
		return nil, fmt.Errorf("%w: %q (allowed: %s)", ErrFieldNotWritable, field, keys(WritableFields))
	}

	out := make(map[string]any, len(record)+1)
	for k, v := range record {
		out[k] = v
	}

	switch field {
	case "status":
		if !HandoffStatuses[raw] {
			return nil, fmt.Errorf("%w: status %q (allowed: %s)", ErrInvalidValue, raw, keys(HandoffStatuses))
		}
		out[field] = raw
	case "current_step":
		if !ProgressSteps[raw] {
			return nil, fmt.Errorf("%w: current_step %q (allowed: %s)", ErrInvalidValue, raw, keys(ProgressSteps))
		}
		out[field] = raw
	case "done_evidence":
		obj, err := parseObject(field, raw)
		if err != nil {
			return nil, err
		}
		var missing []string
		for _, k := range doneEvidenceKeys {
			if _, ok := obj[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: done_evidence is missing required keys: %s", ErrInvalidValue, strings.Join(missing, ", "))
		}
		out[field] = obj
	case "review_result":
		obj, err := parseObject(field, raw)
		if err != nil {
			return nil, err
		}
		out[field] = obj
	case "notes":
		out[field] = appendNote(record["notes"], raw)
	}
	return out, nil
}

func appendNote(existing any, note string) any {
	switch prev := existing.(type) {
	case nil:
		return note
	case []any:
		notes := make([]any, 0, len(prev)+1)
		return append(append(notes, prev...), note)
	case string:
		return prev + "\n" + note
	default:
		return []any{prev, note}
	}
}

func parseObject(field, raw string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid JSON: %v", ErrInvalidValue, field, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a JSON object, got %T", ErrInvalidValue, field, v)
	}
	return obj, nil
}

// Write applies one field update to <iter>/tasks/<task>.yaml. Only the
// written key changes; the rest of the file keeps its order and comments.
func Write(store *state.Store, iter, taskID, field, raw string) error {
	doc, err := store.OpenTaskDocument(iter, taskID)
	if err != nil {
		return err
	}
	record, err := doc.Map()
	if err != nil {
		return err
	}
	updated, err := UpdateField(record, field, raw)
	if err != nil {
		return err
	}
	if err := doc.Set(field, updated[field]); err != nil {
		return err
	}
	return doc.Save()
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func keys(m map[string]bool) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

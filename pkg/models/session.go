package models

import "encoding/json"

// Progress is the per-status task tally mirrored into session state.
type Progress struct {
	TotalTasks     int `json:"total_tasks"`
	Completed      int `json:"completed"`
	InProgress     int `json:"in_progress"`
	Pending        int `json:"pending"`
	ReadyForVerify int `json:"ready_for_verify"`
	ReadyForReview int `json:"ready_for_review"`
	Rework         int `json:"rework"`
	Failed         int `json:"failed"`
	Blocked        int `json:"blocked"`
	Timeout        int `json:"timeout"`
}

// TallyProgress counts tasks by effective status. PASS counts as completed.
func TallyProgress(tasks []*Task) Progress {
	p := Progress{TotalTasks: len(tasks)}
	for _, t := range tasks {
		switch t.EffectiveStatus() {
		case TaskStatusPass:
			p.Completed++
		case TaskStatusInProgress:
			p.InProgress++
		case TaskStatusReadyForVerify:
			p.ReadyForVerify++
		case TaskStatusReadyForReview:
			p.ReadyForReview++
		case TaskStatusRework:
			p.Rework++
		case TaskStatusFailed:
			p.Failed++
		case TaskStatusBlocked:
			p.Blocked++
		case TaskStatusTimeout:
			p.Timeout++
		default:
			p.Pending++
		}
	}
	return p
}

// SessionState is the project-wide session singleton stored in
// session-state.json. Keys written by other tools are kept in Extra and
// written back untouched.
type SessionState struct {
	SessionID           string   `json:"session_id"`
	CurrentIteration    string   `json:"current_iteration"`
	CurrentPhase        Phase    `json:"current_phase"`
	CurrentTask         string   `json:"current_task"`
	Progress            Progress `json:"progress"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	LastCheckpoint      string   `json:"last_checkpoint"`
	// LastUpdated is free text: the retry driver writes its own timestamps.
	LastUpdated string `json:"last_updated,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type sessionAlias SessionState

var sessionKeys = []string{
	"session_id", "current_iteration", "current_phase", "current_task",
	"progress", "consecutive_failures", "last_checkpoint", "last_updated",
}

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (s *SessionState) UnmarshalJSON(data []byte) error {
	var alias sessionAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range sessionKeys {
		delete(raw, key)
	}
	*s = SessionState(alias)
	if len(raw) > 0 {
		s.Extra = raw
	}
	return nil
}

// MarshalJSON encodes known fields merged with Extra.
func (s SessionState) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(sessionAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(s.Extra)+len(sessionKeys))
	for k, v := range s.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

package models

import (
	"fmt"
	"regexp"
)

// Iteration modes.
const (
	ModeInit    = "init"
	ModeIterate = "iterate"
)

// BootstrapIteration is the first iteration of a freshly initialized project.
const BootstrapIteration = "iter-0"

var iterationIDPattern = regexp.MustCompile(`^iter-\d+$`)

var manifestRequired = []string{"id", "mode", "status", "created_at", "phase"}

// ValidIterationID reports whether id has the iter-N shape.
func ValidIterationID(id string) bool {
	return iterationIDPattern.MatchString(id)
}

// ValidateManifest checks the structure of a decoded manifest.json and
// returns every problem found.
func ValidateManifest(m map[string]any) []string {
	var errs []string
	for _, key := range manifestRequired {
		if _, ok := m[key]; !ok {
			errs = append(errs, fmt.Sprintf("missing required field: %s", key))
		}
	}
	if id, ok := m["id"]; ok {
		if s, _ := id.(string); !ValidIterationID(s) {
			errs = append(errs, fmt.Sprintf("id format invalid: %v (expected iter-N)", id))
		}
	}
	if mode, ok := m["mode"]; ok {
		if s, _ := mode.(string); s != ModeInit && s != ModeIterate {
			errs = append(errs, fmt.Sprintf("mode invalid: %v (expected init or iterate)", mode))
		}
	}
	if phase, ok := m["phase"]; ok {
		s, _ := phase.(string)
		switch {
		case !MatchesPhasePattern(s):
			errs = append(errs, fmt.Sprintf("phase format invalid: %v (expected phase_N or phase_N.5)", phase))
		case !Phase(s).Valid():
			errs = append(errs, fmt.Sprintf("phase not a legal value: %v", phase))
		}
	}
	return errs
}

// StateDir is the project-relative root of every persisted state file.
const StateDir = ".claude/dev-state"

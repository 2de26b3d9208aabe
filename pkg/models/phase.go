package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Phase is one stage of the fixed delivery lifecycle.
type Phase string

const (
	// Phase0 is environment readiness.
	Phase0 Phase = "phase_0"
	// Phase1 is requirement deepening.
	Phase1 Phase = "phase_1"
	// Phase2 is task breakdown.
	Phase2 Phase = "phase_2"
	// Phase3 is development.
	Phase3 Phase = "phase_3"
	// Phase3_5 is acceptance verification.
	Phase3_5 Phase = "phase_3.5"
	// Phase4 is code review.
	Phase4 Phase = "phase_4"
	// Phase5 is delivery.
	Phase5 Phase = "phase_5"
)

// Phases lists every legal phase in lifecycle order.
var Phases = []Phase{Phase0, Phase1, Phase2, Phase3, Phase3_5, Phase4, Phase5}

var phasePattern = regexp.MustCompile(`^phase_\d+(\.5)?$`)

// Valid returns true if the phase is one of the enumerated values.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Index returns the position of the phase in lifecycle order, or -1.
func (p Phase) Index() int {
	for i, known := range Phases {
		if p == known {
			return i
		}
	}
	return -1
}

// Value returns the numeric ordering value (0, 1, 2, 3, 3.5, 4, 5).
func (p Phase) Value() float64 {
	v, err := strconv.ParseFloat(strings.TrimPrefix(string(p), "phase_"), 64)
	if err != nil {
		return -1
	}
	return v
}

// Next returns the phase immediately following p.
func (p Phase) Next() (Phase, bool) {
	idx := p.Index()
	if idx < 0 || idx+1 >= len(Phases) {
		return "", false
	}
	return Phases[idx+1], true
}

// MatchesPhasePattern reports whether s has the phase_N or phase_N.5 shape.
func MatchesPhasePattern(s string) bool {
	return phasePattern.MatchString(s)
}

// ParsePhase validates s and returns the corresponding Phase.
func ParsePhase(s string) (Phase, error) {
	if !strings.HasPrefix(s, "phase_") {
		return "", fmt.Errorf("invalid phase format %q, expected phase_N or phase_N.5 (e.g. phase_0, phase_3.5)", s)
	}
	num := strings.TrimPrefix(s, "phase_")
	if num == "" {
		return "", fmt.Errorf("invalid phase format %q, missing stage number", s)
	}
	if _, err := strconv.ParseFloat(num, 64); err != nil {
		return "", fmt.Errorf("invalid phase format %q, %q is not a number", s, num)
	}
	p := Phase(s)
	if !p.Valid() {
		legal := make([]string, len(Phases))
		for i, known := range Phases {
			legal[i] = string(known)
		}
		return "", fmt.Errorf("invalid phase %q, legal values: %s", s, strings.Join(legal, ", "))
	}
	return p, nil
}

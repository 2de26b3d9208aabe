package gates

import (
	"fmt"

	"github.com/ShayCichocki/phasegate/internal/report"
)

// Result represents the outcome of a quality gate check.
type Result int

const (
	// Pass indicates the gate check succeeded.
	Pass Result = iota
	// Fail indicates the gate check failed.
	Fail
	// Skip indicates the gate could not be evaluated. A Skip is never a pass.
	Skip
)

// String returns the string representation of a Result.
func (r Result) String() string {
	switch r {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Skip:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

// Level maps the result onto a report label.
func (r Result) Level() report.Level {
	switch r {
	case Pass:
		return report.Pass
	case Skip:
		return report.Skip
	default:
		return report.Fail
	}
}

func resultOf(ok bool) Result {
	if ok {
		return Pass
	}
	return Fail
}

// Gate names one of the fixed checks.
type Gate string

const (
	Gate0 Gate = "gate_0"
	Gate1 Gate = "gate_1"
	Gate2 Gate = "gate_2"
	Gate3 Gate = "gate_3"
	Gate4 Gate = "gate_4"
	Gate5 Gate = "gate_5"
	Gate6 Gate = "gate_6"
	Gate7 Gate = "gate_7"
)

// Order is the sequence used by RunAll.
var Order = []Gate{Gate0, Gate1, Gate2, Gate3, Gate4, Gate5, Gate6, Gate7}

var titles = map[Gate]string{
	Gate0: "environment readiness",
	Gate1: "requirement approval",
	Gate2: "task plan approval",
	Gate3: "L0 acceptance",
	Gate4: "L1 regression",
	Gate5: "integration checkpoint",
	Gate6: "code review",
	Gate7: "final acceptance",
}

// Title returns the human-readable name of the gate.
func (g Gate) Title() string {
	return titles[g]
}

// Label returns "Gate N".
func (g Gate) Label() string {
	return "Gate " + string(g[len("gate_"):])
}

// ParseGate validates a gate name such as "gate_4".
func ParseGate(s string) (Gate, error) {
	g := Gate(s)
	if _, ok := titles[g]; !ok {
		return "", fmt.Errorf("%w: %q (want gate_0..gate_7)", ErrUnknownGate, s)
	}
	return g, nil
}

// Verdict is one gate outcome from RunAll.
type Verdict struct {
	Gate   Gate
	Result Result
	Note   string
}

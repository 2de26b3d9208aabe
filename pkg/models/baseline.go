package models

// TestResults holds per-tier pass/fail/skip counts.
type TestResults struct {
	L1Passed  int `json:"l1_passed"`
	L1Failed  int `json:"l1_failed"`
	L1Skipped int `json:"l1_skipped"`
	L2Passed  int `json:"l2_passed"`
	L2Failed  int `json:"l2_failed"`
	L2Skipped int `json:"l2_skipped"`
}

// Baseline is the regression floor captured before a round of changes.
type Baseline struct {
	Iteration           string      `json:"iteration"`
	// Timestamp is kept verbatim; writers outside this tool use other formats.
	Timestamp           string      `json:"timestamp"`
	GitCommit           string      `json:"git_commit"`
	TestResults         TestResults `json:"test_results"`
	LintClean           bool        `json:"lint_clean"`
	PreExistingFailures []string    `json:"pre_existing_failures"`
	L1Note              string      `json:"l1_note,omitempty"`
}

// IsPreExisting reports whether a failing test was already failing at baseline.
func (b *Baseline) IsPreExisting(test string) bool {
	for _, name := range b.PreExistingFailures {
		if name == test {
			return true
		}
	}
	return false
}

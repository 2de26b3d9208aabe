package toolchain

import (
	"regexp"
	"strconv"
	"strings"
)

// Counts holds the pass/fail/skip totals from a test-runner summary.
type Counts struct {
	Passed  int
	Failed  int
	Skipped int
}

var (
	passedPattern  = regexp.MustCompile(`(\d+) passed`)
	failedPattern  = regexp.MustCompile(`(\d+) failed`)
	skippedPattern = regexp.MustCompile(`(\d+) skipped`)
	failedLine     = regexp.MustCompile(`^FAILED\s+(\S+)`)
)

// ParseCounts extracts totals from pytest's summary line, for example
// "5 passed, 1 failed, 2 skipped in 0.42s". Missing totals are zero.
func ParseCounts(output string) Counts {
	return Counts{
		Passed:  firstInt(passedPattern, output),
		Failed:  firstInt(failedPattern, output),
		Skipped: firstInt(skippedPattern, output),
	}
}

// ParsePassed returns only the passed total.
func ParsePassed(output string) int {
	return firstInt(passedPattern, output)
}

// ParseFailedTests returns the node ids from "FAILED path::name - reason" lines.
func ParseFailedTests(output string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		m := failedLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

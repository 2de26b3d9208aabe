package phase

import "strings"

// VerificationHeuristic decides whether a verify script exercises the
// system at runtime rather than only searching source text.
type VerificationHeuristic interface {
	LooksLikeRealVerification(source string) bool
}

// DefaultRuntimeKeywords mark a runtime assertion or a real invocation.
var DefaultRuntimeKeywords = []string{
	"subprocess.run", "import requests", "assert ",
	"pytest.mark", "pytest.raises", "unittest",
	".json()", "response.status_code",
	"importlib", "raise AssertionError",
}

// KeywordHeuristic accepts a script when any non-comment line contains one
// of Keywords.
type KeywordHeuristic struct {
	Keywords []string
}

// NewKeywordHeuristic returns a heuristic using DefaultRuntimeKeywords.
func NewKeywordHeuristic() KeywordHeuristic {
	return KeywordHeuristic{Keywords: DefaultRuntimeKeywords}
}

// LooksLikeRealVerification implements VerificationHeuristic.
func (h KeywordHeuristic) LooksLikeRealVerification(source string) bool {
	for _, line := range strings.Split(source, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		for _, kw := range h.Keywords {
			if strings.Contains(line, kw) {
				return true
			}
		}
	}
	return false
}

var _ VerificationHeuristic = KeywordHeuristic{}

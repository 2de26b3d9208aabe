package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppendDecision adds a timestamped entry to <iter>/decisions.md.
func (s *Store) AppendDecision(iter, decision string) error {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return err
	}
	path := s.DecisionsPath(iter)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	timestamp := s.now().Format("2006-01-02 15:04")
	entry := "\n- " + timestamp + ": " + decision + "\n"

	_, err = f.WriteString(entry)
	return err
}

// ReadDecisions returns the current contents of <iter>/decisions.md.
func (s *Store) ReadDecisions(iter string) string {
	content, err := os.ReadFile(s.DecisionsPath(iter))
	if err != nil {
		return ""
	}
	return string(content)
}

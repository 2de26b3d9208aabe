package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// NextCheckpointPath returns the path of the next cp-NNN.md for iter.
func (s *Store) NextCheckpointPath(iter string) (string, error) {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return "", err
	}
	existing, err := s.ListCheckpoints(iter)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("cp-%03d.md", len(existing)+1)
	return filepath.Join(s.CheckpointsDir(iter), name), nil
}

// LatestCheckpoint returns the name and content of the newest checkpoint.
// ErrNotFound is returned when iter has none.
func (s *Store) LatestCheckpoint(iter string) (string, string, error) {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return "", "", err
	}
	names, err := s.ListCheckpoints(iter)
	if err != nil {
		return "", "", err
	}
	if len(names) == 0 {
		return "", "", fmt.Errorf("checkpoints for %s: %w", iter, ErrNotFound)
	}
	name := names[len(names)-1]
	data, err := os.ReadFile(filepath.Join(s.CheckpointsDir(iter), name))
	if err != nil {
		return "", "", fmt.Errorf("read checkpoint %s: %w", name, err)
	}
	return name, string(data), nil
}

// NextLedgerPath returns the path of the next session-YYYYMMDD-NN.md for
// iter on the given day.
func (s *Store) NextLedgerPath(iter string, day time.Time) (string, error) {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return "", err
	}
	prefix := "session-" + day.Format("20060102") + "-"
	entries, err := os.ReadDir(s.LedgerDir(iter))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("list ledger: %w", err)
	}
	seq := 1
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".md") {
			seq++
		}
	}
	return filepath.Join(s.LedgerDir(iter), fmt.Sprintf("%s%02d.md", prefix, seq)), nil
}

// WriteText atomically writes a markdown or text document.
func (s *Store) WriteText(path, content string) error {
	if err := writeFileAtomic(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

package gates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Mock usage is an import of a mocking library or a call of a mock
// constructor. Variable names such as mock_data do not count.
var (
	mockImportPattern = regexp.MustCompile(`from unittest\.mock import|import unittest\.mock|from pytest_mock\b`)
	mockCallPattern   = regexp.MustCompile(`Mock\s*\(|MagicMock\s*\(|patch\s*\(|mocker\.\w+`)
)

// Declarations every mocking test file must carry.
var (
	mockReasonPattern   = regexp.MustCompile(`#\s*MOCK-REASON:`)
	mockRealTestPattern = regexp.MustCompile(`#\s*MOCK-REAL-TEST:\s*(.+)`)
	mockExpirePattern   = regexp.MustCompile(`#\s*MOCK-EXPIRE-WHEN:`)
)

// MockViolations scans the test files under testDir (relative to
// projectDir) and returns one violation per missing declaration or dangling
// MOCK-REAL-TEST pointer. scanned is false when testDir does not exist.
func MockViolations(projectDir, testDir string, extensions []string) (violations []string, scanned bool, err error) {
	root := filepath.Join(projectDir, filepath.FromSlash(testDir))
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat %s: %w", root, err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasExtension(d.Name(), extensions) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		content := string(data)
		if !mockImportPattern.MatchString(content) && !mockCallPattern.MatchString(content) {
			return nil
		}
		rel := relPath(projectDir, path)
		violations = append(violations, mockFileViolations(projectDir, rel, content)...)
		return nil
	})
	if err != nil {
		return nil, true, fmt.Errorf("scan %s: %w", root, err)
	}
	return violations, true, nil
}

func mockFileViolations(projectDir, rel, content string) []string {
	var violations []string
	if !mockReasonPattern.MatchString(content) {
		violations = append(violations, rel+": uses mocks but is missing # MOCK-REASON:")
	}
	if m := mockRealTestPattern.FindStringSubmatch(content); m == nil {
		violations = append(violations, rel+": missing # MOCK-REAL-TEST: declaration")
	} else {
		target, _, _ := strings.Cut(strings.TrimSpace(m[1]), "::")
		target = strings.TrimSpace(target)
		switch info, err := os.Stat(filepath.Join(projectDir, filepath.FromSlash(target))); {
		case target == "":
			violations = append(violations, rel+": MOCK-REAL-TEST names no test file")
		case err != nil:
			violations = append(violations, fmt.Sprintf("%s: MOCK-REAL-TEST points to %s, which does not exist", rel, target))
		case info.IsDir():
			violations = append(violations, fmt.Sprintf("%s: MOCK-REAL-TEST points to %s, which is a directory", rel, target))
		}
	}
	if !mockExpirePattern.MatchString(content) {
		violations = append(violations, rel+": missing # MOCK-EXPIRE-WHEN: declaration")
	}
	return violations
}

func hasExtension(name string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

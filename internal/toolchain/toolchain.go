// Package toolchain resolves the concrete test, lint, format and interpreter
// commands for a project.
package toolchain

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kballard/go-shellquote"

	"github.com/ShayCichocki/phasegate/internal/config"
)

// Toolchain is the set of shell command strings used for a project.
type Toolchain struct {
	TestRunner string
	Linter     string
	Formatter  string
	Python     string
}

// DefaultPython is the interpreter used when no lock file selects a wrapper.
const DefaultPython = "python3"

// Resolve decides the commands for projectDir. Explicit config values win
// over "auto"; then uv.lock selects "uv run", poetry.lock selects
// "poetry run", and otherwise the plain interpreter is used.
func Resolve(projectDir string, cfg *config.Config) Toolchain {
	tc := cfg.Toolchain
	wrapper := detectWrapper(projectDir)

	pick := func(explicit, tool string) string {
		if explicit != "" && explicit != config.Auto {
			return explicit
		}
		if wrapper != "" {
			return wrapper + " " + tool
		}
		return DefaultPython + " -m " + tool
	}

	python := tc.Python
	if python == "" || python == config.Auto {
		if wrapper != "" {
			python = wrapper + " python"
		} else {
			python = DefaultPython
		}
	}

	return Toolchain{
		TestRunner: pick(tc.TestRunner, "pytest"),
		Linter:     pick(tc.Linter, "ruff check ."),
		Formatter:  pick(tc.Formatter, "ruff format --check ."),
		Python:     python,
	}
}

func detectWrapper(projectDir string) string {
	switch {
	case fileExists(filepath.Join(projectDir, "uv.lock")):
		return "uv run"
	case fileExists(filepath.Join(projectDir, "poetry.lock")):
		return "poetry run"
	default:
		return ""
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// TestCommand builds argv for running the test runner on dir.
func (t Toolchain) TestCommand(dir string, extra ...string) ([]string, error) {
	return t.RunnerCommand(append([]string{dir}, extra...)...)
}

// RunnerCommand builds argv for the bare test runner, e.g. with --version.
func (t Toolchain) RunnerCommand(extra ...string) ([]string, error) {
	base, err := split("test_runner", t.TestRunner)
	if err != nil {
		return nil, err
	}
	return append(base, extra...), nil
}

// LintCommand builds argv for the linter.
func (t Toolchain) LintCommand() ([]string, error) {
	return split("linter", t.Linter)
}

// FormatCommand builds argv for the formatter check.
func (t Toolchain) FormatCommand() ([]string, error) {
	return split("formatter", t.Formatter)
}

// PythonCommand builds argv for running a script with the interpreter.
func (t Toolchain) PythonCommand(extra ...string) ([]string, error) {
	base, err := split("python", t.Python)
	if err != nil {
		return nil, err
	}
	return append(base, extra...), nil
}

func split(name, command string) ([]string, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse %s command %q: %w", name, command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s command is empty", name)
	}
	return argv, nil
}

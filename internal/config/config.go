// Package config handles loading the per-project run configuration.
// Values come from .claude/dev-state/run-config.yaml layered over built-in
// defaults and PHASEGATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/phasegate/pkg/models"
)

// FileName is the run configuration file inside the state root.
const FileName = "run-config.yaml"

// Auto tells the toolchain resolver to detect a command.
const Auto = "auto"

// DefaultTestDir is the unit test tier used when nothing is configured.
const DefaultTestDir = "tests/unit/"

// Config holds all configuration for a project.
type Config struct {
	Toolchain ToolchainConfig `mapstructure:"toolchain"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Session   SessionConfig   `mapstructure:"session"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	// TestDir is the legacy top-level location of the unit test tier.
	TestDir string `mapstructure:"test_dir"`
}

// ToolchainConfig holds the external commands. "auto" means detect.
type ToolchainConfig struct {
	TestRunner     string `mapstructure:"test_runner"`
	Linter         string `mapstructure:"linter"`
	Formatter      string `mapstructure:"formatter"`
	Python         string `mapstructure:"python"`
	TestDir        string `mapstructure:"test_dir"`
	IntegrationDir string `mapstructure:"integration_dir"`
	// LintRequired turns a missing linter from SKIP into FAIL.
	LintRequired bool `mapstructure:"lint_required"`
}

// TimeoutsConfig bounds each kind of subprocess.
type TimeoutsConfig struct {
	Test   time.Duration `mapstructure:"test"`
	Lint   time.Duration `mapstructure:"lint"`
	Git    time.Duration `mapstructure:"git"`
	Verify time.Duration `mapstructure:"verify"`
}

// ScanConfig controls the source-tree scans done by the gates.
type ScanConfig struct {
	// TestDir is the root scanned for mock usage.
	TestDir string `mapstructure:"test_dir"`
	// TestExtensions selects which files are scanned.
	TestExtensions []string `mapstructure:"test_extensions"`
	// ImplementationMarkers are substrings that flag an unfinished implementation.
	ImplementationMarkers []string `mapstructure:"implementation_markers"`
	// SkipDirs are directory names pruned from repository walks.
	SkipDirs []string `mapstructure:"skip_dirs"`
}

// SessionConfig holds retry-loop settings.
type SessionConfig struct {
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
}

// MetricsConfig controls the Prometheus textfile export of gate verdicts.
type MetricsConfig struct {
	// TextfileDir enables the export when set. Relative paths are resolved
	// against the project directory.
	TextfileDir string `mapstructure:"textfile_dir"`
}

// UnitTestDir returns the configured unit test directory.
// toolchain.test_dir wins over the top-level test_dir.
func (c *Config) UnitTestDir() string {
	if c.Toolchain.TestDir != "" {
		return c.Toolchain.TestDir
	}
	if c.TestDir != "" {
		return c.TestDir
	}
	return DefaultTestDir
}

// Path returns the run configuration path for a project.
func Path(projectDir string) string {
	return filepath.Join(projectDir, filepath.FromSlash(models.StateDir), FileName)
}

// Load loads the run configuration for a project.
// Precedence (highest to lowest):
// 1. Environment variables (PHASEGATE_TOOLCHAIN_LINTER, ...)
// 2. .claude/dev-state/run-config.yaml
// 3. Built-in defaults
//
// A missing file yields defaults; a malformed file is an error.
func Load(projectDir string) (*Config, error) {
	path := Path(projectDir)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return load(newViper(), "")
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	return load(newViper(), path)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PHASEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.Set("toolchain.test_runner", cfg.Toolchain.TestRunner)
	v.Set("toolchain.linter", cfg.Toolchain.Linter)
	v.Set("toolchain.formatter", cfg.Toolchain.Formatter)
	v.Set("toolchain.python", cfg.Toolchain.Python)
	v.Set("toolchain.test_dir", cfg.Toolchain.TestDir)
	v.Set("toolchain.integration_dir", cfg.Toolchain.IntegrationDir)
	v.Set("toolchain.lint_required", cfg.Toolchain.LintRequired)
	v.Set("timeouts.test", cfg.Timeouts.Test.String())
	v.Set("timeouts.lint", cfg.Timeouts.Lint.String())
	v.Set("timeouts.git", cfg.Timeouts.Git.String())
	v.Set("timeouts.verify", cfg.Timeouts.Verify.String())
	v.Set("scan.test_dir", cfg.Scan.TestDir)
	v.Set("scan.test_extensions", cfg.Scan.TestExtensions)
	v.Set("scan.implementation_markers", cfg.Scan.ImplementationMarkers)
	v.Set("scan.skip_dirs", cfg.Scan.SkipDirs)
	v.Set("session.max_consecutive_failures", cfg.Session.MaxConsecutiveFailures)
	v.Set("metrics.textfile_dir", cfg.Metrics.TextfileDir)

	return v.WriteConfigAs(path)
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("toolchain.test_runner", d.Toolchain.TestRunner)
	v.SetDefault("toolchain.linter", d.Toolchain.Linter)
	v.SetDefault("toolchain.formatter", d.Toolchain.Formatter)
	v.SetDefault("toolchain.python", d.Toolchain.Python)
	v.SetDefault("toolchain.test_dir", "")
	v.SetDefault("toolchain.integration_dir", d.Toolchain.IntegrationDir)
	v.SetDefault("toolchain.lint_required", false)
	v.SetDefault("test_dir", "")

	v.SetDefault("timeouts.test", "600s")
	v.SetDefault("timeouts.lint", "600s")
	v.SetDefault("timeouts.git", "30s")
	v.SetDefault("timeouts.verify", "120s")

	v.SetDefault("scan.test_dir", d.Scan.TestDir)
	v.SetDefault("scan.test_extensions", d.Scan.TestExtensions)
	v.SetDefault("scan.implementation_markers", d.Scan.ImplementationMarkers)
	v.SetDefault("scan.skip_dirs", d.Scan.SkipDirs)

	v.SetDefault("session.max_consecutive_failures", d.Session.MaxConsecutiveFailures)

	v.SetDefault("metrics.textfile_dir", "")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Toolchain: ToolchainConfig{
			TestRunner:     Auto,
			Linter:         Auto,
			Formatter:      Auto,
			Python:         Auto,
			IntegrationDir: "tests/integration/",
		},
		Timeouts: TimeoutsConfig{
			Test:   600 * time.Second,
			Lint:   600 * time.Second,
			Git:    30 * time.Second,
			Verify: 120 * time.Second,
		},
		Scan: ScanConfig{
			TestDir:               "tests",
			TestExtensions:        []string{".py"},
			ImplementationMarkers: []string{"NotImplementedError"},
			SkipDirs: []string{
				".git", "__pycache__", "node_modules", ".venv", "venv",
				".tox", ".mypy_cache", ".pytest_cache", "dist", "build",
			},
		},
		Session: SessionConfig{
			MaxConsecutiveFailures: 3,
		},
	}
}

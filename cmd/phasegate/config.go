package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phasegate/internal/config"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/toolchain"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Show the run configuration after layering built-in defaults,
.claude/dev-state/run-config.yaml and PHASEGATE_* environment variables,
together with the commands the toolchain resolver picked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		displayAllConfig(env.cfg)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write run-config.yaml with default values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Path(env.projectDir)
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return err
		}
		env.rep.Item(report.Pass, "configuration written: %s", path)
		return nil
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("config file: %s\n", config.Path(env.projectDir))
	fmt.Printf("toolchain.test_runner: %s\n", cfg.Toolchain.TestRunner)
	fmt.Printf("toolchain.linter: %s\n", cfg.Toolchain.Linter)
	fmt.Printf("toolchain.formatter: %s\n", cfg.Toolchain.Formatter)
	fmt.Printf("toolchain.python: %s\n", cfg.Toolchain.Python)
	fmt.Printf("toolchain.test_dir: %s\n", cfg.UnitTestDir())
	fmt.Printf("toolchain.integration_dir: %s\n", cfg.Toolchain.IntegrationDir)
	fmt.Printf("toolchain.lint_required: %t\n", cfg.Toolchain.LintRequired)
	fmt.Printf("timeouts.test: %s\n", cfg.Timeouts.Test)
	fmt.Printf("timeouts.lint: %s\n", cfg.Timeouts.Lint)
	fmt.Printf("timeouts.git: %s\n", cfg.Timeouts.Git)
	fmt.Printf("timeouts.verify: %s\n", cfg.Timeouts.Verify)
	fmt.Printf("scan.test_dir: %s\n", cfg.Scan.TestDir)
	fmt.Printf("scan.test_extensions: %s\n", strings.Join(cfg.Scan.TestExtensions, ", "))
	fmt.Printf("scan.implementation_markers: %s\n", strings.Join(cfg.Scan.ImplementationMarkers, ", "))
	fmt.Printf("scan.skip_dirs: %s\n", strings.Join(cfg.Scan.SkipDirs, ", "))
	fmt.Printf("session.max_consecutive_failures: %d\n", cfg.Session.MaxConsecutiveFailures)
	fmt.Printf("metrics.textfile_dir: %s\n", cfg.Metrics.TextfileDir)

	tc := toolchain.Resolve(env.projectDir, cfg)
	fmt.Println()
	fmt.Println("resolved toolchain:")
	fmt.Printf("  test_runner: %s\n", tc.TestRunner)
	fmt.Printf("  linter: %s\n", tc.Linter)
	fmt.Printf("  formatter: %s\n", tc.Formatter)
	fmt.Printf("  python: %s\n", tc.Python)
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing run-config.yaml")
	configCmd.AddCommand(configInitCmd)
}

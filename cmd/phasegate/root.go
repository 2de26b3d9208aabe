package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phasegate/internal/config"
	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/exec"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/internal/taskfield"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFail      = 1
	exitNotFound  = 2
	exitProtected = 3
)

var projectDirFlag string

// env is populated by the root command before any subcommand runs.
var env *environment

// environment bundles the per-invocation collaborators.
type environment struct {
	projectDir string
	cfg        *config.Config
	rep        *report.Reporter
	runner     exec.CommandRunner
	store      *state.Store
	logger     *debuglog.DebugLogger
}

// hasStateRoot reports whether the project has been initialized.
func (e *environment) hasStateRoot() bool {
	info, err := os.Stat(e.store.Root())
	return err == nil && info.IsDir()
}

// recorder opens the decision journal. It returns nil when the project has
// no state root or the journal cannot be opened; journaling is best effort.
func (e *environment) recorder() (state.Recorder, func()) {
	j := e.openJournal()
	if j == nil {
		return nil, func() {}
	}
	return j, func() { _ = j.Close() }
}

func (e *environment) openJournal() *state.Journal {
	if !e.hasStateRoot() {
		return nil
	}
	j, err := state.OpenProjectJournal(e.projectDir)
	if err != nil {
		log.Printf("[phasegate] warning: journal unavailable: %v", err)
		return nil
	}
	return j
}

func (e *environment) close() {
	if e.logger != nil {
		_ = e.logger.Close()
	}
}

// exitError carries a process exit code through cobra without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitWith returns nil for exitOK and an exitError otherwise.
func exitWith(code int) error {
	if code == exitOK {
		return nil
	}
	return &exitError{code: code}
}

// exitCodeFor maps an error onto the process exit status.
func exitCodeFor(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, taskfield.ErrProtectedField):
		return exitProtected
	case errors.Is(err, state.ErrNotFound):
		return exitNotFound
	default:
		return exitFail
	}
}

var rootCmd = &cobra.Command{
	Use:   "phasegate",
	Short: "Phase and quality gates for agent-driven delivery",
	Long: `phasegate enforces process discipline on agent-driven software delivery.

It keeps iteration state under .claude/dev-state, evaluates the eight
quality gates (gate_0 to gate_7) and decides whether an iteration may move
from one delivery phase to the next.

Exit codes:
  0  pass / success
  1  fail / blocked
  2  not found
  3  protected field`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := filepath.Abs(projectDirFlag)
		if err != nil {
			return fmt.Errorf("resolve project dir: %w", err)
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		env = &environment{
			projectDir: dir,
			cfg:        cfg,
			rep:        report.Stdout(),
			runner:     exec.NewRunner(),
			store:      state.NewStore(dir),
		}
		if env.hasStateRoot() {
			env.logger = debuglog.Install(env.store.DebugLogPath(), debuglog.Verbose())
		}
		debuglog.Printf("[phasegate] %s project=%s", cmd.CommandPath(), dir)
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if env != nil {
		env.close()
	}
	var ee *exitError
	if err != nil && !errors.As(err, &ee) {
		report.Errorf("%v", err)
	}
	return exitCodeFor(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDirFlag, "project-dir", ".", "Project directory containing .claude/dev-state")

	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(phaseCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

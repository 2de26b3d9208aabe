package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phasegate/internal/baseline"
	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
)

var baselineIteration string

var baselineCmd = &cobra.Command{
	Use:   "baseline [show|capture|reset]",
	Short: "Show, capture or reset the regression baseline",
	Long: `Manage the baseline snapshot used by the regression gates.

Commands:
  phasegate baseline          # Show current baseline
  phasegate baseline show     # Show current baseline
  phasegate baseline capture  # Run the suites and record a new baseline
  phasegate baseline reset    # Delete baseline.json

The baseline records passed/failed/skipped counts for the unit (L1) and
integration (L2) tiers, whether lint was clean and which tests were
already failing. Gate 4 fails when the L1 passed count drops below it.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"show", "capture", "reset"},
	RunE: func(cmd *cobra.Command, args []string) error {
		subcommand := "show"
		if len(args) > 0 {
			subcommand = args[0]
		}

		switch subcommand {
		case "show":
			return showBaseline()
		case "capture":
			return captureBaseline()
		case "reset":
			return resetBaseline()
		default:
			return fmt.Errorf("unknown subcommand %q (use show, capture or reset)", subcommand)
		}
	},
}

func showBaseline() error {
	b, err := env.store.LoadBaseline()
	if errors.Is(err, state.ErrNotFound) {
		env.rep.Info("no baseline captured yet")
		env.rep.Info("run 'phasegate baseline capture' to capture one")
		return exitWith(exitNotFound)
	}
	if err != nil {
		return err
	}

	r := env.rep
	r.Section("Baseline %s", b.Iteration)
	r.Info("captured at: %s", orNone(b.Timestamp))
	r.Info("git commit: %s", orNone(b.GitCommit))
	r.Info("L1: %d passed, %d failed, %d skipped", b.TestResults.L1Passed, b.TestResults.L1Failed, b.TestResults.L1Skipped)
	if b.L1Note != "" {
		r.Detail("%s", b.L1Note)
	}
	r.Info("L2: %d passed, %d failed, %d skipped", b.TestResults.L2Passed, b.TestResults.L2Failed, b.TestResults.L2Skipped)
	if b.LintClean {
		r.Item(report.Pass, "lint clean")
	} else {
		r.Item(report.Warn, "lint not clean")
	}
	if len(b.PreExistingFailures) > 0 {
		r.List(report.Warn, fmt.Sprintf("%d pre-existing failure(s)", len(b.PreExistingFailures)), b.PreExistingFailures, 0)
	}
	return nil
}

func captureBaseline() error {
	iter, err := env.store.ResolveIteration(baselineIteration)
	if err != nil {
		return err
	}
	if iter == "" {
		return fmt.Errorf("no iteration: pass --iteration-id or start a session")
	}
	ctx, cancel := signalContext()
	defer cancel()

	b, err := baseline.NewRunner(env.projectDir, env.cfg, env.runner, env.rep).Capture(ctx, iter)
	if err != nil {
		return err
	}
	if rec, closeJournal := env.recorder(); rec != nil {
		defer closeJournal()
		recordBaseline(rec, iter, fmt.Sprintf("L1 %d passed, L2 %d passed", b.TestResults.L1Passed, b.TestResults.L2Passed))
	}
	return nil
}

func resetBaseline() error {
	if _, err := env.store.LoadBaseline(); errors.Is(err, state.ErrNotFound) {
		env.rep.Info("no baseline to delete")
		return nil
	}
	if err := env.store.ResetBaseline(); err != nil {
		return err
	}
	env.rep.Item(report.Pass, "baseline deleted: %s", env.store.BaselinePath())
	return nil
}

func recordBaseline(rec state.Recorder, iter, detail string) {
	err := rec.Record(state.Entry{
		Kind:      state.KindBaseline,
		Iteration: iter,
		Subject:   "baseline",
		Verdict:   "PASS",
		Detail:    detail,
	})
	if err != nil {
		env.rep.Item(report.Warn, "journal: %v", err)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	baselineCmd.Flags().StringVar(&baselineIteration, "iteration-id", "", "Iteration id recorded with a capture (defaults to the session's)")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phasegate/internal/verify"
)

var (
	verifyIteration string
	verifyTaskID    string
	verifyAll       bool
	verifyDryRun    bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [TASK]",
	Short: "Run task acceptance scripts",
	Long: `Run <iteration>/verify/<task>.py with the project's interpreter.

A passing script moves the task to ready_for_review and stores its
EVIDENCE_JSON block as done_evidence; a failing one moves it to rework.
Scripts still containing placeholders are refused without running.

--dry-run checks scripts without running them: syntax, placeholders, a
main() definition and the EVIDENCE_JSON marker. Pass a task id to check
one script, or none to check every script.`,
	Example: `  phasegate verify --iteration-id iter-2 --task-id CR-001
  phasegate verify --iteration-id iter-2 --all
  phasegate verify --iteration-id iter-2 --dry-run CR-001`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		iter, err := env.store.ResolveIteration(verifyIteration)
		if err != nil {
			return err
		}
		if iter == "" {
			return fmt.Errorf("no iteration: pass --iteration-id or start a session")
		}
		task := verifyTaskID
		if len(args) > 0 {
			if task != "" && task != args[0] {
				return fmt.Errorf("task given twice: --task-id %s and %s", task, args[0])
			}
			task = args[0]
		}

		ctx, cancel := signalContext()
		defer cancel()
		runner := verify.NewRunner(env.projectDir, env.cfg, env.runner, env.rep)

		switch {
		case verifyDryRun:
			ok, err := runner.DryRun(ctx, iter, task)
			if err != nil {
				return err
			}
			if !ok {
				return exitWith(exitFail)
			}
			return nil
		case verifyAll:
			outcomes, err := runner.VerifyAll(ctx, iter)
			if err != nil {
				return err
			}
			if !verify.AllPassed(outcomes) {
				return exitWith(exitFail)
			}
			return nil
		case task != "":
			out, err := runner.Verify(ctx, iter, task)
			if err != nil {
				return err
			}
			if !out.Passed {
				return exitWith(exitFail)
			}
			return nil
		default:
			return fmt.Errorf("specify --task-id, --all or --dry-run")
		}
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyIteration, "iteration-id", "", "Iteration id (defaults to the session's current iteration)")
	verifyCmd.Flags().StringVar(&verifyTaskID, "task-id", "", "Task whose script to run")
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "Run every script and aggregate")
	verifyCmd.Flags().BoolVar(&verifyDryRun, "dry-run", false, "Check scripts without running them")
	verifyCmd.MarkFlagsMutuallyExclusive("all", "dry-run")
	verifyCmd.MarkFlagsMutuallyExclusive("all", "task-id")
}

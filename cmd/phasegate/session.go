package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phasegate/internal/dashboard"
	"github.com/ShayCichocki/phasegate/internal/session"
	"github.com/ShayCichocki/phasegate/internal/state"
)

var (
	initIteration    string
	initForce        bool
	recordFailed     bool
	recordProgress   int
	historyIteration string
	historyLimit     int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and record session state",
	Long: `Session commands keep work continuous across conversations.

  init        create session-state.json for an iteration
  status      print the session summary
  checkpoint  write <iteration>/checkpoints/cp-NNN.md
  resume      print a digest for picking work back up
  ledger      write a team ledger of active tasks
  record-run  update the consecutive-failure counter
  history     list recent gate and phase decisions
  watch       live dashboard of session and tasks`,
}

func newManager(opts ...session.Option) *session.Manager {
	return session.NewManager(env.projectDir, env.cfg, env.rep, opts...)
}

var sessionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create session-state.json for an iteration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := newManager().Init(initIteration, initForce)
		return err
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the session summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newManager().Status()
	},
}

var sessionCheckpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Write the next checkpoint of the current iteration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := newManager().Checkpoint()
		return err
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Print the resume digest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newManager().Resume()
	},
}

var sessionLedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Write a session ledger of active tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := newManager().Ledger()
		return err
	},
}

var sessionRecordRunCmd = &cobra.Command{
	Use:   "record-run",
	Short: "Record the outcome of one retry-loop round",
	Long: `Record one round of an automated retry loop.

A failed round (--failed) or a round with zero progress increments
consecutive_failures; any other round resets it. Exits 1 once the counter
reaches session.max_consecutive_failures so the loop can stop.`,
	Example: `  phasegate session record-run --failed
  phasegate session record-run --progress 2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !recordFailed && !cmd.Flags().Changed("progress") {
			return fmt.Errorf("specify --failed or --progress N")
		}
		rec, closeJournal := env.recorder()
		defer closeJournal()
		var opts []session.Option
		if rec != nil {
			opts = append(opts, session.WithJournal(rec))
		}
		res, err := newManager(opts...).RecordRun(recordFailed, recordProgress)
		if err != nil {
			return err
		}
		if res.LimitReached() {
			return exitWith(exitFail)
		}
		return nil
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent gate verdicts and phase transitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j := env.openJournal()
		if j == nil {
			return fmt.Errorf("journal %s: %w", env.store.HistoryPath(), state.ErrNotFound)
		}
		defer j.Close()
		return session.PrintHistory(env.rep, j, historyIteration, historyLimit)
	},
}

var sessionWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of session state and tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !env.hasStateRoot() {
			return fmt.Errorf("state root %s: %w", env.store.Root(), state.ErrNotFound)
		}
		ctx, cancel := signalContext()
		defer cancel()
		return dashboard.Run(ctx, env.store)
	},
}

func init() {
	sessionInitCmd.Flags().StringVar(&initIteration, "iteration-id", "", "Iteration the session starts on")
	sessionInitCmd.Flags().BoolVar(&initForce, "force", false, "Replace an existing session-state.json")
	_ = sessionInitCmd.MarkFlagRequired("iteration-id")
	sessionRecordRunCmd.Flags().BoolVar(&recordFailed, "failed", false, "The round failed")
	sessionRecordRunCmd.Flags().IntVar(&recordProgress, "progress", 0, "Number of tasks the round completed")
	sessionHistoryCmd.Flags().StringVar(&historyIteration, "iteration-id", "", "Only entries of this iteration")
	sessionHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries to list")

	sessionCmd.AddCommand(sessionInitCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionCheckpointCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionLedgerCmd)
	sessionCmd.AddCommand(sessionRecordRunCmd)
	sessionCmd.AddCommand(sessionHistoryCmd)
	sessionCmd.AddCommand(sessionWatchCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phasegate/internal/phase"
)

var (
	phaseIteration       string
	phaseFrom            string
	phaseTo              string
	phaseForce           bool
	phaseReason          string
	phaseCheckCompletion bool
)

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Move an iteration between delivery phases",
	Long: `Check the preconditions of a phase transition and, when they hold,
record the new phase in the iteration manifest and the session state.

Registered transitions have gate checks; any other forward move must go
one phase at a time. --force overrides failing checks of a registered
transition and appends --reason to decisions.md. It never allows skipping
a phase.

--check-completion reports whether the iteration is complete without
changing any state.`,
	Example: `  phasegate phase --iteration-id iter-2 --from phase_2 --to phase_3
  phasegate phase --iteration-id iter-2 --from phase_3 --to phase_4 --force --reason "reviewer out"
  phasegate phase --iteration-id iter-2 --check-completion`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, closeJournal := env.recorder()
		defer closeJournal()
		var opts []phase.Option
		if rec != nil {
			opts = append(opts, phase.WithJournal(rec))
		}
		machine := phase.NewMachine(env.projectDir, env.rep, opts...)

		var (
			out *phase.Outcome
			err error
		)
		if phaseCheckCompletion {
			out, err = machine.CheckCompletion(phaseIteration)
		} else {
			if phaseFrom == "" || phaseTo == "" {
				return fmt.Errorf("--from and --to are required unless --check-completion is set")
			}
			out, err = machine.Transition(phase.Request{
				Iteration: phaseIteration,
				From:      phaseFrom,
				To:        phaseTo,
				Force:     phaseForce,
				Reason:    phaseReason,
			})
		}
		if err != nil {
			return err
		}
		return exitWith(out.ExitCode())
	},
}

func init() {
	phaseCmd.Flags().StringVar(&phaseIteration, "iteration-id", "", "Iteration id")
	phaseCmd.Flags().StringVar(&phaseFrom, "from", "", "Current phase, e.g. phase_2")
	phaseCmd.Flags().StringVar(&phaseTo, "to", "", "Target phase, e.g. phase_3")
	phaseCmd.Flags().BoolVar(&phaseForce, "force", false, "Override failing checks of a registered transition")
	phaseCmd.Flags().StringVar(&phaseReason, "reason", "", "Reason recorded in decisions.md when forcing")
	phaseCmd.Flags().BoolVar(&phaseCheckCompletion, "check-completion", false, "Only report whether the iteration is complete")
	_ = phaseCmd.MarkFlagRequired("iteration-id")
	phaseCmd.MarkFlagsMutuallyExclusive("check-completion", "force")
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/taskfield"
)

var (
	taskIteration string
	taskID        string
	taskField     string
	taskValue     string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Restricted task record operations",
}

var taskSetFieldCmd = &cobra.Command{
	Use:   "set-field",
	Short: "Write one whitelisted field of a task record",
	Long: `Write one field of <iteration>/tasks/<task>.yaml on behalf of an agent role.

Writable: status, done_evidence, review_result, notes, current_step.
Protected (exit 3): id, type, design, affected_files, acceptance_criteria, depends.

status accepts ready_for_review, rework or PASS. done_evidence must be a
JSON object with tests, logs and notes keys; review_result must be a JSON
object. notes are appended, never replaced.`,
	Example: `  phasegate task set-field --iteration-id iter-2 --task-id CR-001 --field status --value ready_for_review
  phasegate task set-field --iteration-id iter-2 --task-id CR-001 --field review_result --value '{"verdict":"PASS"}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := taskfield.Write(env.store, taskIteration, taskID, taskField, taskValue); err != nil {
			return err
		}
		env.rep.Item(report.Pass, "%s.%s updated", taskID, taskField)
		return nil
	},
}

func init() {
	taskSetFieldCmd.Flags().StringVar(&taskIteration, "iteration-id", "", "Iteration id")
	taskSetFieldCmd.Flags().StringVar(&taskID, "task-id", "", "Task id")
	taskSetFieldCmd.Flags().StringVar(&taskField, "field", "", "Field name")
	taskSetFieldCmd.Flags().StringVar(&taskValue, "value", "", "New value (string or JSON)")
	for _, name := range []string{"iteration-id", "task-id", "field", "value"} {
		_ = taskSetFieldCmd.MarkFlagRequired(name)
	}
	taskCmd.AddCommand(taskSetFieldCmd)
}

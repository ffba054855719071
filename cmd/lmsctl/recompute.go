package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute a student's progress in a course",
	Long: "Recompute syncs the stored progress of a student in a course with the\n" +
		"current content and attempts. --reset discards the stored progress first,\n" +
		"which is the way out of an unreadable progress record.",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		course, _ := cmd.Flags().GetString("course")
		reset, _ := cmd.Flags().GetBool("reset")

		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if reset {
			if err := a.Ledgers.Reset(ctx, student, course); err != nil {
				return fmt.Errorf("reset progress: %w", err)
			}
		}
		snap, err := a.Learning.GetProgressSnapshot(ctx, student, course)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), snap)
	},
}

func init() {
	recomputeCmd.Flags().String("student", "", "Student id")
	recomputeCmd.Flags().String("course", "", "Course id")
	recomputeCmd.Flags().Bool("reset", false, "Discard stored progress before recomputing")
	_ = recomputeCmd.MarkFlagRequired("student")
	_ = recomputeCmd.MarkFlagRequired("course")
}

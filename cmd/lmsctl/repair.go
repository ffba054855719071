package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lms/internal/attempt"
)

var repairCmd = &cobra.Command{
	Use:   "repair-attempts",
	Short: "Repair a student's attempt history for a quiz",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		quiz, _ := cmd.Flags().GetString("quiz")

		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var report attempt.Report
		err = a.Attempts.WithLock(ctx, student, quiz, func(ctx context.Context, s attempt.Store) error {
			report, err = attempt.Repair(ctx, s, student, quiz)
			return err
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	repairCmd.Flags().String("student", "", "Student id")
	repairCmd.Flags().String("quiz", "", "Quiz id")
	_ = repairCmd.MarkFlagRequired("student")
	_ = repairCmd.MarkFlagRequired("quiz")
}

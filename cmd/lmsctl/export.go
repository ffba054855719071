package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a student's course progress as XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		course, _ := cmd.Flags().GetString("course")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = course + "-" + student + ".xlsx"
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		if err := a.Learning.ExportReport(ctx, f, student, course); err != nil {
			f.Close()
			os.Remove(out)
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", out, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("student", "", "Student id")
	exportCmd.Flags().String("course", "", "Course id")
	exportCmd.Flags().StringP("out", "o", "", "Output file (default <course>-<student>.xlsx)")
	_ = exportCmd.MarkFlagRequired("student")
	_ = exportCmd.MarkFlagRequired("course")
}

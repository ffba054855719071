// Package report renders course progress as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	topicsSheet  = "Topics"
)

// CourseProgress is the data of one student's course report.
type CourseProgress struct {
	StudentID    string
	CourseID     string
	CourseTitle  string
	Category     string
	Percentage   float64
	Prerequisite string
	GeneratedAt  time.Time
	Lessons      []LessonRow
}

// LessonRow is one lesson and its topics.
type LessonRow struct {
	Title       string
	Completed   bool
	Submitted   bool
	Allowed     bool
	GoGreen     bool
	AvailableAt time.Time
	Topics      []TopicRow
}

// TopicRow is one topic line of the Topics sheet.
type TopicRow struct {
	Title     string
	Completed bool
	Submitted bool
	Allowed   bool
	Quizzes   int
	Attempted int
	Passed    int
	MarkedAt  *time.Time
}

var topicHeader = []any{"Lesson", "Topic", "Allowed", "Submitted", "Completed", "Quizzes", "Attempted", "Passed", "Marked at"}

// WriteCourseProgress writes the workbook to w.
func WriteCourseProgress(w io.Writer, p CourseProgress) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSummary(f, p); err != nil {
		return err
	}
	if _, err := f.NewSheet(topicsSheet); err != nil {
		return fmt.Errorf("create topics sheet: %w", err)
	}
	if err := writeTopics(f, p); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, p CourseProgress) error {
	rows := [][]any{
		{"Student", p.StudentID},
		{"Course", p.CourseTitle},
		{"Course ID", p.CourseID},
		{"Category", p.Category},
		{"Progress (%)", p.Percentage},
		{"Prerequisite", p.Prerequisite},
		{"Generated", p.GeneratedAt.UTC().Format(time.RFC3339)},
		{},
		{"Lesson", "Available from", "Allowed", "Submitted", "Completed", "Go green"},
	}
	for _, l := range p.Lessons {
		rows = append(rows, []any{
			l.Title,
			l.AvailableAt.UTC().Format("2006-01-02"),
			yesNo(l.Allowed),
			yesNo(l.Submitted),
			yesNo(l.Completed),
			yesNo(l.GoGreen),
		})
	}
	if err := setRows(f, summarySheet, rows); err != nil {
		return err
	}
	if err := boldRow(f, summarySheet, 9); err != nil {
		return err
	}
	return f.SetColWidth(summarySheet, "A", "B", 28)
}

func writeTopics(f *excelize.File, p CourseProgress) error {
	rows := [][]any{topicHeader}
	for _, l := range p.Lessons {
		for _, t := range l.Topics {
			marked := ""
			if t.MarkedAt != nil {
				marked = t.MarkedAt.UTC().Format(time.RFC3339)
			}
			rows = append(rows, []any{
				l.Title,
				t.Title,
				yesNo(t.Allowed),
				yesNo(t.Submitted),
				yesNo(t.Completed),
				t.Quizzes,
				t.Attempted,
				t.Passed,
				marked,
			})
		}
	}
	if err := setRows(f, topicsSheet, rows); err != nil {
		return err
	}
	if err := boldRow(f, topicsSheet, 1); err != nil {
		return err
	}
	return f.SetColWidth(topicsSheet, "A", "B", 32)
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func boldRow(f *excelize.File, sheet string, row int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	return f.SetRowStyle(sheet, row, row, style)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

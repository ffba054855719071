package learning

import (
	"context"
	"fmt"
	"io"

	"github.com/p-n-ai/pai-lms/internal/report"
)

// ExportReport writes the student's course progress as an XLSX workbook.
func (s *Service) ExportReport(ctx context.Context, w io.Writer, studentID, courseID string) error {
	view, err := s.GetCourseView(ctx, studentID, courseID)
	if err != nil {
		return err
	}

	p := report.CourseProgress{
		StudentID:    studentID,
		CourseID:     view.CourseID,
		CourseTitle:  view.Title,
		Category:     view.Category,
		Percentage:   view.Percentage,
		Prerequisite: string(view.PrerequisiteStatus),
		GeneratedAt:  s.clock.Now(),
	}
	for _, l := range view.Lessons {
		row := report.LessonRow{
			Title:       l.Title,
			Completed:   l.IsCompleted,
			Submitted:   l.IsSubmitted,
			Allowed:     l.IsAllowed,
			GoGreen:     l.GoGreen,
			AvailableAt: l.ReleasePlan.AvailableAt,
		}
		for _, t := range l.Topics {
			row.Topics = append(row.Topics, report.TopicRow{
				Title:     t.Title,
				Completed: t.IsCompleted,
				Submitted: t.IsSubmitted,
				Allowed:   t.IsAllowed,
				Quizzes:   t.Quizzes.Count,
				Attempted: t.Quizzes.Attempted,
				Passed:    t.Quizzes.Passed,
				MarkedAt:  t.MarkedAt,
			})
		}
		p.Lessons = append(p.Lessons, row)
	}

	if err := report.WriteCourseProgress(w, p); err != nil {
		return fmt.Errorf("export course %s: %w", courseID, err)
	}
	return nil
}

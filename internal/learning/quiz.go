package learning

import (
	"context"
	"errors"
	"log/slog"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/events"
	"github.com/p-n-ai/pai-lms/internal/gate"
	"github.com/p-n-ai/pai-lms/internal/platform/apierr"
	"github.com/p-n-ai/pai-lms/internal/progress"
)

// GetPrerequisiteQuizView lets a student open an LLND or PTR assessment
// only while one of their enrolments still needs it.
func (s *Service) GetPrerequisiteQuizView(ctx context.Context, studentID, quizID string) (PrerequisiteQuizView, error) {
	d, err := s.gates.QuizAccess(ctx, studentID, quizID)
	if errors.Is(err, gate.ErrNotPrerequisite) {
		return PrerequisiteQuizView{}, apierr.NotFound("prerequisite quiz", quizID, err)
	}
	if err != nil {
		return PrerequisiteQuizView{}, apierr.Computation("evaluate prerequisite", err)
	}
	if !d.Blocks() {
		return PrerequisiteQuizView{}, apierr.NotRequired(d.Kind.Label()+" not required", DashboardLink)
	}

	view := PrerequisiteQuizView{QuizID: quizID, Kind: d.Kind, State: d.State}
	if q, err := s.content.GetQuiz(ctx, quizID); err == nil {
		view.Title = q.Title
	}
	return view, nil
}

// StartQuizAttempt repairs the attempt history and then resumes the live
// attempt or opens the next one.
func (s *Service) StartQuizAttempt(ctx context.Context, studentID, quizID string) (AttemptView, error) {
	q, err := s.content.GetQuiz(ctx, quizID)
	if err != nil {
		return AttemptView{}, contentError("quiz", quizID, err)
	}

	courseID := ""
	if q.TopicID == "" {
		if _, err := s.GetPrerequisiteQuizView(ctx, studentID, quizID); err != nil {
			return AttemptView{}, err
		}
	} else {
		courseID, err = s.courseOfTopic(ctx, q.TopicID)
		if err != nil {
			return AttemptView{}, err
		}
		res, err := s.sync.OnContentView(ctx, studentID, courseID)
		if err != nil {
			return AttemptView{}, mapSyncError(err, courseID)
		}
		if err := s.checkTopicAccess(res, q.TopicID); err != nil {
			return AttemptView{}, err
		}
	}

	a, decision, report, err := attempt.Start(ctx, s.attempts, studentID, quizID, q.AllowedAttempts, s.clock.Now())
	if report.Inconsistent() {
		s.logEvent(ctx, events.Event{
			StudentID: studentID,
			CourseID:  courseID,
			Type:      events.TypeAttemptRepaired,
			Data: map[string]any{
				"quiz_id":   quizID,
				"deleted":   report.Deleted,
				"stale":     report.Stale,
				"ambiguous": report.Ambiguous,
			},
		})
	}
	if err != nil {
		return AttemptView{}, apierr.Computation("start attempt", err)
	}
	if !decision.Allowed {
		action := DashboardLink
		if q.TopicID != "" {
			action = TopicLink(q.TopicID)
		}
		return AttemptView{}, apierr.AccessDenied(decision.Reason, action)
	}

	if !decision.Resume {
		s.logEvent(ctx, events.Event{
			StudentID: studentID,
			CourseID:  courseID,
			Type:      events.TypeAttemptStarted,
			Data:      map[string]any{"quiz_id": quizID, "attempt": a.Number},
		})
	}
	return AttemptView{Attempt: a, Resumed: decision.Resume, Repaired: report.Deleted}, nil
}

// SubmitQuizAttempt hands in a live attempt and refreshes the progress it
// affects.
func (s *Service) SubmitQuizAttempt(ctx context.Context, studentID, attemptID string) (AttemptView, error) {
	a, err := attempt.Submit(ctx, s.attempts, studentID, attemptID, s.clock.Now())
	switch {
	case errors.Is(err, attempt.ErrNotFound):
		return AttemptView{}, apierr.NotFound("attempt", attemptID, err)
	case errors.Is(err, attempt.ErrNotLive):
		return AttemptView{}, apierr.AccessDenied("attempt is not in progress", QuizLink(attemptQuizID(ctx, s.attempts, attemptID)))
	case err != nil:
		return AttemptView{}, apierr.Computation("submit attempt", err)
	}

	courseID := s.refreshAfterAttempt(ctx, a)
	s.logEvent(ctx, events.Event{
		StudentID: studentID,
		CourseID:  courseID,
		Type:      events.TypeAttemptSubmitted,
		Data:      map[string]any{"quiz_id": a.QuizID, "attempt": a.Number},
	})
	return AttemptView{Attempt: a}, nil
}

// EvaluateQuizAttempt records an assessor's outcome and refreshes the
// progress it affects.
func (s *Service) EvaluateQuizAttempt(ctx context.Context, attemptID string, status attempt.Status) (AttemptView, error) {
	a, err := attempt.Evaluate(ctx, s.attempts, attemptID, status, s.clock.Now())
	if errors.Is(err, attempt.ErrNotFound) {
		return AttemptView{}, apierr.NotFound("attempt", attemptID, err)
	}
	if err != nil {
		return AttemptView{}, apierr.Computation("evaluate attempt", err)
	}
	s.refreshAfterAttempt(ctx, a)
	return AttemptView{Attempt: a}, nil
}

// refreshAfterAttempt syncs the course of a course quiz, or refreshes the
// enrolment stats of every active enrolment after a prerequisite attempt.
// Failures are logged; the next view recomputes anyway.
func (s *Service) refreshAfterAttempt(ctx context.Context, a attempt.Attempt) string {
	q, err := s.content.GetQuiz(ctx, a.QuizID)
	if err != nil && !errors.Is(err, content.ErrNotFound) {
		s.warn("load quiz after attempt", a, err)
		return ""
	}

	if err == nil && q.TopicID != "" {
		courseID, err := s.courseOfTopic(ctx, q.TopicID)
		if err != nil {
			s.warn("resolve course after attempt", a, err)
			return ""
		}
		if _, err := s.sync.OnContentView(ctx, a.StudentID, courseID); err != nil {
			s.warn("sync after attempt", a, err)
		}
		return courseID
	}

	enrolments, err := s.enrolments.ActiveEnrolments(ctx, a.StudentID)
	if err != nil {
		s.warn("list enrolments after attempt", a, err)
		return ""
	}
	for _, e := range enrolments {
		if _, err := s.gates.UpdateStudentCourseStats(ctx, a.StudentID, e.CourseID); err != nil {
			s.warn("update enrolment stats", a, err)
		}
	}
	return ""
}

func (s *Service) warn(msg string, a attempt.Attempt, err error) {
	slog.Warn(msg,
		"student_id", a.StudentID,
		"quiz_id", a.QuizID,
		"attempt_id", a.ID,
		"error", err,
	)
}

func attemptQuizID(ctx context.Context, store attempt.Store, attemptID string) string {
	a, err := store.Get(ctx, attemptID)
	if err != nil {
		return ""
	}
	return a.QuizID
}

// MarkableEntity parses an entity type for MarkComplete.
func MarkableEntity(s string) (progress.EntityType, error) {
	t, err := progress.ParseEntityType(s)
	if err != nil {
		return "", apierr.NotFound("entity type", s, err)
	}
	return t, nil
}

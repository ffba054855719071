// Package learning exposes the student-facing progress and gating
// operations: course and topic views, manual completion, prerequisite
// assessments and quiz attempts.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/enrolment"
	"github.com/p-n-ai/pai-lms/internal/events"
	"github.com/p-n-ai/pai-lms/internal/gate"
	"github.com/p-n-ai/pai-lms/internal/platform/apierr"
	"github.com/p-n-ai/pai-lms/internal/platform/clock"
	"github.com/p-n-ai/pai-lms/internal/progress"
)

// Config holds dependencies for the learning service.
type Config struct {
	Content    content.Reader
	Attempts   attempt.Store
	Enrolments enrolment.Store
	Gates      *gate.Set
	Sync       *progress.Synchronizer
	Events     events.Logger // optional
	Clock      clock.Clock   // default: system clock
}

// Service implements the learning operations.
type Service struct {
	content    content.Reader
	attempts   attempt.Store
	enrolments enrolment.Store
	gates      *gate.Set
	sync       *progress.Synchronizer
	events     events.Logger
	clock      clock.Clock
}

// NewService creates a learning service.
func NewService(cfg Config) *Service {
	logger := cfg.Events
	if logger == nil {
		logger = events.NopLogger{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		content:    cfg.Content,
		attempts:   cfg.Attempts,
		enrolments: cfg.Enrolments,
		gates:      cfg.Gates,
		sync:       cfg.Sync,
		events:     logger,
		clock:      clk,
	}
}

// GetCourseView syncs the student's ledger and returns the annotated tree.
func (s *Service) GetCourseView(ctx context.Context, studentID, courseID string) (CourseView, error) {
	res, err := s.sync.OnContentView(ctx, studentID, courseID)
	if err != nil {
		return CourseView{}, mapSyncError(err, courseID)
	}
	return s.courseView(res), nil
}

// GetProgressSnapshot syncs the student's ledger and returns its summary.
func (s *Service) GetProgressSnapshot(ctx context.Context, studentID, courseID string) (progress.Snapshot, error) {
	res, err := s.sync.OnContentView(ctx, studentID, courseID)
	if err != nil {
		return progress.Snapshot{}, mapSyncError(err, courseID)
	}
	if res.Degraded {
		return progress.Snapshot{}, apierr.Computation("progress is temporarily unavailable", nil)
	}
	return res.Ledger.Snapshot(), nil
}

// GetTopicView returns a topic page, or AccessDenied when the prerequisite
// gate, the release plan or sequential unlocking keeps the student out.
func (s *Service) GetTopicView(ctx context.Context, studentID, topicID string) (TopicView, error) {
	courseID, err := s.courseOfTopic(ctx, topicID)
	if err != nil {
		return TopicView{}, err
	}
	res, err := s.sync.OnContentView(ctx, studentID, courseID)
	if err != nil {
		return TopicView{}, mapSyncError(err, courseID)
	}
	if err := s.checkTopicAccess(res, topicID); err != nil {
		return TopicView{}, err
	}

	tp, _ := res.Tree.Topic(topicID)
	entry := res.Ledger.Topics[topicID]
	view := TopicView{
		ID:          tp.ID,
		Title:       tp.Title,
		LessonID:    tp.LessonID,
		CourseID:    courseID,
		IsCompleted: entry.Completed,
		IsSubmitted: entry.Submitted,
		IsAllowed:   true,
		Quizzes:     []QuizSummary{},
	}
	for _, q := range res.Tree.Quizzes(topicID) {
		qe := res.Ledger.Quizzes[q.ID]
		view.Quizzes = append(view.Quizzes, QuizSummary{
			ID:              q.ID,
			Title:           q.Title,
			AllowedAttempts: q.AllowedAttempts,
			IsAttempted:     qe.Attempted,
			IsSubmitted:     qe.Submitted,
			IsCompleted:     qe.Completed,
			Status:          qe.AttemptStatus,
			Link:            QuizLink(q.ID),
		})
	}
	if next, ok := res.Tree.NextTopic(topicID); ok {
		view.NextLink = TopicLink(next.ID)
	}
	if prev, ok := res.Tree.PreviousTopic(topicID); ok {
		view.PreviousLink = TopicLink(prev.ID)
	}
	return view, nil
}

// MarkComplete force-completes a lesson, topic or quiz for a student.
func (s *Service) MarkComplete(ctx context.Context, studentID string, entity progress.EntityType, entityID string) (progress.Snapshot, error) {
	res, err := s.sync.OnMarkComplete(ctx, studentID, entity, entityID)
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrUnknownEntity), errors.Is(err, content.ErrNotFound):
			return progress.Snapshot{}, apierr.NotFound(string(entity), entityID, err)
		}
		return progress.Snapshot{}, mapSyncError(err, "")
	}
	if res.Degraded {
		return progress.Snapshot{}, apierr.Computation("progress is temporarily unavailable", nil)
	}
	return res.Ledger.Snapshot(), nil
}

// checkTopicAccess applies the course gate, the release plan and the
// sequential unlock rule, in that order.
func (s *Service) checkTopicAccess(res progress.Result, topicID string) error {
	if d, pending := res.Gate.Pending(); pending {
		return gateDenied(d)
	}
	if res.Degraded {
		return apierr.AccessDenied("progress is temporarily unavailable", DashboardLink)
	}

	tp, ok := res.Tree.Topic(topicID)
	if !ok {
		return apierr.NotFound("topic", topicID, content.ErrNotFound)
	}
	lesson, _ := res.Tree.Lesson(tp.LessonID)
	if plan := s.releasePlan(lesson, res.Enrolment); !plan.Released {
		return apierr.AccessDenied(
			fmt.Sprintf("lesson not yet released, available from %s", plan.AvailableAt.Format("2006-01-02")),
			CourseLink(res.Tree.Course.ID),
		)
	}

	if !res.Unlocker().TopicAllowed(topicID) {
		action := CourseLink(res.Tree.Course.ID)
		if prev, ok := res.Tree.PreviousTopic(topicID); ok {
			action = TopicLink(prev.ID)
		}
		return apierr.AccessDenied("previous topic not completed", action)
	}
	return nil
}

func (s *Service) courseView(res progress.Result) CourseView {
	l := res.Ledger
	view := CourseView{
		CourseID:           res.Tree.Course.ID,
		Title:              res.Tree.Course.Title,
		Category:           res.Tree.Course.Category,
		Percentage:         l.Percentage,
		PrerequisiteStatus: res.Gate.State(),
		Prerequisites:      res.Gate.Decisions,
		Lessons:            make([]LessonView, 0, len(res.Tree.Lessons)),
		Fingerprint:        progress.Fingerprint(l),
		Degraded:           res.Degraded,
	}

	for _, ls := range res.Tree.Lessons {
		lv := LessonView{
			ID:               ls.ID,
			Title:            ls.Title,
			Order:            ls.Order,
			EstimatedMinutes: ls.EstimatedMinutes,
			ReleasePlan:      s.releasePlan(ls, res.Enrolment),
			Topics:           []TopicSummary{},
		}
		if e := l.Lessons[ls.ID]; e != nil {
			lv.IsCompleted = e.Completed
			lv.IsSubmitted = e.Submitted
			lv.IsAllowed = e.Allowed
			lv.GoGreen = e.GoGreen
		}
		for _, tp := range res.Tree.Topics(ls.ID) {
			ts := TopicSummary{ID: tp.ID, Title: tp.Title}
			if e := l.Topics[tp.ID]; e != nil {
				ts.IsCompleted = e.Completed
				ts.IsSubmitted = e.Submitted
				ts.IsAllowed = e.Allowed
				ts.MarkedAt = e.MarkedAt
				ts.Quizzes = e.Quizzes
			}
			lv.Topics = append(lv.Topics, ts)
		}
		view.Lessons = append(view.Lessons, lv)
	}
	return view
}

func (s *Service) releasePlan(l content.Lesson, e enrolment.Enrolment) ReleasePlan {
	start := e.CourseStartAt
	if start.IsZero() {
		start = e.CreatedAt
	}
	at := l.Release.AvailableAt(start)
	return ReleasePlan{
		Rule:        l.Release.Rule,
		Days:        l.Release.Days,
		AvailableAt: at,
		Released:    !s.clock.Now().Before(at),
	}
}

func (s *Service) courseOfTopic(ctx context.Context, topicID string) (string, error) {
	tp, err := s.content.GetTopic(ctx, topicID)
	if err != nil {
		return "", contentError("topic", topicID, err)
	}
	l, err := s.content.GetLesson(ctx, tp.LessonID)
	if err != nil {
		return "", contentError("lesson", tp.LessonID, err)
	}
	return l.CourseID, nil
}

func (s *Service) logEvent(ctx context.Context, e events.Event) {
	e.CreatedAt = s.clock.Now()
	if err := s.events.LogEvent(ctx, e); err != nil {
		slog.Warn("failed to log event",
			"type", e.Type,
			"student_id", e.StudentID,
			"error", err,
		)
	}
}

func gateDenied(d gate.Decision) error {
	action := DashboardLink
	if d.QuizID != "" {
		action = QuizLink(d.QuizID)
	}
	return apierr.AccessDenied(d.Kind.Label()+" required", action)
}

func contentError(what, id string, err error) error {
	if errors.Is(err, content.ErrNotFound) {
		return apierr.NotFound(what, id, err)
	}
	return apierr.Computation("load "+what, err)
}

func mapSyncError(err error, courseID string) error {
	switch {
	case errors.Is(err, content.ErrNotFound):
		return apierr.NotFound("course", courseID, err)
	case errors.Is(err, enrolment.ErrNotFound):
		return apierr.NotFound("enrolment", courseID, err)
	}
	return apierr.Computation("sync progress", err)
}

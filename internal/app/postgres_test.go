package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-lms/internal/app"
	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/enrolment"
	"github.com/p-n-ai/pai-lms/internal/events"
	"github.com/p-n-ai/pai-lms/internal/platform/apierr"
	"github.com/p-n-ai/pai-lms/internal/platform/config"
	"github.com/p-n-ai/pai-lms/internal/progress"
)

const contentSQL = `
INSERT INTO courses (id, title, category) VALUES ('c1', 'Certificate III in Business', 'business');
INSERT INTO lessons (id, course_id, title, position) VALUES ('l1', 'c1', 'Lesson 1', 0);
INSERT INTO topics (id, lesson_id, title, position) VALUES
    ('t1', 'l1', 'Topic 1', 0),
    ('t2', 'l1', 'Topic 2', 1);
INSERT INTO quizzes (id, topic_id, title, position) VALUES
    ('q1', 't1', 'Quiz 1', 0),
    ('q2', 't2', 'Quiz 2', 0),
    ('llnd', NULL, 'LLND assessment', 0);
`

func startPostgres(t *testing.T) *app.App {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("lms"),
		postgres.WithUsername("lms"),
		postgres.WithPassword("lms"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	cfg := &config.Config{
		Storage:  "postgres",
		Database: config.DatabaseConfig{URL: url, MaxConns: 8, MinConns: 1},
		// No cache in this test; the app falls back to the in-process broker.
		Cache: config.CacheConfig{URL: "redis://127.0.0.1:1", TTL: time.Minute},
		LLND: config.PrerequisiteConfig{
			Enforcement: true,
			QuizID:      "llnd",
			Strictness:  "SATISFACTORY",
		},
		PTR: config.PrerequisiteConfig{Strictness: "SATISFACTORY"},
	}
	a, err := app.New(ctx, cfg, app.Options{Migrate: true})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(a.Close)

	if _, err := a.DB.Pool.Exec(ctx, contentSQL); err != nil {
		t.Fatalf("insert content: %v", err)
	}
	if _, err := a.Enrolments.Create(ctx, enrolment.Enrolment{
		StudentID:     "s1",
		CourseID:      "c1",
		Status:        enrolment.StatusEnrolled,
		CourseStartAt: time.Now().Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("create enrolment: %v", err)
	}
	return a
}

func TestPostgres_GateAndProgress(t *testing.T) {
	a := startPostgres(t)
	ctx := context.Background()
	svc := a.Learning

	if _, err := svc.GetTopicView(ctx, "s1", "t1"); !apierr.Is(err, apierr.KindAccessDenied) {
		t.Fatalf("GetTopicView() error = %v, want access denied", err)
	}

	started, err := svc.StartQuizAttempt(ctx, "s1", "llnd")
	if err != nil {
		t.Fatalf("StartQuizAttempt() error = %v", err)
	}
	if _, err := svc.SubmitQuizAttempt(ctx, "s1", started.Attempt.ID); err != nil {
		t.Fatalf("SubmitQuizAttempt() error = %v", err)
	}
	if _, err := svc.EvaluateQuizAttempt(ctx, started.Attempt.ID, attempt.StatusSatisfactory); err != nil {
		t.Fatalf("EvaluateQuizAttempt() error = %v", err)
	}

	if _, err := svc.GetTopicView(ctx, "s1", "t1"); err != nil {
		t.Fatalf("GetTopicView() after LLND error = %v", err)
	}
	view, err := svc.GetCourseView(ctx, "s1", "c1")
	if err != nil {
		t.Fatalf("GetCourseView() error = %v", err)
	}
	// prerequisite + t1 out of lesson, 2 topics, 2 quizzes and the prerequisite.
	if view.Percentage != 33.33 {
		t.Errorf("Percentage = %v, want 33.33", view.Percentage)
	}

	again, err := svc.GetCourseView(ctx, "s1", "c1")
	if err != nil {
		t.Fatalf("GetCourseView() error = %v", err)
	}
	if again.Fingerprint != view.Fingerprint {
		t.Error("repeated view changed the ledger")
	}

	e, err := a.Enrolments.ForCourse(ctx, "s1", "c1")
	if err != nil {
		t.Fatalf("ForCourse() error = %v", err)
	}
	if !e.HasLLNCompleted {
		t.Error("has_lln_completed not refreshed")
	}
	stats, err := a.Enrolments.Stats(ctx, e.ID)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.PreCourseAttemptID != started.Attempt.ID {
		t.Errorf("PreCourseAttemptID = %q, want %q", stats.PreCourseAttemptID, started.Attempt.ID)
	}
}

func TestPostgres_ConcurrentMarks(t *testing.T) {
	a := startPostgres(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "t1"
			if i%2 == 1 {
				id = "t2"
			}
			_, errs[i] = a.Learning.MarkComplete(ctx, "s1", progress.EntityTopic, id)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("MarkComplete #%d error = %v", i, err)
		}
	}

	l, err := a.Ledgers.Get(ctx, "s1", "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if l == nil || !l.Topics["t1"].Marked() || !l.Topics["t2"].Marked() {
		t.Fatalf("ledger lost a mark: %+v", l)
	}
	// Both topics complete the lesson: 3 of 6 nodes.
	if l.Percentage != 50 {
		t.Errorf("Percentage = %v, want 50", l.Percentage)
	}

	list, err := a.History.Recent(ctx, "s1", "c1", 20)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	marks := 0
	for _, e := range list {
		if e.Type == events.TypeMarkedComplete {
			marks++
		}
	}
	if marks != 2 {
		t.Errorf("marked_complete events = %d, want 2", marks)
	}
}

package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/enrolment"
	"github.com/p-n-ai/pai-lms/internal/events"
	"github.com/p-n-ai/pai-lms/internal/gate"
	"github.com/p-n-ai/pai-lms/internal/platform/clock"
)

const (
	attemptConcurrency = 8
	maxUpdateRetries   = 3
)

// SynchronizerConfig holds dependencies for the synchronizer.
type SynchronizerConfig struct {
	Content  content.Reader
	Attempts attempt.Store
	Gates    *gate.Set
	Ledgers  Store
	Events   events.Logger // optional
	Broker   events.Broker // optional
	Clock    clock.Clock   // default: system clock
}

// Synchronizer keeps ledgers in step with attempts, marks and gates.
type Synchronizer struct {
	content  content.Reader
	attempts attempt.Store
	gates    *gate.Set
	ledgers  Store
	events   events.Logger
	broker   events.Broker
	clock    clock.Clock
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	ledgers := cfg.Ledgers
	if ledgers == nil {
		ledgers = NewMemoryStore()
	}
	logger := cfg.Events
	if logger == nil {
		logger = events.NopLogger{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Synchronizer{
		content:  cfg.Content,
		attempts: cfg.Attempts,
		gates:    cfg.Gates,
		ledgers:  ledgers,
		events:   logger,
		broker:   cfg.Broker,
		clock:    clk,
	}
}

// Result is the outcome of one sync pass.
type Result struct {
	Ledger    *Ledger
	Tree      *content.Tree
	Enrolment enrolment.Enrolment
	Gate      gate.Status
	// Changed reports whether the stored ledger was written.
	Changed bool
	// Degraded is set when the ledger could not be computed. The ledger
	// then shows no progress and no access.
	Degraded bool
}

// Unlocker returns the access evaluator for the synced ledger.
func (r Result) Unlocker() Unlocker {
	return NewUnlocker(r.Tree, r.Ledger, NewFirstTopic(r.Tree, r.Gate.State()))
}

// OnContentView brings the ledger of a student in a course up to date.
func (s *Synchronizer) OnContentView(ctx context.Context, studentID, courseID string) (Result, error) {
	return s.sync(ctx, studentID, courseID, nil)
}

// OnMarkComplete force-completes a lesson, topic or quiz and recomputes
// the ledger of its course.
func (s *Synchronizer) OnMarkComplete(ctx context.Context, studentID string, entity EntityType, entityID string) (Result, error) {
	courseID, err := s.courseOf(ctx, entity, entityID)
	if err != nil {
		return Result{}, err
	}
	now := s.clock.Now()
	res, err := s.sync(ctx, studentID, courseID, func(l *Ledger) error {
		return l.Mark(entity, entityID, now)
	})
	if err != nil {
		return res, err
	}
	if res.Changed {
		s.logEvent(ctx, events.Event{
			StudentID: studentID,
			CourseID:  courseID,
			Type:      events.TypeMarkedComplete,
			Data: map[string]any{
				"entity_type": string(entity),
				"entity_id":   entityID,
				"percentage":  res.Ledger.Percentage,
			},
			CreatedAt: now,
		})
	}
	return res, nil
}

func (s *Synchronizer) sync(ctx context.Context, studentID, courseID string, mutate func(*Ledger) error) (Result, error) {
	tree, err := content.LoadTree(ctx, s.content, courseID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return Result{}, err
		}
		return s.degraded(studentID, courseID, nil, gate.Status{}, err), nil
	}

	status, enrol, err := s.gates.CourseStatus(ctx, studentID, courseID)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate gates: %w", err)
	}

	var (
		ledger    *Ledger
		prev      int64
		refreshed int
	)
	for try := 0; ; try++ {
		ledger, err = s.ledgers.Update(ctx, studentID, courseID, func(l *Ledger) error {
			prev = l.Version
			// Attempts are read with the ledger held so a slower pass cannot
			// write an older snapshot over a newer one.
			latest, err := s.latestAttempts(ctx, studentID, tree)
			if err != nil {
				return err
			}
			refreshed = l.Reconcile(tree, latest)
			if mutate != nil {
				if err := mutate(l); err != nil {
					return err
				}
			}
			Recompute(l, tree, status)
			return nil
		})
		if errors.Is(err, ErrVersionConflict) && try < maxUpdateRetries {
			continue
		}
		break
	}
	if errors.Is(err, ErrUnknownEntity) {
		return Result{}, err
	}
	if err != nil {
		return s.degraded(studentID, courseID, tree, status, err), nil
	}

	res := Result{
		Ledger:    ledger,
		Tree:      tree,
		Enrolment: enrol,
		Gate:      status,
		Changed:   ledger.Version != prev,
	}

	slog.Debug("progress synced",
		"student_id", studentID,
		"course_id", courseID,
		"refreshed_quizzes", refreshed,
		"changed", res.Changed,
		"percentage", ledger.Percentage,
	)

	if res.Changed {
		s.logEvent(ctx, events.Event{
			StudentID: studentID,
			CourseID:  courseID,
			Type:      events.TypeProgressSynced,
			Data: map[string]any{
				"percentage":        ledger.Percentage,
				"version":           ledger.Version,
				"refreshed_quizzes": refreshed,
			},
		})
		s.publish(ctx, ledger)
	}
	return res, nil
}

// degraded builds the fail-closed result: an unreconciled ledger, which
// reports 0% and no access.
func (s *Synchronizer) degraded(studentID, courseID string, tree *content.Tree, status gate.Status, cause error) Result {
	slog.Error("progress computation failed, failing closed",
		"student_id", studentID,
		"course_id", courseID,
		"error", cause,
	)

	l := New(studentID, courseID)
	state := status.State()
	if len(status.Decisions) == 0 {
		state = gate.StateRequiredPending
	}
	l.Prerequisite = Prerequisite{State: state, Decisions: status.Decisions}
	if tree == nil {
		tree = content.NewTree(content.Course{ID: courseID}, nil, nil, nil)
	} else {
		l.LessonCount, l.TopicCount, l.QuizCount = tree.Counts()
	}
	return Result{Ledger: l, Tree: tree, Gate: status, Degraded: true}
}

// latestAttempts loads the latest attempt of every quiz in the course.
func (s *Synchronizer) latestAttempts(ctx context.Context, studentID string, tree *content.Tree) (map[string]*attempt.Attempt, error) {
	var mu sync.Mutex
	latest := make(map[string]*attempt.Attempt)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(attemptConcurrency)
	for _, tp := range tree.Sequence() {
		for _, q := range tree.Quizzes(tp.ID) {
			g.Go(func() error {
				a, err := s.attempts.Latest(gctx, studentID, q.ID)
				if err != nil {
					return fmt.Errorf("latest attempt of quiz %s: %w", q.ID, err)
				}
				if a != nil {
					mu.Lock()
					latest[q.ID] = a
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return latest, nil
}

// courseOf resolves the course containing a node.
func (s *Synchronizer) courseOf(ctx context.Context, entity EntityType, id string) (string, error) {
	lessonID := id
	switch entity {
	case EntityQuiz:
		q, err := s.content.GetQuiz(ctx, id)
		if err != nil {
			return "", fmt.Errorf("get quiz %s: %w", id, err)
		}
		if q.TopicID == "" {
			return "", fmt.Errorf("quiz %s: %w", id, ErrUnknownEntity)
		}
		id = q.TopicID
		fallthrough
	case EntityTopic:
		t, err := s.content.GetTopic(ctx, id)
		if err != nil {
			return "", fmt.Errorf("get topic %s: %w", id, err)
		}
		lessonID = t.LessonID
	case EntityLesson:
	default:
		return "", fmt.Errorf("unknown entity type %q", entity)
	}

	l, err := s.content.GetLesson(ctx, lessonID)
	if err != nil {
		return "", fmt.Errorf("get lesson %s: %w", lessonID, err)
	}
	return l.CourseID, nil
}

func (s *Synchronizer) logEvent(ctx context.Context, e events.Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock.Now()
	}
	if err := s.events.LogEvent(ctx, e); err != nil {
		slog.Warn("failed to log progress event",
			"type", e.Type,
			"student_id", e.StudentID,
			"error", err,
		)
	}
}

func (s *Synchronizer) publish(ctx context.Context, l *Ledger) {
	if s.broker == nil {
		return
	}
	payload, err := json.Marshal(l.Snapshot())
	if err != nil {
		slog.Warn("failed to encode progress snapshot", "error", err)
		return
	}
	if err := s.broker.Publish(ctx, events.Channel(l.StudentID, l.CourseID), payload); err != nil {
		slog.Warn("failed to publish progress snapshot",
			"student_id", l.StudentID,
			"course_id", l.CourseID,
			"error", err,
		)
	}
}

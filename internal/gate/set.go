package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-lms/internal/enrolment"
	"github.com/p-n-ai/pai-lms/internal/platform/clock"
)

// ErrNotPrerequisite is returned by QuizAccess for an ordinary quiz.
var ErrNotPrerequisite = errors.New("quiz is not a prerequisite assessment")

// Status is the combined outcome of every gate for one enrolment.
type Status struct {
	Decisions []Decision `json:"decisions"`
}

// State folds the decisions: any pending gate makes the whole status
// pending, otherwise any satisfied gate makes it satisfied.
func (s Status) State() State {
	state := StateNotRequired
	for _, d := range s.Decisions {
		switch d.State {
		case StateRequiredPending:
			return StateRequiredPending
		case StateSatisfied:
			state = StateSatisfied
		}
	}
	return state
}

// Pending returns the first blocking decision.
func (s Status) Pending() (Decision, bool) {
	for _, d := range s.Decisions {
		if d.Blocks() {
			return d, true
		}
	}
	return Decision{}, false
}

// Decision returns the decision for one kind.
func (s Status) Decision(kind Kind) (Decision, bool) {
	for _, d := range s.Decisions {
		if d.Kind == kind {
			return d, true
		}
	}
	return Decision{}, false
}

// Set evaluates all configured gates together.
type Set struct {
	gates      []*Gate
	enrolments enrolment.Store
	clock      clock.Clock
}

// NewSet combines gates. Order matters: the first pending gate is the one
// named to the student.
func NewSet(enrolments enrolment.Store, clk clock.Clock, gates ...*Gate) *Set {
	if clk == nil {
		clk = clock.System{}
	}
	return &Set{gates: gates, enrolments: enrolments, clock: clk}
}

// Gates returns the configured gates in evaluation order.
func (s *Set) Gates() []*Gate { return s.gates }

// Exempt reports whether no gate can ever apply to the enrolment.
func (s *Set) Exempt(e enrolment.Enrolment) bool {
	for _, g := range s.gates {
		if ok, _ := g.Exempt(e); !ok {
			return false
		}
	}
	return true
}

// Evaluate runs every gate against one enrolment and refreshes the cached
// LLND flag on it.
func (s *Set) Evaluate(ctx context.Context, e enrolment.Enrolment) Status {
	st := Status{Decisions: make([]Decision, 0, len(s.gates))}
	for _, g := range s.gates {
		d := g.Evaluate(ctx, e)
		st.Decisions = append(st.Decisions, d)
		if g.kind == KindLLND {
			s.refreshLLN(ctx, e, d)
		}
	}
	return st
}

// CourseStatus evaluates the gates for the student's enrolment in a course.
// A missing enrolment is returned as enrolment.ErrNotFound; any other load
// failure yields a pending status for every enforced gate.
func (s *Set) CourseStatus(ctx context.Context, studentID, courseID string) (Status, enrolment.Enrolment, error) {
	e, err := s.enrolments.ForCourse(ctx, studentID, courseID)
	if errors.Is(err, enrolment.ErrNotFound) {
		return Status{}, enrolment.Enrolment{}, err
	}
	if err != nil {
		slog.Warn("enrolment unavailable, gates failing closed",
			"student_id", studentID,
			"course_id", courseID,
			"error", err,
		)
		return s.failClosed(), enrolment.Enrolment{StudentID: studentID, CourseID: courseID}, nil
	}
	return s.Evaluate(ctx, e), e, nil
}

// QuizAccess decides whether a student may open a prerequisite quiz. The
// returned decision is pending when at least one active enrolment still
// needs the assessment. A retired legacy assessment is never required.
func (s *Set) QuizAccess(ctx context.Context, studentID, quizID string) (Decision, error) {
	g := s.gateFor(quizID)
	if g == nil {
		for _, legacy := range s.gates {
			if legacy.cfg.IsLegacyQuiz(quizID) {
				return Decision{Kind: legacy.kind, State: StateNotRequired, QuizID: legacy.cfg.QuizID, Reason: "assessment retired"}, nil
			}
		}
		return Decision{}, fmt.Errorf("quiz %s: %w", quizID, ErrNotPrerequisite)
	}

	enrolments, err := s.enrolments.ActiveEnrolments(ctx, studentID)
	if err != nil {
		slog.Warn("enrolments unavailable, prerequisite quiz left open",
			"student_id", studentID,
			"quiz_id", quizID,
			"error", err,
		)
		return Decision{Kind: g.kind, State: StateRequiredPending, QuizID: g.cfg.QuizID, Reason: reasonUnavailable}, nil
	}

	out := Decision{Kind: g.kind, State: StateNotRequired, QuizID: g.cfg.QuizID, Reason: "no active enrolment requires it"}
	for _, e := range enrolments {
		d := g.Evaluate(ctx, e)
		switch d.State {
		case StateRequiredPending:
			return d, nil
		case StateSatisfied:
			out = d
		}
	}
	return out, nil
}

func (s *Set) gateFor(quizID string) *Gate {
	for _, g := range s.gates {
		if g.cfg.IsPrerequisiteQuiz(quizID) {
			return g
		}
	}
	return nil
}

func (s *Set) failClosed() Status {
	st := Status{}
	for _, g := range s.gates {
		d := Decision{Kind: g.kind, QuizID: g.cfg.QuizID, State: StateNotRequired, Reason: reasonNotEnforced}
		if g.cfg.Enforced() {
			d.State = StateRequiredPending
			d.Reason = reasonUnavailable
		}
		st.Decisions = append(st.Decisions, d)
	}
	return st
}

// refreshLLN keeps the enrolment's cached flag in line with the decision.
// Concurrent refreshes write the same value.
func (s *Set) refreshLLN(ctx context.Context, e enrolment.Enrolment, d Decision) {
	if e.ID == "" || d.Reason == reasonUnavailable {
		return
	}
	completed := d.State == StateSatisfied
	if e.HasLLNCompleted == completed {
		return
	}
	if err := s.enrolments.SetLLNCompleted(ctx, e.ID, completed); err != nil {
		slog.Warn("refresh has_lln_completed failed",
			"enrolment_id", e.ID,
			"error", err,
		)
	}
}

// UpdateStudentCourseStats recomputes the derived statistics of the
// student's enrolment in a course.
func (s *Set) UpdateStudentCourseStats(ctx context.Context, studentID, courseID string) (enrolment.Stats, error) {
	e, err := s.enrolments.ForCourse(ctx, studentID, courseID)
	if err != nil {
		return enrolment.Stats{}, fmt.Errorf("load enrolment: %w", err)
	}
	st := s.Evaluate(ctx, e)

	stats := enrolment.Stats{EnrolmentID: e.ID, UpdatedAt: s.clock.Now()}
	if d, ok := st.Decision(KindLLND); ok {
		stats.PreCourseAttemptID = d.AttemptID
	}
	if stats.PreCourseAttemptID == "" {
		for _, d := range st.Decisions {
			if d.AttemptID != "" {
				stats.PreCourseAttemptID = d.AttemptID
				break
			}
		}
	}
	if err := s.enrolments.SaveStats(ctx, stats); err != nil {
		return enrolment.Stats{}, fmt.Errorf("save enrolment stats: %w", err)
	}
	return stats, nil
}

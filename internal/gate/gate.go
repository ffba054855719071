package gate

import (
	"context"
	"log/slog"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/enrolment"
	"github.com/p-n-ai/pai-lms/internal/platform/clock"
)

// State is the gate state of one enrolment.
type State string

const (
	StateNotRequired     State = "NOT_REQUIRED"
	StateRequiredPending State = "REQUIRED_PENDING"
	StateSatisfied       State = "SATISFIED"
)

// Decision is the evaluated gate for one enrolment.
type Decision struct {
	Kind   Kind   `json:"kind"`
	State  State  `json:"state"`
	QuizID string `json:"quiz_id,omitempty"`
	// AttemptID is the most relevant attempt seen: the qualifying one when
	// satisfied, otherwise the latest.
	AttemptID string `json:"attempt_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Legacy    bool   `json:"legacy,omitempty"`
}

// Blocks reports whether the decision denies access to course content.
func (d Decision) Blocks() bool {
	return d.State == StateRequiredPending
}

const (
	reasonNotEnforced   = "enforcement disabled"
	reasonInactive      = "enrolment not active"
	reasonExempt        = "exempt course category"
	reasonNotMain       = "not a main course"
	reasonGrandfathered = "enrolment predates requirement"
	reasonUnavailable   = "attempt history unavailable"
)

// Gate evaluates one prerequisite assessment.
type Gate struct {
	kind     Kind
	cfg      Config
	attempts attempt.Store
}

// New creates a gate.
func New(kind Kind, cfg Config, attempts attempt.Store) *Gate {
	if cfg.Strictness == "" {
		cfg.Strictness = StrictSatisfactory
	}
	return &Gate{kind: kind, cfg: cfg, attempts: attempts}
}

// Kind returns the assessment this gate enforces.
func (g *Gate) Kind() Kind { return g.kind }

// Config returns the gate configuration.
func (g *Gate) Config() Config { return g.cfg }

// Exempt reports whether the enrolment never needs this assessment,
// independent of attempt history.
func (g *Gate) Exempt(e enrolment.Enrolment) (bool, string) {
	switch {
	case !g.cfg.Enforced():
		return true, reasonNotEnforced
	case !e.Active():
		return true, reasonInactive
	case g.cfg.Excluded(e.CourseCategory):
		return true, reasonExempt
	case !e.IsMainCourse():
		return true, reasonNotMain
	case g.grandfathered(e):
		return true, reasonGrandfathered
	}
	return false, ""
}

// Evaluate decides the gate for one enrolment. It never returns an error:
// failures to load attempts resolve to REQUIRED_PENDING.
func (g *Gate) Evaluate(ctx context.Context, e enrolment.Enrolment) Decision {
	d := Decision{Kind: g.kind, QuizID: g.cfg.QuizID}

	if exempt, reason := g.Exempt(e); exempt {
		d.State = StateNotRequired
		d.Reason = reason
		return d
	}

	current, err := g.attempts.Latest(ctx, e.StudentID, g.cfg.QuizID)
	if err != nil {
		slog.Warn("prerequisite gate failing closed",
			"kind", g.kind,
			"student_id", e.StudentID,
			"error", err,
		)
		d.State = StateRequiredPending
		d.Reason = reasonUnavailable
		return d
	}

	// An attempt on the current assessment is authoritative.
	if current != nil {
		d.AttemptID = current.ID
		if g.passes(*current) {
			d.State = StateSatisfied
			return d
		}
		d.State = StateRequiredPending
		d.Reason = g.kind.Label() + " required"
		return d
	}

	if g.cfg.LegacyQuizID != "" {
		legacy, err := g.attempts.Latest(ctx, e.StudentID, g.cfg.LegacyQuizID)
		if err != nil {
			slog.Warn("legacy prerequisite lookup failed",
				"kind", g.kind,
				"student_id", e.StudentID,
				"error", err,
			)
		} else if legacy != nil && g.legacyQualifies(*legacy, e) {
			d.State = StateSatisfied
			d.AttemptID = legacy.ID
			d.Legacy = true
			return d
		}
	}

	d.State = StateRequiredPending
	d.Reason = g.kind.Label() + " required"
	return d
}

// passes applies the configured strictness to an attempt.
func (g *Gate) passes(a attempt.Attempt) bool {
	if g.cfg.Strictness == StrictNotAttempting {
		return a.IsSubmitted()
	}
	return a.IsSatisfactory()
}

// legacyQualifies reports whether a previous-scheme attempt still counts.
// It does so when it was handed in before the cut-over, unless the
// enrolment started on or after the cut-over. The configured strictness
// does not apply: a legacy pass is never withdrawn by a later, stricter rule.
func (g *Gate) legacyQualifies(a attempt.Attempt, e enrolment.Enrolment) bool {
	if !a.IsSubmitted() {
		return false
	}
	if g.cfg.CutoffDate.IsZero() {
		return true
	}
	cutoff := clock.Date(g.cfg.CutoffDate.UTC())
	if !e.CourseStartAt.IsZero() && !e.CourseStartAt.UTC().Before(cutoff) {
		return false
	}
	passedAt := a.UpdatedAt
	if a.SubmittedAt != nil {
		passedAt = *a.SubmittedAt
	}
	return passedAt.UTC().Before(cutoff)
}

// grandfathered reports whether the enrolment was created on or before the
// cut-over date.
func (g *Gate) grandfathered(e enrolment.Enrolment) bool {
	if !g.cfg.GrandfatherByEnrolment || g.cfg.CutoffDate.IsZero() {
		return false
	}
	created := clock.Date(e.CreatedAt.UTC())
	cutoff := clock.Date(g.cfg.CutoffDate.UTC())
	return !created.After(cutoff)
}

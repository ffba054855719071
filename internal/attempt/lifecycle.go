package attempt

import (
	"context"
	"fmt"
	"time"
)

// Start repairs the history and then either resumes the live attempt or
// creates the next one, all under the (student, quiz) lock.
func Start(ctx context.Context, s Store, studentID, quizID string, allowedAttempts int, now time.Time) (Attempt, Decision, Report, error) {
	var (
		started  Attempt
		decision Decision
		report   Report
	)

	err := s.WithLock(ctx, studentID, quizID, func(ctx context.Context, s Store) error {
		var err error
		report, err = Repair(ctx, s, studentID, quizID)
		if err != nil {
			return err
		}

		history, err := s.All(ctx, studentID, quizID, false)
		if err != nil {
			return fmt.Errorf("load attempt history: %w", err)
		}
		decision = Decide(history, allowedAttempts)
		if !decision.Allowed {
			return nil
		}
		if decision.Resume {
			started = *decision.Last
			return nil
		}

		started, err = s.Create(ctx, Attempt{
			StudentID:    studentID,
			QuizID:       quizID,
			Number:       decision.NextNumber,
			Status:       StatusAttempting,
			SystemResult: ResultInProgress,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return fmt.Errorf("create attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return Attempt{}, Decision{}, report, err
	}
	return started, decision, report, nil
}

// Submit hands in the student's live attempt.
func Submit(ctx context.Context, s Store, studentID, attemptID string, now time.Time) (Attempt, error) {
	a, err := s.Get(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.StudentID != studentID || a.DeletedAt != nil {
		return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
	}

	err = s.WithLock(ctx, a.StudentID, a.QuizID, func(ctx context.Context, s Store) error {
		cur, err := s.Get(ctx, attemptID)
		if err != nil {
			return err
		}
		if !cur.IsLive() || cur.DeletedAt != nil {
			return fmt.Errorf("submit attempt %s: %w", attemptID, ErrNotLive)
		}
		cur.Status = StatusSubmitted
		cur.SystemResult = ResultCompleted
		cur.SubmittedAt = &now
		cur.UpdatedAt = now
		a = cur
		return s.Update(ctx, cur)
	})
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// Evaluate records an assessor's outcome on a submitted attempt.
func Evaluate(ctx context.Context, s Store, attemptID string, status Status, now time.Time) (Attempt, error) {
	switch status {
	case StatusSatisfactory, StatusNotSatisfactory, StatusReturned, StatusFail, StatusOverdue, StatusReviewing:
	default:
		return Attempt{}, fmt.Errorf("status %q is not an evaluation outcome", status)
	}

	a, err := s.Get(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	err = s.WithLock(ctx, a.StudentID, a.QuizID, func(ctx context.Context, s Store) error {
		cur, err := s.Get(ctx, attemptID)
		if err != nil {
			return err
		}
		if cur.IsLive() {
			return fmt.Errorf("evaluate attempt %s: still in progress", attemptID)
		}
		cur.Status = status
		cur.SystemResult = ResultEvaluated
		if status == StatusReviewing {
			cur.SystemResult = ResultCompleted
		}
		cur.UpdatedAt = now
		a = cur
		return s.Update(ctx, cur)
	})
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

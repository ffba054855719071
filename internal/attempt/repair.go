package attempt

import (
	"context"
	"fmt"
	"log/slog"
)

// Report describes what Repair found and changed in one attempt history.
type Report struct {
	StudentID string
	QuizID    string
	// Stale is set when the latest attempt is live but an older attempt was
	// already handed back (returned, failed, overdue, not satisfactory).
	Stale bool
	// Deleted lists attempts soft-deleted by the repair.
	Deleted []string
	// Ambiguous is set when more than one duplicate was found; nothing is
	// deleted in that case and an operator has to look.
	Ambiguous bool
}

// Repaired reports whether the history was changed.
func (r Report) Repaired() bool {
	return len(r.Deleted) > 0
}

// Inconsistent reports whether the history needed attention.
func (r Report) Inconsistent() bool {
	return r.Stale || r.Ambiguous || len(r.Deleted) > 0
}

// Repair restores the attempt history invariants for (student, quiz). It
// must run under Store.WithLock and is safe to call repeatedly.
//
// Rules:
//   - only the newest live attempt survives; older live attempts are
//     soft-deleted.
//   - when the newest attempt is stale, a single superseded duplicate
//     (same attempt number, followed by a SATISFACTORY or ATTEMPTING copy)
//     is soft-deleted.
func Repair(ctx context.Context, s Store, studentID, quizID string) (Report, error) {
	report := Report{StudentID: studentID, QuizID: quizID}

	history, err := s.All(ctx, studentID, quizID, false)
	if err != nil {
		return report, fmt.Errorf("load attempt history: %w", err)
	}
	if len(history) == 0 {
		return report, nil
	}

	liveIdx := -1
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].IsLive() {
			continue
		}
		if liveIdx == -1 {
			liveIdx = i
			continue
		}
		if err := s.SoftDelete(ctx, history[i].ID); err != nil {
			return report, fmt.Errorf("delete extra live attempt: %w", err)
		}
		report.Deleted = append(report.Deleted, history[i].ID)
	}
	if len(report.Deleted) > 0 {
		history, err = s.All(ctx, studentID, quizID, false)
		if err != nil {
			return report, fmt.Errorf("reload attempt history: %w", err)
		}
	}

	latest := history[len(history)-1]
	if latest.IsLive() {
		for _, a := range history[:len(history)-1] {
			if a.Status.Resubmittable() {
				report.Stale = true
				break
			}
		}
	}

	if report.Stale {
		dups := supersededDuplicates(history)
		switch {
		case len(dups) == 1:
			if err := s.SoftDelete(ctx, dups[0].ID); err != nil {
				return report, fmt.Errorf("delete duplicate attempt: %w", err)
			}
			report.Deleted = append(report.Deleted, dups[0].ID)
		case len(dups) > 1:
			report.Ambiguous = true
		}
	}

	if report.Inconsistent() {
		slog.Warn("inconsistent attempt state",
			"student_id", studentID,
			"quiz_id", quizID,
			"stale", report.Stale,
			"ambiguous", report.Ambiguous,
			"deleted", report.Deleted,
		)
	}
	return report, nil
}

// supersededDuplicates returns attempts that share a number with a later
// copy whose status is SATISFACTORY or ATTEMPTING. history must be sorted.
func supersededDuplicates(history []Attempt) []Attempt {
	var dups []Attempt
	for i := 0; i < len(history); {
		j := i
		for j+1 < len(history) && history[j+1].Number == history[i].Number {
			j++
		}
		if j > i {
			successor := history[j]
			if successor.Status == StatusSatisfactory || successor.Status == StatusAttempting {
				dups = append(dups, history[i:j]...)
			}
		}
		i = j + 1
	}
	return dups
}

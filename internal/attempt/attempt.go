// Package attempt stores quiz attempts and enforces the attempt history
// invariants: at most one live attempt per student and quiz, and a capped
// number of attempts.
package attempt

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when an attempt does not exist.
	ErrNotFound = errors.New("attempt not found")
	// ErrNotLive is returned when submitting an attempt that is not in progress.
	ErrNotLive = errors.New("attempt is not in progress")
)

// Status is the assessor-facing state of an attempt.
type Status string

const (
	StatusAttempting      Status = "ATTEMPTING"
	StatusSubmitted       Status = "SUBMITTED"
	StatusReviewing       Status = "REVIEWING"
	StatusSatisfactory    Status = "SATISFACTORY"
	StatusNotSatisfactory Status = "NOT SATISFACTORY"
	StatusReturned        Status = "RETURNED"
	StatusFail            Status = "FAIL"
	StatusOverdue         Status = "OVERDUE"
)

// Resubmittable reports whether a new attempt may follow an attempt in
// this status.
func (s Status) Resubmittable() bool {
	switch s {
	case StatusReturned, StatusFail, StatusOverdue, StatusNotSatisfactory:
		return true
	}
	return false
}

// SystemResult is the machine-facing lifecycle state of an attempt.
type SystemResult string

const (
	ResultInProgress SystemResult = "INPROGRESS"
	ResultCompleted  SystemResult = "COMPLETED"
	ResultEvaluated  SystemResult = "EVALUATED"
	ResultMarked     SystemResult = "MARKED"
)

// Attempt is one try of a student at a quiz.
type Attempt struct {
	ID           string       `json:"id"`
	StudentID    string       `json:"student_id"`
	QuizID       string       `json:"quiz_id"`
	Number       int          `json:"attempt"`
	Status       Status       `json:"status"`
	SystemResult SystemResult `json:"system_result"`
	SubmittedAt  *time.Time   `json:"submitted_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"`
}

// IsLive reports whether the attempt is still being worked on.
func (a Attempt) IsLive() bool {
	return a.SystemResult == ResultInProgress
}

// IsSubmitted reports whether the student has handed the attempt in.
func (a Attempt) IsSubmitted() bool {
	return a.Status != StatusAttempting && a.SystemResult != ResultInProgress
}

// IsSatisfactory reports whether the attempt passed.
func (a Attempt) IsSatisfactory() bool {
	return a.Status == StatusSatisfactory
}

// Store persists quiz attempts. Attempts are never hard-deleted.
type Store interface {
	Get(ctx context.Context, id string) (Attempt, error)
	// Latest returns the highest numbered non-deleted attempt, or nil.
	Latest(ctx context.Context, studentID, quizID string) (*Attempt, error)
	// All returns attempts ordered by number, then creation time.
	All(ctx context.Context, studentID, quizID string, includeDeleted bool) ([]Attempt, error)
	Create(ctx context.Context, a Attempt) (Attempt, error)
	Update(ctx context.Context, a Attempt) error
	SoftDelete(ctx context.Context, id string) error
	// WithLock runs fn while holding the exclusive (student, quiz) lock.
	// fn must use the Store it is given. WithLock is not reentrant.
	WithLock(ctx context.Context, studentID, quizID string, fn func(ctx context.Context, s Store) error) error
}

// SortHistory orders attempts by number, then creation time.
func SortHistory(history []Attempt) {
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Number != history[j].Number {
			return history[i].Number < history[j].Number
		}
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
}

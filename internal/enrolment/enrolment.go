// Package enrolment stores student course enrolments and their derived
// statistics.
package enrolment

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// ErrNotFound is returned when no active enrolment matches.
var ErrNotFound = errors.New("enrolment not found")

// Status is the lifecycle state of an enrolment.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusOnboarded Status = "ONBOARDED"
	StatusEnrolled  Status = "ENROLLED"
	StatusCompleted Status = "COMPLETED"
	StatusDelist    Status = "DELIST"
)

// Enrolment links a student to a course.
type Enrolment struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	CourseID        string    `json:"course_id"`
	CourseTitle     string    `json:"course_title"`
	CourseCategory  string    `json:"course_category"`
	Status          Status    `json:"status"`
	HasLLNCompleted bool      `json:"has_lln_completed"`
	CourseStartAt   time.Time `json:"course_start_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsMainCourse reports whether the enrolment is for a main (first
// semester) course. Derived from the course title.
func (e Enrolment) IsMainCourse() bool {
	return IsMainCourse(e.CourseTitle)
}

// Active reports whether the enrolment still counts.
func (e Enrolment) Active() bool {
	return e.Status != StatusDelist
}

// Stats is derived per enrolment.
type Stats struct {
	EnrolmentID string `json:"enrolment_id"`
	// PreCourseAttemptID points at the attempt used to decide prerequisite
	// satisfaction. Empty when none qualifies.
	PreCourseAttemptID string    `json:"pre_course_attempt_id,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Store persists enrolments.
type Store interface {
	// ActiveEnrolments returns the student's non-delisted enrolments.
	ActiveEnrolments(ctx context.Context, studentID string) ([]Enrolment, error)
	// ForCourse returns the student's current enrolment in a course.
	ForCourse(ctx context.Context, studentID, courseID string) (Enrolment, error)
	// Create records a new enrolment, retiring any earlier one for the
	// same course.
	Create(ctx context.Context, e Enrolment) (Enrolment, error)
	SetStatus(ctx context.Context, enrolmentID string, status Status) error
	SetLLNCompleted(ctx context.Context, enrolmentID string, completed bool) error
	SaveStats(ctx context.Context, s Stats) error
	Stats(ctx context.Context, enrolmentID string) (Stats, error)
}

var semesterTwo = cases.Fold().String("semester 2")

// IsMainCourse is false for courses whose title names semester 2.
func IsMainCourse(title string) bool {
	return !strings.Contains(cases.Fold().String(title), semesterTwo)
}

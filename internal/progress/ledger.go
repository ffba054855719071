// Package progress maintains the per student and course completion ledger:
// completion flags, percentage and unlock decisions for every lesson, topic
// and quiz.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/gate"
)

var (
	// ErrMalformedLedger is returned when a stored ledger cannot be decoded.
	ErrMalformedLedger = errors.New("malformed progress ledger")
	// ErrVersionConflict is returned when a ledger changed under a writer.
	ErrVersionConflict = errors.New("progress ledger version conflict")
	// ErrUnknownEntity is returned when marking an id outside the course.
	ErrUnknownEntity = errors.New("entity not in course")
)

// EntityType names a node kind of the content tree.
type EntityType string

const (
	EntityLesson EntityType = "lesson"
	EntityTopic  EntityType = "topic"
	EntityQuiz   EntityType = "quiz"
)

// ParseEntityType validates an entity type.
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityLesson, EntityTopic, EntityQuiz:
		return t, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Flags is the completion state shared by every node.
type Flags struct {
	Completed bool       `json:"completed"`
	Submitted bool       `json:"submitted"`
	Attempted bool       `json:"attempted"`
	MarkedAt  *time.Time `json:"marked_at,omitempty"`
}

// Marked reports whether a trainer force-completed the node.
func (f Flags) Marked() bool {
	return f.MarkedAt != nil
}

// Tally counts the quizzes of a topic.
type Tally struct {
	Count     int `json:"count"`
	Attempted int `json:"attempted"`
	Passed    int `json:"passed"`
}

// QuizEntry caches the latest attempt of a quiz.
type QuizEntry struct {
	Flags
	TopicID          string               `json:"topic_id"`
	AttemptID        string               `json:"attempt_id,omitempty"`
	AttemptNumber    int                  `json:"attempt_number,omitempty"`
	AttemptStatus    attempt.Status       `json:"attempt_status,omitempty"`
	AttemptResult    attempt.SystemResult `json:"attempt_result,omitempty"`
	AttemptUpdatedAt *time.Time           `json:"attempt_updated_at,omitempty"`
}

// TopicEntry is the ledger node of a topic.
type TopicEntry struct {
	Flags
	LessonID string `json:"lesson_id"`
	Quizzes  Tally  `json:"quizzes"`
	Allowed  bool   `json:"is_allowed"`
}

// LessonEntry is the ledger node of a lesson.
type LessonEntry struct {
	Flags
	Allowed bool `json:"is_allowed"`
	GoGreen bool `json:"go_green"`
}

// Prerequisite records the gate outcome counted in the percentage.
type Prerequisite struct {
	State     gate.State      `json:"state"`
	Counted   bool            `json:"counted"`
	Satisfied bool            `json:"satisfied"`
	Decisions []gate.Decision `json:"decisions,omitempty"`
}

// Ledger is the completion record of one student in one course. Nodes are
// kept in flat maps keyed by id; parent links live on the entries.
type Ledger struct {
	StudentID    string                  `json:"student_id"`
	CourseID     string                  `json:"course_id"`
	Percentage   float64                 `json:"percentage"`
	LessonCount  int                     `json:"lesson_count"`
	TopicCount   int                     `json:"topic_count"`
	QuizCount    int                     `json:"quiz_count"`
	Prerequisite Prerequisite            `json:"prerequisite"`
	Lessons      map[string]*LessonEntry `json:"lessons"`
	Topics       map[string]*TopicEntry  `json:"topics"`
	Quizzes      map[string]*QuizEntry   `json:"quizzes"`

	// Version is the stored row version, not part of the document.
	Version int64 `json:"-"`
}

// New creates an empty ledger.
func New(studentID, courseID string) *Ledger {
	return &Ledger{
		StudentID: studentID,
		CourseID:  courseID,
		Lessons:   make(map[string]*LessonEntry),
		Topics:    make(map[string]*TopicEntry),
		Quizzes:   make(map[string]*QuizEntry),
	}
}

// Mark force-completes a node. An existing mark keeps its original time so
// repeated marks leave the ledger unchanged.
func (l *Ledger) Mark(entity EntityType, id string, at time.Time) error {
	var f *Flags
	switch entity {
	case EntityLesson:
		if e, ok := l.Lessons[id]; ok {
			f = &e.Flags
		}
	case EntityTopic:
		if e, ok := l.Topics[id]; ok {
			f = &e.Flags
		}
	case EntityQuiz:
		if e, ok := l.Quizzes[id]; ok {
			f = &e.Flags
		}
	default:
		return fmt.Errorf("mark %s: unknown entity type", entity)
	}
	if f == nil {
		return fmt.Errorf("mark %s %s: %w", entity, id, ErrUnknownEntity)
	}

	f.Completed = true
	f.Submitted = true
	if f.MarkedAt == nil {
		t := storedTime(at)
		f.MarkedAt = &t
	}
	return nil
}

// Snapshot is the compact progress summary published to live subscribers.
type Snapshot struct {
	StudentID    string     `json:"student_id"`
	CourseID     string     `json:"course_id"`
	Percentage   float64    `json:"percentage"`
	Prerequisite gate.State `json:"prerequisite_status"`
	Completed    int        `json:"completed"`
	Total        int        `json:"total"`
	Fingerprint  string     `json:"fingerprint"`
}

// Snapshot summarizes the ledger.
func (l *Ledger) Snapshot() Snapshot {
	processed, total := l.counts()
	return Snapshot{
		StudentID:    l.StudentID,
		CourseID:     l.CourseID,
		Percentage:   l.Percentage,
		Prerequisite: l.Prerequisite.State,
		Completed:    processed,
		Total:        total,
		Fingerprint:  Fingerprint(l),
	}
}

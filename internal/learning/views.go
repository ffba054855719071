package learning

import (
	"time"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/gate"
	"github.com/p-n-ai/pai-lms/internal/progress"
)

// CourseView is the annotated course tree of one student.
type CourseView struct {
	CourseID           string          `json:"course_id"`
	Title              string          `json:"title"`
	Category           string          `json:"category"`
	Percentage         float64         `json:"percentage"`
	PrerequisiteStatus gate.State      `json:"prerequisite_status"`
	Prerequisites      []gate.Decision `json:"prerequisites,omitempty"`
	Lessons            []LessonView    `json:"lessons"`
	// Fingerprint identifies the ledger state the view was built from.
	Fingerprint string `json:"fingerprint"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// ReleasePlan describes when a lesson opens.
type ReleasePlan struct {
	Rule        content.ReleaseRule `json:"rule"`
	Days        int                 `json:"days,omitempty"`
	AvailableAt time.Time           `json:"available_at"`
	Released    bool                `json:"released"`
}

// LessonView is one lesson of a CourseView.
type LessonView struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Order            int            `json:"order"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	IsCompleted      bool           `json:"is_completed"`
	IsSubmitted      bool           `json:"is_submitted"`
	IsAllowed        bool           `json:"is_allowed"`
	GoGreen          bool           `json:"go_green"`
	ReleasePlan      ReleasePlan    `json:"release_plan"`
	Topics           []TopicSummary `json:"topics"`
}

// TopicSummary is a topic line inside a lesson.
type TopicSummary struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	IsCompleted bool           `json:"is_completed"`
	IsSubmitted bool           `json:"is_submitted"`
	IsAllowed   bool           `json:"is_allowed"`
	MarkedAt    *time.Time     `json:"marked_at,omitempty"`
	Quizzes     progress.Tally `json:"quizzes"`
}

// TopicView is a single topic page.
type TopicView struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	LessonID     string        `json:"lesson_id"`
	CourseID     string        `json:"course_id"`
	IsCompleted  bool          `json:"is_completed"`
	IsSubmitted  bool          `json:"is_submitted"`
	IsAllowed    bool          `json:"is_allowed"`
	Quizzes      []QuizSummary `json:"quizzes"`
	NextLink     string        `json:"next_link,omitempty"`
	PreviousLink string        `json:"previous_link,omitempty"`
}

// QuizSummary is a quiz line inside a topic.
type QuizSummary struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	AllowedAttempts int            `json:"allowed_attempts"`
	IsAttempted     bool           `json:"is_attempted"`
	IsSubmitted     bool           `json:"is_submitted"`
	IsCompleted     bool           `json:"is_completed"`
	Status          attempt.Status `json:"status,omitempty"`
	Link            string         `json:"link"`
}

// PrerequisiteQuizView is returned when a student may open a prerequisite
// assessment.
type PrerequisiteQuizView struct {
	QuizID string     `json:"quiz_id"`
	Title  string     `json:"title"`
	Kind   gate.Kind  `json:"kind"`
	State  gate.State `json:"state"`
}

// AttemptView is the result of starting or submitting an attempt.
type AttemptView struct {
	Attempt attempt.Attempt `json:"attempt"`
	Resumed bool            `json:"resumed,omitempty"`
	// Repaired lists attempts soft-deleted while repairing the history.
	Repaired []string `json:"repaired,omitempty"`
}

// Package content provides read-only access to the course content tree
// (Course → Lesson → Topic → Quiz).
package content

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a course, lesson, topic or quiz does not exist.
var ErrNotFound = errors.New("content not found")

// ReleaseRule controls when a lesson becomes available.
type ReleaseRule string

const (
	ReleaseImmediately ReleaseRule = "IMMEDIATELY"
	ReleaseAfterXDays  ReleaseRule = "AFTER_X_DAYS"
	ReleaseFixedDate   ReleaseRule = "FIXED_DATE"
)

// Release is a lesson's release plan.
type Release struct {
	Rule ReleaseRule `yaml:"rule" json:"rule"`
	Days int         `yaml:"days,omitempty" json:"days,omitempty"`
	Date time.Time   `yaml:"date,omitempty" json:"date,omitempty"`
}

// AvailableAt returns the moment the lesson opens for an enrolment that
// started at courseStart.
func (r Release) AvailableAt(courseStart time.Time) time.Time {
	switch r.Rule {
	case ReleaseAfterXDays:
		return courseStart.AddDate(0, 0, r.Days)
	case ReleaseFixedDate:
		if !r.Date.IsZero() {
			return r.Date
		}
	}
	return courseStart
}

// Course is the root of a content tree.
type Course struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	Category string `yaml:"category" json:"category"`
}

// Lesson is an ordered child of a course.
type Lesson struct {
	ID               string  `yaml:"id" json:"id"`
	CourseID         string  `yaml:"-" json:"course_id"`
	Title            string  `yaml:"title" json:"title"`
	Order            int     `yaml:"-" json:"order"`
	Release          Release `yaml:"release" json:"release"`
	EstimatedMinutes int     `yaml:"estimated_minutes" json:"estimated_minutes"`
}

// Topic is an ordered child of a lesson.
type Topic struct {
	ID               string `yaml:"id" json:"id"`
	LessonID         string `yaml:"-" json:"lesson_id"`
	Title            string `yaml:"title" json:"title"`
	Order            int    `yaml:"-" json:"order"`
	EstimatedMinutes int    `yaml:"estimated_minutes" json:"estimated_minutes"`
}

// Quiz is an ordered child of a topic. Prerequisite assessments are quizzes
// that sit outside any course tree and have an empty TopicID.
type Quiz struct {
	ID               string `yaml:"id" json:"id"`
	TopicID          string `yaml:"-" json:"topic_id"`
	Title            string `yaml:"title" json:"title"`
	Order            int    `yaml:"-" json:"order"`
	AllowedAttempts  int    `yaml:"allowed_attempts" json:"allowed_attempts"` // 0 = unlimited
	EstimatedMinutes int    `yaml:"estimated_minutes" json:"estimated_minutes"`
}

// Reader is the read-only content store. List methods return children
// ordered by Order ascending.
type Reader interface {
	GetCourse(ctx context.Context, id string) (Course, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)
	GetTopic(ctx context.Context, id string) (Topic, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	ListLessons(ctx context.Context, courseID string) ([]Lesson, error)
	ListTopics(ctx context.Context, lessonID string) ([]Topic, error)
	ListQuizzes(ctx context.Context, topicID string) ([]Quiz, error)
}

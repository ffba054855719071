// Package gate decides whether a student must pass a prerequisite
// assessment (LLND or PTR) before opening course content.
package gate

import (
	"strings"
	"time"
)

// Kind names a prerequisite assessment.
type Kind string

const (
	// KindLLND is the language, literacy, numeracy and digital check.
	KindLLND Kind = "LLND"
	// KindPTR is the pre-training review.
	KindPTR Kind = "PTR"
)

// Label is the human readable assessment name.
func (k Kind) Label() string {
	switch k {
	case KindLLND:
		return "LLND assessment"
	case KindPTR:
		return "Pre-Training Review"
	default:
		return string(k)
	}
}

// Strictness selects what counts as a passing attempt.
type Strictness string

const (
	// StrictSatisfactory requires an assessor to have marked the attempt
	// SATISFACTORY.
	StrictSatisfactory Strictness = "SATISFACTORY"
	// StrictNotAttempting accepts any handed-in attempt.
	StrictNotAttempting Strictness = "NOT_ATTEMPTING"
)

// Config holds the tunables of one gate.
type Config struct {
	Enforcement bool
	// Skip bypasses the gate in test and dev environments.
	Skip   bool
	QuizID string
	// LegacyQuizID is the assessment of the previous scheme. Deprecated:
	// only consulted when the student has no attempt on QuizID.
	LegacyQuizID       string
	ExcludedCategories []string
	// CutoffDate ends legacy satisfaction and, with GrandfatherByEnrolment,
	// exempts enrolments created on or before it.
	CutoffDate             time.Time
	GrandfatherByEnrolment bool
	Strictness             Strictness
}

// Enforced reports whether the gate can ever require anything.
func (c Config) Enforced() bool {
	return c.Enforcement && !c.Skip
}

// Excluded reports whether a course category is exempt.
func (c Config) Excluded(category string) bool {
	for _, ex := range c.ExcludedCategories {
		if strings.EqualFold(strings.TrimSpace(ex), strings.TrimSpace(category)) {
			return true
		}
	}
	return false
}

// IsPrerequisiteQuiz reports whether quizID is this gate's current
// assessment.
func (c Config) IsPrerequisiteQuiz(quizID string) bool {
	return quizID != "" && quizID == c.QuizID
}

// IsLegacyQuiz reports whether quizID is the retired assessment.
func (c Config) IsLegacyQuiz(quizID string) bool {
	return quizID != "" && quizID == c.LegacyQuizID
}

package progress

import (
	"math"

	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/gate"
)

// Percentage computes processed / total * 100 over every lesson, topic
// and quiz node plus the prerequisite node when it is counted. The result
// is rounded to two decimals; an empty course is 0.
func Percentage(l *Ledger) float64 {
	processed, total := l.counts()
	if total == 0 {
		return 0
	}
	return math.Round(float64(processed)/float64(total)*100*100) / 100
}

func (l *Ledger) counts() (processed, total int) {
	for _, e := range l.Lessons {
		total++
		if e.Completed {
			processed++
		}
	}
	for _, e := range l.Topics {
		total++
		if e.Completed {
			processed++
		}
	}
	for _, e := range l.Quizzes {
		total++
		if e.Completed {
			processed++
		}
	}
	if l.Prerequisite.Counted {
		total++
		if l.Prerequisite.Satisfied {
			processed++
		}
	}
	return processed, total
}

// Recompute derives completion flags, access flags and the percentage from
// a reconciled ledger and the gate status, writing all of them back onto
// the ledger.
func Recompute(l *Ledger, tree *content.Tree, status gate.Status) {
	state := status.State()
	l.Prerequisite = Prerequisite{
		State:     state,
		Counted:   state != gate.StateNotRequired,
		Satisfied: state == gate.StateSatisfied,
		Decisions: status.Decisions,
	}

	first := NewFirstTopic(tree, state)
	l.derive(tree, first)
	NewUnlocker(tree, l, first).annotate()

	l.LessonCount, l.TopicCount, l.QuizCount = tree.Counts()
	l.Percentage = Percentage(l)
}

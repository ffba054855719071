package progress

import (
	"time"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/content"
)

// Reconcile aligns the ledger with the course structure and refreshes the
// cached attempt of every quiz whose latest attempt changed. latest maps a
// quiz id to its latest non-deleted attempt; absent ids have none. It
// returns the number of quiz nodes refreshed.
func (l *Ledger) Reconcile(tree *content.Tree, latest map[string]*attempt.Attempt) int {
	lessons := make(map[string]bool, len(tree.Lessons))
	topics := make(map[string]bool)
	quizzes := make(map[string]bool)

	for _, ls := range tree.Lessons {
		lessons[ls.ID] = true
		if l.Lessons[ls.ID] == nil {
			l.Lessons[ls.ID] = &LessonEntry{}
		}
		for _, tp := range tree.Topics(ls.ID) {
			topics[tp.ID] = true
			if l.Topics[tp.ID] == nil {
				l.Topics[tp.ID] = &TopicEntry{}
			}
			l.Topics[tp.ID].LessonID = ls.ID
			for _, q := range tree.Quizzes(tp.ID) {
				quizzes[q.ID] = true
				if l.Quizzes[q.ID] == nil {
					l.Quizzes[q.ID] = &QuizEntry{}
				}
				l.Quizzes[q.ID].TopicID = tp.ID
			}
		}
	}

	// Content removed from the course drops out of the ledger.
	for id := range l.Lessons {
		if !lessons[id] {
			delete(l.Lessons, id)
		}
	}
	for id := range l.Topics {
		if !topics[id] {
			delete(l.Topics, id)
		}
	}
	for id := range l.Quizzes {
		if !quizzes[id] {
			delete(l.Quizzes, id)
		}
	}

	refreshed := 0
	for id, q := range l.Quizzes {
		if q.setAttempt(latest[id]) {
			refreshed++
		}
	}
	return refreshed
}

// setAttempt caches a, reporting whether anything changed.
func (q *QuizEntry) setAttempt(a *attempt.Attempt) bool {
	if a == nil {
		if q.AttemptID == "" {
			return false
		}
		q.AttemptID = ""
		q.AttemptNumber = 0
		q.AttemptStatus = ""
		q.AttemptResult = ""
		q.AttemptUpdatedAt = nil
		return true
	}

	updated := storedTime(a.UpdatedAt)
	// A read of the same attempt older than the cached one is ignored.
	if q.AttemptID == a.ID && q.AttemptUpdatedAt != nil && !updated.After(*q.AttemptUpdatedAt) {
		return false
	}
	q.AttemptID = a.ID
	q.AttemptNumber = a.Number
	q.AttemptStatus = a.Status
	q.AttemptResult = a.SystemResult
	q.AttemptUpdatedAt = &updated
	return true
}

// derive recomputes the completion flags bottom-up from cached attempts,
// marks and the first topic substitution.
func (l *Ledger) derive(tree *content.Tree, first FirstTopic) {
	for _, q := range l.Quizzes {
		q.Attempted = q.AttemptID != ""
		q.Submitted = q.Attempted && q.AttemptStatus != attempt.StatusAttempting && q.AttemptResult != attempt.ResultInProgress
		q.Completed = q.AttemptStatus == attempt.StatusSatisfactory
		q.applyMark()
	}

	for _, ls := range tree.Lessons {
		lesson := l.Lessons[ls.ID]
		topics := tree.Topics(ls.ID)
		lesson.Completed = len(topics) > 0
		lesson.Submitted = len(topics) > 0
		lesson.Attempted = false

		for _, tp := range topics {
			t := l.Topics[tp.ID]
			t.Quizzes = Tally{}
			t.Attempted = false
			for _, qz := range tree.Quizzes(tp.ID) {
				q := l.Quizzes[qz.ID]
				t.Quizzes.Count++
				if q.Submitted {
					t.Quizzes.Attempted++
				}
				if q.Completed {
					t.Quizzes.Passed++
				}
				t.Attempted = t.Attempted || q.Attempted
			}
			t.Completed = t.Quizzes.Count > 0 && t.Quizzes.Passed == t.Quizzes.Count
			t.Submitted = t.Quizzes.Count > 0 && t.Quizzes.Attempted == t.Quizzes.Count
			if first.Is(tp.ID) && first.Satisfied() {
				t.Completed = true
				t.Submitted = true
			}
			t.applyMark()

			lesson.Completed = lesson.Completed && t.Completed
			lesson.Submitted = lesson.Submitted && t.Submitted
			lesson.Attempted = lesson.Attempted || t.Attempted
		}
		lesson.applyMark()
	}
}

func (f *Flags) applyMark() {
	if f.Marked() {
		f.Completed = true
		f.Submitted = true
	}
}

// storedTime normalizes timestamps to what postgres keeps.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

package progress

import (
	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/gate"
)

// FirstTopic is the canonical first topic of a course. Its access and, for
// non-exempt courses, its completion are decided by the prerequisite gate
// instead of its own quizzes.
type FirstTopic struct {
	ID    string
	State gate.State
}

// NewFirstTopic resolves the first topic of tree under the gate state.
func NewFirstTopic(tree *content.Tree, state gate.State) FirstTopic {
	f := FirstTopic{State: state}
	if t, ok := tree.FirstTopic(); ok {
		f.ID = t.ID
	}
	return f
}

// Is reports whether topicID is the first topic.
func (f FirstTopic) Is(topicID string) bool {
	return f.ID != "" && f.ID == topicID
}

// Open reports whether the gate lets the student past the first topic.
func (f FirstTopic) Open() bool {
	return f.State != gate.StateRequiredPending
}

// Satisfied reports whether a passed assessment stands in for the first
// topic's own work.
func (f FirstTopic) Satisfied() bool {
	return f.State == gate.StateSatisfied
}

// Unlocker decides sequential access to topics and lessons.
type Unlocker struct {
	tree   *content.Tree
	ledger *Ledger
	first  FirstTopic
}

// NewUnlocker creates an Unlocker over a reconciled ledger.
func NewUnlocker(tree *content.Tree, ledger *Ledger, first FirstTopic) Unlocker {
	return Unlocker{tree: tree, ledger: ledger, first: first}
}

// TopicAllowed reports whether the student may enter a topic. Topics
// without ledger data are never allowed.
func (u Unlocker) TopicAllowed(topicID string) bool {
	tp, ok := u.tree.Topic(topicID)
	if !ok || u.ledger == nil {
		return false
	}
	if u.ledger.Lessons[tp.LessonID] == nil || u.ledger.Topics[topicID] == nil {
		return false
	}
	if u.first.Is(topicID) {
		return u.first.Open()
	}
	prev, ok := u.tree.PreviousTopic(topicID)
	if !ok {
		return u.first.Open()
	}
	return u.resolved(prev.ID)
}

// LessonAllowed reports whether a lesson's starting position is open.
func (u Unlocker) LessonAllowed(lessonID string) bool {
	if u.ledger == nil || u.ledger.Lessons[lessonID] == nil {
		return false
	}
	if topics := u.tree.Topics(lessonID); len(topics) > 0 {
		return u.TopicAllowed(topics[0].ID)
	}
	if prev, ok := u.tree.LastTopicBefore(lessonID); ok {
		return u.resolved(prev.ID)
	}
	return u.first.Open()
}

// GoGreen reports whether a lesson is open and the previous lesson's final
// topic is both completed and submitted. Always false for the first lesson.
func (u Unlocker) GoGreen(lessonID string) bool {
	prev, ok := u.tree.PreviousLesson(lessonID)
	if !ok || !u.LessonAllowed(lessonID) {
		return false
	}
	topics := u.tree.Topics(prev.ID)
	if len(topics) == 0 {
		return false
	}
	last := u.ledger.Topics[topics[len(topics)-1].ID]
	return last != nil && last.Completed && last.Submitted
}

// resolved reports whether the student is done with a predecessor topic.
// A topic whose quizzes were all handed in counts even when not passed. The
// first topic is settled by the gate unless the course is exempt, in which
// case its own work decides like any other topic.
func (u Unlocker) resolved(topicID string) bool {
	if u.first.Is(topicID) {
		switch u.first.State {
		case gate.StateSatisfied:
			return true
		case gate.StateRequiredPending:
			return false
		}
	}
	t := u.ledger.Topics[topicID]
	if t == nil {
		return false
	}
	return t.Completed || t.Submitted || t.Marked() || t.Quizzes.Count == t.Quizzes.Attempted
}

// annotate stores the access flags on every lesson and topic.
func (u Unlocker) annotate() {
	for _, ls := range u.tree.Lessons {
		lesson := u.ledger.Lessons[ls.ID]
		lesson.Allowed = u.LessonAllowed(ls.ID)
		lesson.GoGreen = u.GoGreen(ls.ID)
		for _, tp := range u.tree.Topics(ls.ID) {
			u.ledger.Topics[tp.ID].Allowed = u.TopicAllowed(tp.ID)
		}
	}
}

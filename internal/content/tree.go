package content

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// loadConcurrency bounds parallel reader calls while building a Tree.
const loadConcurrency = 8

// Tree is an immutable, indexed snapshot of one course's content.
type Tree struct {
	Course  Course
	Lessons []Lesson

	topics  map[string][]Topic // lesson id -> topics
	quizzes map[string][]Quiz  // topic id -> quizzes

	lessonByID map[string]Lesson
	topicByID  map[string]Topic
	quizByID   map[string]Quiz

	sequence []Topic       // all topics in document order
	position map[string]int // topic id -> index in sequence
}

// LoadTree reads the full content tree for a course.
func LoadTree(ctx context.Context, r Reader, courseID string) (*Tree, error) {
	course, err := r.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course %s: %w", courseID, err)
	}
	lessons, err := r.ListLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}

	var mu sync.Mutex
	topics := make(map[string][]Topic, len(lessons))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, l := range lessons {
		g.Go(func() error {
			ts, err := r.ListTopics(gctx, l.ID)
			if err != nil {
				return fmt.Errorf("list topics of lesson %s: %w", l.ID, err)
			}
			mu.Lock()
			topics[l.ID] = ts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quizzes := make(map[string][]Quiz)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, ts := range topics {
		for _, t := range ts {
			g.Go(func() error {
				qs, err := r.ListQuizzes(gctx, t.ID)
				if err != nil {
					return fmt.Errorf("list quizzes of topic %s: %w", t.ID, err)
				}
				mu.Lock()
				quizzes[t.ID] = qs
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewTree(course, lessons, topics, quizzes), nil
}

// NewTree indexes already loaded content. Children are sorted by Order.
func NewTree(course Course, lessons []Lesson, topics map[string][]Topic, quizzes map[string][]Quiz) *Tree {
	t := &Tree{
		Course:     course,
		Lessons:    append([]Lesson(nil), lessons...),
		topics:     make(map[string][]Topic, len(topics)),
		quizzes:    make(map[string][]Quiz, len(quizzes)),
		lessonByID: make(map[string]Lesson, len(lessons)),
		topicByID:  make(map[string]Topic),
		quizByID:   make(map[string]Quiz),
		position:   make(map[string]int),
	}
	sort.SliceStable(t.Lessons, func(i, j int) bool { return t.Lessons[i].Order < t.Lessons[j].Order })

	for _, l := range t.Lessons {
		t.lessonByID[l.ID] = l

		ts := append([]Topic(nil), topics[l.ID]...)
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].Order < ts[j].Order })
		t.topics[l.ID] = ts

		for _, tp := range ts {
			t.topicByID[tp.ID] = tp
			t.position[tp.ID] = len(t.sequence)
			t.sequence = append(t.sequence, tp)

			qs := append([]Quiz(nil), quizzes[tp.ID]...)
			sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
			t.quizzes[tp.ID] = qs
			for _, q := range qs {
				t.quizByID[q.ID] = q
			}
		}
	}
	return t
}

// Lesson returns a lesson by id.
func (t *Tree) Lesson(id string) (Lesson, bool) {
	l, ok := t.lessonByID[id]
	return l, ok
}

// Topic returns a topic by id.
func (t *Tree) Topic(id string) (Topic, bool) {
	tp, ok := t.topicByID[id]
	return tp, ok
}

// Quiz returns a quiz by id.
func (t *Tree) Quiz(id string) (Quiz, bool) {
	q, ok := t.quizByID[id]
	return q, ok
}

// Topics returns the ordered topics of a lesson.
func (t *Tree) Topics(lessonID string) []Topic {
	return t.topics[lessonID]
}

// Quizzes returns the ordered quizzes of a topic.
func (t *Tree) Quizzes(topicID string) []Quiz {
	return t.quizzes[topicID]
}

// Sequence returns every topic of the course in document order.
func (t *Tree) Sequence() []Topic {
	return t.sequence
}

// FirstTopic returns the first topic of the course in document order.
func (t *Tree) FirstTopic() (Topic, bool) {
	if len(t.sequence) == 0 {
		return Topic{}, false
	}
	return t.sequence[0], true
}

// PreviousTopic returns the topic preceding id in document order, crossing
// lesson boundaries.
func (t *Tree) PreviousTopic(id string) (Topic, bool) {
	i, ok := t.position[id]
	if !ok || i == 0 {
		return Topic{}, false
	}
	return t.sequence[i-1], true
}

// NextTopic returns the topic following id in document order.
func (t *Tree) NextTopic(id string) (Topic, bool) {
	i, ok := t.position[id]
	if !ok || i+1 >= len(t.sequence) {
		return Topic{}, false
	}
	return t.sequence[i+1], true
}

// LastTopicBefore returns the last topic of the lessons ordered before
// lessonID, skipping empty lessons.
func (t *Tree) LastTopicBefore(lessonID string) (Topic, bool) {
	for i := len(t.Lessons) - 1; i >= 0; i-- {
		if t.Lessons[i].ID != lessonID {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if ts := t.topics[t.Lessons[j].ID]; len(ts) > 0 {
				return ts[len(ts)-1], true
			}
		}
		return Topic{}, false
	}
	return Topic{}, false
}

// PreviousLesson returns the lesson ordered immediately before lessonID.
func (t *Tree) PreviousLesson(lessonID string) (Lesson, bool) {
	for i, l := range t.Lessons {
		if l.ID == lessonID {
			if i == 0 {
				return Lesson{}, false
			}
			return t.Lessons[i-1], true
		}
	}
	return Lesson{}, false
}

// Counts returns the structural totals of the course.
func (t *Tree) Counts() (lessons, topics, quizzes int) {
	return len(t.Lessons), len(t.sequence), len(t.quizByID)
}

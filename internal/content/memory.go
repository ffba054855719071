package content

import (
	"context"
	"fmt"
	"sync"
)

// CourseDoc is the nested, authoring-friendly shape of a course used by
// YAML fixtures and tests. Order is taken from list position.
type CourseDoc struct {
	Course  `yaml:",inline"`
	Lessons []LessonDoc `yaml:"lessons"`
}

// LessonDoc is a lesson with its topics.
type LessonDoc struct {
	Lesson `yaml:",inline"`
	Topics []TopicDoc `yaml:"topics"`
}

// TopicDoc is a topic with its quizzes.
type TopicDoc struct {
	Topic   `yaml:",inline"`
	Quizzes []Quiz `yaml:"quizzes"`
}

// MemoryReader is an in-memory implementation of Reader.
type MemoryReader struct {
	courses map[string]Course
	lessons map[string]Lesson
	topics  map[string]Topic
	quizzes map[string]Quiz

	lessonsByCourse map[string][]Lesson
	topicsByLesson  map[string][]Topic
	quizzesByTopic  map[string][]Quiz
	mu              sync.RWMutex
}

// NewMemoryReader creates an empty in-memory content store.
func NewMemoryReader() *MemoryReader {
	return &MemoryReader{
		courses:         make(map[string]Course),
		lessons:         make(map[string]Lesson),
		topics:          make(map[string]Topic),
		quizzes:         make(map[string]Quiz),
		lessonsByCourse: make(map[string][]Lesson),
		topicsByLesson:  make(map[string][]Topic),
		quizzesByTopic:  make(map[string][]Quiz),
	}
}

// AddCourse stores a course and all of its children, replacing any
// previous revision with the same id.
func (m *MemoryReader) AddCourse(doc CourseDoc) error {
	if doc.ID == "" {
		return fmt.Errorf("course id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.courses[doc.ID] = doc.Course
	lessons := make([]Lesson, 0, len(doc.Lessons))
	for i, ld := range doc.Lessons {
		l := ld.Lesson
		if l.ID == "" {
			return fmt.Errorf("course %s: lesson %d has no id", doc.ID, i)
		}
		l.CourseID = doc.ID
		l.Order = i
		if l.Release.Rule == "" {
			l.Release.Rule = ReleaseImmediately
		}
		m.lessons[l.ID] = l
		lessons = append(lessons, l)

		topics := make([]Topic, 0, len(ld.Topics))
		for j, td := range ld.Topics {
			t := td.Topic
			if t.ID == "" {
				return fmt.Errorf("lesson %s: topic %d has no id", l.ID, j)
			}
			t.LessonID = l.ID
			t.Order = j
			m.topics[t.ID] = t
			topics = append(topics, t)

			quizzes := make([]Quiz, 0, len(td.Quizzes))
			for k, q := range td.Quizzes {
				if q.ID == "" {
					return fmt.Errorf("topic %s: quiz %d has no id", t.ID, k)
				}
				q.TopicID = t.ID
				q.Order = k
				m.quizzes[q.ID] = q
				quizzes = append(quizzes, q)
			}
			m.quizzesByTopic[t.ID] = quizzes
		}
		m.topicsByLesson[l.ID] = topics
	}
	m.lessonsByCourse[doc.ID] = lessons
	return nil
}

// AddQuiz stores a quiz that is not part of any course tree, such as a
// prerequisite assessment.
func (m *MemoryReader) AddQuiz(q Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
}

func (m *MemoryReader) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *MemoryReader) GetLesson(_ context.Context, id string) (Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lessons[id]
	if !ok {
		return Lesson{}, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
	}
	return l, nil
}

func (m *MemoryReader) GetTopic(_ context.Context, id string) (Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[id]
	if !ok {
		return Topic{}, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *MemoryReader) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	return q, nil
}

func (m *MemoryReader) ListLessons(_ context.Context, courseID string) ([]Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.courses[courseID]; !ok {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	return append([]Lesson(nil), m.lessonsByCourse[courseID]...), nil
}

func (m *MemoryReader) ListTopics(_ context.Context, lessonID string) ([]Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Topic(nil), m.topicsByLesson[lessonID]...), nil
}

func (m *MemoryReader) ListQuizzes(_ context.Context, topicID string) ([]Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Quiz(nil), m.quizzesByTopic[topicID]...), nil
}

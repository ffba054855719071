package content_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-lms/internal/content"
)

func newTestReader(t *testing.T) *content.MemoryReader {
	t.Helper()
	r := content.NewMemoryReader()
	err := r.AddCourse(content.CourseDoc{
		Course: content.Course{ID: "c1", Title: "Course", Category: "business"},
		Lessons: []content.LessonDoc{
			{Lesson: content.Lesson{ID: "l1"}, Topics: []content.TopicDoc{
				{Topic: content.Topic{ID: "t1"}, Quizzes: []content.Quiz{{ID: "q1"}}},
				{Topic: content.Topic{ID: "t2"}, Quizzes: []content.Quiz{{ID: "q2"}, {ID: "q3"}}},
			}},
			{Lesson: content.Lesson{ID: "l-empty"}},
			{Lesson: content.Lesson{ID: "l2"}, Topics: []content.TopicDoc{
				{Topic: content.Topic{ID: "t3"}},
			}},
		},
	})
	if err != nil {
		t.Fatalf("AddCourse() error = %v", err)
	}
	return r
}

func TestLoadTree_Navigation(t *testing.T) {
	tree, err := content.LoadTree(context.Background(), newTestReader(t), "c1")
	if err != nil {
		t.Fatalf("LoadTree() error = %v", err)
	}

	lessons, topics, quizzes := tree.Counts()
	if lessons != 3 || topics != 3 || quizzes != 3 {
		t.Errorf("Counts() = %d/%d/%d, want 3/3/3", lessons, topics, quizzes)
	}

	first, ok := tree.FirstTopic()
	if !ok || first.ID != "t1" {
		t.Errorf("FirstTopic() = %v, %v, want t1", first.ID, ok)
	}

	prev, ok := tree.PreviousTopic("t3")
	if !ok || prev.ID != "t2" {
		t.Errorf("PreviousTopic(t3) = %v, %v, want t2 across empty lesson", prev.ID, ok)
	}
	if _, ok := tree.PreviousTopic("t1"); ok {
		t.Error("PreviousTopic(t1) should not exist")
	}

	next, ok := tree.NextTopic("t2")
	if !ok || next.ID != "t3" {
		t.Errorf("NextTopic(t2) = %v, %v, want t3", next.ID, ok)
	}

	last, ok := tree.LastTopicBefore("l2")
	if !ok || last.ID != "t2" {
		t.Errorf("LastTopicBefore(l2) = %v, %v, want t2", last.ID, ok)
	}
	if _, ok := tree.LastTopicBefore("l1"); ok {
		t.Error("LastTopicBefore(l1) should not exist")
	}

	prevLesson, ok := tree.PreviousLesson("l2")
	if !ok || prevLesson.ID != "l-empty" {
		t.Errorf("PreviousLesson(l2) = %v, %v, want l-empty", prevLesson.ID, ok)
	}
}

func TestLoadTree_UnknownCourse(t *testing.T) {
	_, err := content.LoadTree(context.Background(), newTestReader(t), "missing")
	if !errors.Is(err, content.ErrNotFound) {
		t.Errorf("LoadTree() error = %v, want ErrNotFound", err)
	}
}

func TestNewTree_SortsByOrder(t *testing.T) {
	tree := content.NewTree(
		content.Course{ID: "c"},
		[]content.Lesson{{ID: "b", Order: 1}, {ID: "a", Order: 0}},
		map[string][]content.Topic{
			"a": {{ID: "a2", Order: 1}, {ID: "a1", Order: 0}},
			"b": {{ID: "b1", Order: 0}},
		},
		nil,
	)

	var got []string
	for _, tp := range tree.Sequence() {
		got = append(got, tp.ID)
	}
	want := []string{"a1", "a2", "b1"}
	if len(got) != len(want) {
		t.Fatalf("Sequence() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sequence()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

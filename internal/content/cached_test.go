package content_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-lms/internal/content"
)

type mapKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapKV() *mapKV { return &mapKV{data: map[string][]byte{}} }

func (m *mapKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *mapKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type countingReader struct {
	content.Reader
	mu      sync.Mutex
	lessons int
}

func (c *countingReader) ListLessons(ctx context.Context, courseID string) ([]content.Lesson, error) {
	c.mu.Lock()
	c.lessons++
	c.mu.Unlock()
	return c.Reader.ListLessons(ctx, courseID)
}

func TestCachedReader_ReadThrough(t *testing.T) {
	inner := &countingReader{Reader: newTestReader(t)}
	kv := newMapKV()
	r := content.NewCachedReader(inner, kv, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		lessons, err := r.ListLessons(ctx, "c1")
		if err != nil {
			t.Fatalf("ListLessons() error = %v", err)
		}
		if len(lessons) != 3 {
			t.Fatalf("ListLessons() = %d, want 3", len(lessons))
		}
	}
	if inner.lessons != 1 {
		t.Errorf("inner ListLessons calls = %d, want 1", inner.lessons)
	}

	if err := r.Invalidate(ctx, "c1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := r.ListLessons(ctx, "c1"); err != nil {
		t.Fatalf("ListLessons() error = %v", err)
	}
	if inner.lessons != 2 {
		t.Errorf("inner ListLessons calls after invalidate = %d, want 2", inner.lessons)
	}
}

func TestCachedReader_ErrorsNotCached(t *testing.T) {
	kv := newMapKV()
	r := content.NewCachedReader(newTestReader(t), kv, time.Minute)

	if _, err := r.GetTopic(context.Background(), "missing"); err == nil {
		t.Fatal("GetTopic() should fail for unknown topic")
	}
	if len(kv.data) != 0 {
		t.Errorf("cache has %d entries, want 0", len(kv.data))
	}
}

func TestCachedReader_LoadTree(t *testing.T) {
	r := content.NewCachedReader(newTestReader(t), newMapKV(), time.Minute)

	tree, err := content.LoadTree(context.Background(), r, "c1")
	if err != nil {
		t.Fatalf("LoadTree() error = %v", err)
	}
	if q := tree.Quizzes("t2"); len(q) != 2 {
		t.Errorf("Quizzes(t2) = %d, want 2", len(q))
	}
}

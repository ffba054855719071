package content

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "content:v1:"

// KV is the byte cache used by CachedReader. *cache.Cache satisfies it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedReader is a read-through cache in front of another Reader.
// Content is immutable per course revision, so entries only expire by TTL
// or by an explicit Invalidate after authoring changes.
type CachedReader struct {
	next  Reader
	kv    KV
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedReader wraps next with a cache.
func NewCachedReader(next Reader, kv KV, ttl time.Duration) *CachedReader {
	return &CachedReader{next: next, kv: kv, ttl: ttl}
}

func (c *CachedReader) GetCourse(ctx context.Context, id string) (Course, error) {
	return readThrough(ctx, c, "course:"+id, func(ctx context.Context) (Course, error) {
		return c.next.GetCourse(ctx, id)
	})
}

func (c *CachedReader) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return readThrough(ctx, c, "lesson:"+id, func(ctx context.Context) (Lesson, error) {
		return c.next.GetLesson(ctx, id)
	})
}

func (c *CachedReader) GetTopic(ctx context.Context, id string) (Topic, error) {
	return readThrough(ctx, c, "topic:"+id, func(ctx context.Context) (Topic, error) {
		return c.next.GetTopic(ctx, id)
	})
}

func (c *CachedReader) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return readThrough(ctx, c, "quiz:"+id, func(ctx context.Context) (Quiz, error) {
		return c.next.GetQuiz(ctx, id)
	})
}

func (c *CachedReader) ListLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return readThrough(ctx, c, "lessons:"+courseID, func(ctx context.Context) ([]Lesson, error) {
		return c.next.ListLessons(ctx, courseID)
	})
}

func (c *CachedReader) ListTopics(ctx context.Context, lessonID string) ([]Topic, error) {
	return readThrough(ctx, c, "topics:"+lessonID, func(ctx context.Context) ([]Topic, error) {
		return c.next.ListTopics(ctx, lessonID)
	})
}

func (c *CachedReader) ListQuizzes(ctx context.Context, topicID string) ([]Quiz, error) {
	return readThrough(ctx, c, "quizzes:"+topicID, func(ctx context.Context) ([]Quiz, error) {
		return c.next.ListQuizzes(ctx, topicID)
	})
}

// Invalidate drops the cached lesson list and course record of a course.
// Child lists expire by TTL.
func (c *CachedReader) Invalidate(ctx context.Context, courseID string) error {
	return c.kv.Delete(ctx, cacheKeyPrefix+"course:"+courseID, cacheKeyPrefix+"lessons:"+courseID)
}

func readThrough[T any](ctx context.Context, c *CachedReader, key string, load func(context.Context) (T, error)) (T, error) {
	key = cacheKeyPrefix + key

	if b, ok, err := c.kv.Get(ctx, key); err != nil {
		slog.Warn("content cache read failed", "key", key, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		slog.Warn("discarding undecodable content cache entry", "key", key)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if b, err := json.Marshal(v); err == nil {
			if err := c.kv.Set(ctx, key, b, c.ttl); err != nil {
				slog.Warn("content cache write failed", "key", key, "error", err)
			}
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresReader reads the content tree from PostgreSQL.
type PostgresReader struct {
	pool *pgxpool.Pool
}

// NewPostgresReader creates a PostgreSQL-backed content reader.
func NewPostgresReader(pool *pgxpool.Pool) *PostgresReader {
	return &PostgresReader{pool: pool}
}

func (r *PostgresReader) GetCourse(ctx context.Context, id string) (Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var c Course
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, category FROM courses WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Title, &c.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return Course{}, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Course{}, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

const lessonColumns = `id, course_id, title, position, release_rule, release_days, release_date, estimated_minutes`

func (r *PostgresReader) GetLesson(ctx context.Context, id string) (Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	l, err := scanLesson(r.pool.QueryRow(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lesson{}, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Lesson{}, fmt.Errorf("get lesson: %w", err)
	}
	return l, nil
}

func (r *PostgresReader) ListLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := r.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE course_id = $1 ORDER BY position ASC, id ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	var lessons []Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return lessons, nil
}

const topicColumns = `id, lesson_id, title, position, estimated_minutes`

func (r *PostgresReader) GetTopic(ctx context.Context, id string) (Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t Topic
	err := r.pool.QueryRow(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.LessonID, &t.Title, &t.Order, &t.EstimatedMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Topic{}, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Topic{}, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (r *PostgresReader) ListTopics(ctx context.Context, lessonID string) ([]Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE lesson_id = $1 ORDER BY position ASC, id ASC`,
		lessonID,
	)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.LessonID, &t.Title, &t.Order, &t.EstimatedMinutes); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

const quizColumns = `id, COALESCE(topic_id, ''), title, position, allowed_attempts, estimated_minutes`

func (r *PostgresReader) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var q Quiz
	err := r.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE id = $1`,
		id,
	).Scan(&q.ID, &q.TopicID, &q.Title, &q.Order, &q.AllowedAttempts, &q.EstimatedMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Quiz{}, fmt.Errorf("get quiz: %w", err)
	}
	return q, nil
}

func (r *PostgresReader) ListQuizzes(ctx context.Context, topicID string) ([]Quiz, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE topic_id = $1 ORDER BY position ASC, id ASC`,
		topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []Quiz
	for rows.Next() {
		var q Quiz
		if err := rows.Scan(&q.ID, &q.TopicID, &q.Title, &q.Order, &q.AllowedAttempts, &q.EstimatedMinutes); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quizzes: %w", err)
	}
	return quizzes, nil
}

func scanLesson(row pgx.Row) (Lesson, error) {
	var l Lesson
	var rule string
	var releaseDate *time.Time
	if err := row.Scan(&l.ID, &l.CourseID, &l.Title, &l.Order, &rule, &l.Release.Days, &releaseDate, &l.EstimatedMinutes); err != nil {
		return Lesson{}, err
	}
	l.Release.Rule = ReleaseRule(rule)
	if releaseDate != nil {
		l.Release.Date = *releaseDate
	}
	return l, nil
}

package progress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-lms/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store on the course_progress table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, studentID, courseID string) (*Ledger, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		data    []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT details, version FROM course_progress
		 WHERE student_id = $1 AND course_id = $2 AND deleted_at IS NULL`,
		studentID, courseID,
	).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}

	l, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("student %s course %s: %w", studentID, courseID, err)
	}
	l.Version = version
	return l, nil
}

func (s *PostgresStore) Update(ctx context.Context, studentID, courseID string, fn func(*Ledger) error) (*Ledger, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	empty, err := Encode(New(studentID, courseID))
	if err != nil {
		return nil, err
	}

	var out *Ledger
	err = database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		// A soft-deleted ledger is replaced by an empty one.
		if _, err := tx.Exec(ctx,
			`INSERT INTO course_progress (student_id, course_id, details)
			 VALUES ($1, $2, $3::jsonb)
			 ON CONFLICT (student_id, course_id) DO UPDATE
			   SET details = EXCLUDED.details, percentage = 0, lesson_count = 0,
			       topic_count = 0, quiz_count = 0, deleted_at = NULL,
			       version = course_progress.version + 1, updated_at = NOW()
			   WHERE course_progress.deleted_at IS NOT NULL`,
			studentID, courseID, string(empty),
		); err != nil {
			return fmt.Errorf("ensure ledger: %w", err)
		}

		var (
			data    []byte
			version int64
		)
		if err := tx.QueryRow(ctx,
			`SELECT details, version FROM course_progress
			 WHERE student_id = $1 AND course_id = $2
			 FOR UPDATE`,
			studentID, courseID,
		).Scan(&data, &version); err != nil {
			return fmt.Errorf("lock ledger: %w", err)
		}

		l, err := Decode(data)
		if err != nil {
			return fmt.Errorf("student %s course %s: %w", studentID, courseID, err)
		}
		l.Version = version

		// JSONB does not keep our byte layout; compare canonical encodings.
		before, err := Encode(l)
		if err != nil {
			return err
		}
		if err := fn(l); err != nil {
			return err
		}
		after, err := Encode(l)
		if err != nil {
			return err
		}
		out = l
		if bytes.Equal(before, after) {
			return nil
		}

		tag, err := tx.Exec(ctx,
			`UPDATE course_progress
			 SET details = $3::jsonb, percentage = $4, lesson_count = $5, topic_count = $6,
			     quiz_count = $7, version = version + 1, updated_at = NOW()
			 WHERE student_id = $1 AND course_id = $2 AND version = $8`,
			studentID, courseID, string(after), l.Percentage,
			l.LessonCount, l.TopicCount, l.QuizCount, version,
		)
		if err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		l.Version = version + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Reset(ctx context.Context, studentID, courseID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`UPDATE course_progress SET deleted_at = NOW()
		 WHERE student_id = $1 AND course_id = $2 AND deleted_at IS NULL`,
		studentID, courseID,
	); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}

package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-lms/internal/platform/database"
)

const dbTimeout = 5 * time.Second

const attemptColumns = `id, student_id, quiz_id, attempt, status, system_result, submitted_at, created_at, updated_at, deleted_at`

// PostgresStore is a PostgreSQL-backed Store. Inside WithLock it is bound
// to the locking transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    database.Querier
}

// NewPostgresStore creates a PostgreSQL-backed attempt store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	a, err := scanAttempt(s.q.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Latest(ctx context.Context, studentID, quizID string) (*Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	a, err := scanAttempt(s.q.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM quiz_attempts
		 WHERE student_id = $1 AND quiz_id = $2 AND deleted_at IS NULL
		 ORDER BY attempt DESC, created_at DESC
		 LIMIT 1`,
		studentID, quizID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest attempt: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) All(ctx context.Context, studentID, quizID string, includeDeleted bool) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.q.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM quiz_attempts
		 WHERE student_id = $1 AND quiz_id = $2 AND ($3 OR deleted_at IS NULL)
		 ORDER BY attempt ASC, created_at ASC`,
		studentID, quizID, includeDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, a Attempt) (Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if a.StudentID == "" || a.QuizID == "" {
		return Attempt{}, fmt.Errorf("student_id and quiz_id are required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO quiz_attempts (id, student_id, quiz_id, attempt, status, system_result, submitted_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.StudentID, a.QuizID, a.Number, string(a.Status), string(a.SystemResult), a.SubmittedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Update(ctx context.Context, a Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	cmd, err := s.q.Exec(ctx,
		`UPDATE quiz_attempts
		 SET status = $2, system_result = $3, submitted_at = $4, updated_at = $5
		 WHERE id = $1`,
		a.ID, string(a.Status), string(a.SystemResult), a.SubmittedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.q.Exec(ctx,
		`UPDATE quiz_attempts SET deleted_at = COALESCE(deleted_at, NOW()) WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("soft delete attempt: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return nil
}

// WithLock serialises work on one (student, quiz) pair with a
// transaction-scoped advisory lock.
func (s *PostgresStore) WithLock(ctx context.Context, studentID, quizID string, fn func(ctx context.Context, s Store) error) error {
	if s.pool == nil {
		return fmt.Errorf("attempt store is already bound to a transaction")
	}
	return database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"quiz_attempt:"+studentID+":"+quizID,
		); err != nil {
			return fmt.Errorf("lock attempts: %w", err)
		}
		return fn(ctx, &PostgresStore{q: tx})
	})
}

func scanAttempt(row pgx.Row) (Attempt, error) {
	var a Attempt
	var status, result string
	if err := row.Scan(&a.ID, &a.StudentID, &a.QuizID, &a.Number, &status, &result, &a.SubmittedAt, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.SystemResult = SystemResult(result)
	return a, nil
}

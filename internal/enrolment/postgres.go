package enrolment

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

const enrolmentSelect = `
	SELECT e.id, e.student_id, e.course_id, c.title, c.category, e.status,
	       e.has_lln_completed, COALESCE(e.course_start_at, e.created_at), e.created_at
	FROM student_course_enrolments e
	JOIN courses c ON c.id = e.course_id`

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed enrolment store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ActiveEnrolments(ctx context.Context, studentID string) ([]Enrolment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		enrolmentSelect+`
		 WHERE e.student_id = $1 AND e.deleted_at IS NULL AND e.status <> $2
		 ORDER BY e.created_at ASC`,
		studentID, string(StatusDelist),
	)
	if err != nil {
		return nil, fmt.Errorf("query enrolments: %w", err)
	}
	defer rows.Close()

	var out []Enrolment
	for rows.Next() {
		e, err := scanEnrolment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrolment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ForCourse(ctx context.Context, studentID, courseID string) (Enrolment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	e, err := scanEnrolment(s.pool.QueryRow(ctx,
		enrolmentSelect+`
		 WHERE e.student_id = $1 AND e.course_id = $2 AND e.deleted_at IS NULL AND e.status <> $3
		 ORDER BY e.created_at DESC
		 LIMIT 1`,
		studentID, courseID, string(StatusDelist),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Enrolment{}, fmt.Errorf("student %s course %s: %w", studentID, courseID, ErrNotFound)
	}
	if err != nil {
		return Enrolment{}, fmt.Errorf("get enrolment: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Create(ctx context.Context, e Enrolment) (Enrolment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if e.StudentID == "" || e.CourseID == "" {
		return Enrolment{}, fmt.Errorf("student_id and course_id are required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusCreated
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.CourseStartAt.IsZero() {
		e.CourseStartAt = e.CreatedAt
	}

	err := database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE student_course_enrolments SET deleted_at = NOW()
			 WHERE student_id = $1 AND course_id = $2 AND deleted_at IS NULL`,
			e.StudentID, e.CourseID,
		); err != nil {
			return fmt.Errorf("retire previous enrolment: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO student_course_enrolments (id, student_id, course_id, status, has_lln_completed, course_start_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.StudentID, e.CourseID, string(e.Status), e.HasLLNCompleted, e.CourseStartAt, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert enrolment: %w", err)
		}
		// Progress is retired together with the enrolment it belongs to.
		if _, err := tx.Exec(ctx,
			`UPDATE course_progress SET deleted_at = NOW()
			 WHERE student_id = $1 AND course_id = $2 AND deleted_at IS NULL`,
			e.StudentID, e.CourseID,
		); err != nil {
			return fmt.Errorf("retire previous progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return Enrolment{}, err
	}
	return e, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, enrolmentID string, status Status) error {
	return s.exec(ctx, "set enrolment status",
		`UPDATE student_course_enrolments SET status = $2 WHERE id = $1`,
		enrolmentID, string(status),
	)
}

func (s *PostgresStore) SetLLNCompleted(ctx context.Context, enrolmentID string, completed bool) error {
	return s.exec(ctx, "set lln completed",
		`UPDATE student_course_enrolments SET has_lln_completed = $2 WHERE id = $1`,
		enrolmentID, completed,
	)
}

func (s *PostgresStore) SaveStats(ctx context.Context, st Stats) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	return s.exec(ctx, "save enrolment stats",
		`INSERT INTO enrolment_stats (enrolment_id, pre_course_attempt_id, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (enrolment_id)
		 DO UPDATE SET pre_course_attempt_id = EXCLUDED.pre_course_attempt_id, updated_at = EXCLUDED.updated_at`,
		st.EnrolmentID, nullIfEmpty(st.PreCourseAttemptID), st.UpdatedAt,
	)
}

func (s *PostgresStore) Stats(ctx context.Context, enrolmentID string) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	st := Stats{EnrolmentID: enrolmentID}
	var attemptID *string
	err := s.pool.QueryRow(ctx,
		`SELECT pre_course_attempt_id, updated_at FROM enrolment_stats WHERE enrolment_id = $1`,
		enrolmentID,
	).Scan(&attemptID, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("get enrolment stats: %w", err)
	}
	if attemptID != nil {
		st.PreCourseAttemptID = *attemptID
	}
	return st, nil
}

func (s *PostgresStore) exec(ctx context.Context, op, sql string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func scanEnrolment(row pgx.Row) (Enrolment, error) {
	var e Enrolment
	var status string
	if err := row.Scan(&e.ID, &e.StudentID, &e.CourseID, &e.CourseTitle, &e.CourseCategory, &status,
		&e.HasLLNCompleted, &e.CourseStartAt, &e.CreatedAt); err != nil {
		return Enrolment{}, err
	}
	e.Status = Status(status)
	return e, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

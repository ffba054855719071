// Package events records progress events and fans live progress snapshots
// out to subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Type names a progress event.
type Type string

const (
	TypeProgressSynced   Type = "progress_synced"
	TypeMarkedComplete   Type = "marked_complete"
	TypeAttemptStarted   Type = "attempt_started"
	TypeAttemptSubmitted Type = "attempt_submitted"
	TypeAttemptRepaired  Type = "attempt_repaired"
)

// Event is one entry in the progress event log.
type Event struct {
	ID        string         `json:"id"`
	StudentID string         `json:"student_id"`
	CourseID  string         `json:"course_id"`
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Logger defines event logging behavior.
type Logger interface {
	LogEvent(ctx context.Context, event Event) error
}

// History reads back logged events.
type History interface {
	Recent(ctx context.Context, studentID, courseID string, limit int) ([]Event, error)
}

// NopLogger ignores all events.
type NopLogger struct{}

func (NopLogger) LogEvent(context.Context, Event) error {
	return nil
}

func normalize(event Event) (Event, error) {
	if event.Type == "" {
		return Event{}, fmt.Errorf("event type is required")
	}
	if event.StudentID == "" {
		return Event{}, fmt.Errorf("student_id is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return event, nil
}

// MemoryLogger stores events in memory for tests.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{
		events: []Event{},
	}
}

func (l *MemoryLogger) LogEvent(_ context.Context, event Event) error {
	event, err := normalize(event)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// OfType returns the logged events of one type.
func (l *MemoryLogger) OfType(t Type) []Event {
	var out []Event
	for _, e := range l.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns the latest events of a student in a course, newest first.
func (l *MemoryLogger) Recent(_ context.Context, studentID, courseID string, limit int) ([]Event, error) {
	all := l.Events()
	var out []Event
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if all[i].StudentID == studentID && all[i].CourseID == courseID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// PostgresLogger inserts events into the progress_events table.
type PostgresLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresLogger(pool *pgxpool.Pool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	event, err := normalize(event)
	if err != nil {
		return err
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO progress_events (id, student_id, course_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		event.ID,
		event.StudentID,
		event.CourseID,
		string(event.Type),
		string(data),
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.Type,
		"student_id", event.StudentID,
		"course_id", event.CourseID,
	)
	return nil
}

// Recent returns the latest events of a student in a course, newest first.
func (l *PostgresLogger) Recent(ctx context.Context, studentID, courseID string, limit int) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT id, student_id, course_id, event_type, data, created_at
		 FROM progress_events
		 WHERE student_id = $1 AND course_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		studentID, courseID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			kind string
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &e.CourseID, &kind, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = Type(kind)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

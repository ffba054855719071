package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	attempts map[string]*Attempt
	mu       sync.RWMutex

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewMemoryStore creates a new in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string]*Attempt),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return *a, nil
}

func (s *MemoryStore) Latest(ctx context.Context, studentID, quizID string) (*Attempt, error) {
	history, err := s.All(ctx, studentID, quizID, false)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[len(history)-1]
	return &latest, nil
}

func (s *MemoryStore) All(_ context.Context, studentID, quizID string, includeDeleted bool) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for _, a := range s.attempts {
		if a.StudentID != studentID || a.QuizID != quizID {
			continue
		}
		if a.DeletedAt != nil && !includeDeleted {
			continue
		}
		out = append(out, *a)
	}
	SortHistory(out)
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, a Attempt) (Attempt, error) {
	if a.StudentID == "" || a.QuizID == "" {
		return Attempt{}, fmt.Errorf("student_id and quiz_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := s.attempts[a.ID]; exists {
		return Attempt{}, fmt.Errorf("attempt %s already exists", a.ID)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	stored := a
	s.attempts[a.ID] = &stored
	return a, nil
}

func (s *MemoryStore) Update(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.attempts[a.ID]
	if !ok {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	a.CreatedAt = existing.CreatedAt
	*existing = a
	return nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	if a.DeletedAt == nil {
		now := time.Now()
		a.DeletedAt = &now
	}
	return nil
}

func (s *MemoryStore) WithLock(ctx context.Context, studentID, quizID string, fn func(ctx context.Context, s Store) error) error {
	l := s.lockFor(studentID + ":" + quizID)
	l.Lock()
	defer l.Unlock()
	return fn(ctx, s)
}

func (s *MemoryStore) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

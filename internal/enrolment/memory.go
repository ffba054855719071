package enrolment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	enrolments map[string]*Enrolment
	retired    map[string]bool
	stats      map[string]Stats
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory enrolment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		enrolments: make(map[string]*Enrolment),
		retired:    make(map[string]bool),
		stats:      make(map[string]Stats),
	}
}

func (s *MemoryStore) ActiveEnrolments(_ context.Context, studentID string) ([]Enrolment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Enrolment
	for id, e := range s.enrolments {
		if e.StudentID == studentID && e.Active() && !s.retired[id] {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ForCourse(ctx context.Context, studentID, courseID string) (Enrolment, error) {
	active, err := s.ActiveEnrolments(ctx, studentID)
	if err != nil {
		return Enrolment{}, err
	}
	for i := len(active) - 1; i >= 0; i-- {
		if active[i].CourseID == courseID {
			return active[i], nil
		}
	}
	return Enrolment{}, fmt.Errorf("student %s course %s: %w", studentID, courseID, ErrNotFound)
}

func (s *MemoryStore) Create(_ context.Context, e Enrolment) (Enrolment, error) {
	if e.StudentID == "" || e.CourseID == "" {
		return Enrolment{}, fmt.Errorf("student_id and course_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.enrolments {
		if existing.StudentID == e.StudentID && existing.CourseID == e.CourseID {
			s.retired[id] = true
		}
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
	stored := e
	s.enrolments[e.ID] = &stored
	return e, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, enrolmentID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrolments[enrolmentID]
	if !ok {
		return fmt.Errorf("enrolment %s: %w", enrolmentID, ErrNotFound)
	}
	e.Status = status
	return nil
}

func (s *MemoryStore) SetLLNCompleted(_ context.Context, enrolmentID string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrolments[enrolmentID]
	if !ok {
		return fmt.Errorf("enrolment %s: %w", enrolmentID, ErrNotFound)
	}
	e.HasLLNCompleted = completed
	return nil
}

func (s *MemoryStore) SaveStats(_ context.Context, st Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.enrolments[st.EnrolmentID]; !ok {
		return fmt.Errorf("enrolment %s: %w", st.EnrolmentID, ErrNotFound)
	}
	s.stats[st.EnrolmentID] = st
	return nil
}

func (s *MemoryStore) Stats(_ context.Context, enrolmentID string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[enrolmentID]
	if !ok {
		return Stats{EnrolmentID: enrolmentID}, nil
	}
	return st, nil
}

package progress

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// Store persists ledgers, one per student and course.
type Store interface {
	// Get returns the stored ledger, or nil when none exists yet.
	Get(ctx context.Context, studentID, courseID string) (*Ledger, error)
	// Update re-reads the ledger under an exclusive lock, creating an empty
	// one when absent, applies fn and stores the result when it changed.
	Update(ctx context.Context, studentID, courseID string, fn func(*Ledger) error) (*Ledger, error)
	// Reset soft-deletes the ledger. The next Update starts from scratch.
	Reset(ctx context.Context, studentID, courseID string) error
}

type ledgerKey struct {
	studentID string
	courseID  string
}

type storedLedger struct {
	data    []byte
	version int64
}

// MemoryStore is an in-memory implementation of Store. Ledgers are kept
// encoded so reads never share state with writers.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[ledgerKey]storedLedger
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[ledgerKey]storedLedger)}
}

func (s *MemoryStore) Get(_ context.Context, studentID, courseID string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.ledgers[ledgerKey{studentID, courseID}]
	if !ok {
		return nil, nil
	}
	l, err := Decode(stored.data)
	if err != nil {
		return nil, fmt.Errorf("student %s course %s: %w", studentID, courseID, err)
	}
	l.Version = stored.version
	return l, nil
}

func (s *MemoryStore) Update(_ context.Context, studentID, courseID string, fn func(*Ledger) error) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{studentID, courseID}
	stored, ok := s.ledgers[key]

	var (
		l   *Ledger
		err error
	)
	if ok {
		l, err = Decode(stored.data)
		if err != nil {
			return nil, fmt.Errorf("student %s course %s: %w", studentID, courseID, err)
		}
	} else {
		l = New(studentID, courseID)
	}
	l.Version = stored.version

	before, err := Encode(l)
	if err != nil {
		return nil, err
	}
	if err := fn(l); err != nil {
		return nil, err
	}
	after, err := Encode(l)
	if err != nil {
		return nil, err
	}

	if ok && bytes.Equal(before, after) {
		return l, nil
	}
	l.Version = stored.version + 1
	s.ledgers[key] = storedLedger{data: after, version: l.Version}
	return l, nil
}

func (s *MemoryStore) Reset(_ context.Context, studentID, courseID string) error {
	s.mu.Lock()
	delete(s.ledgers, ledgerKey{studentID, courseID})
	s.mu.Unlock()
	return nil
}

// Raw returns the stored document of a ledger.
func (s *MemoryStore) Raw(studentID, courseID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.ledgers[ledgerKey{studentID, courseID}]
	return append([]byte(nil), stored.data...), ok
}

// PutRaw stores a document as is, bypassing validation.
func (s *MemoryStore) PutRaw(studentID, courseID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{studentID, courseID}
	s.ledgers[key] = storedLedger{data: append([]byte(nil), data...), version: s.ledgers[key].version + 1}
}

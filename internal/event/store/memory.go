package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"namereg/internal/event/models"
	"namereg/pkg/platform/sentinel"
)

// MemoryStore is an in-memory EventStore for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []models.Event
	nextID int64
}

// NewMemory constructs an empty in-memory event store.
func NewMemory() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Record(ctx context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) ListByNR(ctx context.Context, nrNum string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, e := range s.events {
		if e.NRNum == nrNum {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == id {
			copied := e
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("get event %d: %w", id, sentinel.ErrNotFound)
}

func (s *MemoryStore) StampResend(ctx context.Context, id int64, at time.Time) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			t := at
			s.events[i].ResendDate = &t
			copied := s.events[i]
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("stamp resend on event %d: %w", id, sentinel.ErrNotFound)
}

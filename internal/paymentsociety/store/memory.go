package store

import (
	"context"
	"sync"

	"namereg/internal/paymentsociety/models"
)

// MemoryStore is an in-memory PaymentStore for tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.PaymentSociety
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Create(_ context.Context, p *models.PaymentSociety) (*models.PaymentSociety, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.ID = s.nextID
	s.nextID++
	s.rows = append(s.rows, &cp)

	out := cp
	return &out, nil
}

func (s *MemoryStore) ListByNR(_ context.Context, nrNum string) ([]*models.PaymentSociety, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.PaymentSociety
	for _, row := range s.rows {
		if row.NRNum == nrNum {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

package store

import (
	"context"
	"fmt"
	"sync"

	"namereg/internal/user/models"
	"namereg/pkg/platform/sentinel"
)

// MemoryStore is an in-memory UserStore for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*models.User
	nextID int64
}

// NewMemory constructs an empty in-memory user store.
func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[string]*models.User), nextID: 1}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[u.Sub]; ok {
		existing.LastSeenAt = u.LastSeenAt
		existing.Username = u.Username
		copied := *existing
		return &copied, nil
	}

	stored := *u
	stored.ID = s.nextID
	s.nextID++
	if stored.SearchColumns == "" {
		stored.SearchColumns = models.DefaultSearchColumns
	}
	s.users[u.Sub] = &stored
	copied := stored
	return &copied, nil
}

func (s *MemoryStore) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[sub]
	if !ok {
		return nil, fmt.Errorf("get user %s: %w", sub, sentinel.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) UpdateSettings(ctx context.Context, sub, searchColumns string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[sub]
	if !ok {
		return nil, fmt.Errorf("update settings for %s: %w", sub, sentinel.ErrNotFound)
	}
	u.SearchColumns = searchColumns
	copied := *u
	return &copied, nil
}

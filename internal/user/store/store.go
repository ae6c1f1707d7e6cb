// Package store persists staff users.
package store

import (
	"context"

	"namereg/internal/user/models"
)

// UserStore is the persistence port for staff users.
type UserStore interface {
	// GetOrCreate returns the user for the identity, creating it with the
	// default settings on first sight and bumping last_seen otherwise.
	GetOrCreate(ctx context.Context, u *models.User) (*models.User, error)

	// GetBySub loads one user. Wraps sentinel.ErrNotFound when absent.
	GetBySub(ctx context.Context, sub string) (*models.User, error)

	// UpdateSettings saves the user's search columns.
	UpdateSettings(ctx context.Context, sub, searchColumns string) (*models.User, error)
}

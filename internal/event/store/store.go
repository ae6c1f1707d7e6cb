// Package store persists the audit trail.
package store

import (
	"context"
	"time"

	"namereg/internal/event/models"
)

// EventStore is the persistence port for audit events.
type EventStore interface {
	// Record appends an event and assigns its id.
	Record(ctx context.Context, e *models.Event) error

	// ListByNR returns an NR's events, oldest first.
	ListByNR(ctx context.Context, nrNum string) ([]models.Event, error)

	// GetByID loads one event. Wraps sentinel.ErrNotFound when absent.
	GetByID(ctx context.Context, id int64) (*models.Event, error)

	// StampResend sets the resend date on a notification event.
	StampResend(ctx context.Context, id int64, at time.Time) (*models.Event, error)
}

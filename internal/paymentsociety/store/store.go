// Package store persists society payment records. Stores are pure I/O and
// wrap infrastructure sentinels; domain rules live in the service.
package store

import (
	"context"

	"namereg/internal/paymentsociety/models"
)

// PaymentStore is the persistence port for society payments.
type PaymentStore interface {
	// Create inserts a payment record and assigns its ID.
	Create(ctx context.Context, p *models.PaymentSociety) (*models.PaymentSociety, error)

	// ListByNR returns every payment for a request, oldest first.
	ListByNR(ctx context.Context, nrNum string) ([]*models.PaymentSociety, error)
}

// Package models defines the society payment record attached to a name
// request.
package models

import (
	"encoding/json"
	"strings"
	"time"

	dErrors "namereg/pkg/domain-errors"
)

// Payment actions reported by the payment gateway.
const (
	ActionComplete = "COMPLETE"
	ActionUpgrade  = "UPGRADE"
	ActionReapply  = "REAPPLY"
	ActionRefund   = "REFUND"
)

// Payment statuses reported by the payment gateway.
const (
	StatusCompleted = "COMPLETED"
	StatusApproved  = "APPROVED"
	StatusRefunded  = "REFUNDED"
	StatusCancelled = "CANCELLED"
)

// PaymentSociety is one payment transaction for a society name request. The
// gateway's raw receipt rides along as JSON.
type PaymentSociety struct {
	ID            int64           `json:"id"`
	NRNum         string          `json:"nrNum"`
	CorpNum       string          `json:"corpNum,omitempty"`
	PaymentID     string          `json:"paymentId"`
	PaymentStatus string          `json:"paymentStatusCode"`
	PaymentAction string          `json:"paymentAction"`
	PaymentJSON   json.RawMessage `json:"paymentJson,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Validate checks the gateway vocabulary before the record is persisted.
func (p *PaymentSociety) Validate() error {
	if strings.TrimSpace(p.PaymentID) == "" {
		return dErrors.New(dErrors.CodeValidation, "paymentId is required")
	}
	switch p.PaymentAction {
	case ActionComplete, ActionUpgrade, ActionReapply, ActionRefund:
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown payment action")
	}
	switch p.PaymentStatus {
	case StatusCompleted, StatusApproved, StatusRefunded, StatusCancelled:
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown payment status")
	}
	return nil
}

// Settled reports whether the payment cleared.
func (p *PaymentSociety) Settled() bool {
	return p.PaymentStatus == StatusCompleted || p.PaymentStatus == StatusApproved
}

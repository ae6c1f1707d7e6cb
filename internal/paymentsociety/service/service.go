// Package service records society payments and applies their effect on the
// owning name request: a settled payment releases a PENDING_PAYMENT request
// back into the examination queue, an upgrade buys priority, a refund pulls
// the request out entirely.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	nrmodels "namereg/internal/namerequest/models"
	nrstore "namereg/internal/namerequest/store"
	"namereg/internal/paymentsociety/models"
	"namereg/internal/paymentsociety/store"
	"namereg/internal/queue"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/requestcontext"
)

// Recorder writes audit events for payment effects.
type Recorder interface {
	RecordSystem(ctx context.Context, action, nrNum string, state nrmodels.State, payload json.RawMessage) error
}

// Publisher enqueues applicant notifications.
type Publisher interface {
	PublishEmailNotification(ctx context.Context, nrNum, option string) error
}

// Service is the society payment application service.
type Service struct {
	payments  store.PaymentStore
	requests  nrstore.RequestStore
	events    Recorder
	publisher Publisher
	logger    *slog.Logger
}

// New constructs the payment service.
func New(payments store.PaymentStore, requests nrstore.RequestStore, events Recorder, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{payments: payments, requests: requests, events: events, publisher: publisher, logger: logger}
}

// RecordInput is one gateway transaction report.
type RecordInput struct {
	NRNum         string          `json:"nrNum"`
	CorpNum       string          `json:"corpNum"`
	PaymentID     string          `json:"paymentId"`
	PaymentStatus string          `json:"paymentStatusCode"`
	PaymentAction string          `json:"paymentAction"`
	PaymentJSON   json.RawMessage `json:"paymentJson"`
}

// Record persists the transaction and applies its state effect.
func (s *Service) Record(ctx context.Context, in RecordInput) (*models.PaymentSociety, error) {
	nrNum, err := nrmodels.NormalizeNRNum(in.NRNum)
	if err != nil {
		return nil, err
	}

	p := &models.PaymentSociety{
		NRNum:         nrNum,
		CorpNum:       in.CorpNum,
		PaymentID:     in.PaymentID,
		PaymentStatus: in.PaymentStatus,
		PaymentAction: in.PaymentAction,
		PaymentJSON:   in.PaymentJSON,
		CreatedAt:     requestcontext.Now(ctx),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.requests.GetByNRNum(ctx, nrNum); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("name request %s not found", nrNum))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load name request")
	}

	saved, err := s.payments.Create(ctx, p)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save payment")
	}

	if err := s.applyEffect(ctx, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) applyEffect(ctx context.Context, p *models.PaymentSociety) error {
	now := requestcontext.Now(ctx)

	switch p.PaymentAction {
	case models.ActionComplete, models.ActionReapply:
		if !p.Settled() {
			return nil
		}
		_, err := s.requests.Execute(ctx, p.NRNum, now, func(r *nrmodels.Request) error {
			if r.State != nrmodels.StatePendingPayment {
				return nil
			}
			if err := nrmodels.CanTransition(r.State, nrmodels.StateDraft, nrmodels.RoleSystem); err != nil {
				return err
			}
			prev := r.State
			r.PreviousState = &prev
			r.State = nrmodels.StateDraft
			if p.CorpNum != "" {
				r.CorpNum = p.CorpNum
			}
			return nil
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "release paid request")
		}
		s.recordEvent(ctx, "payment_completed", p, nrmodels.StateDraft)
		if p.PaymentAction == models.ActionReapply {
			s.notify(ctx, p.NRNum, queue.OptionRenewal)
		}

	case models.ActionUpgrade:
		if !p.Settled() {
			return nil
		}
		req, err := s.requests.Execute(ctx, p.NRNum, now, func(r *nrmodels.Request) error {
			r.Priority = true
			return nil
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "upgrade request priority")
		}
		s.recordEvent(ctx, "payment_completed", p, req.State)
		s.notify(ctx, p.NRNum, queue.OptionUpgrade)

	case models.ActionRefund:
		req, err := s.requests.Execute(ctx, p.NRNum, now, func(r *nrmodels.Request) error {
			if err := nrmodels.CanTransition(r.State, nrmodels.StateRefundRequested, nrmodels.RoleSystem); err != nil {
				return err
			}
			prev := r.State
			r.PreviousState = &prev
			r.State = nrmodels.StateRefundRequested
			return nil
		})
		if err != nil {
			if dErrors.CodeOf(err) != dErrors.CodeInternal && dErrors.CodeOf(err) != "" {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "mark refund requested")
		}
		s.recordEvent(ctx, "refund_requested", p, req.State)
		s.notify(ctx, p.NRNum, queue.OptionRefund)
	}
	return nil
}

func (s *Service) recordEvent(ctx context.Context, action string, p *models.PaymentSociety, state nrmodels.State) {
	payload, err := json.Marshal(map[string]string{
		"paymentId": p.PaymentID,
		"action":    p.PaymentAction,
		"status":    p.PaymentStatus,
	})
	if err != nil {
		return
	}
	if err := s.events.RecordSystem(ctx, action, p.NRNum, state, payload); err != nil {
		s.logger.ErrorContext(ctx, "failed to record payment event",
			"request_id", requestcontext.RequestID(ctx),
			"nr_num", p.NRNum,
			"error", err.Error(),
		)
	}
}

func (s *Service) notify(ctx context.Context, nrNum, option string) {
	if err := s.publisher.PublishEmailNotification(ctx, nrNum, option); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish payment notification",
			"request_id", requestcontext.RequestID(ctx),
			"nr_num", nrNum,
			"option", option,
			"error", err.Error(),
		)
	}
}

// List returns the payment history for a request, oldest first.
func (s *Service) List(ctx context.Context, nrNum string) ([]*models.PaymentSociety, error) {
	normalized, err := nrmodels.NormalizeNRNum(nrNum)
	if err != nil {
		return nil, err
	}
	rows, err := s.payments.ListByNR(ctx, normalized)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list payments")
	}
	return rows, nil
}

// Package service records and renders the per-NR audit trail.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"namereg/internal/event/metrics"
	"namereg/internal/event/models"
	"namereg/internal/event/store"
	nrmodels "namereg/internal/namerequest/models"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/requestcontext"
)

// legislationTZ is the zone resend dates are stamped in, matching the
// registry's statutory timekeeping.
const legislationTZ = "America/Vancouver"

// Notifier republishes a notification to the email queue.
type Notifier interface {
	PublishEmailNotification(ctx context.Context, nrNum, option string) error
}

// Service is the audit-trail application service.
type Service struct {
	store    store.EventStore
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New constructs the event service.
func New(st store.EventStore, notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: st, notifier: notifier, logger: logger, metrics: m}
}

// Record appends an event snapshotting the request after a mutation. Record
// failures are logged, not returned: the mutation already happened and the
// trail must not fail the request.
func (s *Service) Record(ctx context.Context, action string, r *nrmodels.Request, examiner string) {
	snapshot, err := json.Marshal(r)
	if err != nil {
		s.logger.ErrorContext(ctx, "snapshot request for event", "error", err, "nr_num", r.NRNum)
		snapshot = nil
	}
	e := &models.Event{
		NRNum:     r.NRNum,
		Action:    action,
		State:     r.State,
		Examiner:  examiner,
		JSONData:  snapshot,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.Record(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "record event",
			"error", err,
			"nr_num", r.NRNum,
			"action", action,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	s.metrics.IncRecorded(action)
}

// RecordSystem appends an event on behalf of a background job.
func (s *Service) RecordSystem(ctx context.Context, action, nrNum string, state nrmodels.State, payload json.RawMessage) error {
	e := &models.Event{
		NRNum:     nrNum,
		Action:    action,
		State:     state,
		Examiner:  "system",
		JSONData:  payload,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.Record(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "record system event")
	}
	s.metrics.IncRecorded(action)
	return nil
}

// HistoryEntry is one row on the transaction history screen.
type HistoryEntry struct {
	EventID    int64           `json:"eventId"`
	UserAction string          `json:"user_action"`
	Action     string          `json:"action"`
	State      nrmodels.State  `json:"stateCd"`
	Examiner   string          `json:"examiner"`
	EventDate  time.Time       `json:"eventDate"`
	ResendDate *time.Time      `json:"resendDate,omitempty"`
	Snapshot   json.RawMessage `json:"jsonData,omitempty"`
}

// History renders an NR's transaction history: checkout noise dropped and
// each event labelled with its derived user action.
func (s *Service) History(ctx context.Context, nrNum string) ([]HistoryEntry, error) {
	normalized, err := nrmodels.NormalizeNRNum(nrNum)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListByNR(ctx, normalized)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list events")
	}

	var out []HistoryEntry
	var prev *models.Event
	for i := range events {
		e := events[i]
		if e.HiddenFromHistory() {
			continue
		}
		out = append(out, HistoryEntry{
			EventID:    e.ID,
			UserAction: models.DeriveUserAction(prev, e),
			Action:     e.Action,
			State:      e.State,
			Examiner:   e.Examiner,
			EventDate:  e.CreatedAt,
			ResendDate: e.ResendDate,
			Snapshot:   e.JSONData,
		})
		prev = &events[i]
	}
	return out, nil
}

// Get loads a single event.
func (s *Service) Get(ctx context.Context, id int64) (*models.Event, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("event %d not found", id))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get event")
	}
	return e, nil
}

// Resend republishes the notification an event represents and stamps the
// resend date in the legislation timezone.
func (s *Service) Resend(ctx context.Context, id int64) (*models.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Action != models.ActionNotification && e.Action != models.ActionResend {
		return nil, dErrors.New(dErrors.CodeBadRequest, "event is not a notification and cannot be resent")
	}

	var payload struct {
		Option string `json:"option"`
	}
	if len(e.JSONData) > 0 {
		if err := json.Unmarshal(e.JSONData, &payload); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode notification event")
		}
	}
	if payload.Option == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "notification event carries no option")
	}

	if err := s.notifier.PublishEmailNotification(ctx, e.NRNum, payload.Option); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "republish notification")
	}

	now := requestcontext.Now(ctx)
	if loc, locErr := time.LoadLocation(legislationTZ); locErr == nil {
		now = now.In(loc)
	}
	stamped, err := s.store.StampResend(ctx, id, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stamp resend date")
	}
	s.metrics.IncResend()
	s.logger.InfoContext(ctx, "notification resent",
		"event_id", id,
		"nr_num", e.NRNum,
		"option", payload.Option,
		"request_id", requestcontext.RequestID(ctx),
	)
	return stamped, nil
}

package service

import (
	"context"
	"time"

	"namereg/internal/namerequest/models"
	"namereg/internal/namerequest/store"
	dErrors "namereg/pkg/domain-errors"
)

// ExpireOverdue moves decided requests past their expiration date to
// EXPIRED, drops them from the search index, and records the system event.
// The emailer's scheduler handles the applicant's expiry email; this job
// only settles state. Returns the number of requests expired.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, _, err := s.store.Search(ctx, store.SearchFilter{
		States:        []models.State{models.StateApproved, models.StateConditional},
		ExpiresBefore: &now,
		Limit:         200,
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "find overdue requests")
	}

	expired := 0
	for _, r := range overdue {
		updated, err := s.store.Execute(ctx, r.NRNum, now, func(req *models.Request) error {
			if req.ExpirationDate == nil || !req.ExpirationDate.Before(now) {
				return nil
			}
			req.State = models.StateExpired
			req.NotifiedExpiry = true
			return nil
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "expire request", "error", err, "nr_num", r.NRNum)
			continue
		}
		if updated.State != models.StateExpired {
			continue
		}
		expired++
		s.metrics.IncExpired()
		if err := s.events.RecordSystem(ctx, "expiry_job", updated.NRNum, updated.State, nil); err != nil {
			s.logger.ErrorContext(ctx, "record expiry event", "error", err, "nr_num", updated.NRNum)
		}
		if err := s.publisher.PublishSearchFeed(ctx, updated.NRNum, true); err != nil {
			s.logger.ErrorContext(ctx, "publish search feed", "error", err, "nr_num", updated.NRNum)
		}
	}
	return expired, nil
}

// RunExpiryLoop runs ExpireOverdue on an interval until ctx is cancelled.
func (s *Service) RunExpiryLoop(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n, err := s.ExpireOverdue(ctx, now.UTC()); err != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
			} else if n > 0 {
				s.logger.InfoContext(ctx, "expiry sweep", "expired", n)
			}
		}
	}
}

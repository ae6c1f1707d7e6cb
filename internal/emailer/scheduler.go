package emailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scheduleKey = "emailer:schedule"

// Sender processes one due notification.
type Sender interface {
	Process(ctx context.Context, nrNum, option string) error
}

// Scheduler keeps deferred notifications in a Redis sorted set scored by
// their due time. A schedule for the same request and option replaces the
// pending one, so re-deciding a request moves its expiry reminders instead
// of stacking them.
type Scheduler struct {
	rdb    redis.Cmdable
	sender Sender
	poll   time.Duration
	logger *slog.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(rdb redis.Cmdable, sender Sender, poll time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{rdb: rdb, sender: sender, poll: poll, logger: logger}
}

func member(nrNum, option string) string {
	return nrNum + "|" + option
}

// Schedule defers a notification until the given time.
func (s *Scheduler) Schedule(ctx context.Context, nrNum, option string, at time.Time) error {
	err := s.rdb.ZAdd(ctx, scheduleKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: member(nrNum, option),
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule %s for %s: %w", option, nrNum, err)
	}
	return nil
}

// CancelAll drops every pending notification for a request. Resets and
// cancellations call this so stale expiry reminders never fire.
func (s *Scheduler) CancelAll(ctx context.Context, nrNum string) error {
	var cursor uint64
	for {
		members, next, err := s.rdb.ZScan(ctx, scheduleKey, cursor, nrNum+"|*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan schedule for %s: %w", nrNum, err)
		}
		// ZScan interleaves members and scores.
		for i := 0; i < len(members); i += 2 {
			if err := s.rdb.ZRem(ctx, scheduleKey, members[i]).Err(); err != nil {
				return fmt.Errorf("cancel %s: %w", members[i], err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Drain sends every notification due at or before now. Each entry is claimed
// by removal first so concurrent pollers never double-send; a failed send is
// logged and dropped rather than retried.
func (s *Scheduler) Drain(ctx context.Context, now time.Time) (int, error) {
	due, err := s.rdb.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("poll schedule: %w", err)
	}

	sent := 0
	for _, m := range due {
		removed, err := s.rdb.ZRem(ctx, scheduleKey, m).Result()
		if err != nil {
			return sent, fmt.Errorf("claim %s: %w", m, err)
		}
		if removed == 0 {
			continue
		}

		nrNum, option, ok := strings.Cut(m, "|")
		if !ok {
			s.logger.ErrorContext(ctx, "malformed schedule entry dropped", "member", m)
			continue
		}
		if err := s.sender.Process(ctx, nrNum, option); err != nil {
			s.logger.ErrorContext(ctx, "scheduled notification failed",
				"nr_num", nrNum,
				"option", option,
				"error", err.Error(),
			)
			continue
		}
		sent++
	}
	return sent, nil
}

// Run polls the schedule until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.logger.Info("notification scheduler started", "poll", s.poll.String())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := s.Drain(ctx, time.Now()); err != nil {
				s.logger.Error("schedule drain failed", "error", err.Error())
			} else if n > 0 {
				s.logger.Info("scheduled notifications sent", "count", n)
			}
		}
	}
}

package emailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	nrmetrics "namereg/internal/namerequest/metrics"
	"namereg/internal/queue"
)

// Worker consumes the notification topic and sends each message once. A
// Redis SETNX cache absorbs the at-least-once delivery of the queue; without
// Redis the worker still runs, just without the duplicate guard.
type Worker struct {
	sender    Sender
	dedupe    redis.Cmdable
	dedupeTTL time.Duration
	metrics   *nrmetrics.Metrics
	logger    *slog.Logger
}

// NewWorker constructs a Worker. dedupe may be nil.
func NewWorker(sender Sender, dedupe redis.Cmdable, dedupeTTL time.Duration, m *nrmetrics.Metrics, logger *slog.Logger) *Worker {
	return &Worker{sender: sender, dedupe: dedupe, dedupeTTL: dedupeTTL, metrics: m, logger: logger}
}

// Handle is the message handler wired into the notification consumer.
func (w *Worker) Handle(ctx context.Context, key, value []byte) error {
	var msg queue.EmailNotification
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode email notification: %w", err)
	}

	dedupeKey := fmt.Sprintf("emailer:sent:%s|%s", msg.NRNum, msg.Option)
	claimed := false
	if w.dedupe != nil {
		fresh, err := w.dedupe.SetNX(ctx, dedupeKey, 1, w.dedupeTTL).Result()
		switch {
		case err != nil:
			w.logger.WarnContext(ctx, "dedupe cache unavailable, sending anyway", "error", err.Error())
		case !fresh:
			w.logger.InfoContext(ctx, "duplicate notification dropped",
				"nr_num", msg.NRNum, "option", msg.Option)
			return nil
		default:
			claimed = true
		}
	}

	if err := w.sender.Process(ctx, msg.NRNum, msg.Option); err != nil {
		// Release the claim: the key must only mark a completed send, or the
		// broker's redelivery would be dropped as a duplicate.
		if claimed {
			if delErr := w.dedupe.Del(ctx, dedupeKey).Err(); delErr != nil {
				w.logger.WarnContext(ctx, "failed to release dedupe claim",
					"key", dedupeKey, "error", delErr.Error())
			}
		}
		return err
	}
	w.metrics.IncNotification(msg.Option)
	return nil
}

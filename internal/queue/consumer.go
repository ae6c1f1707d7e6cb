package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"namereg/internal/platform/config"
)

// Handler processes one record. Returning an error logs and skips the
// record; offsets are committed either way so a poison message cannot wedge
// the group.
type Handler func(ctx context.Context, key, value []byte) error

// Consumer runs a group consumer loop over one topic.
type Consumer struct {
	client  *kgo.Client
	topic   string
	handler Handler
	logger  *slog.Logger
}

// NewConsumer joins the consumer group on the given topic.
func NewConsumer(cfg config.Kafka, topic string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka consumer for %s: %w", topic, err)
	}
	return &Consumer{client: client, topic: topic, handler: handler, logger: logger}, nil
}

// Run polls until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			if err := c.handler(ctx, record.Key, record.Value); err != nil {
				c.logger.ErrorContext(ctx, "record handler failed",
					"topic", record.Topic, "offset", record.Offset, "error", err)
			}
		})
	}
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"namereg/internal/platform/config"
)

// Publisher produces notification and search-feed records.
type Publisher struct {
	client            *kgo.Client
	notificationTopic string
	searchFeedTopic   string
	logger            *slog.Logger
}

// NewPublisher connects a producer and ensures the topics exist.
func NewPublisher(cfg config.Kafka, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}

	if err := ensureTopics(context.Background(), client, cfg.NotificationTopic, cfg.SearchFeedTopic); err != nil {
		client.Close()
		return nil, err
	}

	return &Publisher{
		client:            client,
		notificationTopic: cfg.NotificationTopic,
		searchFeedTopic:   cfg.SearchFeedTopic,
		logger:            logger,
	}, nil
}

// ensureTopics creates the topics if the broker does not auto-create them.
func ensureTopics(ctx context.Context, client *kgo.Client, topics ...string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, res := range resp.Sorted() {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// PublishEmailNotification enqueues one notification, keyed by NR number so
// per-NR ordering holds.
func (p *Publisher) PublishEmailNotification(ctx context.Context, nrNum, option string) error {
	payload, err := json.Marshal(EmailNotification{NRNum: nrNum, Option: option})
	if err != nil {
		return fmt.Errorf("marshal email notification: %w", err)
	}
	record := &kgo.Record{Topic: p.notificationTopic, Key: []byte(nrNum), Value: payload}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce email notification for %s: %w", nrNum, err)
	}
	p.logger.InfoContext(ctx, "email notification queued", "nr_num", nrNum, "option", option)
	return nil
}

// PublishSearchFeed enqueues an index-feed event for a changed NR.
func (p *Publisher) PublishSearchFeed(ctx context.Context, nrNum string, deleted bool) error {
	payload, err := json.Marshal(SearchFeedEvent{NRNum: nrNum, Deleted: deleted})
	if err != nil {
		return fmt.Errorf("marshal search feed event: %w", err)
	}
	record := &kgo.Record{Topic: p.searchFeedTopic, Key: []byte(nrNum), Value: payload}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce search feed event for %s: %w", nrNum, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() {
	p.client.Close()
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"onboarding/internal/application/models"
)

// Producer is the slice of *kgo.Client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
}

// KafkaPublisher produces one record per event, keyed by application id so a
// single application's events stay ordered within a partition. Produce is
// asynchronous; delivery failures are logged, not returned.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

type KafkaOption func(*KafkaPublisher)

func WithLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewKafkaPublisher(producer Producer, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...models.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		env, err := NewEnvelope(e)
		if err != nil {
			return err
		}
		value, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal event envelope: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic:     p.topic,
			Key:       []byte(env.ApplicationID.String()),
			Value:     value,
			Timestamp: env.OccurredAt,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(env.Type)},
				{Key: "event_id", Value: []byte(env.ID.String())},
			},
		})
	}

	// The request context may end before the broker acks.
	produceCtx := context.WithoutCancel(ctx)
	for _, rec := range records {
		p.producer.Produce(produceCtx, rec, p.onDelivery)
	}
	return nil
}

func (p *KafkaPublisher) onDelivery(rec *kgo.Record, err error) {
	if err == nil {
		return
	}
	p.logger.Error("failed to publish domain event",
		"topic", rec.Topic,
		"application_id", string(rec.Key),
		"event_type", headerValue(rec, "event_type"),
		"event_id", headerValue(rec, "event_id"),
		"error", err,
	)
}

// Close waits up to timeout for buffered records to be delivered.
func (p *KafkaPublisher) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.producer.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	return nil
}

func headerValue(rec *kgo.Record, key string) string {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

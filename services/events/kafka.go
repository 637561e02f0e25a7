// Package eventsvc publishes domain events to Kafka.
package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/studyhall/backend/core"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

// NewPublisher returns a Kafka publisher, or a noop one when no broker is configured.
func NewPublisher(conf *core.Config) core.EventPublisher {
	if len(conf.Kafka.Brokers) == 0 {
		return core.NewNoopPublisher()
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(conf.Kafka.Brokers...),
		Topic:        conf.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}}
}

// Publish writes events keyed by entity id, so that the events of an entity stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...core.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return errors.Wrapf(err, "encoding event %s", e.Key)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.EntityID),
			Value:   value,
			Time:    e.OccurredAt,
			Headers: []kafka.Header{{Key: "event", Value: []byte(e.Key)}},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "publishing events")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

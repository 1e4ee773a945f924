// Package stream publishes a change feed of the event store to Kafka so that
// downstream consumers can mirror ingestion, deletion and purges.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"pulsetrail/api/logging"
	"pulsetrail/api/metrics"
	"pulsetrail/api/models"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionDeleted Action = "deleted"
	ActionPurged  Action = "purged"
)

// ActionHeader carries the Action of every message.
const ActionHeader = "action"

// Change is one entry of the change feed.
type Change struct {
	Action  Action        `json:"action"`
	EventID string        `json:"event_id,omitempty"`
	Event   *models.Event `json:"event,omitempty"`
	Count   int           `json:"count,omitempty"`
	At      time.Time     `json:"at"`
}

func Created(e models.Event) Change {
	return Change{Action: ActionCreated, EventID: e.ID, Event: &e, At: time.Now().UTC()}
}

func Deleted(id string) Change {
	return Change{Action: ActionDeleted, EventID: id, At: time.Now().UTC()}
}

func Purged(n int) Change {
	return Change{Action: ActionPurged, Count: n, At: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, c Change) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes changes keyed by event id. Deletions are tombstones
// (nil value) so compacted topics drop the event as well.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		MaxAttempts:            3,
	}
	return &KafkaPublisher{writer: writer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, c Change) error {
	msg, err := toMessage(c)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.FeedPublishFailures.WithLabelValues(string(c.Action)).Inc()
		return fmt.Errorf("failed to publish %s change to %s: %w", c.Action, p.topic, err)
	}
	logging.Debug().Str("action", string(c.Action)).Str("event_id", c.EventID).Msg("change published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(c Change) (kafka.Message, error) {
	msg := kafka.Message{
		Headers: []kafka.Header{{Key: ActionHeader, Value: []byte(c.Action)}},
		Time:    c.At,
	}

	switch c.Action {
	case ActionDeleted:
		msg.Key = []byte(c.EventID)
		return msg, nil
	case ActionPurged:
		msg.Key = []byte(ActionPurged)
	default:
		msg.Key = []byte(c.EventID)
	}

	value, err := json.Marshal(c)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode %s change: %w", c.Action, err)
	}
	msg.Value = value
	return msg, nil
}

// NopPublisher discards every change. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Change) error { return nil }
func (NopPublisher) Close() error                          { return nil }

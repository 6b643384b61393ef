// Package kafka publishes relayed events to a Kafka topic.
//
// Events are keyed by stream ID, so Kafka's per-partition ordering
// preserves per-stream event order for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/go-sourced/sourced"
)

// Writer is the subset of kafka.Writer the publisher needs.
// Satisfied by *kafka.Writer; fake it in tests.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Publisher sends stored events to a Kafka topic.
type Publisher struct {
	writer Writer
}

var _ sourced.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher over an existing writer. The writer's
// topic configuration determines where events land.
func NewPublisher(writer Writer) *Publisher {
	return &Publisher{writer: writer}
}

// NewPublisherForTopic creates a Publisher with a default writer for the
// given brokers and topic.
func NewPublisherForTopic(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafkago.Hash{},
		},
	}
}

// envelope is the wire shape of a published event.
type envelope struct {
	ID             string           `json:"id"`
	StreamID       string           `json:"streamId"`
	Type           string           `json:"type"`
	SchemaVersion  int              `json:"schemaVersion"`
	Data           json.RawMessage  `json:"data"`
	Metadata       sourced.Metadata `json:"metadata"`
	Version        int64            `json:"version"`
	GlobalPosition uint64           `json:"globalPosition"`
	Timestamp      string           `json:"timestamp"`
}

// Publish sends a single stored event, keyed by its stream ID.
func (p *Publisher) Publish(ctx context.Context, event sourced.StoredEvent) error {
	payload, err := json.Marshal(envelope{
		ID:             event.ID,
		StreamID:       event.StreamID,
		Type:           event.Type,
		SchemaVersion:  event.SchemaVersion,
		Data:           json.RawMessage(event.Data),
		Metadata:       event.Metadata,
		Version:        event.Version,
		GlobalPosition: event.GlobalPosition,
		Timestamp:      event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("kafka: marshal envelope: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.StreamID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
			{Key: "global-position", Value: []byte(strconv.FormatUint(event.GlobalPosition, 10))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

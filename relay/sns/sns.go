// Package sns publishes relayed events to an AWS SNS topic.
//
// SNS standard topics do not guarantee ordering; subscribers that need
// per-stream order should sort on the aggregate version carried in the
// message attributes, or use a FIFO topic with the stream ID as the
// message group.
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/go-sourced/sourced"
)

// Client is the subset of the SNS API the publisher needs.
// Satisfied by *sns.Client; fake it in tests.
type Client interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// Publisher sends stored events to an SNS topic.
type Publisher struct {
	client   Client
	topicARN string
	fifo     bool
}

var _ sourced.Publisher = (*Publisher)(nil)

// Option configures a Publisher.
type Option func(*Publisher)

// WithFIFO marks the topic as FIFO: messages are grouped by stream ID and
// deduplicated by event ID.
func WithFIFO() Option {
	return func(p *Publisher) {
		p.fifo = true
	}
}

// NewPublisher creates a Publisher for the given topic.
func NewPublisher(client Client, topicARN string, opts ...Option) *Publisher {
	p := &Publisher{
		client:   client,
		topicARN: topicARN,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

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

// Publish sends a single stored event to the topic.
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
		return fmt.Errorf("sns: marshal envelope: %w", err)
	}

	input := &awssns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Type),
			},
			"streamId": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.StreamID),
			},
			"version": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(event.Version, 10)),
			},
		},
	}

	if p.fifo {
		input.MessageGroupId = aws.String(event.StreamID)
		input.MessageDeduplicationId = aws.String(event.ID)
	}

	if _, err := p.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns: publish: %w", err)
	}
	return nil
}

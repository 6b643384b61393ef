package sourced

import (
	"context"
	"time"

	"github.com/go-sourced/sourced/adapters"
)

// Publisher delivers stored events to an external system (a message broker,
// a projection, a webhook). Publish must be idempotent with respect to
// redelivery: the relay guarantees at-least-once, not exactly-once.
type Publisher interface {
	Publish(ctx context.Context, event StoredEvent) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event StoredEvent) error

// Publish calls f(ctx, event).
func (f PublisherFunc) Publish(ctx context.Context, event StoredEvent) error {
	return f(ctx, event)
}

// Relay forwards stored events to a Publisher in global-position order,
// tracking progress with a named checkpoint. On restart it resumes from the
// last confirmed position, so downstream consumers see every event at least
// once and never out of order.
type Relay struct {
	store       *EventStore
	checkpoints adapters.CheckpointAdapter
	publisher   Publisher
	name        string
	batchSize   int
	interval    time.Duration
	logger      Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayBatchSize sets how many events are fetched per poll. Default 100.
func WithRelayBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRelayInterval sets the poll interval. Default 1s.
func WithRelayInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRelayLogger sets the logger for relay operations.
func WithRelayLogger(l Logger) RelayOption {
	return func(r *Relay) {
		r.logger = l
	}
}

// NewRelay creates a Relay named name. The name keys the checkpoint, so two
// relays with different names each see the full event sequence.
func NewRelay(store *EventStore, checkpoints adapters.CheckpointAdapter, publisher Publisher, name string, opts ...RelayOption) *Relay {
	r := &Relay{
		store:       store,
		checkpoints: checkpoints,
		publisher:   publisher,
		name:        name,
		batchSize:   100,
		interval:    time.Second,
		logger:      NoopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run polls for new events and publishes them until ctx is cancelled.
// It returns ctx.Err() on cancellation; publish errors are logged and
// retried on the next tick without advancing the checkpoint.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started",
		"name", r.name,
		"batchSize", r.batchSize,
		"interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped", "name", r.name)
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("relay batch failed",
					"name", r.name,
					"error", err)
			}
		}
	}
}

// RunOnce processes a single batch and returns the number of events
// published. The checkpoint advances after each successful publish, so a
// mid-batch failure re-delivers only the failed event and its successors.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	position, err := r.checkpoints.GetCheckpoint(ctx, r.name)
	if err != nil {
		return 0, err
	}

	events, err := r.store.LoadFromPosition(ctx, position, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range events {
		if err := r.publisher.Publish(ctx, event); err != nil {
			return published, err
		}
		if err := r.checkpoints.SetCheckpoint(ctx, r.name, event.GlobalPosition); err != nil {
			return published, err
		}
		published++
	}

	if published > 0 {
		r.logger.Debug("relay batch published",
			"name", r.name,
			"count", published,
			"position", events[published-1].GlobalPosition)
	}

	return published, nil
}

// Lag returns how many positions the relay is behind the head of the log.
func (r *Relay) Lag(ctx context.Context) (uint64, error) {
	position, err := r.checkpoints.GetCheckpoint(ctx, r.name)
	if err != nil {
		return 0, err
	}
	last, err := r.store.GetLastPosition(ctx)
	if err != nil {
		return 0, err
	}
	if last <= position {
		return 0, nil
	}
	return last - position, nil
}

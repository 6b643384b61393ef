// Package tracing wraps an event store adapter with OpenTelemetry spans.
// Each adapter operation becomes a child span of whatever span is in the
// incoming context, carrying the stream ID, event counts, and versions as
// attributes.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-sourced/sourced/adapters"
)

const tracerName = "github.com/go-sourced/sourced"

// Adapter instruments an EventStoreAdapter with OpenTelemetry tracing.
type Adapter struct {
	next   adapters.EventStoreAdapter
	tracer trace.Tracer
}

var _ adapters.EventStoreAdapter = (*Adapter)(nil)

// Option configures a tracing Adapter.
type Option func(*Adapter)

// WithTracerProvider sets the provider the adapter's tracer comes from.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Adapter) {
		a.tracer = tp.Tracer(tracerName)
	}
}

// Wrap returns an adapter that traces every operation and delegates to next.
func Wrap(next adapters.EventStoreAdapter, opts ...Option) *Adapter {
	a := &Adapter{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Append traces the append, recording the stream, batch size, and the
// version range assigned on success.
func (a *Adapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := a.tracer.Start(ctx, "eventstore.Append",
		trace.WithAttributes(
			attribute.String("eventstore.stream_id", streamID),
			attribute.Int("eventstore.event_count", len(events)),
			attribute.Int64("eventstore.expected_version", expectedVersion),
		))

	stored, err := a.next.Append(ctx, streamID, events, expectedVersion)
	if err == nil && len(stored) > 0 {
		span.SetAttributes(attribute.Int64("eventstore.version", stored[len(stored)-1].Version))
	}
	end(span, err)
	return stored, err
}

func (a *Adapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := a.tracer.Start(ctx, "eventstore.Load",
		trace.WithAttributes(
			attribute.String("eventstore.stream_id", streamID),
			attribute.Int64("eventstore.from_version", fromVersion),
		))

	events, err := a.next.Load(ctx, streamID, fromVersion)
	if err == nil {
		span.SetAttributes(attribute.Int("eventstore.event_count", len(events)))
	}
	end(span, err)
	return events, err
}

func (a *Adapter) LoadByCategory(ctx context.Context, category string, from, to time.Time) ([]adapters.StoredEvent, error) {
	ctx, span := a.tracer.Start(ctx, "eventstore.LoadByCategory",
		trace.WithAttributes(attribute.String("eventstore.category", category)))

	events, err := a.next.LoadByCategory(ctx, category, from, to)
	if err == nil {
		span.SetAttributes(attribute.Int("eventstore.event_count", len(events)))
	}
	end(span, err)
	return events, err
}

func (a *Adapter) LoadAfter(ctx context.Context, t time.Time) ([]adapters.StoredEvent, error) {
	ctx, span := a.tracer.Start(ctx, "eventstore.LoadAfter")

	events, err := a.next.LoadAfter(ctx, t)
	if err == nil {
		span.SetAttributes(attribute.Int("eventstore.event_count", len(events)))
	}
	end(span, err)
	return events, err
}

func (a *Adapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	ctx, span := a.tracer.Start(ctx, "eventstore.LoadFromPosition",
		trace.WithAttributes(attribute.Int64("eventstore.from_position", int64(fromPosition))))

	events, err := a.next.LoadFromPosition(ctx, fromPosition, limit)
	if err == nil {
		span.SetAttributes(attribute.Int("eventstore.event_count", len(events)))
	}
	end(span, err)
	return events, err
}

func (a *Adapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	ctx, span := a.tracer.Start(ctx, "eventstore.GetStreamInfo",
		trace.WithAttributes(attribute.String("eventstore.stream_id", streamID)))

	info, err := a.next.GetStreamInfo(ctx, streamID)
	end(span, err)
	return info, err
}

func (a *Adapter) GetLastPosition(ctx context.Context) (uint64, error) {
	ctx, span := a.tracer.Start(ctx, "eventstore.GetLastPosition")

	position, err := a.next.GetLastPosition(ctx)
	end(span, err)
	return position, err
}

func (a *Adapter) Initialize(ctx context.Context) error {
	ctx, span := a.tracer.Start(ctx, "eventstore.Initialize")
	err := a.next.Initialize(ctx)
	end(span, err)
	return err
}

func (a *Adapter) Close() error {
	return a.next.Close()
}

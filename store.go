package sourced

import (
	"context"
	"errors"
	"time"

	"github.com/go-sourced/sourced/adapters"
)

// EventStore is the high-level API for appending and loading events.
// It wraps a storage adapter with serialization and event type registration.
type EventStore struct {
	adapter    adapters.EventStoreAdapter
	serializer Serializer
	logger     Logger
}

// StoreOption configures an EventStore.
type StoreOption func(*EventStore)

// WithSerializer sets the serializer used for event payloads.
// Defaults to a strict JSONSerializer.
func WithSerializer(s Serializer) StoreOption {
	return func(es *EventStore) {
		es.serializer = s
	}
}

// WithLogger sets the logger for store operations.
func WithLogger(l Logger) StoreOption {
	return func(es *EventStore) {
		es.logger = l
	}
}

// NewEventStore creates a new EventStore backed by the given adapter.
func NewEventStore(adapter adapters.EventStoreAdapter, opts ...StoreOption) *EventStore {
	es := &EventStore{
		adapter:    adapter,
		serializer: NewJSONSerializer(),
		logger:     NoopLogger(),
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// RegisterEvents registers event types with the store's serializer using
// their struct names as type names. The serializer must support
// registration (the built-in JSON and msgpack serializers do).
func (es *EventStore) RegisterEvents(examples ...interface{}) {
	type registrar interface {
		RegisterAll(examples ...interface{})
	}
	if r, ok := es.serializer.(registrar); ok {
		r.RegisterAll(examples...)
	}
}

// Serializer returns the store's serializer.
func (es *EventStore) Serializer() Serializer {
	return es.serializer
}

// Adapter returns the underlying storage adapter.
func (es *EventStore) Adapter() adapters.EventStoreAdapter {
	return es.adapter
}

// AppendOption configures an Append call.
type AppendOption func(*appendConfig)

type appendConfig struct {
	expectedVersion int64
	metadata        Metadata
}

// ExpectVersion sets the expected stream version for optimistic concurrency
// control. Use AnyVersion, NoStream, StreamExists, or an exact version.
func ExpectVersion(v int64) AppendOption {
	return func(c *appendConfig) {
		c.expectedVersion = v
	}
}

// WithAppendMetadata attaches metadata to every event in the append batch.
func WithAppendMetadata(m Metadata) AppendOption {
	return func(c *appendConfig) {
		c.metadata = m
	}
}

// Append serializes and stores domain events to the specified stream.
// Events are appended atomically: either the whole batch is stored with
// consecutive versions, or nothing is.
//
// By default the version check is skipped (AnyVersion); pass ExpectVersion
// to enforce optimistic concurrency.
func (es *EventStore) Append(ctx context.Context, streamID StreamID, events []interface{}, opts ...AppendOption) ([]StoredEvent, error) {
	if err := streamID.Validate(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	cfg := &appendConfig{expectedVersion: AnyVersion}
	for _, opt := range opts {
		opt(cfg)
	}

	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		eventData, err := SerializeEvent(es.serializer, event, cfg.metadata)
		if err != nil {
			return nil, err
		}
		records[i] = adapters.EventRecord{
			Type:          eventData.Type,
			SchemaVersion: eventData.SchemaVersion,
			Data:          eventData.Data,
			Metadata:      toAdapterMetadata(eventData.Metadata),
		}
	}

	stored, err := es.adapter.Append(ctx, streamID.String(), records, cfg.expectedVersion)
	if err != nil {
		if errors.Is(err, adapters.ErrConcurrencyConflict) {
			es.logger.Warn("append rejected by version check",
				"streamId", streamID.String(),
				"expectedVersion", cfg.expectedVersion)
		} else {
			es.logger.Error("append failed",
				"streamId", streamID.String(),
				"error", err)
		}
		return nil, translateAdapterError(err)
	}

	es.logger.Debug("events appended",
		"streamId", streamID.String(),
		"count", len(stored),
		"version", stored[len(stored)-1].Version)

	return fromAdapterEvents(stored), nil
}

// AppendRaw stores pre-serialized events to the specified stream. Useful
// when the caller already holds EventData (migrations, relays).
func (es *EventStore) AppendRaw(ctx context.Context, streamID StreamID, events []EventData, expectedVersion int64) ([]StoredEvent, error) {
	if err := streamID.Validate(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	records := make([]adapters.EventRecord, len(events))
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		records[i] = adapters.EventRecord{
			Type:          e.Type,
			SchemaVersion: e.SchemaVersion,
			Data:          e.Data,
			Metadata:      toAdapterMetadata(e.Metadata),
		}
	}

	stored, err := es.adapter.Append(ctx, streamID.String(), records, expectedVersion)
	if err != nil {
		return nil, translateAdapterError(err)
	}
	return fromAdapterEvents(stored), nil
}

// Load retrieves and deserializes all events from a stream, in append order.
// An unknown stream yields an empty slice, not an error.
func (es *EventStore) Load(ctx context.Context, streamID StreamID) ([]Event, error) {
	return es.LoadFrom(ctx, streamID, 0)
}

// LoadFrom retrieves events with Version > fromVersion from a stream.
// Used by the repository to load only the events past a snapshot.
func (es *EventStore) LoadFrom(ctx context.Context, streamID StreamID, fromVersion int64) ([]Event, error) {
	if err := streamID.Validate(); err != nil {
		return nil, err
	}

	stored, err := es.adapter.Load(ctx, streamID.String(), fromVersion)
	if err != nil {
		es.logger.Error("load failed",
			"streamId", streamID.String(),
			"fromVersion", fromVersion,
			"error", err)
		return nil, err
	}

	return es.deserializeAll(stored)
}

// LoadRaw retrieves stored events from a stream without deserializing the
// payloads. Intended for inspection tooling and relays.
func (es *EventStore) LoadRaw(ctx context.Context, streamID StreamID, fromVersion int64) ([]StoredEvent, error) {
	if err := streamID.Validate(); err != nil {
		return nil, err
	}

	stored, err := es.adapter.Load(ctx, streamID.String(), fromVersion)
	if err != nil {
		return nil, err
	}
	return fromAdapterEvents(stored), nil
}

// LoadByCategory retrieves deserialized events across all streams of a
// category within the inclusive [from, to] timestamp window. A zero from or
// to leaves that bound open.
func (es *EventStore) LoadByCategory(ctx context.Context, category string, from, to time.Time) ([]Event, error) {
	stored, err := es.adapter.LoadByCategory(ctx, category, from, to)
	if err != nil {
		es.logger.Error("load by category failed",
			"category", category,
			"error", err)
		return nil, err
	}
	return es.deserializeAll(stored)
}

// LoadAfter retrieves deserialized events across all streams with timestamp
// strictly after t. Intended for incremental projection rebuilds.
func (es *EventStore) LoadAfter(ctx context.Context, t time.Time) ([]Event, error) {
	stored, err := es.adapter.LoadAfter(ctx, t)
	if err != nil {
		es.logger.Error("load after failed", "after", t, "error", err)
		return nil, err
	}
	return es.deserializeAll(stored)
}

// LoadFromPosition retrieves stored events with GlobalPosition > fromPosition,
// up to limit, without deserializing. Used by the relay.
func (es *EventStore) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]StoredEvent, error) {
	stored, err := es.adapter.LoadFromPosition(ctx, fromPosition, limit)
	if err != nil {
		return nil, err
	}
	return fromAdapterEvents(stored), nil
}

// StreamVersion returns the current version of a stream.
// Returns 0 for a stream that does not exist.
func (es *EventStore) StreamVersion(ctx context.Context, streamID StreamID) (int64, error) {
	if err := streamID.Validate(); err != nil {
		return 0, err
	}

	info, err := es.adapter.GetStreamInfo(ctx, streamID.String())
	if err != nil {
		if errors.Is(err, adapters.ErrStreamNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return info.Version, nil
}

// GetStreamInfo returns metadata about a stream.
// Returns ErrStreamNotFound if the stream does not exist.
func (es *EventStore) GetStreamInfo(ctx context.Context, streamID StreamID) (*StreamInfo, error) {
	if err := streamID.Validate(); err != nil {
		return nil, err
	}

	info, err := es.adapter.GetStreamInfo(ctx, streamID.String())
	if err != nil {
		return nil, translateAdapterError(err)
	}

	return &StreamInfo{
		StreamID:   info.StreamID,
		Category:   info.Category,
		Version:    info.Version,
		EventCount: info.EventCount,
		CreatedAt:  info.CreatedAt,
		UpdatedAt:  info.UpdatedAt,
	}, nil
}

// GetLastPosition returns the global position of the last stored event.
func (es *EventStore) GetLastPosition(ctx context.Context) (uint64, error) {
	return es.adapter.GetLastPosition(ctx)
}

// Initialize sets up the adapter's storage schema.
func (es *EventStore) Initialize(ctx context.Context) error {
	return es.adapter.Initialize(ctx)
}

// Close releases resources held by the underlying adapter.
func (es *EventStore) Close() error {
	return es.adapter.Close()
}

func (es *EventStore) deserializeAll(stored []adapters.StoredEvent) ([]Event, error) {
	events := make([]Event, 0, len(stored))
	for _, s := range stored {
		event, err := DeserializeEvent(es.serializer, fromAdapterEvent(s))
		if err != nil {
			es.logger.Error("deserialization failed",
				"streamId", s.StreamID,
				"eventType", s.Type,
				"version", s.Version,
				"error", err)
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func toAdapterMetadata(m Metadata) adapters.Metadata {
	return adapters.Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		Custom:        m.Custom,
	}
}

func fromAdapterMetadata(m adapters.Metadata) Metadata {
	return Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		Custom:        m.Custom,
	}
}

func fromAdapterEvent(s adapters.StoredEvent) StoredEvent {
	return StoredEvent{
		ID:             s.ID,
		StreamID:       s.StreamID,
		Type:           s.Type,
		SchemaVersion:  s.SchemaVersion,
		Data:           s.Data,
		Metadata:       fromAdapterMetadata(s.Metadata),
		Version:        s.Version,
		GlobalPosition: s.GlobalPosition,
		Timestamp:      s.Timestamp,
	}
}

func fromAdapterEvents(stored []adapters.StoredEvent) []StoredEvent {
	events := make([]StoredEvent, len(stored))
	for i, s := range stored {
		events[i] = fromAdapterEvent(s)
	}
	return events
}

// Package adapters provides interfaces for event store backends.
package adapters

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// to enable consistent error handling across different backends.
var (
	// ErrConcurrencyConflict is returned when optimistic concurrency check fails.
	ErrConcurrencyConflict = errors.New("sourced: concurrency conflict")

	// ErrStreamNotFound is returned when a stream does not exist.
	ErrStreamNotFound = errors.New("sourced: stream not found")

	// ErrEmptyStreamID is returned when an empty stream ID is provided.
	ErrEmptyStreamID = errors.New("sourced: stream ID is required")

	// ErrNoEvents is returned when attempting to append zero events.
	ErrNoEvents = errors.New("sourced: no events to append")

	// ErrInvalidVersion is returned when an invalid version is specified.
	ErrInvalidVersion = errors.New("sourced: invalid version")

	// ErrAdapterClosed is returned when operations are attempted on a closed adapter.
	ErrAdapterClosed = errors.New("sourced: adapter is closed")
)

// Metadata contains event context for tracing and audit trails.
// These fields are preserved across serialization.
type Metadata struct {
	// CorrelationID links related events across services.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID identifies the event that caused this event.
	CausationID string `json:"causationId,omitempty"`

	// UserID identifies who triggered this event.
	UserID string `json:"userId,omitempty"`

	// Custom holds any additional metadata.
	Custom map[string]string `json:"custom,omitempty"`
}

// StoredEvent represents a persisted event with its storage metadata.
// This is returned when loading events from the store.
type StoredEvent struct {
	// ID is the unique event identifier.
	ID string

	// StreamID is the stream this event belongs to.
	StreamID string

	// Type is the event type identifier.
	Type string

	// SchemaVersion is the version of the event payload shape.
	SchemaVersion int

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains contextual information.
	Metadata Metadata

	// Version is the position within the stream (1-based).
	Version int64

	// GlobalPosition is the global ordering position across all streams.
	GlobalPosition uint64

	// Timestamp is when the event was stored.
	Timestamp time.Time
}

// StreamInfo contains metadata about an event stream.
type StreamInfo struct {
	// StreamID is the stream identifier.
	StreamID string

	// Category is the aggregate type (first part of stream ID).
	Category string

	// Version is the current stream version.
	Version int64

	// EventCount is the number of events in the stream.
	EventCount int64

	// CreatedAt is when the first event was stored.
	CreatedAt time.Time

	// UpdatedAt is when the last event was stored.
	UpdatedAt time.Time
}

// EventRecord represents an event to be appended to a stream.
// This is the adapter-level representation of an event.
type EventRecord struct {
	// Type is the event type identifier.
	Type string

	// SchemaVersion is the version of the event payload shape.
	SchemaVersion int

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains optional contextual information.
	Metadata Metadata
}

// EventStoreAdapter is the interface that storage backends must implement.
// It provides the low-level operations for persisting and retrieving events.
type EventStoreAdapter interface {
	// Append stores events to the specified stream with optimistic concurrency control.
	// expectedVersion specifies the expected current version of the stream:
	//   - AnyVersion (-1): Skip version check
	//   - NoStream (0): Stream must not exist
	//   - StreamExists (-2): Stream must exist
	//   - Any positive number: Stream must be at this exact version
	// The check and the append are atomic: of two concurrent appends with the
	// same expected version, at most one succeeds.
	// Returns the stored events with their assigned positions, or an error.
	Append(ctx context.Context, streamID string, events []EventRecord, expectedVersion int64) ([]StoredEvent, error)

	// Load retrieves events from a stream with Version > fromVersion, in
	// append order. Use fromVersion=0 to load all events. An unknown stream
	// yields an empty slice, not an error.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)

	// LoadByCategory retrieves events across all streams of the given
	// category whose timestamp falls within the inclusive [from, to] window,
	// ordered by timestamp ascending. A zero from or to leaves that bound open.
	LoadByCategory(ctx context.Context, category string, from, to time.Time) ([]StoredEvent, error)

	// LoadAfter retrieves events across all streams with timestamp strictly
	// greater than t, ordered by timestamp ascending. Intended for building
	// external projections incrementally.
	LoadAfter(ctx context.Context, t time.Time) ([]StoredEvent, error)

	// LoadFromPosition loads events with GlobalPosition > fromPosition, up
	// to limit. Used by the relay to catch up on historical events.
	LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]StoredEvent, error)

	// GetStreamInfo returns metadata about a stream.
	// Returns ErrStreamNotFound if the stream does not exist.
	GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error)

	// GetLastPosition returns the global position of the last stored event.
	// Returns 0 if no events exist.
	GetLastPosition(ctx context.Context) (uint64, error)

	// Initialize sets up the required storage schema.
	// This should be called once during application startup.
	Initialize(ctx context.Context) error

	// Close releases any resources held by the adapter.
	Close() error
}

// SnapshotRecord represents a stored aggregate snapshot. Snapshots are a
// replay-cost optimization only; a stale or missing snapshot never affects
// correctness.
type SnapshotRecord struct {
	// StreamID is the stream identifier.
	StreamID string

	// Version is the aggregate version at the time of the snapshot.
	Version int64

	// Data is the serialized snapshot payload.
	Data []byte

	// TakenAt is when the snapshot was captured.
	TakenAt time.Time
}

// SnapshotAdapter stores aggregate snapshots for faster loading.
type SnapshotAdapter interface {
	// SaveSnapshot stores a snapshot for the given stream. The newest
	// snapshot supersedes older ones.
	SaveSnapshot(ctx context.Context, snapshot *SnapshotRecord) error

	// LoadSnapshot retrieves the latest snapshot for the given stream.
	// Returns nil, nil if no snapshot exists.
	LoadSnapshot(ctx context.Context, streamID string) (*SnapshotRecord, error)

	// DeleteSnapshot removes all snapshots for the given stream.
	DeleteSnapshot(ctx context.Context, streamID string) error

	// CleanupSnapshots removes old snapshots for the stream, keeping the
	// most recent keepLast. Retention is a housekeeping concern; correctness
	// never depends on when or whether this runs.
	CleanupSnapshots(ctx context.Context, streamID string, keepLast int) error
}

// CheckpointAdapter tracks the last processed global position for named
// consumers (relays, projections).
type CheckpointAdapter interface {
	// GetCheckpoint returns the last processed position for a consumer.
	// Returns 0 if no checkpoint exists.
	GetCheckpoint(ctx context.Context, name string) (uint64, error)

	// SetCheckpoint stores the last processed position for a consumer.
	SetCheckpoint(ctx context.Context, name string, position uint64) error
}

// HealthChecker provides health check capabilities.
type HealthChecker interface {
	// Ping checks if the adapter can connect to its backend.
	Ping(ctx context.Context) error
}

// StreamSummary contains summary information about a stream for listing.
type StreamSummary struct {
	// StreamID is the stream identifier.
	StreamID string

	// EventCount is the number of events in the stream.
	EventCount int64

	// LastEventType is the type of the most recent event.
	LastEventType string

	// LastUpdated is when the last event was stored.
	LastUpdated time.Time
}

// StreamQueryAdapter provides stream inspection capabilities for CLI tools.
type StreamQueryAdapter interface {
	// ListStreams returns a list of stream summaries.
	// prefix filters streams by ID prefix (empty string for all).
	// limit caps the number of results (0 for unlimited).
	ListStreams(ctx context.Context, prefix string, limit int) ([]StreamSummary, error)
}

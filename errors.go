package sourced

import (
	"errors"
	"fmt"

	"github.com/go-sourced/sourced/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
// Storage-level sentinels are aliases to the adapters package for compatibility.
var (
	// ErrStreamNotFound indicates the requested stream does not exist.
	ErrStreamNotFound = adapters.ErrStreamNotFound

	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrNotFound indicates the requested aggregate was not found.
	// Returned by repository reads for never-written ids; the read itself
	// succeeded, there was simply nothing to load.
	ErrNotFound = errors.New("sourced: not found")

	// ErrEmptyHistory indicates an attempt to reconstruct an aggregate
	// from zero events.
	ErrEmptyHistory = errors.New("sourced: cannot reconstruct aggregate from empty history")

	// ErrSerializationFailed indicates event serialization/deserialization failed.
	ErrSerializationFailed = errors.New("sourced: serialization failed")

	// ErrEventTypeNotRegistered indicates an unknown event type was encountered.
	ErrEventTypeNotRegistered = errors.New("sourced: event type not registered")

	// ErrNilAggregate indicates a nil aggregate was passed.
	ErrNilAggregate = errors.New("sourced: nil aggregate")

	// ErrNotSnapshotter indicates snapshotting was requested for an
	// aggregate that does not implement Snapshotter.
	ErrNotSnapshotter = errors.New("sourced: aggregate does not support snapshots")

	// ErrEmptyStreamID indicates an empty stream ID was provided.
	ErrEmptyStreamID = adapters.ErrEmptyStreamID

	// ErrNoEvents indicates no events were provided for append.
	ErrNoEvents = adapters.ErrNoEvents

	// ErrInvalidVersion indicates an invalid version number was provided.
	ErrInvalidVersion = adapters.ErrInvalidVersion

	// ErrAdapterClosed indicates the adapter has been closed.
	ErrAdapterClosed = adapters.ErrAdapterClosed
)

// ConcurrencyError provides detailed information about a concurrency conflict.
// It carries both the version the writer expected and the version the stream
// is actually at, so the caller can decide to reload and retry, merge, or abort.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// Error returns the error message.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("sourced: concurrency conflict on stream %q: expected version %d, actual version %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is reports whether this error matches the target error.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict || target == adapters.ErrConcurrencyConflict
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ConcurrencyError) Unwrap() error {
	return ErrConcurrencyConflict
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{
		StreamID:        streamID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

// StreamNotFoundError provides detailed information about a missing stream.
type StreamNotFoundError struct {
	StreamID string
}

// Error returns the error message.
func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("sourced: stream %q not found", e.StreamID)
}

// Is reports whether this error matches the target error.
func (e *StreamNotFoundError) Is(target error) bool {
	return target == ErrStreamNotFound || target == adapters.ErrStreamNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *StreamNotFoundError) Unwrap() error {
	return ErrStreamNotFound
}

// NewStreamNotFoundError creates a new StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

// SerializationError provides detailed information about a serialization failure.
type SerializationError struct {
	EventType string
	Operation string // "serialize" or "deserialize"
	Cause     error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("sourced: failed to %s event type %q: %v",
		e.Operation, e.EventType, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(eventType, operation string, cause error) *SerializationError {
	return &SerializationError{
		EventType: eventType,
		Operation: operation,
		Cause:     cause,
	}
}

// EventTypeNotRegisteredError provides detailed information about an
// unregistered event type encountered during replay. Replay fails loudly
// on unknown types rather than silently skipping them; a skipped event
// would leave the rebuilt state diverging from the stream.
type EventTypeNotRegisteredError struct {
	EventType string
}

// Error returns the error message.
func (e *EventTypeNotRegisteredError) Error() string {
	return fmt.Sprintf("sourced: event type %q not registered", e.EventType)
}

// Is reports whether this error matches the target error.
func (e *EventTypeNotRegisteredError) Is(target error) bool {
	return target == ErrEventTypeNotRegistered
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *EventTypeNotRegisteredError) Unwrap() error {
	return ErrEventTypeNotRegistered
}

// NewEventTypeNotRegisteredError creates a new EventTypeNotRegisteredError.
func NewEventTypeNotRegisteredError(eventType string) *EventTypeNotRegisteredError {
	return &EventTypeNotRegisteredError{EventType: eventType}
}

// translateAdapterError converts adapter-level typed errors into their
// root-package equivalents, so callers of EventStore and Repository only
// ever see sourced types. Sentinel matching is unaffected either way since
// the sentinels are shared with the adapters package.
func translateAdapterError(err error) error {
	if err == nil {
		return nil
	}

	var conflict *adapters.ConcurrencyError
	if errors.As(err, &conflict) {
		return NewConcurrencyError(conflict.StreamID, conflict.ExpectedVersion, conflict.ActualVersion)
	}

	var notFound *adapters.StreamNotFoundError
	if errors.As(err, &notFound) {
		return NewStreamNotFoundError(notFound.StreamID)
	}

	return err
}

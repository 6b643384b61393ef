package sourced

import (
	"fmt"
	"strings"
	"time"
)

// Version constants for optimistic concurrency control.
const (
	// AnyVersion skips version checking, allowing append regardless of current version.
	AnyVersion int64 = -1

	// NoStream indicates the stream must not exist (for creating new streams).
	// A brand-new stream has implicit version 0.
	NoStream int64 = 0

	// StreamExists indicates the stream must exist (for appending to existing streams).
	StreamExists int64 = -2
)

// StreamID uniquely identifies an event stream.
// It consists of a category (aggregate type) and an instance ID.
type StreamID struct {
	// Category is the aggregate type (e.g., "Account").
	Category string

	// ID is the unique identifier within the category.
	ID string
}

// NewStreamID creates a new StreamID from category and ID.
func NewStreamID(category, id string) StreamID {
	return StreamID{Category: category, ID: id}
}

// ParseStreamID parses a stream ID string in the format "Category-ID".
// Returns an error if the format is invalid.
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return StreamID{}, fmt.Errorf("sourced: invalid stream ID format %q, expected 'Category-ID'", s)
	}
	return StreamID{Category: parts[0], ID: parts[1]}, nil
}

// String returns the stream ID as "Category-ID".
func (s StreamID) String() string {
	return fmt.Sprintf("%s-%s", s.Category, s.ID)
}

// IsZero reports whether the StreamID is empty.
func (s StreamID) IsZero() bool {
	return s.Category == "" && s.ID == ""
}

// Validate checks if the StreamID is valid.
func (s StreamID) Validate() error {
	if s.Category == "" {
		return fmt.Errorf("sourced: stream category is required")
	}
	if s.ID == "" {
		return fmt.Errorf("sourced: stream ID is required")
	}
	return nil
}

// Metadata contains contextual information about an event.
type Metadata struct {
	// CorrelationID links related events across services.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID identifies the event or command that caused this event.
	CausationID string `json:"causationId,omitempty"`

	// UserID identifies the user who triggered this event.
	UserID string `json:"userId,omitempty"`

	// Custom contains arbitrary key-value pairs.
	Custom map[string]string `json:"custom,omitempty"`
}

// WithCorrelationID returns a copy of Metadata with the correlation ID set.
func (m Metadata) WithCorrelationID(id string) Metadata {
	m.CorrelationID = id
	return m
}

// WithCausationID returns a copy of Metadata with the causation ID set.
func (m Metadata) WithCausationID(id string) Metadata {
	m.CausationID = id
	return m
}

// WithUserID returns a copy of Metadata with the user ID set.
func (m Metadata) WithUserID(id string) Metadata {
	m.UserID = id
	return m
}

// WithCustom returns a copy of Metadata with a custom key-value pair added.
func (m Metadata) WithCustom(key, value string) Metadata {
	newCustom := make(map[string]string, len(m.Custom)+1)
	for k, v := range m.Custom {
		newCustom[k] = v
	}
	newCustom[key] = value
	m.Custom = newCustom
	return m
}

// IsEmpty reports whether the Metadata has no values set.
func (m Metadata) IsEmpty() bool {
	return m.CorrelationID == "" &&
		m.CausationID == "" &&
		m.UserID == "" &&
		len(m.Custom) == 0
}

// EventData represents an event to be stored.
type EventData struct {
	// Type is the event type identifier (e.g., "AccountCreated").
	Type string

	// SchemaVersion is the version of the event payload shape.
	// It is distinct from the aggregate version and allows payload evolution.
	SchemaVersion int

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains optional contextual information.
	Metadata Metadata
}

// NewEventData creates a new EventData with the given type and data.
// The schema version defaults to 1.
func NewEventData(eventType string, data []byte) EventData {
	return EventData{
		Type:          eventType,
		SchemaVersion: 1,
		Data:          data,
	}
}

// WithMetadata returns a copy of EventData with the metadata set.
func (e EventData) WithMetadata(m Metadata) EventData {
	e.Metadata = m
	return e
}

// Validate checks if the EventData is valid.
func (e EventData) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("sourced: event type is required")
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("sourced: event data is required")
	}
	return nil
}

// StoredEvent represents a persisted event with all storage metadata.
// Stored events are immutable: once appended they are never modified
// or deleted and are the sole source of truth for aggregate state.
type StoredEvent struct {
	// ID is the globally unique event identifier, assigned at append time.
	ID string

	// StreamID identifies the stream this event belongs to.
	StreamID string

	// Type is the event type identifier.
	Type string

	// SchemaVersion is the version of the event payload shape.
	SchemaVersion int

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains contextual information.
	Metadata Metadata

	// Version is the position within the stream (1-based, gap-free).
	Version int64

	// GlobalPosition is the position across all streams.
	GlobalPosition uint64

	// Timestamp is when the event was appended.
	Timestamp time.Time
}

// StreamInfo contains metadata about an event stream.
type StreamInfo struct {
	// StreamID is the stream identifier.
	StreamID string

	// Category is the stream category (aggregate type).
	Category string

	// Version is the current stream version.
	Version int64

	// EventCount is the number of events in the stream.
	EventCount int64

	// CreatedAt is when the stream was created.
	CreatedAt time.Time

	// UpdatedAt is when the stream was last modified.
	UpdatedAt time.Time
}

// Event represents a deserialized event with its data as a Go type.
// This is the high-level representation used by applications.
type Event struct {
	// ID is the globally unique event identifier.
	ID string

	// StreamID identifies the stream this event belongs to.
	StreamID string

	// Type is the event type identifier.
	Type string

	// SchemaVersion is the version of the event payload shape.
	SchemaVersion int

	// Data is the deserialized event payload.
	Data interface{}

	// Metadata contains contextual information.
	Metadata Metadata

	// Version is the position within the stream (1-based).
	Version int64

	// GlobalPosition is the position across all streams.
	GlobalPosition uint64

	// Timestamp is when the event was appended.
	Timestamp time.Time
}

// EventFromStored creates an Event from a StoredEvent with deserialized data.
func EventFromStored(stored StoredEvent, data interface{}) Event {
	return Event{
		ID:             stored.ID,
		StreamID:       stored.StreamID,
		Type:           stored.Type,
		SchemaVersion:  stored.SchemaVersion,
		Data:           data,
		Metadata:       stored.Metadata,
		Version:        stored.Version,
		GlobalPosition: stored.GlobalPosition,
		Timestamp:      stored.Timestamp,
	}
}

package adapters

import (
	"fmt"
	"strings"
)

// Version constants for optimistic concurrency control.
// These constants define special version values used in Append operations.
const (
	// AnyVersion skips version checking. Use when you don't care about concurrent modifications.
	AnyVersion int64 = -1

	// NoStream requires the stream to not exist. Use for creating new streams.
	NoStream int64 = 0

	// StreamExists requires the stream to exist. Use when you expect to append to an existing stream.
	StreamExists int64 = -2
)

// ExtractCategory extracts the category from a stream ID.
// Stream IDs are expected to follow the format "Category-ID" (e.g., "Account-123").
// The category is the portion before the first hyphen.
func ExtractCategory(streamID string) string {
	if streamID == "" {
		return ""
	}
	parts := strings.SplitN(streamID, "-", 2)
	return parts[0]
}

// ConcurrencyError provides details about a concurrency conflict.
// It is returned when an optimistic concurrency check fails during Append
// and carries both the expected and actual stream versions.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{
		StreamID:        streamID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("sourced: concurrency conflict on stream %q: expected version %d, got %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is implements errors.Is compatibility.
// Returns true when compared with ErrConcurrencyConflict.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// StreamNotFoundError provides details about a missing stream.
type StreamNotFoundError struct {
	StreamID string
}

// NewStreamNotFoundError creates a new StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

// Error implements the error interface.
func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("sourced: stream %q not found", e.StreamID)
}

// Is implements errors.Is compatibility.
// Returns true when compared with ErrStreamNotFound.
func (e *StreamNotFoundError) Is(target error) bool {
	return target == ErrStreamNotFound
}

// CheckVersion validates the expected version against the current version.
// This implements the optimistic concurrency control logic shared by all
// adapters. Callers must hold whatever lock makes the check-and-append
// atomic for their backend.
//
// Returns nil if the version check passes, or an appropriate error otherwise.
func CheckVersion(streamID string, expected, current int64, exists bool) error {
	switch expected {
	case AnyVersion:
		return nil
	case NoStream:
		if exists {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	case StreamExists:
		if !exists {
			return NewStreamNotFoundError(streamID)
		}
		return nil
	default:
		if expected < 0 {
			return ErrInvalidVersion
		}
		if current != expected {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	}
}

// DefaultLimit returns a default limit value if the provided limit is invalid.
// Used for pagination in LoadFromPosition and similar methods.
func DefaultLimit(limit, defaultValue int) int {
	if limit <= 0 {
		return defaultValue
	}
	return limit
}

// Package memory provides an in-memory implementation of the event store
// adapter. It is the reference backend for development and tests; the same
// interfaces can be implemented over a durable log or table.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-sourced/sourced/adapters"
	"github.com/google/uuid"
)

// Version constants for optimistic concurrency control.
// These are re-exported from the adapters package for convenience.
const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// ErrAdapterClosed is re-exported for convenience.
var ErrAdapterClosed = adapters.ErrAdapterClosed

// Ensure MemoryAdapter implements all required interfaces.
var (
	_ adapters.EventStoreAdapter  = (*MemoryAdapter)(nil)
	_ adapters.SnapshotAdapter    = (*MemoryAdapter)(nil)
	_ adapters.CheckpointAdapter  = (*MemoryAdapter)(nil)
	_ adapters.StreamQueryAdapter = (*MemoryAdapter)(nil)
	_ adapters.HealthChecker      = (*MemoryAdapter)(nil)
)

// Clock supplies timestamps for appended events.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies event identifiers.
type IDGenerator interface {
	NewID() string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.New().String() }

// MemoryAdapter is an in-memory implementation of EventStoreAdapter.
// It is thread-safe; the append path holds the write lock across the
// version check and the append, making the two atomic per stream.
type MemoryAdapter struct {
	mu             sync.RWMutex
	streams        map[string]*streamData
	globalEvents   []adapters.StoredEvent
	globalPosition uint64
	snapshots      map[string][]*adapters.SnapshotRecord
	checkpoints    map[string]uint64
	closed         bool

	clock Clock
	ids   IDGenerator
}

type streamData struct {
	info   adapters.StreamInfo
	events []adapters.StoredEvent
}

// Option configures a MemoryAdapter.
type Option func(*MemoryAdapter)

// WithClock sets the clock used to timestamp appended events.
func WithClock(c Clock) Option {
	return func(a *MemoryAdapter) {
		a.clock = c
	}
}

// WithIDGenerator sets the generator used for event IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(a *MemoryAdapter) {
		a.ids = g
	}
}

// NewAdapter creates a new in-memory event store adapter.
func NewAdapter(opts ...Option) *MemoryAdapter {
	adapter := &MemoryAdapter{
		streams:      make(map[string]*streamData),
		globalEvents: make([]adapters.StoredEvent, 0),
		snapshots:    make(map[string][]*adapters.SnapshotRecord),
		checkpoints:  make(map[string]uint64),
		clock:        systemClock{},
		ids:          uuidGenerator{},
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// Initialize is a no-op for the memory adapter.
func (a *MemoryAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Append stores events to the specified stream with optimistic concurrency control.
func (a *MemoryAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	if len(events) == 0 {
		return nil, adapters.ErrNoEvents
	}

	stream, exists := a.streams[streamID]
	currentVersion := int64(0)
	if exists {
		currentVersion = stream.info.Version
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, exists); err != nil {
		return nil, err
	}

	now := a.clock.Now()

	if !exists {
		category := adapters.ExtractCategory(streamID)
		stream = &streamData{
			info: adapters.StreamInfo{
				StreamID:  streamID,
				Category:  category,
				Version:   0,
				CreatedAt: now,
				UpdatedAt: now,
			},
			events: make([]adapters.StoredEvent, 0),
		}
		a.streams[streamID] = stream
	}

	storedEvents := make([]adapters.StoredEvent, len(events))

	for i, event := range events {
		a.globalPosition++
		currentVersion++

		schemaVersion := event.SchemaVersion
		if schemaVersion == 0 {
			schemaVersion = 1
		}

		// Copy payload and metadata so later caller mutations cannot
		// rewrite stored history.
		stored := adapters.StoredEvent{
			ID:             a.ids.NewID(),
			StreamID:       streamID,
			Type:           event.Type,
			SchemaVersion:  schemaVersion,
			Data:           append([]byte(nil), event.Data...),
			Metadata:       cloneMetadata(event.Metadata),
			Version:        currentVersion,
			GlobalPosition: a.globalPosition,
			Timestamp:      now,
		}

		stream.events = append(stream.events, stored)
		a.globalEvents = append(a.globalEvents, stored)
		storedEvents[i] = stored
	}

	stream.info.Version = currentVersion
	stream.info.EventCount = int64(len(stream.events))
	stream.info.UpdatedAt = now

	return storedEvents, nil
}

// Load retrieves events from a stream with Version > fromVersion.
func (a *MemoryAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	stream, exists := a.streams[streamID]
	if !exists {
		return []adapters.StoredEvent{}, nil
	}

	events := make([]adapters.StoredEvent, 0)
	for _, event := range stream.events {
		if event.Version > fromVersion {
			events = append(events, event)
		}
	}

	return events, nil
}

// LoadByCategory retrieves events across all streams of the given category
// within the inclusive [from, to] timestamp window, ordered by timestamp.
func (a *MemoryAdapter) LoadByCategory(ctx context.Context, category string, from, to time.Time) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	events := make([]adapters.StoredEvent, 0)
	for _, event := range a.globalEvents {
		if adapters.ExtractCategory(event.StreamID) != category {
			continue
		}
		if !from.IsZero() && event.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && event.Timestamp.After(to) {
			continue
		}
		events = append(events, event)
	}

	sortByTimestamp(events)
	return events, nil
}

// LoadAfter retrieves events across all streams with timestamp strictly
// after t, ordered by timestamp.
func (a *MemoryAdapter) LoadAfter(ctx context.Context, t time.Time) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	events := make([]adapters.StoredEvent, 0)
	for _, event := range a.globalEvents {
		if event.Timestamp.After(t) {
			events = append(events, event)
		}
	}

	sortByTimestamp(events)
	return events, nil
}

// LoadFromPosition loads events starting from a global position.
func (a *MemoryAdapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	limit = adapters.DefaultLimit(limit, 1000)

	var events []adapters.StoredEvent
	for _, event := range a.globalEvents {
		if event.GlobalPosition > fromPosition {
			events = append(events, event)
			if len(events) >= limit {
				break
			}
		}
	}

	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *MemoryAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	stream, exists := a.streams[streamID]
	if !exists {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}

	// Return a copy to prevent mutation
	info := stream.info
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *MemoryAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return 0, ErrAdapterClosed
	}

	return a.globalPosition, nil
}

// ListStreams returns stream summaries, optionally filtered by ID prefix.
func (a *MemoryAdapter) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	summaries := make([]adapters.StreamSummary, 0, len(a.streams))
	for id, stream := range a.streams {
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		summary := adapters.StreamSummary{
			StreamID:    id,
			EventCount:  stream.info.EventCount,
			LastUpdated: stream.info.UpdatedAt,
		}
		if n := len(stream.events); n > 0 {
			summary.LastEventType = stream.events[n-1].Type
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StreamID < summaries[j].StreamID
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Close releases any resources held by the adapter.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	return nil
}

// SaveSnapshot stores a snapshot for the given stream.
// Older snapshots are retained until CleanupSnapshots trims them.
func (a *MemoryAdapter) SaveSnapshot(ctx context.Context, snapshot *adapters.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAdapterClosed
	}

	copied := *snapshot
	copied.Data = append([]byte(nil), snapshot.Data...)
	a.snapshots[snapshot.StreamID] = append(a.snapshots[snapshot.StreamID], &copied)
	return nil
}

// LoadSnapshot retrieves the latest snapshot for the given stream.
func (a *MemoryAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	history := a.snapshots[streamID]
	if len(history) == 0 {
		return nil, nil
	}

	// Return a copy of the newest snapshot, including its payload bytes
	latest := *history[len(history)-1]
	latest.Data = append([]byte(nil), latest.Data...)
	return &latest, nil
}

// DeleteSnapshot removes all snapshots for the given stream.
func (a *MemoryAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAdapterClosed
	}

	delete(a.snapshots, streamID)
	return nil
}

// CleanupSnapshots trims the stream's snapshot history to the most recent keepLast.
func (a *MemoryAdapter) CleanupSnapshots(ctx context.Context, streamID string, keepLast int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAdapterClosed
	}

	if keepLast < 1 {
		keepLast = 1
	}

	history := a.snapshots[streamID]
	if len(history) > keepLast {
		a.snapshots[streamID] = history[len(history)-keepLast:]
	}
	return nil
}

// GetCheckpoint returns the last processed position for a consumer.
func (a *MemoryAdapter) GetCheckpoint(ctx context.Context, name string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return 0, ErrAdapterClosed
	}

	return a.checkpoints[name], nil
}

// SetCheckpoint stores the last processed position for a consumer.
func (a *MemoryAdapter) SetCheckpoint(ctx context.Context, name string, position uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAdapterClosed
	}

	a.checkpoints[name] = position
	return nil
}

// Ping checks if the adapter is healthy.
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}

	return nil
}

// Reset clears all data. Useful for testing.
func (a *MemoryAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streams = make(map[string]*streamData)
	a.globalEvents = make([]adapters.StoredEvent, 0)
	a.globalPosition = 0
	a.snapshots = make(map[string][]*adapters.SnapshotRecord)
	a.checkpoints = make(map[string]uint64)
}

// EventCount returns the total number of events stored.
func (a *MemoryAdapter) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.globalEvents)
}

// StreamCount returns the number of streams.
func (a *MemoryAdapter) StreamCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.streams)
}

// SnapshotCount returns the number of retained snapshots for a stream.
func (a *MemoryAdapter) SnapshotCount(streamID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.snapshots[streamID])
}

// cloneMetadata returns metadata with its own Custom map.
func cloneMetadata(m adapters.Metadata) adapters.Metadata {
	if m.Custom == nil {
		return m
	}
	custom := make(map[string]string, len(m.Custom))
	for k, v := range m.Custom {
		custom[k] = v
	}
	m.Custom = custom
	return m
}

// sortByTimestamp orders events by timestamp ascending, breaking ties by
// global position so the order is total and stable across calls.
func sortByTimestamp(events []adapters.StoredEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].GlobalPosition < events[j].GlobalPosition
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

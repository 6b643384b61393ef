package sourced

import (
	"context"
	"fmt"

	"github.com/go-sourced/sourced/adapters"
)

// Repository loads and saves event-sourced aggregates.
//
// Load is snapshot-then-replay: the latest snapshot (if any) restores a
// baseline, and every event past the snapshot version is replayed on top.
// Save appends the aggregate's uncommitted events with an optimistic
// concurrency check against the version the aggregate was loaded at.
type Repository struct {
	store            *EventStore
	factory          AggregateFactory
	snapshots        adapters.SnapshotAdapter
	snapshotInterval int64
	snapshotKeep     int
	clock            Clock
	logger           Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithSnapshots enables snapshot-based loading and periodic snapshot
// capture. A snapshot is taken after a save whose appended events cross a
// multiple of interval. interval must be positive.
func WithSnapshots(adapter adapters.SnapshotAdapter, interval int64) RepositoryOption {
	return func(r *Repository) {
		r.snapshots = adapter
		r.snapshotInterval = interval
	}
}

// WithSnapshotRetention caps how many snapshots are kept per stream.
// Only meaningful together with WithSnapshots. Zero disables cleanup.
func WithSnapshotRetention(keepLast int) RepositoryOption {
	return func(r *Repository) {
		r.snapshotKeep = keepLast
	}
}

// WithRepositoryClock sets the clock used to timestamp snapshots.
func WithRepositoryClock(c Clock) RepositoryOption {
	return func(r *Repository) {
		r.clock = c
	}
}

// WithRepositoryLogger sets the logger for repository operations.
func WithRepositoryLogger(l Logger) RepositoryOption {
	return func(r *Repository) {
		r.logger = l
	}
}

// NewRepository creates a Repository over the given store. The factory
// produces empty aggregate instances to replay into.
func NewRepository(store *EventStore, factory AggregateFactory, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store:   store,
		factory: factory,
		clock:   SystemClock,
		logger:  NoopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// GetByID loads an aggregate by its ID.
//
// When a snapshot adapter is configured and a snapshot exists, the snapshot
// restores the baseline state and only events past its version are replayed.
// Snapshot restore failures are logged and fall back to a full replay; a
// snapshot is an optimization, never a source of truth.
//
// Returns ErrNotFound when no events (and no snapshot) exist for the ID.
func (r *Repository) GetByID(ctx context.Context, id string) (Aggregate, error) {
	agg := r.factory(id)
	if agg == nil {
		return nil, ErrNilAggregate
	}

	streamID := NewStreamID(agg.AggregateType(), id)
	fromVersion := int64(0)
	restored := false

	if r.snapshots != nil {
		snap, err := r.snapshots.LoadSnapshot(ctx, streamID.String())
		if err != nil {
			r.logger.Warn("snapshot load failed, falling back to full replay",
				"streamId", streamID.String(),
				"error", err)
		} else if snap != nil {
			if err := LoadFromSnapshot(agg, snap); err != nil {
				r.logger.Warn("snapshot restore failed, falling back to full replay",
					"streamId", streamID.String(),
					"snapshotVersion", snap.Version,
					"error", err)
				agg = r.factory(id)
			} else {
				fromVersion = snap.Version
				restored = true
			}
		}
	}

	events, err := r.store.LoadFrom(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	if !restored && len(events) == 0 {
		return nil, ErrNotFound
	}

	if !restored {
		agg.SetID(id)
	}
	for i, e := range events {
		if err := ReplayEvent(agg, e.Data); err != nil {
			return nil, &replayError{streamID: streamID.String(), index: i, eventType: e.Type, cause: err}
		}
	}

	return agg, nil
}

// ReplayFromHistory loads an aggregate by full replay, ignoring any
// snapshot. Useful for verifying snapshot/replay equivalence and for
// rebuilding after an aggregate logic change.
func (r *Repository) ReplayFromHistory(ctx context.Context, id string) (Aggregate, error) {
	agg := r.factory(id)
	if agg == nil {
		return nil, ErrNilAggregate
	}

	streamID := NewStreamID(agg.AggregateType(), id)
	events, err := r.store.Load(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}

	if err := LoadFromHistory(agg, events); err != nil {
		return nil, err
	}
	agg.SetID(id)
	return agg, nil
}

// Save appends the aggregate's uncommitted events to its stream.
//
// The expected version is the version the aggregate was loaded at: its
// current version minus the uncommitted count. A concurrent writer that
// advanced the stream since the load makes the append fail with
// ErrConcurrencyConflict, and the aggregate's buffer is left intact so the
// caller can reload and retry.
//
// Saving an aggregate with no uncommitted events is a no-op.
func (r *Repository) Save(ctx context.Context, agg Aggregate) error {
	if agg == nil {
		return ErrNilAggregate
	}

	uncommitted := agg.UncommittedEvents()
	if len(uncommitted) == 0 {
		return nil
	}

	streamID := NewStreamID(agg.AggregateType(), agg.AggregateID())
	expectedVersion := agg.Version() - int64(len(uncommitted))
	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	_, err := r.store.Append(ctx, streamID, uncommitted, ExpectVersion(expectedVersion))
	if err != nil {
		return err
	}

	agg.MarkEventsCommitted()

	r.maybeSnapshot(ctx, agg, expectedVersion)

	return nil
}

// Version returns the current persisted version of the aggregate's stream.
// Returns 0 for an aggregate that has never been saved.
func (r *Repository) Version(ctx context.Context, id string) (int64, error) {
	agg := r.factory(id)
	if agg == nil {
		return 0, ErrNilAggregate
	}
	return r.store.StreamVersion(ctx, NewStreamID(agg.AggregateType(), id))
}

// Exists reports whether any events have been stored for the aggregate ID.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	v, err := r.Version(ctx, id)
	if err != nil {
		return false, err
	}
	return v > 0, nil
}

// maybeSnapshot captures a snapshot when the save crossed a multiple of the
// snapshot interval. Snapshot failures are logged and swallowed: the events
// are already durable and a missing snapshot only costs replay time.
func (r *Repository) maybeSnapshot(ctx context.Context, agg Aggregate, previousVersion int64) {
	if r.snapshots == nil || r.snapshotInterval <= 0 {
		return
	}
	if _, ok := agg.(Snapshotter); !ok {
		return
	}

	current := agg.Version()
	if current/r.snapshotInterval == previousVersion/r.snapshotInterval {
		return
	}

	snap, err := TakeSnapshot(agg, r.clock)
	if err != nil {
		r.logger.Warn("snapshot capture failed",
			"aggregateId", agg.AggregateID(),
			"version", current,
			"error", err)
		return
	}

	if err := r.snapshots.SaveSnapshot(ctx, snap); err != nil {
		r.logger.Warn("snapshot save failed",
			"streamId", snap.StreamID,
			"version", snap.Version,
			"error", err)
		return
	}

	r.logger.Debug("snapshot saved",
		"streamId", snap.StreamID,
		"version", snap.Version)

	if r.snapshotKeep > 0 {
		if err := r.snapshots.CleanupSnapshots(ctx, snap.StreamID, r.snapshotKeep); err != nil {
			r.logger.Warn("snapshot cleanup failed",
				"streamId", snap.StreamID,
				"error", err)
		}
	}
}

type replayError struct {
	streamID  string
	index     int
	eventType string
	cause     error
}

func (e *replayError) Error() string {
	return fmt.Sprintf("sourced: replay of stream %s failed at event %d (%s): %v",
		e.streamID, e.index, e.eventType, e.cause)
}

func (e *replayError) Unwrap() error { return e.cause }

package sourced

import (
	"fmt"

	"github.com/go-sourced/sourced/adapters"
)

// Aggregate defines the interface for event-sourced aggregates.
// An aggregate is a domain object whose state is derived from a sequence of
// events. Current state must always be reproducible by folding the event
// stream through ApplyEvent; no other mutation path is permitted.
type Aggregate interface {
	// AggregateID returns the unique identifier for this aggregate instance.
	AggregateID() string

	// SetID sets the aggregate's ID. Used when rebuilding from history.
	SetID(id string)

	// AggregateType returns the type/category of this aggregate (e.g., "Account").
	AggregateType() string

	// Version returns the current version of the aggregate.
	// This is the number of events that have been applied, historical or new.
	// A brand-new aggregate is at version 0.
	Version() int64

	// SetVersion sets the aggregate version.
	SetVersion(v int64)

	// ApplyEvent mutates the aggregate's state as a function of the event.
	// It must be deterministic and must not touch the version counter or
	// the uncommitted buffer; Raise and replay handle those.
	ApplyEvent(event interface{}) error

	// Record buffers an event as uncommitted. Called by Raise; aggregates
	// should not call it directly.
	Record(event interface{})

	// UncommittedEvents returns events that have been applied but not yet persisted.
	UncommittedEvents() []interface{}

	// MarkEventsCommitted clears the uncommitted buffer after a confirmed append.
	MarkEventsCommitted()
}

// Snapshotter is implemented by aggregates that support snapshot-based
// reconstruction. A snapshot is a replay-cost optimization, never a source
// of truth: it is only valid combined with all events past its version.
type Snapshotter interface {
	Aggregate

	// MarshalSnapshot serializes the aggregate's current state.
	MarshalSnapshot() ([]byte, error)

	// UnmarshalSnapshot restores the aggregate's state from serialized form.
	UnmarshalSnapshot(data []byte) error
}

// AggregateBase provides a default partial implementation of the Aggregate
// interface. Embed this struct in your aggregate types; supply ApplyEvent
// on the outer type.
type AggregateBase struct {
	id                string
	aggregateType     string
	version           int64
	uncommittedEvents []interface{}
}

// NewAggregateBase creates a new AggregateBase with the given ID and type.
func NewAggregateBase(id, aggregateType string) AggregateBase {
	return AggregateBase{
		id:            id,
		aggregateType: aggregateType,
	}
}

// AggregateID returns the aggregate's unique identifier.
func (a *AggregateBase) AggregateID() string {
	return a.id
}

// SetID sets the aggregate's ID.
func (a *AggregateBase) SetID(id string) {
	a.id = id
}

// AggregateType returns the aggregate type.
func (a *AggregateBase) AggregateType() string {
	return a.aggregateType
}

// SetType sets the aggregate type.
func (a *AggregateBase) SetType(t string) {
	a.aggregateType = t
}

// Version returns the current version of the aggregate.
func (a *AggregateBase) Version() int64 {
	return a.version
}

// SetVersion sets the aggregate version.
func (a *AggregateBase) SetVersion(v int64) {
	a.version = v
}

// Record buffers an event as uncommitted, in production order.
func (a *AggregateBase) Record(event interface{}) {
	a.uncommittedEvents = append(a.uncommittedEvents, event)
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateBase) UncommittedEvents() []interface{} {
	return a.uncommittedEvents
}

// MarkEventsCommitted clears the uncommitted buffer.
func (a *AggregateBase) MarkEventsCommitted() {
	a.uncommittedEvents = nil
}

// HasUncommittedEvents returns true if there are events waiting to be persisted.
func (a *AggregateBase) HasUncommittedEvents() bool {
	return len(a.uncommittedEvents) > 0
}

// StreamID returns the stream ID for this aggregate.
func (a *AggregateBase) StreamID() StreamID {
	return NewStreamID(a.aggregateType, a.id)
}

// Raise applies a new domain event to the aggregate and records it as
// uncommitted. This is the single mutation path for new events: the
// aggregate's ApplyEvent runs first, then the version advances by exactly 1
// and the event is buffered for the next Save.
func Raise(agg Aggregate, event interface{}) error {
	if agg == nil {
		return ErrNilAggregate
	}
	if err := agg.ApplyEvent(event); err != nil {
		return err
	}
	agg.SetVersion(agg.Version() + 1)
	agg.Record(event)
	return nil
}

// ReplayEvent applies a historical event to the aggregate without buffering
// it. The version advances by exactly 1, as for new events.
func ReplayEvent(agg Aggregate, event interface{}) error {
	if agg == nil {
		return ErrNilAggregate
	}
	if err := agg.ApplyEvent(event); err != nil {
		return err
	}
	agg.SetVersion(agg.Version() + 1)
	return nil
}

// LoadFromHistory rebuilds an aggregate by replaying an ordered, non-empty
// event sequence from scratch. The aggregate identity is derived from the
// first event's stream ID. After a successful load the aggregate's version
// equals the number of events applied and the uncommitted buffer is empty.
//
// Replaying the same sequence always yields identical state; this is the
// core correctness property of the package.
func LoadFromHistory(agg Aggregate, events []Event) error {
	if agg == nil {
		return ErrNilAggregate
	}
	if len(events) == 0 {
		return ErrEmptyHistory
	}

	if sid, err := ParseStreamID(events[0].StreamID); err == nil {
		agg.SetID(sid.ID)
	}

	for i, e := range events {
		if err := ReplayEvent(agg, e.Data); err != nil {
			return fmt.Errorf("sourced: failed to replay event %d (%s): %w", i, e.Type, err)
		}
	}
	return nil
}

// LoadFromSnapshot restores an aggregate directly from a snapshot record,
// setting its identity and version from the record. It does not fetch
// trailing events; the repository applies events past the snapshot version
// afterward via ReplayEvent.
func LoadFromSnapshot(agg Aggregate, snap *adapters.SnapshotRecord) error {
	if agg == nil {
		return ErrNilAggregate
	}
	snapshotter, ok := agg.(Snapshotter)
	if !ok {
		return ErrNotSnapshotter
	}
	if snap == nil {
		return fmt.Errorf("sourced: nil snapshot")
	}

	if sid, err := ParseStreamID(snap.StreamID); err == nil {
		agg.SetID(sid.ID)
	}
	if err := snapshotter.UnmarshalSnapshot(snap.Data); err != nil {
		return fmt.Errorf("sourced: failed to restore snapshot for %q: %w", snap.StreamID, err)
	}
	agg.SetVersion(snap.Version)
	return nil
}

// TakeSnapshot packages the aggregate's current state into a snapshot
// record at its current version.
func TakeSnapshot(agg Aggregate, clock Clock) (*adapters.SnapshotRecord, error) {
	if agg == nil {
		return nil, ErrNilAggregate
	}
	snapshotter, ok := agg.(Snapshotter)
	if !ok {
		return nil, ErrNotSnapshotter
	}
	if clock == nil {
		clock = SystemClock
	}

	data, err := snapshotter.MarshalSnapshot()
	if err != nil {
		return nil, fmt.Errorf("sourced: failed to marshal snapshot for %q: %w", agg.AggregateID(), err)
	}

	return &adapters.SnapshotRecord{
		StreamID: BuildStreamID(agg.AggregateType(), agg.AggregateID()),
		Version:  agg.Version(),
		Data:     data,
		TakenAt:  clock.Now(),
	}, nil
}

// AggregateFactory creates new, empty aggregate instances for a given ID.
type AggregateFactory func(id string) Aggregate

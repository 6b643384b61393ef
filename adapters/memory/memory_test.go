package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-sourced/sourced/adapters"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("evt-%d", g.n)
}

func record(eventType string) adapters.EventRecord {
	return adapters.EventRecord{
		Type: eventType,
		Data: []byte(`{}`),
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns versions, positions, IDs and timestamps", func(t *testing.T) {
		clock := &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
		adapter := NewAdapter(WithClock(clock), WithIDGenerator(&seqIDs{}))

		stored, err := adapter.Append(ctx, "Order-1",
			[]adapters.EventRecord{record("Created"), record("Updated")},
			adapters.AnyVersion)

		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, "evt-1", stored[0].ID)
		assert.Equal(t, int64(1), stored[0].Version)
		assert.Equal(t, int64(2), stored[1].Version)
		assert.Equal(t, uint64(1), stored[0].GlobalPosition)
		assert.Equal(t, uint64(2), stored[1].GlobalPosition)
		assert.Equal(t, clock.t, stored[0].Timestamp)
		assert.Equal(t, 1, stored[0].SchemaVersion, "schema version defaults to 1")
	})

	t.Run("stored events do not alias caller buffers", func(t *testing.T) {
		adapter := NewAdapter()

		data := []byte(`{"amount":10}`)
		custom := map[string]string{"source": "api"}
		_, err := adapter.Append(ctx, "Order-1", []adapters.EventRecord{{
			Type:     "Created",
			Data:     data,
			Metadata: adapters.Metadata{Custom: custom},
		}}, adapters.AnyVersion)
		require.NoError(t, err)

		// Mutating the caller's slices after append must not rewrite history.
		data[0] = 'X'
		custom["source"] = "tampered"

		events, err := adapter.Load(ctx, "Order-1", 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, []byte(`{"amount":10}`), events[0].Data)
		assert.Equal(t, "api", events[0].Metadata.Custom["source"])
	})

	t.Run("global positions span streams", func(t *testing.T) {
		adapter := NewAdapter()

		first, err := adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("A")}, adapters.AnyVersion)
		require.NoError(t, err)
		second, err := adapter.Append(ctx, "Order-2", []adapters.EventRecord{record("B")}, adapters.AnyVersion)
		require.NoError(t, err)

		assert.Equal(t, uint64(1), first[0].GlobalPosition)
		assert.Equal(t, uint64(2), second[0].GlobalPosition)
	})

	t.Run("version checks", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("A")}, adapters.NoStream)
		require.NoError(t, err)

		_, err = adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("B")}, adapters.NoStream)
		assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

		_, err = adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("B")}, 99)
		assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

		_, err = adapter.Append(ctx, "Missing-1", []adapters.EventRecord{record("B")}, adapters.StreamExists)
		assert.ErrorIs(t, err, adapters.ErrStreamNotFound)

		_, err = adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("B")}, 1)
		assert.NoError(t, err)
	})

	t.Run("concurrent appends with the same expectation admit exactly one", func(t *testing.T) {
		adapter := NewAdapter()
		_, err := adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("A")}, adapters.NoStream)
		require.NoError(t, err)

		const writers = 16
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("B")}, 1)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)
			}
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("input validation", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "", []adapters.EventRecord{record("A")}, adapters.AnyVersion)
		assert.ErrorIs(t, err, adapters.ErrEmptyStreamID)

		_, err = adapter.Append(ctx, "Order-1", nil, adapters.AnyVersion)
		assert.ErrorIs(t, err, adapters.ErrNoEvents)
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("from version", func(t *testing.T) {
		adapter := NewAdapter()
		_, err := adapter.Append(ctx, "Order-1",
			[]adapters.EventRecord{record("A"), record("B"), record("C")},
			adapters.AnyVersion)
		require.NoError(t, err)

		events, err := adapter.Load(ctx, "Order-1", 1)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(2), events[0].Version)
		assert.Equal(t, int64(3), events[1].Version)
	})

	t.Run("unknown stream yields empty slice", func(t *testing.T) {
		adapter := NewAdapter()
		events, err := adapter.Load(ctx, "Missing-1", 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestLoadByTimeWindows(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &fixedClock{t: base}
	adapter := NewAdapter(WithClock(clock))

	_, err := adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("A")}, adapters.AnyVersion)
	require.NoError(t, err)

	clock.t = base.Add(time.Hour)
	_, err = adapter.Append(ctx, "Order-2", []adapters.EventRecord{record("B")}, adapters.AnyVersion)
	require.NoError(t, err)

	clock.t = base.Add(2 * time.Hour)
	_, err = adapter.Append(ctx, "Invoice-1", []adapters.EventRecord{record("C")}, adapters.AnyVersion)
	require.NoError(t, err)

	t.Run("category with closed window", func(t *testing.T) {
		events, err := adapter.LoadByCategory(ctx, "Order", base.Add(30*time.Minute), base.Add(90*time.Minute))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "Order-2", events[0].StreamID)
	})

	t.Run("category with open bounds", func(t *testing.T) {
		events, err := adapter.LoadByCategory(ctx, "Order", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("window bounds are inclusive", func(t *testing.T) {
		events, err := adapter.LoadByCategory(ctx, "Order", base, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("load after is exclusive", func(t *testing.T) {
		events, err := adapter.LoadAfter(ctx, base)
		require.NoError(t, err)
		assert.Len(t, events, 2)

		events, err = adapter.LoadAfter(ctx, base.Add(-time.Second))
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})
}

func TestLoadFromPosition(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	_, err := adapter.Append(ctx, "Order-1",
		[]adapters.EventRecord{record("A"), record("B"), record("C")},
		adapters.AnyVersion)
	require.NoError(t, err)

	events, err := adapter.LoadFromPosition(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].GlobalPosition)

	events, err = adapter.LoadFromPosition(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStreamInfo(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	_, err := adapter.GetStreamInfo(ctx, "Order-1")
	assert.ErrorIs(t, err, adapters.ErrStreamNotFound)

	_, err = adapter.Append(ctx, "Order-1",
		[]adapters.EventRecord{record("A"), record("B")},
		adapters.AnyVersion)
	require.NoError(t, err)

	info, err := adapter.GetStreamInfo(ctx, "Order-1")
	require.NoError(t, err)
	assert.Equal(t, "Order", info.Category)
	assert.Equal(t, int64(2), info.Version)
	assert.Equal(t, int64(2), info.EventCount)
}

func TestListStreams(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	for _, id := range []string{"Order-2", "Order-1", "Invoice-1"} {
		_, err := adapter.Append(ctx, id, []adapters.EventRecord{record("Created")}, adapters.AnyVersion)
		require.NoError(t, err)
	}

	t.Run("sorted by stream ID", func(t *testing.T) {
		streams, err := adapter.ListStreams(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, streams, 3)
		assert.Equal(t, "Invoice-1", streams[0].StreamID)
		assert.Equal(t, "Order-1", streams[1].StreamID)
		assert.Equal(t, "Created", streams[0].LastEventType)
	})

	t.Run("prefix filter and limit", func(t *testing.T) {
		streams, err := adapter.ListStreams(ctx, "Order-", 1)
		require.NoError(t, err)
		require.Len(t, streams, 1)
		assert.Equal(t, "Order-1", streams[0].StreamID)
	})
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	snapshotAt := func(version int64) *adapters.SnapshotRecord {
		return &adapters.SnapshotRecord{
			StreamID: "Order-1",
			Version:  version,
			Data:     []byte(fmt.Sprintf(`{"v":%d}`, version)),
			TakenAt:  time.Now(),
		}
	}

	t.Run("missing snapshot is nil, nil", func(t *testing.T) {
		snap, err := adapter.LoadSnapshot(ctx, "Order-1")
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("latest snapshot wins", func(t *testing.T) {
		require.NoError(t, adapter.SaveSnapshot(ctx, snapshotAt(5)))
		require.NoError(t, adapter.SaveSnapshot(ctx, snapshotAt(10)))

		snap, err := adapter.LoadSnapshot(ctx, "Order-1")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, int64(10), snap.Version)
	})

	t.Run("snapshot data does not alias caller or reader buffers", func(t *testing.T) {
		saved := &adapters.SnapshotRecord{
			StreamID: "Order-2",
			Version:  20,
			Data:     []byte(`{"v":20}`),
			TakenAt:  time.Now(),
		}
		require.NoError(t, adapter.SaveSnapshot(ctx, saved))
		saved.Data[0] = 'X'

		loaded, err := adapter.LoadSnapshot(ctx, "Order-2")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, []byte(`{"v":20}`), loaded.Data)

		loaded.Data[0] = 'Y'
		again, err := adapter.LoadSnapshot(ctx, "Order-2")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":20}`), again.Data)
	})

	t.Run("cleanup keeps the most recent", func(t *testing.T) {
		require.NoError(t, adapter.SaveSnapshot(ctx, snapshotAt(15)))
		require.Equal(t, 3, adapter.SnapshotCount("Order-1"))

		require.NoError(t, adapter.CleanupSnapshots(ctx, "Order-1", 1))

		assert.Equal(t, 1, adapter.SnapshotCount("Order-1"))
		snap, err := adapter.LoadSnapshot(ctx, "Order-1")
		require.NoError(t, err)
		assert.Equal(t, int64(15), snap.Version)
	})

	t.Run("delete removes everything", func(t *testing.T) {
		require.NoError(t, adapter.DeleteSnapshot(ctx, "Order-1"))

		snap, err := adapter.LoadSnapshot(ctx, "Order-1")
		require.NoError(t, err)
		assert.Nil(t, snap)
	})
}

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	position, err := adapter.GetCheckpoint(ctx, "relay-1")
	require.NoError(t, err)
	assert.Zero(t, position)

	require.NoError(t, adapter.SetCheckpoint(ctx, "relay-1", 42))

	position, err = adapter.GetCheckpoint(ctx, "relay-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), position)

	// Checkpoints are independent per consumer.
	position, err = adapter.GetCheckpoint(ctx, "relay-2")
	require.NoError(t, err)
	assert.Zero(t, position)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()
	require.NoError(t, adapter.Close())

	_, err := adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("A")}, adapters.AnyVersion)
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)

	_, err = adapter.Load(ctx, "Order-1", 0)
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)

	assert.ErrorIs(t, adapter.Ping(ctx), adapters.ErrAdapterClosed)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	_, err := adapter.Append(ctx, "Order-1", []adapters.EventRecord{record("A")}, adapters.AnyVersion)
	require.NoError(t, err)
	require.Equal(t, 1, adapter.EventCount())

	adapter.Reset()

	assert.Zero(t, adapter.EventCount())
	assert.Zero(t, adapter.StreamCount())

	position, err := adapter.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Zero(t, position)
}

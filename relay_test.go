package sourced

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-sourced/sourced/adapters/memory"
)

type capturePublisher struct {
	events  []StoredEvent
	failOn  string // event type that triggers a failure
	failErr error
}

func (p *capturePublisher) Publish(ctx context.Context, event StoredEvent) error {
	if p.failOn != "" && event.Type == p.failOn {
		return p.failErr
	}
	p.events = append(p.events, event)
	return nil
}

func TestRelayRunOnce(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*EventStore, *memory.MemoryAdapter) {
		t.Helper()
		adapter := memory.NewAdapter()
		store := NewEventStore(adapter)
		store.RegisterEvents(TestOrderCreated{}, TestItemAdded{}, TestOrderSubmitted{})
		return store, adapter
	}

	t.Run("publishes in global order and advances checkpoint", func(t *testing.T) {
		store, adapter := setup(t)

		_, err := store.Append(ctx, NewStreamID("Order", "a"),
			[]interface{}{TestOrderCreated{OrderID: "a"}, TestItemAdded{SKU: "SKU-1"}})
		require.NoError(t, err)
		_, err = store.Append(ctx, NewStreamID("Order", "b"),
			[]interface{}{TestOrderCreated{OrderID: "b"}})
		require.NoError(t, err)

		pub := &capturePublisher{}
		relay := NewRelay(store, adapter, pub, "test-relay")

		published, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, published)

		require.Len(t, pub.events, 3)
		for i := 1; i < len(pub.events); i++ {
			assert.Greater(t, pub.events[i].GlobalPosition, pub.events[i-1].GlobalPosition)
		}

		checkpoint, err := adapter.GetCheckpoint(ctx, "test-relay")
		require.NoError(t, err)
		assert.Equal(t, uint64(3), checkpoint)

		// Nothing new: second run publishes nothing.
		published, err = relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, published)
	})

	t.Run("failure stops the batch without losing events", func(t *testing.T) {
		store, adapter := setup(t)

		_, err := store.Append(ctx, NewStreamID("Order", "a"), []interface{}{
			TestOrderCreated{OrderID: "a"},
			TestItemAdded{SKU: "SKU-1"},
			TestOrderSubmitted{OrderID: "a"},
		})
		require.NoError(t, err)

		pub := &capturePublisher{failOn: "TestItemAdded", failErr: errors.New("broker down")}
		relay := NewRelay(store, adapter, pub, "test-relay")

		published, err := relay.RunOnce(ctx)
		require.Error(t, err)
		assert.Equal(t, 1, published)

		// Checkpoint sits at the last confirmed event.
		checkpoint, err := adapter.GetCheckpoint(ctx, "test-relay")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), checkpoint)

		// Once the broker recovers, the rest of the batch goes out.
		pub.failOn = ""
		published, err = relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, published)
	})

	t.Run("independent relays each see the full sequence", func(t *testing.T) {
		store, adapter := setup(t)

		_, err := store.Append(ctx, NewStreamID("Order", "a"),
			[]interface{}{TestOrderCreated{OrderID: "a"}})
		require.NoError(t, err)

		pub1 := &capturePublisher{}
		pub2 := &capturePublisher{}
		relay1 := NewRelay(store, adapter, pub1, "relay-1")
		relay2 := NewRelay(store, adapter, pub2, "relay-2")

		_, err = relay1.RunOnce(ctx)
		require.NoError(t, err)
		_, err = relay2.RunOnce(ctx)
		require.NoError(t, err)

		assert.Len(t, pub1.events, 1)
		assert.Len(t, pub2.events, 1)
	})

	t.Run("lag reflects unpublished events", func(t *testing.T) {
		store, adapter := setup(t)

		_, err := store.Append(ctx, NewStreamID("Order", "a"),
			[]interface{}{TestOrderCreated{OrderID: "a"}, TestItemAdded{SKU: "SKU-1"}})
		require.NoError(t, err)

		relay := NewRelay(store, adapter, &capturePublisher{}, "test-relay")

		lag, err := relay.Lag(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), lag)

		_, err = relay.RunOnce(ctx)
		require.NoError(t, err)

		lag, err = relay.Lag(ctx)
		require.NoError(t, err)
		assert.Zero(t, lag)
	})
}

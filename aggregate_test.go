package sourced

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test aggregate implementation
type TestOrder struct {
	AggregateBase
	CustomerID string
	Items      []OrderItem
	Status     string
}

type OrderItem struct {
	SKU      string
	Quantity int
	Price    float64
}

// Test events
type TestOrderCreated struct {
	OrderID    string
	CustomerID string
}

type TestItemAdded struct {
	SKU      string
	Quantity int
	Price    float64
}

type TestOrderSubmitted struct {
	OrderID string
}

func NewTestOrder(id string) *TestOrder {
	return &TestOrder{
		AggregateBase: NewAggregateBase(id, "Order"),
		Items:         make([]OrderItem, 0),
	}
}

func (o *TestOrder) Create(customerID string) error {
	return Raise(o, TestOrderCreated{
		OrderID:    o.AggregateID(),
		CustomerID: customerID,
	})
}

func (o *TestOrder) AddItem(sku string, quantity int, price float64) error {
	return Raise(o, TestItemAdded{
		SKU:      sku,
		Quantity: quantity,
		Price:    price,
	})
}

func (o *TestOrder) Submit() error {
	return Raise(o, TestOrderSubmitted{OrderID: o.AggregateID()})
}

func (o *TestOrder) ApplyEvent(event interface{}) error {
	switch e := event.(type) {
	case TestOrderCreated:
		o.CustomerID = e.CustomerID
		o.Status = "Created"
	case TestItemAdded:
		o.Items = append(o.Items, OrderItem(e))
	case TestOrderSubmitted:
		o.Status = "Submitted"
	default:
		return NewEventTypeNotRegisteredError(GetEventType(event))
	}
	return nil
}

type orderSnapshot struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customerId"`
	Items      []OrderItem `json:"items"`
	Status     string      `json:"status"`
}

func (o *TestOrder) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(orderSnapshot{
		ID:         o.AggregateID(),
		CustomerID: o.CustomerID,
		Items:      o.Items,
		Status:     o.Status,
	})
}

func (o *TestOrder) UnmarshalSnapshot(data []byte) error {
	var snap orderSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	o.SetID(snap.ID)
	o.CustomerID = snap.CustomerID
	o.Items = snap.Items
	o.Status = snap.Status
	return nil
}

func TestAggregateBase(t *testing.T) {
	t.Run("new aggregate starts at version zero", func(t *testing.T) {
		order := NewTestOrder("order-1")

		assert.Equal(t, "order-1", order.AggregateID())
		assert.Equal(t, "Order", order.AggregateType())
		assert.Equal(t, int64(0), order.Version())
		assert.Empty(t, order.UncommittedEvents())
	})

	t.Run("stream ID combines type and ID", func(t *testing.T) {
		order := NewTestOrder("order-1")
		assert.Equal(t, "Order-order-1", order.StreamID().String())
	})
}

func TestRaise(t *testing.T) {
	t.Run("applies event and increments version", func(t *testing.T) {
		order := NewTestOrder("order-1")

		require.NoError(t, order.Create("customer-1"))

		assert.Equal(t, int64(1), order.Version())
		assert.Equal(t, "customer-1", order.CustomerID)
		assert.Equal(t, "Created", order.Status)
	})

	t.Run("buffers events in production order", func(t *testing.T) {
		order := NewTestOrder("order-1")

		require.NoError(t, order.Create("customer-1"))
		require.NoError(t, order.AddItem("SKU-1", 2, 9.99))
		require.NoError(t, order.Submit())

		events := order.UncommittedEvents()
		require.Len(t, events, 3)
		assert.IsType(t, TestOrderCreated{}, events[0])
		assert.IsType(t, TestItemAdded{}, events[1])
		assert.IsType(t, TestOrderSubmitted{}, events[2])
		assert.Equal(t, int64(3), order.Version())
	})

	t.Run("rejected event leaves version and buffer untouched", func(t *testing.T) {
		order := NewTestOrder("order-1")

		err := Raise(order, struct{ Bogus string }{"x"})

		require.Error(t, err)
		assert.Equal(t, int64(0), order.Version())
		assert.Empty(t, order.UncommittedEvents())
	})

	t.Run("nil aggregate", func(t *testing.T) {
		err := Raise(nil, TestOrderCreated{})
		assert.ErrorIs(t, err, ErrNilAggregate)
	})
}

func TestMarkEventsCommitted(t *testing.T) {
	order := NewTestOrder("order-1")
	require.NoError(t, order.Create("customer-1"))
	require.True(t, order.HasUncommittedEvents())

	order.MarkEventsCommitted()

	assert.False(t, order.HasUncommittedEvents())
	assert.Equal(t, int64(1), order.Version(), "committing must not change the version")
}

func TestLoadFromHistory(t *testing.T) {
	makeHistory := func() []Event {
		return []Event{
			{StreamID: "Order-order-1", Type: "TestOrderCreated", Version: 1,
				Data: TestOrderCreated{OrderID: "order-1", CustomerID: "customer-1"}},
			{StreamID: "Order-order-1", Type: "TestItemAdded", Version: 2,
				Data: TestItemAdded{SKU: "SKU-1", Quantity: 1, Price: 5}},
			{StreamID: "Order-order-1", Type: "TestOrderSubmitted", Version: 3,
				Data: TestOrderSubmitted{OrderID: "order-1"}},
		}
	}

	t.Run("rebuilds state and version", func(t *testing.T) {
		order := NewTestOrder("")

		require.NoError(t, LoadFromHistory(order, makeHistory()))

		assert.Equal(t, "order-1", order.AggregateID())
		assert.Equal(t, int64(3), order.Version())
		assert.Equal(t, "Submitted", order.Status)
		assert.Len(t, order.Items, 1)
		assert.Empty(t, order.UncommittedEvents(), "replayed events must not be buffered")
	})

	t.Run("is deterministic", func(t *testing.T) {
		a := NewTestOrder("")
		b := NewTestOrder("")

		require.NoError(t, LoadFromHistory(a, makeHistory()))
		require.NoError(t, LoadFromHistory(b, makeHistory()))

		assert.Equal(t, a.CustomerID, b.CustomerID)
		assert.Equal(t, a.Items, b.Items)
		assert.Equal(t, a.Status, b.Status)
		assert.Equal(t, a.Version(), b.Version())
	})

	t.Run("empty history fails", func(t *testing.T) {
		order := NewTestOrder("")
		err := LoadFromHistory(order, nil)
		assert.ErrorIs(t, err, ErrEmptyHistory)
	})

	t.Run("unknown event type fails loudly", func(t *testing.T) {
		order := NewTestOrder("")
		history := makeHistory()
		history[1].Data = struct{ Junk int }{42}

		err := LoadFromHistory(order, history)
		assert.Error(t, err)
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	order := NewTestOrder("order-1")
	require.NoError(t, order.Create("customer-1"))
	require.NoError(t, order.AddItem("SKU-1", 2, 9.99))

	clock := NewFixedClock(testTime())
	snap, err := TakeSnapshot(order, clock)
	require.NoError(t, err)
	assert.Equal(t, "Order-order-1", snap.StreamID)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, testTime(), snap.TakenAt)

	restored := NewTestOrder("")
	require.NoError(t, LoadFromSnapshot(restored, snap))

	assert.Equal(t, "order-1", restored.AggregateID())
	assert.Equal(t, int64(2), restored.Version())
	assert.Equal(t, "customer-1", restored.CustomerID)
	assert.Equal(t, order.Items, restored.Items)
}

// plainAggregate implements Aggregate but not Snapshotter.
type plainAggregate struct{ AggregateBase }

func (p *plainAggregate) ApplyEvent(event interface{}) error { return nil }

func TestTakeSnapshotRequiresSnapshotter(t *testing.T) {
	agg := &plainAggregate{NewAggregateBase("x", "Plain")}

	_, err := TakeSnapshot(agg, nil)
	assert.ErrorIs(t, err, ErrNotSnapshotter)
}

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

// Package sourced provides event sourcing primitives for Go applications.
//
// sourced keeps aggregate state as an append-only log of events. Aggregates
// are rebuilt by replaying their stream, optionally starting from a snapshot,
// and writes are protected by optimistic concurrency control.
//
// # Quick Start
//
// Create an event store with the in-memory adapter for development:
//
//	import (
//	    "github.com/go-sourced/sourced"
//	    "github.com/go-sourced/sourced/adapters/memory"
//	)
//
//	store := sourced.NewEventStore(memory.NewAdapter())
//
// For durable storage, use the PostgreSQL adapter:
//
//	import "github.com/go-sourced/sourced/adapters/postgres"
//
//	adapter, err := postgres.NewAdapter(connStr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := sourced.NewEventStore(adapter)
//
// # Defining Events
//
// Events are plain structs describing something that already happened:
//
//	type AccountCreated struct {
//	    AccountID string `json:"accountId"`
//	    Email     string `json:"email"`
//	}
//
// Register them with the store so they can be deserialized during replay:
//
//	store.RegisterEvents(AccountCreated{}, AccountActivated{})
//
// # Aggregates
//
// An aggregate embeds AggregateBase and supplies the event-to-state mapping
// in ApplyEvent. Command methods validate business rules and call
// sourced.Raise, which is the only path by which aggregate state changes:
//
//	func (a *Account) Activate() error {
//	    if a.Status == StatusBlocked {
//	        return ErrBlocked
//	    }
//	    if a.Status == StatusActive {
//	        return nil
//	    }
//	    return sourced.Raise(a, AccountActivated{AccountID: a.AggregateID()})
//	}
//
// # Repository
//
// The Repository orchestrates loading (snapshot plus trailing
// replay) and saving (expected-version append, then an opportunistic
// snapshot):
//
//	repo := sourced.NewRepository(store, account.New,
//	    sourced.WithSnapshots(adapter, 10))
//
//	agg, err := repo.GetByID(ctx, "alice")
//	...
//	err = repo.Save(ctx, agg)
//
// A failed save with a stale version returns a *ConcurrencyError carrying
// both the expected and actual stream versions; reload and retry to resolve.
package sourced

// Version returns the library version string.
func Version() string {
	return "0.3.0"
}

// BuildStreamID creates a stream ID from an aggregate type and ID.
// This follows the convention: "{Type}-{ID}"
func BuildStreamID(aggregateType, aggregateID string) string {
	return aggregateType + "-" + aggregateID
}

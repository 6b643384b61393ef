package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-sourced/sourced"
	"github.com/go-sourced/sourced/adapters/memory"
)

func newAccountRepository(t *testing.T, opts ...sourced.RepositoryOption) *sourced.Repository {
	t.Helper()
	adapter := memory.NewAdapter()
	store := sourced.NewEventStore(adapter)
	store.RegisterEvents(Events()...)
	return sourced.NewRepository(store, New, opts...)
}

func TestOpen(t *testing.T) {
	t.Run("starts pending and unverified", func(t *testing.T) {
		acc, err := Open("u-1", "alice@example.com", "Alice")
		require.NoError(t, err)

		assert.Equal(t, StatusPending, acc.Status())
		assert.Equal(t, "alice@example.com", acc.Email())
		assert.Equal(t, "Alice", acc.Name())
		assert.False(t, acc.EmailVerified())
		assert.Equal(t, int64(1), acc.Version())
		assert.Len(t, acc.UncommittedEvents(), 1)
	})

	t.Run("rejects missing email", func(t *testing.T) {
		_, err := Open("u-1", "", "Alice")
		assert.ErrorIs(t, err, ErrEmailRequired)
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		for _, email := range []string{"no-at-sign", "@nouser", "trailing@"} {
			_, err := Open("u-1", email, "Alice")
			assert.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
		}
	})

	t.Run("double create fails", func(t *testing.T) {
		acc, err := Open("u-1", "alice@example.com", "Alice")
		require.NoError(t, err)

		err = acc.Create("other@example.com", "Other")
		assert.ErrorIs(t, err, ErrAlreadyCreated)
		assert.Equal(t, int64(1), acc.Version())
	})
}

func TestTransitions(t *testing.T) {
	open := func(t *testing.T) *Account {
		t.Helper()
		acc, err := Open("u-1", "alice@example.com", "Alice")
		require.NoError(t, err)
		return acc
	}

	t.Run("activate moves pending to active", func(t *testing.T) {
		acc := open(t)

		require.NoError(t, acc.Activate())

		assert.Equal(t, StatusActive, acc.Status())
		assert.Equal(t, int64(2), acc.Version())
	})

	t.Run("activate on active is a no-op", func(t *testing.T) {
		acc := open(t)
		require.NoError(t, acc.Activate())

		require.NoError(t, acc.Activate())

		assert.Equal(t, int64(2), acc.Version(), "no event for a no-op")
		assert.Len(t, acc.UncommittedEvents(), 2)
	})

	t.Run("block from pending", func(t *testing.T) {
		acc := open(t)

		require.NoError(t, acc.Block("fraud"))

		assert.Equal(t, StatusBlocked, acc.Status())
		assert.Equal(t, "fraud", acc.BlockReason())
	})

	t.Run("block from active", func(t *testing.T) {
		acc := open(t)
		require.NoError(t, acc.Activate())

		require.NoError(t, acc.Block("abuse"))

		assert.Equal(t, StatusBlocked, acc.Status())
	})

	t.Run("block on blocked is a no-op", func(t *testing.T) {
		acc := open(t)
		require.NoError(t, acc.Block("fraud"))
		versionBefore := acc.Version()

		require.NoError(t, acc.Block("again"))

		assert.Equal(t, versionBefore, acc.Version())
		assert.Equal(t, "fraud", acc.BlockReason(), "original reason stays")
	})

	t.Run("activate on blocked fails", func(t *testing.T) {
		acc := open(t)
		require.NoError(t, acc.Block("fraud"))
		versionBefore := acc.Version()

		err := acc.Activate()

		assert.ErrorIs(t, err, ErrBlocked)
		assert.Equal(t, StatusBlocked, acc.Status())
		assert.Equal(t, versionBefore, acc.Version(), "rejected command produces no event")
	})

	t.Run("commands on an uncreated account fail", func(t *testing.T) {
		acc := New("u-1").(*Account)

		assert.ErrorIs(t, acc.Activate(), ErrNotCreated)
		assert.ErrorIs(t, acc.Block("x"), ErrNotCreated)
		assert.ErrorIs(t, acc.VerifyEmail(), ErrNotCreated)
		assert.ErrorIs(t, acc.ChangeEmail("a@b.c"), ErrNotCreated)
	})
}

func TestEmailVerification(t *testing.T) {
	open := func(t *testing.T) *Account {
		t.Helper()
		acc, err := Open("u-1", "alice@example.com", "Alice")
		require.NoError(t, err)
		return acc
	}

	t.Run("verify sets the flag", func(t *testing.T) {
		acc := open(t)

		require.NoError(t, acc.VerifyEmail())

		assert.True(t, acc.EmailVerified())
	})

	t.Run("verify on verified is a no-op", func(t *testing.T) {
		acc := open(t)
		require.NoError(t, acc.VerifyEmail())
		versionBefore := acc.Version()

		require.NoError(t, acc.VerifyEmail())

		assert.Equal(t, versionBefore, acc.Version())
	})

	t.Run("changing email resets verification", func(t *testing.T) {
		acc := open(t)
		require.NoError(t, acc.VerifyEmail())
		require.True(t, acc.EmailVerified())

		require.NoError(t, acc.ChangeEmail("new@example.com"))

		assert.Equal(t, "new@example.com", acc.Email())
		assert.False(t, acc.EmailVerified())
	})

	t.Run("verification is orthogonal to status", func(t *testing.T) {
		acc := open(t)
		require.NoError(t, acc.Activate())
		require.NoError(t, acc.VerifyEmail())
		require.NoError(t, acc.Block("fraud"))

		assert.True(t, acc.EmailVerified(), "blocking must not touch the flag")

		require.NoError(t, acc.ChangeEmail("new@example.com"))
		assert.False(t, acc.EmailVerified())
		assert.Equal(t, StatusBlocked, acc.Status(), "email change must not touch status")
	})

	t.Run("changing to the same email is a no-op", func(t *testing.T) {
		acc := open(t)
		require.NoError(t, acc.VerifyEmail())
		versionBefore := acc.Version()

		require.NoError(t, acc.ChangeEmail("alice@example.com"))

		assert.Equal(t, versionBefore, acc.Version())
		assert.True(t, acc.EmailVerified(), "no-op must not reset verification")
	})
}

func TestApplyEventUnknownType(t *testing.T) {
	acc := New("u-1").(*Account)

	err := acc.ApplyEvent(struct{ Surprise bool }{true})

	assert.ErrorIs(t, err, ErrUnknownEvent)
}

// The scenarios below run the aggregate through the full store/repository
// round trip.

func TestLifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("create, verify, activate, replay", func(t *testing.T) {
		repo := newAccountRepository(t)

		acc, err := Open("u-1", "alice@example.com", "Alice")
		require.NoError(t, err)
		require.NoError(t, acc.VerifyEmail())
		require.NoError(t, acc.Activate())
		require.Equal(t, int64(3), acc.Version())
		require.NoError(t, repo.Save(ctx, acc))

		replayed, err := repo.ReplayFromHistory(ctx, "u-1")
		require.NoError(t, err)

		got := replayed.(*Account)
		assert.Equal(t, int64(3), got.Version())
		assert.True(t, got.EmailVerified())
		assert.Equal(t, StatusActive, got.Status())
	})

	t.Run("email change after reload", func(t *testing.T) {
		repo := newAccountRepository(t)

		acc, err := Open("u-1", "alice@example.com", "Alice")
		require.NoError(t, err)
		require.NoError(t, acc.VerifyEmail())
		require.NoError(t, acc.Activate())
		require.NoError(t, repo.Save(ctx, acc))

		loaded, err := repo.GetByID(ctx, "u-1")
		require.NoError(t, err)
		current := loaded.(*Account)

		require.NoError(t, current.ChangeEmail("new@x.com"))
		require.NoError(t, repo.Save(ctx, current))

		assert.Equal(t, int64(4), current.Version())
		assert.Equal(t, "new@x.com", current.Email())
		assert.False(t, current.EmailVerified())
	})

	t.Run("concurrent writers conflict", func(t *testing.T) {
		repo := newAccountRepository(t)

		acc, err := Open("u-1", "alice@example.com", "Alice")
		require.NoError(t, err)
		require.NoError(t, acc.VerifyEmail())
		require.NoError(t, acc.Activate())
		require.NoError(t, repo.Save(ctx, acc))

		copy1Agg, err := repo.GetByID(ctx, "u-1")
		require.NoError(t, err)
		copy2Agg, err := repo.GetByID(ctx, "u-1")
		require.NoError(t, err)

		copy1 := copy1Agg.(*Account)
		copy2 := copy2Agg.(*Account)

		require.NoError(t, copy1.Block("fraud"))
		require.NoError(t, repo.Save(ctx, copy1))

		require.NoError(t, copy2.ChangeEmail("sneaky@x.com"))
		err = repo.Save(ctx, copy2)
		require.ErrorIs(t, err, sourced.ErrConcurrencyConflict)

		var conflict *sourced.ConcurrencyError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, int64(3), conflict.ExpectedVersion)
		assert.Equal(t, int64(4), conflict.ActualVersion)
	})

	t.Run("snapshot interval ten", func(t *testing.T) {
		adapter := memory.NewAdapter()
		store := sourced.NewEventStore(adapter)
		store.RegisterEvents(Events()...)
		repo := sourced.NewRepository(store, New,
			sourced.WithSnapshots(adapter, 10),
		)

		acc, err := Open("u-1", "alice@example.com", "Alice")
		require.NoError(t, err)
		require.NoError(t, acc.Activate())
		require.NoError(t, repo.Save(ctx, acc))

		// Push the stream past version 10 via email churn.
		emails := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com",
			"f@x.com", "g@x.com", "h@x.com", "i@x.com", "j@x.com"}
		for _, email := range emails {
			loaded, err := repo.GetByID(ctx, "u-1")
			require.NoError(t, err)
			current := loaded.(*Account)
			require.NoError(t, current.ChangeEmail(email))
			require.NoError(t, repo.Save(ctx, current))
		}

		snap, err := adapter.LoadSnapshot(ctx, "Account-u-1")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.GreaterOrEqual(t, snap.Version, int64(10))

		// Snapshot-assisted load and full replay agree.
		fromSnapshot, err := repo.GetByID(ctx, "u-1")
		require.NoError(t, err)
		fromReplay, err := repo.ReplayFromHistory(ctx, "u-1")
		require.NoError(t, err)

		a := fromSnapshot.(*Account)
		b := fromReplay.(*Account)
		assert.Equal(t, b.Version(), a.Version())
		assert.Equal(t, b.Email(), a.Email())
		assert.Equal(t, b.Status(), a.Status())
		assert.Equal(t, b.EmailVerified(), a.EmailVerified())
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	acc, err := Open("u-1", "alice@example.com", "Alice")
	require.NoError(t, err)
	require.NoError(t, acc.VerifyEmail())
	require.NoError(t, acc.Block("fraud"))

	data, err := acc.MarshalSnapshot()
	require.NoError(t, err)

	restored := New("").(*Account)
	require.NoError(t, restored.UnmarshalSnapshot(data))

	assert.Equal(t, "u-1", restored.AggregateID())
	assert.Equal(t, acc.Email(), restored.Email())
	assert.Equal(t, acc.Status(), restored.Status())
	assert.Equal(t, acc.EmailVerified(), restored.EmailVerified())
	assert.Equal(t, acc.BlockReason(), restored.BlockReason())
}

// Package account implements a user account as an event-sourced aggregate.
//
// The account is a small state machine: it is created in StatusPending,
// may move to StatusActive, and may be blocked from either state. Blocked
// is terminal; there is no transition out of it. Email verification is an
// orthogonal flag that resets whenever the email changes.
//
// Transition policy: commands that would not change state are silent no-ops
// (activating an active account, verifying a verified email, blocking a
// blocked account). Activating a blocked account is the one hard failure,
// because it would silently undo an administrative action.
package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sourced/sourced"
)

// AggregateType is the stream category for account streams.
const AggregateType = "Account"

// Status is the lifecycle state of an account.
type Status string

const (
	// StatusPending is the initial state after creation.
	StatusPending Status = "pending"

	// StatusActive means the account has been activated.
	StatusActive Status = "active"

	// StatusBlocked is terminal. No defined transition leaves it.
	StatusBlocked Status = "blocked"
)

// Command rejection errors. These are business-rule violations raised
// before any event is produced; the aggregate and the store are untouched.
var (
	ErrAlreadyCreated  = errors.New("account: already created")
	ErrNotCreated      = errors.New("account: not created")
	ErrBlocked         = errors.New("account: blocked accounts cannot be activated")
	ErrEmailRequired   = errors.New("account: email is required")
	ErrInvalidEmail    = errors.New("account: invalid email address")
	ErrUnknownEvent    = errors.New("account: unknown event type")
)

// Account is an event-sourced user account.
// All state below the embedded base is derived exclusively from events.
type Account struct {
	sourced.AggregateBase

	email         string
	name          string
	status        Status
	emailVerified bool
	blockReason   string
	created       bool
}

// Compile-time interface checks.
var (
	_ sourced.Aggregate   = (*Account)(nil)
	_ sourced.Snapshotter = (*Account)(nil)
)

// New creates an empty Account ready to replay events into.
// Use it as the repository's AggregateFactory.
func New(id string) sourced.Aggregate {
	return &Account{
		AggregateBase: sourced.NewAggregateBase(id, AggregateType),
	}
}

// Open creates a new account and raises AccountCreated.
// The account starts pending with an unverified email.
func Open(id, email, name string) (*Account, error) {
	acc := New(id).(*Account)
	if err := acc.Create(email, name); err != nil {
		return nil, err
	}
	return acc, nil
}

// Email returns the account's current email address.
func (a *Account) Email() string { return a.email }

// Name returns the account holder's name.
func (a *Account) Name() string { return a.name }

// Status returns the account's lifecycle state.
func (a *Account) Status() Status { return a.status }

// EmailVerified reports whether the current email has been verified.
func (a *Account) EmailVerified() bool { return a.emailVerified }

// BlockReason returns the reason recorded when the account was blocked.
func (a *Account) BlockReason() string { return a.blockReason }

// Create raises AccountCreated. Fails if the account already exists.
func (a *Account) Create(email, name string) error {
	if a.created {
		return ErrAlreadyCreated
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	return sourced.Raise(a, AccountCreated{
		AccountID: a.AggregateID(),
		Email:     email,
		Name:      name,
	})
}

// Activate moves a pending account to active.
// Activating an already-active account is a no-op; activating a blocked
// account fails with ErrBlocked.
func (a *Account) Activate() error {
	if !a.created {
		return ErrNotCreated
	}
	switch a.status {
	case StatusActive:
		return nil
	case StatusBlocked:
		return ErrBlocked
	}

	return sourced.Raise(a, AccountActivated{AccountID: a.AggregateID()})
}

// Block blocks the account, recording a reason.
// Blocking an already-blocked account is a no-op.
func (a *Account) Block(reason string) error {
	if !a.created {
		return ErrNotCreated
	}
	if a.status == StatusBlocked {
		return nil
	}

	return sourced.Raise(a, AccountBlocked{
		AccountID: a.AggregateID(),
		Reason:    reason,
	})
}

// VerifyEmail marks the current email as verified.
// Verifying an already-verified email is a no-op.
func (a *Account) VerifyEmail() error {
	if !a.created {
		return ErrNotCreated
	}
	if a.emailVerified {
		return nil
	}

	return sourced.Raise(a, EmailVerified{AccountID: a.AggregateID()})
}

// ChangeEmail replaces the account's email. The verified flag resets.
// Changing to the current email is a no-op.
func (a *Account) ChangeEmail(email string) error {
	if !a.created {
		return ErrNotCreated
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if email == a.email {
		return nil
	}

	return sourced.Raise(a, EmailChanged{
		AccountID: a.AggregateID(),
		Email:     email,
	})
}

// ApplyEvent folds a single event into the account's state.
// It is the only place state is mutated, must stay deterministic, and
// fails loudly on an event type it does not recognize.
func (a *Account) ApplyEvent(event interface{}) error {
	switch e := event.(type) {
	case AccountCreated:
		a.SetID(e.AccountID)
		a.email = e.Email
		a.name = e.Name
		a.status = StatusPending
		a.emailVerified = false
		a.created = true

	case AccountActivated:
		a.status = StatusActive

	case AccountBlocked:
		a.status = StatusBlocked
		a.blockReason = e.Reason

	case EmailVerified:
		a.emailVerified = true

	case EmailChanged:
		a.email = e.Email
		a.emailVerified = false

	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}

	return nil
}

// accountSnapshot is the serialized shape of an account snapshot.
type accountSnapshot struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Status        Status `json:"status"`
	EmailVerified bool   `json:"emailVerified"`
	BlockReason   string `json:"blockReason,omitempty"`
	Created       bool   `json:"created"`
}

// MarshalSnapshot serializes the account's current state.
func (a *Account) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(accountSnapshot{
		ID:            a.AggregateID(),
		Email:         a.email,
		Name:          a.name,
		Status:        a.status,
		EmailVerified: a.emailVerified,
		BlockReason:   a.blockReason,
		Created:       a.created,
	})
}

// UnmarshalSnapshot restores the account's state from a snapshot payload.
func (a *Account) UnmarshalSnapshot(data []byte) error {
	var snap accountSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	a.SetID(snap.ID)
	a.email = snap.Email
	a.name = snap.Name
	a.status = snap.Status
	a.emailVerified = snap.EmailVerified
	a.blockReason = snap.BlockReason
	a.created = snap.Created
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidEmail
	}
	return nil
}

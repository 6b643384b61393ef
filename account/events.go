package account

// Domain events for the Account aggregate. Events are plain value objects:
// once stored they are never changed, so fields are additive-only and every
// field a consumer might need is captured at emission time.

// AccountCreated is emitted when a new account is opened.
// The account starts in StatusPending with an unverified email.
type AccountCreated struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// AccountActivated is emitted when a pending account becomes active.
type AccountActivated struct {
	AccountID string `json:"accountId"`
}

// AccountBlocked is emitted when an account is blocked.
type AccountBlocked struct {
	AccountID string `json:"accountId"`
	Reason    string `json:"reason"`
}

// EmailVerified is emitted when the account's current email is confirmed.
type EmailVerified struct {
	AccountID string `json:"accountId"`
}

// EmailChanged is emitted when the account's email is replaced.
// Applying it always resets the verified flag.
type EmailChanged struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
}

// Events returns one zero value of every account event type, for
// registering with a serializer.
func Events() []interface{} {
	return []interface{}{
		AccountCreated{},
		AccountActivated{},
		AccountBlocked{},
		EmailVerified{},
		EmailChanged{},
	}
}

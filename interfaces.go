package storefront

import "context"

// ============================================================================
// API surfaces (implemented by the http package)
// ============================================================================

// AuthAPI is the remote authentication surface consumed by the session
// state machine.
type AuthAPI interface {
	SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*Principal, error)
	// Refresh exchanges the current credential for a fresh access token
	Refresh(ctx context.Context) (string, error)
}

// PaymentAPI is the remote payment surface consumed by the checkout saga.
type PaymentAPI interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*OrderIntent, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	// PendingCheckout recovers a pending checkout by order reference after
	// a full reload wiped navigation context.
	PendingCheckout(ctx context.Context, orderRef string) (*PendingCheckout, error)
}

// AddressAPI persists a delivery address server-side.
type AddressAPI interface {
	SaveAddress(ctx context.Context, addr Address) error
}

// ============================================================================
// Stores (implemented in-memory here and durably in storage/sqlite)
// ============================================================================

// CredentialStore holds the current access token. Backed by a persisted
// slot so the credential survives reloads. Only the session state
// machine writes it; everything else reads.
type CredentialStore interface {
	// Token returns the stored token, or "" when none is held
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// PendingStore is the durable record of unfinished checkouts, keyed by
// the server-issued order reference. Writes are whole-record
// replacements; last write wins across instances.
type PendingStore interface {
	Put(ctx context.Context, record PendingCheckout) error
	// Get returns nil, nil when no record exists for orderRef
	Get(ctx context.Context, orderRef string) (*PendingCheckout, error)
	Delete(ctx context.Context, orderRef string) error
	// Watch registers an observer notified with the order reference on
	// every write or delete. Used for cross-instance coordination.
	Watch(fn func(orderRef string))
}

// LocationStore holds the last-known delivery location.
type LocationStore interface {
	SaveLocation(ctx context.Context, addr Address) error
	// Location returns nil, nil when no location has been saved
	Location(ctx context.Context) (*Address, error)
	WatchLocation(fn func(Address))
}

// ============================================================================
// External payment collector
// ============================================================================

// PaymentCollector is the opaque external component that collects the
// payment. Collect must not block: it registers onConfirm and returns.
// onConfirm fires zero or one times, arbitrarily late, outside the
// caller's control flow. If the user abandons the widget it never fires.
type PaymentCollector interface {
	Collect(ctx context.Context, intent OrderIntent, onConfirm func(PaymentConfirmation)) error
}

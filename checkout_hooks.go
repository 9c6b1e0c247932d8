package storefront

import "time"

// ============================================================================
// Checkout Hook Context Types
// ============================================================================

// CartClearContext contains information passed to cart-clear hooks
type CartClearContext struct {
	OrderRef  string
	OrderID   string
	PaymentID string
	Timestamp time.Time
}

// CheckoutOutcomeContext contains the terminal (or resumable) outcome of
// a checkout step
type CheckoutOutcomeContext struct {
	Outcome   Outcome
	Timestamp time.Time
}

// ============================================================================
// Checkout Hook Function Types
// ============================================================================

// OnCartClearHook is the "cart should clear" broadcast, fired exactly
// once per successful finalization. Consumed by cart UI.
type OnCartClearHook func(CartClearContext)

// OnCheckoutOutcomeHook is called with every externally observable
// checkout outcome, including resumable failures. Any panic in a hook is
// the listener's problem; hooks run synchronously.
type OnCheckoutOutcomeHook func(CheckoutOutcomeContext)

// CheckoutHooks configures checkout observability
type CheckoutHooks struct {
	OnCartClear []OnCartClearHook
	OnOutcome   []OnCheckoutOutcomeHook
}

package storefront

import "time"

// SessionStatus is the authentication state of the client session
type SessionStatus string

const (
	// StatusUnauthenticated means no valid session is held
	StatusUnauthenticated SessionStatus = "unauthenticated"
	// StatusChecking means a profile verification is in progress
	StatusChecking SessionStatus = "checking"
	// StatusAuthenticated means a principal is loaded and a credential is held
	StatusAuthenticated SessionStatus = "authenticated"
)

// Principal is the authenticated user's identity record
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CartItem is a snapshot of one purchased line item
type CartItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Coupon is an applied discount reference
type Coupon struct {
	Code               string  `json:"code"`
	DiscountPercentage float64 `json:"discountPercentage"`
}

// Address is a delivery address supplied by the user. It is validated
// locally before being attached to a finalize request.
type Address struct {
	Line1       string  `json:"line1"`
	Line2       string  `json:"line2,omitempty"`
	City        string  `json:"city"`
	State       string  `json:"state,omitempty"`
	PostalCode  string  `json:"postalCode"`
	Phone       string  `json:"phone"`
	AltPhone    string  `json:"altPhone,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	DisplayName string  `json:"displayName,omitempty"`
}

// OrderIntent is the server's answer to an intent-creation request: an
// opaque provider order identifier plus the key used to open the
// external payment collector.
type OrderIntent struct {
	ProviderOrderID string `json:"providerOrderId"`
	ProviderKey     string `json:"providerKey"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency,omitempty"`
}

// PaymentConfirmation is the signed confirmation the external payment
// collector hands back once the user completes payment.
type PaymentConfirmation struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Signature string `json:"signature"`
}

// CartSnapshot freezes the cart at payment time so verification and
// resume always submit the same line items and total.
type CartSnapshot struct {
	Items       []CartItem `json:"items"`
	TotalAmount int64      `json:"totalAmount"` // minor currency units
	Coupon      *Coupon    `json:"coupon,omitempty"`
}

// PendingCheckout is the durable record of a confirmed payment awaiting
// a missing address before the order can finalize. It is replaced
// wholesale on every write and deleted exactly once.
type PendingCheckout struct {
	OrderRef       string              `json:"orderRef"`
	Confirmation   PaymentConfirmation `json:"confirmation"`
	Items          []CartItem          `json:"items"`
	TotalAmount    int64               `json:"totalAmount"`
	Coupon         *Coupon             `json:"coupon,omitempty"`
	IdempotencyKey string              `json:"idempotencyKey,omitempty"`
	ResumeAttempts int                 `json:"resumeAttempts"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// VerifyResult is the server's answer to a payment verification
type VerifyResult struct {
	Success      bool   `json:"success"`
	NeedsAddress bool   `json:"needsAddress,omitempty"`
	OrderID      string `json:"orderId,omitempty"`
	Message      string `json:"message,omitempty"`
}

// OutcomeStatus is the terminal (or resumable) state of a checkout
type OutcomeStatus string

const (
	// OutcomeSucceeded means the order finalized and the cart should clear
	OutcomeSucceeded OutcomeStatus = "succeeded"
	// OutcomeFailed means the checkout reached a failure destination
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeNeedsAddress means a pending checkout was persisted and the
	// user must supply a delivery address before finalization
	OutcomeNeedsAddress OutcomeStatus = "needs_address"
)

// Outcome is the externally observable result of a checkout step. Every
// failure path resolves to exactly one Outcome; there is no silent stall.
type Outcome struct {
	Status    OutcomeStatus
	OrderRef  string
	OrderID   string
	PaymentID string
	Message   string
	// Pending carries the persisted record so navigation context can hand
	// it to the address-capture step without a storage round-trip.
	Pending *PendingCheckout
	// Resumable is set on ambiguous failures (transport failure during
	// finalize) where the pending record was deliberately left in place.
	Resumable bool
}

// Request/response shapes for the storefront API

// SignUpRequest carries the sign-up form fields
type SignUpRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
}

// LoginRequest carries login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is the server response to sign-up and login
type AuthResult struct {
	User        *Principal `json:"user"`
	AccessToken string     `json:"accessToken,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// CreateIntentRequest asks the server for an order intent
type CreateIntentRequest struct {
	TotalAmount    int64      `json:"totalAmount"` // minor currency units
	Items          []CartItem `json:"items"`
	Coupon         *Coupon    `json:"coupon,omitempty"`
	IdempotencyKey string     `json:"-"`
}

// VerifyRequest submits a payment confirmation for verification,
// optionally with the delivery address attached on resume.
type VerifyRequest struct {
	Confirmation   PaymentConfirmation `json:"confirmation"`
	Items          []CartItem          `json:"items"`
	TotalAmount    int64               `json:"totalAmount"`
	Coupon         *Coupon             `json:"coupon,omitempty"`
	Address        *Address            `json:"address,omitempty"`
	IdempotencyKey string              `json:"-"`
}

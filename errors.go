package storefront

import (
	"errors"
	"fmt"
)

// Error represents a storefront client error
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeValidation         = "validation_error"
	ErrCodeEmptyCart          = "empty_cart"
	ErrCodeInvalidAmount      = "invalid_amount"
	ErrCodeAuthExpired        = "auth_expired"
	ErrCodePaymentRejected    = "payment_rejected"
	ErrCodeTransientNetwork   = "transient_network"
	ErrCodeCheckoutNotFound   = "checkout_not_found"
	ErrCodeResumeExhausted    = "resume_exhausted"
	ErrCodeCollectorAbandoned = "collector_abandoned"
	ErrCodeServer             = "server_error"
)

// NewError creates a new storefront error
func NewError(code, message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewValidationError creates a local validation error. Validation errors
// are surfaced before any network call is made.
func NewValidationError(message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: message}
}

// CodeOf returns the storefront error code carried by err, or the empty
// string if err does not wrap a *Error.
func CodeOf(err error) string {
	var sfErr *Error
	if errors.As(err, &sfErr) {
		return sfErr.Code
	}
	return ""
}

// IsValidation reports whether err is a local validation failure that
// never reached the network.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeValidation, ErrCodeEmptyCart, ErrCodeInvalidAmount:
		return true
	}
	return false
}

// IsTransient reports whether err is a transport-level failure (timeout,
// network unreachable) that may be retried.
func IsTransient(err error) bool {
	return CodeOf(err) == ErrCodeTransientNetwork
}

// IsAuthExpired reports whether err is a 401-equivalent authorization
// failure.
func IsAuthExpired(err error) bool {
	return CodeOf(err) == ErrCodeAuthExpired
}

// IsPaymentRejected reports whether err is a definitive server-side
// rejection of a payment verification. Rejections are never retried.
func IsPaymentRejected(err error) bool {
	return CodeOf(err) == ErrCodePaymentRejected
}

package storefront

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Defaults for the verification retry policy and the resume loop bound.
const (
	DefaultVerifyAttempts    = 3
	DefaultVerifyBackoff     = 300 * time.Millisecond
	DefaultResumeAttempts    = 3
	DefaultFinalizeResultTTL = 5 * time.Minute
)

// Saga orchestrates checkout finalization: intent creation, payment
// collection, verification, the address-required branch, and resume
// after an interruption. All saga steps for one checkout are strictly
// sequential; concurrent checkouts in other instances coordinate only
// through the durable pending store, last write wins.
type Saga struct {
	payments  PaymentAPI
	addresses AddressAPI
	pending   PendingStore
	locations LocationStore
	collector PaymentCollector
	session   *Session

	finalize *FinalizeCache
	hooks    CheckoutHooks

	verifyAttempts uint
	verifyBackoff  time.Duration
	resumeAttempts int
}

// SagaConfig configures a checkout saga
type SagaConfig struct {
	Payments  PaymentAPI
	Addresses AddressAPI
	Pending   PendingStore
	Collector PaymentCollector

	// Locations receives a best-effort copy of captured addresses so the
	// next checkout can prefill the form (optional)
	Locations LocationStore

	// Session enables proactive credential renewal before payment
	// collection (optional). Payment endpoints are excluded from
	// transparent retry, so expiry mid-checkout would be unrecoverable.
	Session *Session

	// Hooks for cart-clear and outcome broadcasts (optional)
	Hooks CheckoutHooks

	// VerifyAttempts bounds verification retries (optional, defaults to 3)
	VerifyAttempts uint

	// VerifyBackoff is the initial retry delay, doubled per attempt
	// (optional, defaults to 300ms)
	VerifyBackoff time.Duration

	// ResumeAttempts caps how often a checkout may bounce back to the
	// address step (optional, defaults to 3)
	ResumeAttempts int

	// FinalizeResultTTL bounds the idempotency cache (optional, defaults to 5m)
	FinalizeResultTTL time.Duration
}

// NewSaga creates a checkout saga
func NewSaga(cfg SagaConfig) *Saga {
	attempts := cfg.VerifyAttempts
	if attempts == 0 {
		attempts = DefaultVerifyAttempts
	}
	initial := cfg.VerifyBackoff
	if initial <= 0 {
		initial = DefaultVerifyBackoff
	}
	resume := cfg.ResumeAttempts
	if resume <= 0 {
		resume = DefaultResumeAttempts
	}
	ttl := cfg.FinalizeResultTTL
	if ttl <= 0 {
		ttl = DefaultFinalizeResultTTL
	}
	return &Saga{
		payments:       cfg.Payments,
		addresses:      cfg.Addresses,
		pending:        cfg.Pending,
		locations:      cfg.Locations,
		collector:      cfg.Collector,
		session:        cfg.Session,
		finalize:       NewFinalizeCache(ttl),
		hooks:          cfg.Hooks,
		verifyAttempts: attempts,
		verifyBackoff:  initial,
		resumeAttempts: resume,
	}
}

// Start checks the cart preconditions locally and requests an order
// intent. The total is given in major currency units and converted to
// minor units on the wire.
func (s *Saga) Start(ctx context.Context, items []CartItem, total float64, coupon *Coupon) (*OrderIntent, error) {
	if len(items) == 0 {
		return nil, NewError(ErrCodeEmptyCart, "your cart is empty", nil)
	}
	if total <= 0 {
		return nil, NewError(ErrCodeInvalidAmount, "invalid order amount", nil)
	}

	if s.session != nil {
		if err := s.session.EnsureFresh(ctx); err != nil {
			return nil, err
		}
	}

	amount := int64(math.Round(total * 100))
	intent, err := s.payments.CreateIntent(ctx, CreateIntentRequest{
		TotalAmount:    amount,
		Items:          items,
		Coupon:         coupon,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	if intent.Amount == 0 {
		intent.Amount = amount
	}
	return intent, nil
}

// AwaitPayment hands the intent to the external payment collector and
// returns a channel that receives exactly one Outcome: the result of
// verification once the collector confirms, or an abandonment outcome
// when ctx is cancelled first. Cancelling stops the wait; it does not
// cancel the external widget, whose late callback is then ignored.
func (s *Saga) AwaitPayment(ctx context.Context, intent OrderIntent, snapshot CartSnapshot) (<-chan Outcome, error) {
	confirmed := make(chan PaymentConfirmation, 1)
	var once sync.Once
	err := s.collector.Collect(ctx, intent, func(conf PaymentConfirmation) {
		// the collector may misbehave and call back twice
		once.Do(func() { confirmed <- conf })
	})
	if err != nil {
		return nil, err
	}

	out := make(chan Outcome, 1)
	go func() {
		select {
		case conf := <-confirmed:
			// a confirmed payment is verified to completion even if the
			// caller's context has since been cancelled
			out <- s.HandleConfirmation(context.WithoutCancel(ctx), conf, snapshot)
		case <-ctx.Done():
			out <- s.emit(Outcome{
				Status:   OutcomeFailed,
				OrderRef: intent.ProviderOrderID,
				Message:  "payment collection abandoned",
			})
		}
	}()
	return out, nil
}

// HandleConfirmation verifies a confirmed payment and branches on the
// result. Verification is retried only for transport failures, with
// bounded exponential backoff; a server rejection is terminal on the
// first response.
func (s *Saga) HandleConfirmation(ctx context.Context, conf PaymentConfirmation, snapshot CartSnapshot) Outcome {
	record := PendingCheckout{
		OrderRef:       conf.OrderID,
		Confirmation:   conf,
		Items:          snapshot.Items,
		TotalAmount:    snapshot.TotalAmount,
		Coupon:         snapshot.Coupon,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      time.Now(),
	}

	result, err := s.verifyWithRetry(ctx, VerifyRequest{
		Confirmation:   conf,
		Items:          snapshot.Items,
		TotalAmount:    snapshot.TotalAmount,
		Coupon:         snapshot.Coupon,
		IdempotencyKey: record.IdempotencyKey,
	})
	if err != nil {
		if IsTransient(err) {
			// the payment is confirmed but its fate is unknown; persist it
			// so it is never silently lost
			if putErr := s.pending.Put(ctx, record); putErr == nil {
				return s.emit(Outcome{
					Status:    OutcomeFailed,
					OrderRef:  record.OrderRef,
					PaymentID: conf.PaymentID,
					Message:   "could not reach the server to verify the payment",
					Pending:   &record,
					Resumable: true,
				})
			}
		}
		return s.emit(Outcome{
			Status:    OutcomeFailed,
			OrderRef:  record.OrderRef,
			PaymentID: conf.PaymentID,
			Message:   failureMessage(err),
		})
	}

	if result.NeedsAddress {
		orderRef := result.OrderID
		if orderRef == "" {
			orderRef = conf.OrderID
		}
		record.OrderRef = orderRef
		if err := s.pending.Put(ctx, record); err != nil {
			return s.emit(Outcome{
				Status:    OutcomeFailed,
				OrderRef:  orderRef,
				PaymentID: conf.PaymentID,
				Message:   fmt.Sprintf("could not persist pending checkout: %v", err),
			})
		}
		return s.emit(Outcome{
			Status:    OutcomeNeedsAddress,
			OrderRef:  orderRef,
			PaymentID: conf.PaymentID,
			Pending:   &record,
		})
	}

	return s.succeed(ctx, record, result)
}

// Resume finalizes a pending checkout once the user has supplied a
// delivery address. The record is recovered in priority order:
// navigation payload, durable store, then a server lookup by order
// reference. A local validation failure returns an error before any
// network call so the caller keeps the user on the form.
func (s *Saga) Resume(ctx context.Context, orderRef string, nav *PendingCheckout, addr Address) (Outcome, error) {
	record, err := s.recover(ctx, orderRef, nav)
	if err != nil {
		return Outcome{}, err
	}
	if record == nil {
		return s.emit(Outcome{
			Status:   OutcomeFailed,
			OrderRef: orderRef,
			Message:  "checkout cannot be resumed, please retry from the cart",
		}), nil
	}

	if err := ValidateAddress(addr); err != nil {
		return Outcome{}, err
	}

	record.ResumeAttempts++
	if record.ResumeAttempts > s.resumeAttempts {
		_ = s.pending.Delete(ctx, record.OrderRef)
		return s.emit(Outcome{
			Status:   OutcomeFailed,
			OrderRef: record.OrderRef,
			Message:  "checkout could not be completed after repeated address attempts",
		}), nil
	}
	if err := s.pending.Put(ctx, *record); err != nil {
		return Outcome{}, err
	}

	status, cached, done := s.finalize.CheckAndMark(record.OrderRef)
	switch status {
	case FinalizeCached:
		// already finalized from this process; do not re-broadcast cart clear
		return s.emit(Outcome{
			Status:    OutcomeSucceeded,
			OrderRef:  record.OrderRef,
			OrderID:   cached.OrderID,
			PaymentID: record.Confirmation.PaymentID,
			Message:   "order already completed",
		}), nil
	case FinalizeInFlight:
		result, err := s.finalize.WaitForResult(ctx, record.OrderRef, done)
		if err != nil {
			return Outcome{}, err
		}
		if result != nil {
			return s.emit(Outcome{
				Status:    OutcomeSucceeded,
				OrderRef:  record.OrderRef,
				OrderID:   result.OrderID,
				PaymentID: record.Confirmation.PaymentID,
				Message:   "order already completed",
			}), nil
		}
		// the in-flight attempt failed; fall through and try ourselves
		status, cached, done = s.finalize.CheckAndMark(record.OrderRef)
		if status != FinalizeNotFound {
			return Outcome{}, NewError(ErrCodeServer, "finalize contention, try again", nil)
		}
	}

	outcome := s.finalizeWithAddress(ctx, *record, addr, done)
	return outcome, nil
}

func (s *Saga) finalizeWithAddress(ctx context.Context, record PendingCheckout, addr Address, done chan struct{}) Outcome {
	if s.addresses != nil {
		if err := s.addresses.SaveAddress(ctx, addr); err != nil {
			s.finalize.Fail(record.OrderRef, done)
			if IsTransient(err) {
				return s.emit(Outcome{
					Status:    OutcomeFailed,
					OrderRef:  record.OrderRef,
					Message:   "could not save the delivery address",
					Resumable: true,
				})
			}
			return s.emit(Outcome{
				Status:   OutcomeFailed,
				OrderRef: record.OrderRef,
				Message:  failureMessage(err),
			})
		}
	}
	if s.locations != nil {
		// prefill source for the next checkout; best effort
		_ = s.locations.SaveLocation(ctx, addr)
	}

	result, err := s.verifyWithRetry(ctx, VerifyRequest{
		Confirmation:   record.Confirmation,
		Items:          record.Items,
		TotalAmount:    record.TotalAmount,
		Coupon:         record.Coupon,
		Address:        &addr,
		IdempotencyKey: record.IdempotencyKey,
	})
	if err != nil {
		s.finalize.Fail(record.OrderRef, done)
		if IsTransient(err) {
			// ambiguous: the server may or may not have finalized; keep the
			// pending record so a later resume can settle it
			return s.emit(Outcome{
				Status:    OutcomeFailed,
				OrderRef:  record.OrderRef,
				PaymentID: record.Confirmation.PaymentID,
				Message:   "could not reach the server to finalize the order",
				Resumable: true,
			})
		}
		// definitive rejection: the pending record is consumed
		_ = s.pending.Delete(ctx, record.OrderRef)
		return s.emit(Outcome{
			Status:    OutcomeFailed,
			OrderRef:  record.OrderRef,
			PaymentID: record.Confirmation.PaymentID,
			Message:   failureMessage(err),
		})
	}

	if result.NeedsAddress {
		// server still wants an address; bounce back, bounded by the
		// resume attempt cap
		s.finalize.Fail(record.OrderRef, done)
		return s.emit(Outcome{
			Status:    OutcomeNeedsAddress,
			OrderRef:  record.OrderRef,
			PaymentID: record.Confirmation.PaymentID,
			Pending:   &record,
		})
	}

	s.finalize.Complete(record.OrderRef, result, done)
	return s.succeed(ctx, record, result)
}

func (s *Saga) succeed(ctx context.Context, record PendingCheckout, result *VerifyResult) Outcome {
	_ = s.pending.Delete(ctx, record.OrderRef)

	clearCtx := CartClearContext{
		OrderRef:  record.OrderRef,
		OrderID:   result.OrderID,
		PaymentID: record.Confirmation.PaymentID,
		Timestamp: time.Now(),
	}
	for _, hook := range s.hooks.OnCartClear {
		hook(clearCtx)
	}

	return s.emit(Outcome{
		Status:    OutcomeSucceeded,
		OrderRef:  record.OrderRef,
		OrderID:   result.OrderID,
		PaymentID: record.Confirmation.PaymentID,
	})
}

func (s *Saga) recover(ctx context.Context, orderRef string, nav *PendingCheckout) (*PendingCheckout, error) {
	if nav != nil {
		// persist the navigation payload verbatim so a reload mid-capture
		// can still recover it
		if err := s.pending.Put(ctx, *nav); err != nil {
			return nil, err
		}
		out := *nav
		return &out, nil
	}
	if orderRef == "" {
		return nil, nil
	}
	record, err := s.pending.Get(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}
	// hard reload wiped everything local except the reference in the URL
	record, err = s.payments.PendingCheckout(ctx, orderRef)
	if err != nil {
		if CodeOf(err) == ErrCodeCheckoutNotFound {
			return nil, nil
		}
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	if err := s.pending.Put(ctx, *record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Saga) verifyWithRetry(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	operation := func() (*VerifyResult, error) {
		result, err := s.payments.Verify(ctx, req)
		if err != nil {
			if IsTransient(err) {
				return nil, err
			}
			// a rejected verification must not be retried: the server saw
			// the request and said no
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.verifyBackoff
	expo.RandomizationFactor = 0
	expo.Multiplier = 2

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(s.verifyAttempts),
	)
}

func (s *Saga) emit(outcome Outcome) Outcome {
	ctxInfo := CheckoutOutcomeContext{Outcome: outcome, Timestamp: time.Now()}
	for _, hook := range s.hooks.OnOutcome {
		hook(ctxInfo)
	}
	return outcome
}

func failureMessage(err error) string {
	var sfErr *Error
	if errors.As(err, &sfErr) && sfErr.Message != "" {
		return sfErr.Message
	}
	return err.Error()
}

// Package collector bridges the external hosted payment page back into
// the checkout flow. The provider redirects or webhooks the signed
// confirmation to a local HTTP endpoint; the bridge hands it to the
// waiting checkout exactly once.
package collector

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	storefront "github.com/haleemlabs/storefront-go"
)

// A delivered waiter keeps its map entry as a tombstone so duplicate
// callbacks answer 409 instead of 404, but drops the callback so the
// checkout's closure is released.
type waiter struct {
	delivered bool
	onConfirm func(storefront.PaymentConfirmation)
}

// Bridge implements storefront.PaymentCollector over a local HTTP
// callback endpoint. Waiters are keyed by provider order id; a duplicate
// callback for the same order is acknowledged but not redelivered.
type Bridge struct {
	engine *gin.Engine

	mu      sync.Mutex
	waiters map[string]*waiter
}

// NewBridge creates a callback bridge
func NewBridge() *Bridge {
	gin.SetMode(gin.ReleaseMode)
	b := &Bridge{
		engine:  gin.New(),
		waiters: make(map[string]*waiter),
	}
	b.engine.POST("/payment/callback", b.handleCallback)
	return b
}

// Handler exposes the bridge for mounting on an HTTP server
func (b *Bridge) Handler() http.Handler {
	return b.engine
}

// Collect registers onConfirm for the intent's provider order id and
// returns immediately. onConfirm fires zero or one times: never if the
// user abandons the hosted page, once when the confirmation callback
// arrives.
func (b *Bridge) Collect(ctx context.Context, intent storefront.OrderIntent, onConfirm func(storefront.PaymentConfirmation)) error {
	if intent.ProviderOrderID == "" {
		return storefront.NewValidationError("order intent has no provider order id")
	}
	b.mu.Lock()
	b.waiters[intent.ProviderOrderID] = &waiter{onConfirm: onConfirm}
	b.mu.Unlock()
	return nil
}

// Cancel stops waiting for an order's confirmation. The hosted page is
// external and keeps running; its late callback will find no waiter.
func (b *Bridge) Cancel(providerOrderID string) {
	b.mu.Lock()
	delete(b.waiters, providerOrderID)
	b.mu.Unlock()
}

type callbackPayload struct {
	PaymentID string `json:"paymentId" binding:"required"`
	OrderID   string `json:"orderId" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

func (b *Bridge) handleCallback(c *gin.Context) {
	var payload callbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid payment confirmation"})
		return
	}

	b.mu.Lock()
	w := b.waiters[payload.OrderID]
	if w == nil {
		b.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"message": "no checkout waiting for this order"})
		return
	}
	if w.delivered {
		b.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"message": "confirmation already delivered"})
		return
	}
	onConfirm := w.onConfirm
	w.delivered = true
	w.onConfirm = nil
	b.mu.Unlock()

	onConfirm(storefront.PaymentConfirmation{
		PaymentID: payload.PaymentID,
		OrderID:   payload.OrderID,
		Signature: payload.Signature,
	})
	c.JSON(http.StatusOK, gin.H{"received": true})
}

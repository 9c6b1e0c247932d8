package storefront

import (
	"context"
	"sync"
	"time"
)

// FinalizeCache provides idempotency for order finalization by caching
// successful finalize results and tracking in-flight attempts per order
// reference. A double-submitted resume (double click, duplicate
// collector callback, second tab) therefore cannot finalize the same
// order twice from this process.
type FinalizeCache struct {
	mu       sync.Mutex
	results  map[string]*VerifyResult
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

// NewFinalizeCache creates a finalize cache with the specified TTL.
func NewFinalizeCache(ttl time.Duration) *FinalizeCache {
	return &FinalizeCache{
		results:  make(map[string]*VerifyResult),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// FinalizeStatus represents the result of checking the cache.
type FinalizeStatus int

const (
	// FinalizeNotFound means no cached result and no in-flight attempt.
	FinalizeNotFound FinalizeStatus = iota
	// FinalizeCached means a cached result was found.
	FinalizeCached
	// FinalizeInFlight means another caller is currently finalizing this order.
	FinalizeInFlight
)

// CheckAndMark atomically checks the cache and marks the order reference
// as in-flight if needed.
// Returns:
// - FinalizeCached + result if a cached result exists
// - FinalizeInFlight + wait channel if another caller is finalizing
// - FinalizeNotFound + done channel if this caller should proceed (now marked in-flight)
func (c *FinalizeCache) CheckAndMark(orderRef string) (FinalizeStatus, *VerifyResult, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, exists := c.expiry[orderRef]; exists {
		if time.Now().Before(expiry) {
			if result, ok := c.results[orderRef]; ok {
				return FinalizeCached, result, nil
			}
		}
		// Expired - clean it up
		delete(c.results, orderRef)
		delete(c.expiry, orderRef)
	}

	if done, exists := c.inFlight[orderRef]; exists {
		return FinalizeInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[orderRef] = done
	return FinalizeNotFound, nil, done
}

// WaitForResult waits for an in-flight finalize to complete, respecting
// context cancellation. Returns the cached result if available, or nil
// if the in-flight attempt failed.
func (c *FinalizeCache) WaitForResult(ctx context.Context, orderRef string, done chan struct{}) (*VerifyResult, error) {
	select {
	case <-done:
		return c.Get(orderRef), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get retrieves a cached finalize result if it exists and hasn't
// expired, nil otherwise.
func (c *FinalizeCache) Get(orderRef string) *VerifyResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[orderRef]
	if !exists {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.results, orderRef)
		delete(c.expiry, orderRef)
		return nil
	}
	return c.results[orderRef]
}

// Complete marks a finalize as complete, caches the result, and signals
// any waiting callers.
func (c *FinalizeCache) Complete(orderRef string, result *VerifyResult, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[orderRef] = result
	c.expiry[orderRef] = time.Now().Add(c.ttl)
	delete(c.inFlight, orderRef)
	close(done)

	// Lazy cleanup of expired entries
	c.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without caching a result, allowing
// the finalize to be retried.
func (c *FinalizeCache) Fail(orderRef string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, orderRef)
	close(done)
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (c *FinalizeCache) cleanupExpiredLocked() {
	now := time.Now()
	for orderRef, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, orderRef)
			delete(c.expiry, orderRef)
		}
	}
}

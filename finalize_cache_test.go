package storefront

import (
	"context"
	"testing"
	"time"
)

func TestFinalizeCacheMiss(t *testing.T) {
	cache := NewFinalizeCache(time.Minute)

	status, result, done := cache.CheckAndMark("ORD123")
	if status != FinalizeNotFound {
		t.Fatalf("Expected FinalizeNotFound, got %v", status)
	}
	if result != nil {
		t.Fatalf("Expected nil result, got %+v", result)
	}
	if done == nil {
		t.Fatal("Expected a done channel for the proceeding caller")
	}
}

func TestFinalizeCacheHit(t *testing.T) {
	cache := NewFinalizeCache(time.Minute)

	_, _, done := cache.CheckAndMark("ORD123")
	cache.Complete("ORD123", &VerifyResult{Success: true, OrderID: "ORD123"}, done)

	status, result, _ := cache.CheckAndMark("ORD123")
	if status != FinalizeCached {
		t.Fatalf("Expected FinalizeCached, got %v", status)
	}
	if result == nil || result.OrderID != "ORD123" {
		t.Fatalf("Expected cached result for ORD123, got %+v", result)
	}
}

func TestFinalizeCacheInFlight(t *testing.T) {
	cache := NewFinalizeCache(time.Minute)

	_, _, first := cache.CheckAndMark("ORD123")

	status, _, wait := cache.CheckAndMark("ORD123")
	if status != FinalizeInFlight {
		t.Fatalf("Expected FinalizeInFlight, got %v", status)
	}

	go cache.Complete("ORD123", &VerifyResult{Success: true, OrderID: "ORD123"}, first)

	result, err := cache.WaitForResult(context.Background(), "ORD123", wait)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result == nil || result.OrderID != "ORD123" {
		t.Fatalf("Expected the in-flight result, got %+v", result)
	}
}

func TestFinalizeCacheWaitRespectsContext(t *testing.T) {
	cache := NewFinalizeCache(time.Minute)

	_, _, _ = cache.CheckAndMark("ORD123")
	status, _, wait := cache.CheckAndMark("ORD123")
	if status != FinalizeInFlight {
		t.Fatalf("Expected FinalizeInFlight, got %v", status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.WaitForResult(ctx, "ORD123", wait)
	if err == nil {
		t.Fatal("Expected a context error")
	}
}

func TestFinalizeCacheFailAllowsRetry(t *testing.T) {
	cache := NewFinalizeCache(time.Minute)

	_, _, done := cache.CheckAndMark("ORD123")
	cache.Fail("ORD123", done)

	status, result, retry := cache.CheckAndMark("ORD123")
	if status != FinalizeNotFound {
		t.Fatalf("Expected FinalizeNotFound after a failure, got %v", status)
	}
	if result != nil {
		t.Fatalf("Failures must not be cached, got %+v", result)
	}
	if retry == nil {
		t.Fatal("Expected a done channel for the retry")
	}
}

func TestFinalizeCacheFailUnblocksWaiters(t *testing.T) {
	cache := NewFinalizeCache(time.Minute)

	_, _, first := cache.CheckAndMark("ORD123")
	_, _, wait := cache.CheckAndMark("ORD123")

	go cache.Fail("ORD123", first)

	result, err := cache.WaitForResult(context.Background(), "ORD123", wait)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("Expected nil result after a failed attempt, got %+v", result)
	}
}

func TestFinalizeCacheExpiry(t *testing.T) {
	cache := NewFinalizeCache(30 * time.Millisecond)

	_, _, done := cache.CheckAndMark("ORD123")
	cache.Complete("ORD123", &VerifyResult{Success: true, OrderID: "ORD123"}, done)

	time.Sleep(60 * time.Millisecond)

	status, result, _ := cache.CheckAndMark("ORD123")
	if status != FinalizeNotFound {
		t.Fatalf("Expected expiry to evict the result, got %v", status)
	}
	if result != nil {
		t.Fatalf("Expected nil result after expiry, got %+v", result)
	}
}

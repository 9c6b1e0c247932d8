package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	storefront "github.com/haleemlabs/storefront-go"
)

func TestLoginDecodesAuthResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req storefront.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "a@b.c" {
			t.Errorf("Expected email a@b.c, got %q", req.Email)
		}
		fmt.Fprint(w, `{"user":{"id":"u1","name":"Test"},"accessToken":"token-1"}`)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	result, err := client.Login(context.Background(), storefront.LoginRequest{Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.User == nil || result.User.ID != "u1" {
		t.Fatalf("Expected user u1, got %+v", result.User)
	}
	if result.AccessToken != "token-1" {
		t.Fatalf("Expected access token, got %q", result.AccessToken)
	}
}

func TestServerMessageSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"Email already registered"}`)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	_, err := client.SignUp(context.Background(), storefront.SignUpRequest{Email: "a@b.c"})
	if err == nil {
		t.Fatal("Expected error")
	}
	var sfErr *storefront.Error
	if !errors.As(err, &sfErr) {
		t.Fatalf("Expected *storefront.Error, got %T", err)
	}
	if sfErr.Message != "Email already registered" {
		t.Fatalf("Expected server message to be surfaced, got %q", sfErr.Message)
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL, Timeout: 30 * time.Millisecond})
	_, err := client.Profile(context.Background())
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !storefront.IsTransient(err) {
		t.Fatalf("Expected transient error, got %v", err)
	}
}

func TestUnauthorizedMapsToAuthExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	_, err := client.Profile(context.Background())
	if !storefront.IsAuthExpired(err) {
		t.Fatalf("Expected auth_expired, got %v", err)
	}
}

func TestCreateIntentSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		fmt.Fprint(w, `{"providerOrderId":"po_1","providerKey":"pk_1","amount":49900,"currency":"INR"}`)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	intent, err := client.CreateIntent(context.Background(), storefront.CreateIntentRequest{
		TotalAmount:    49900,
		IdempotencyKey: "key-123",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotKey != "key-123" {
		t.Fatalf("Expected idempotency key header, got %q", gotKey)
	}
	if intent.ProviderOrderID != "po_1" || intent.Amount != 49900 {
		t.Fatalf("Unexpected intent: %+v", intent)
	}
}

func TestVerifyRejectionIsPermanent(t *testing.T) {
	var verifyCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&verifyCalls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"signature mismatch"}`)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	_, err := client.Verify(context.Background(), storefront.VerifyRequest{})
	if !storefront.IsPaymentRejected(err) {
		t.Fatalf("Expected payment_rejected, got %v", err)
	}
	if calls := atomic.LoadInt32(&verifyCalls); calls != 1 {
		t.Fatalf("Expected exactly 1 verify call, got %d", calls)
	}
}

func TestVerifyExpiredSessionIsNotARejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	_, err := client.Verify(context.Background(), storefront.VerifyRequest{})
	if !storefront.IsAuthExpired(err) {
		t.Fatalf("Expected auth_expired to pass through, got %v", err)
	}
	if storefront.IsPaymentRejected(err) {
		t.Fatal("An expired session must not read as a payment rejection")
	}
}

func TestVerifyNeedsAddressFrom2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"needsAddress":true,"orderId":"ORD123"}`)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	result, err := client.Verify(context.Background(), storefront.VerifyRequest{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.NeedsAddress || result.OrderID != "ORD123" {
		t.Fatalf("Expected needs-address result for ORD123, got %+v", result)
	}
}

func TestVerifyNeedsAddressFromErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message":"address required","needsAddress":true,"orderId":"ORD123"}`)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	result, err := client.Verify(context.Background(), storefront.VerifyRequest{})
	if err != nil {
		t.Fatalf("Expected needs-address to decode from the error body, got %v", err)
	}
	if !result.NeedsAddress || result.OrderID != "ORD123" {
		t.Fatalf("Expected needs-address result for ORD123, got %+v", result)
	}
}

func TestPendingCheckoutNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	_, err := client.PendingCheckout(context.Background(), "ORD404")
	if storefront.CodeOf(err) != storefront.ErrCodeCheckoutNotFound {
		t.Fatalf("Expected checkout_not_found, got %v", err)
	}
}

func TestPendingCheckoutDecodesRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment/pending/ORD123" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"orderRef": "ORD123",
			"confirmation": {"paymentId":"pay_1","orderId":"po_1","signature":"sig"},
			"items": [{"productId":"p1","name":"Item","quantity":2,"unitPrice":100.5}],
			"totalAmount": 20100,
			"idempotencyKey": "key-1",
			"resumeAttempts": 1,
			"createdAt": "2026-08-30T10:00:00Z"
		}`)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	record, err := client.PendingCheckout(context.Background(), "ORD123")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if record.OrderRef != "ORD123" || record.Confirmation.PaymentID != "pay_1" {
		t.Fatalf("Unexpected record: %+v", record)
	}
	if record.ResumeAttempts != 1 || record.TotalAmount != 20100 {
		t.Fatalf("Unexpected record fields: %+v", record)
	}
}

func TestSaveAddressGeneratesIdempotencyKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewAPIClient(ClientConfig{BaseURL: server.URL})
	err := client.SaveAddress(context.Background(), storefront.Address{Line1: "1 Main St"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotKey == "" {
		t.Fatal("Expected a generated idempotency key header")
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	storefront "github.com/haleemlabs/storefront-go"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func testRecord(orderRef string) storefront.PendingCheckout {
	return storefront.PendingCheckout{
		OrderRef:       orderRef,
		Confirmation:   storefront.PaymentConfirmation{PaymentID: "pay_1", OrderID: "po_1", Signature: "sig_1"},
		Items:          []storefront.CartItem{{ProductID: "p1", Name: "Item", Quantity: 1, UnitPrice: 100}},
		TotalAmount:    10000,
		IdempotencyKey: "key-1",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("Expected error for empty path")
	}
}

func TestCredentialSlot(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	token, err := store.Token(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "" {
		t.Fatalf("Expected empty slot, got %q", token)
	}

	if err := store.SetToken(ctx, "token-1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.SetToken(ctx, "token-2"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	token, err = store.Token(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "token-2" {
		t.Fatalf("Expected last written token, got %q", token)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	token, _ = store.Token(ctx)
	if token != "" {
		t.Fatalf("Expected cleared slot, got %q", token)
	}
}

func TestSetTokenRejectsEmpty(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.SetToken(context.Background(), ""); err == nil {
		t.Fatal("Expected error for empty token")
	}
}

// A pending checkout must survive a full close and reopen of the store;
// this is the reload path.
func TestPendingCheckoutSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storefront.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	record := testRecord("ORD123")
	record.ResumeAttempts = 1
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.SetToken(ctx, "token-1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "ORD123")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("Expected the pending checkout to survive the reopen")
	}
	if got.ResumeAttempts != 1 || got.Confirmation.Signature != "sig_1" {
		t.Fatalf("Unexpected record after reopen: %+v", got)
	}
	token, err := reopened.Token(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "token-1" {
		t.Fatalf("Expected the credential to survive the reopen, got %q", token)
	}
}

func TestPendingPutReplacesWholeRecord(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	record := testRecord("ORD123")
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	record.ResumeAttempts = 2
	record.IdempotencyKey = "key-2"
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := store.Get(ctx, "ORD123")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.ResumeAttempts != 2 || got.IdempotencyKey != "key-2" {
		t.Fatalf("Expected last write to win, got %+v", got)
	}
}

func TestPendingGetUnknownRef(t *testing.T) {
	store, _ := openTestStore(t)
	got, err := store.Get(context.Background(), "ORD404")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected nil for unknown reference, got %+v", got)
	}
}

func TestPendingDeleteNotifiesOnlyWhenPresent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	var refs []string
	store.Watch(func(orderRef string) { refs = append(refs, orderRef) })

	if err := store.Put(ctx, testRecord("ORD123")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.Delete(ctx, "ORD123"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.Delete(ctx, "ORD123"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(refs) != 2 {
		t.Fatalf("Expected 2 notifications (put and first delete), got %v", refs)
	}
}

func TestLocationSlot(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	loc, err := store.Location(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if loc != nil {
		t.Fatalf("Expected empty slot, got %+v", loc)
	}

	var seen []storefront.Address
	store.WatchLocation(func(a storefront.Address) { seen = append(seen, a) })

	addr := storefront.Address{Line1: "12 Market Road", City: "Hyderabad", PostalCode: "500001", Phone: "9876543210"}
	if err := store.SaveLocation(ctx, addr); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	addr.PostalCode = "500002"
	if err := store.SaveLocation(ctx, addr); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	loc, err = store.Location(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if loc == nil || loc.PostalCode != "500002" {
		t.Fatalf("Expected last saved location, got %+v", loc)
	}
	if len(seen) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(seen))
	}
}

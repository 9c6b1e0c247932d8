package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// pendingCheckoutSchema guards records loaded back from durable storage.
// Persisted slots outlive code changes and can be tampered with, so a
// record is validated before the saga trusts it.
const pendingCheckoutSchema = `{
  "type": "object",
  "required": ["orderRef", "confirmation", "items", "totalAmount"],
  "properties": {
    "orderRef": {"type": "string", "minLength": 1},
    "confirmation": {
      "type": "object",
      "required": ["paymentId", "orderId", "signature"],
      "properties": {
        "paymentId": {"type": "string", "minLength": 1},
        "orderId": {"type": "string", "minLength": 1},
        "signature": {"type": "string", "minLength": 1}
      }
    },
    "items": {"type": "array"},
    "totalAmount": {"type": "integer", "minimum": 1},
    "resumeAttempts": {"type": "integer", "minimum": 0}
  }
}`

// ValidatePendingRecord checks a serialized pending checkout against the
// record schema before it is decoded.
func ValidatePendingRecord(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(pendingCheckoutSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validate pending checkout: %w", err)
	}
	if !result.Valid() {
		details := map[string]interface{}{}
		for i, desc := range result.Errors() {
			details[fmt.Sprintf("error_%d", i)] = desc.String()
		}
		return NewError(ErrCodeCheckoutNotFound, "stored pending checkout is malformed", details)
	}
	return nil
}

// DecodePendingCheckout validates and decodes a serialized pending
// checkout record.
func DecodePendingCheckout(data []byte) (*PendingCheckout, error) {
	if err := ValidatePendingRecord(data); err != nil {
		return nil, err
	}
	var record PendingCheckout
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode pending checkout: %w", err)
	}
	return &record, nil
}

// MemoryPendingStore is an in-process PendingStore. Writes are
// whole-record replacements; watchers are notified on every write and
// delete.
type MemoryPendingStore struct {
	mu       sync.Mutex
	records  map[string]PendingCheckout
	watchers []func(orderRef string)
}

// NewMemoryPendingStore creates an empty in-memory pending store
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{records: make(map[string]PendingCheckout)}
}

// Put replaces the record for its order reference
func (s *MemoryPendingStore) Put(ctx context.Context, record PendingCheckout) error {
	if record.OrderRef == "" {
		return NewValidationError("pending checkout requires an order reference")
	}
	s.mu.Lock()
	s.records[record.OrderRef] = record
	watchers := append([]func(string){}, s.watchers...)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(record.OrderRef)
	}
	return nil
}

// Get returns nil, nil when no record exists for orderRef
func (s *MemoryPendingStore) Get(ctx context.Context, orderRef string) (*PendingCheckout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[orderRef]
	if !ok {
		return nil, nil
	}
	out := record
	return &out, nil
}

// Delete removes the record for orderRef, if any
func (s *MemoryPendingStore) Delete(ctx context.Context, orderRef string) error {
	s.mu.Lock()
	_, existed := s.records[orderRef]
	delete(s.records, orderRef)
	watchers := append([]func(string){}, s.watchers...)
	s.mu.Unlock()

	if existed {
		for _, fn := range watchers {
			fn(orderRef)
		}
	}
	return nil
}

// Watch registers a change observer
func (s *MemoryPendingStore) Watch(fn func(orderRef string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// MemoryLocationStore is an in-process LocationStore
type MemoryLocationStore struct {
	mu       sync.Mutex
	location *Address
	watchers []func(Address)
}

// NewMemoryLocationStore creates an empty in-memory location store
func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{}
}

// SaveLocation replaces the saved delivery location
func (s *MemoryLocationStore) SaveLocation(ctx context.Context, addr Address) error {
	s.mu.Lock()
	copied := addr
	s.location = &copied
	watchers := append([]func(Address){}, s.watchers...)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(addr)
	}
	return nil
}

// Location returns nil, nil when no location has been saved
func (s *MemoryLocationStore) Location(ctx context.Context) (*Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.location == nil {
		return nil, nil
	}
	out := *s.location
	return &out, nil
}

// WatchLocation registers a change observer
func (s *MemoryLocationStore) WatchLocation(fn func(Address)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

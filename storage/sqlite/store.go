// Package sqlite provides the durable single-file store behind the
// storefront client: the credential slot, pending checkouts, and the
// saved delivery location. Records survive a full process restart,
// which is how a checkout outlives a page reload.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	storefront "github.com/haleemlabs/storefront-go"
)

const schema = `
CREATE TABLE IF NOT EXISTS credential (
	slot INTEGER PRIMARY KEY CHECK (slot = 1),
	token TEXT NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_checkout (
	order_ref TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS delivery_location (
	slot INTEGER PRIMARY KEY CHECK (slot = 1),
	payload BLOB NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
`

// Store persists client state in SQLite. It implements
// storefront.CredentialStore, storefront.PendingStore and
// storefront.LocationStore. Writes are whole-record replacements; the
// last write wins across instances sharing the file.
type Store struct {
	sqlDB *sql.DB

	mu               sync.Mutex
	pendingWatchers  []func(orderRef string)
	locationWatchers []func(storefront.Address)
}

// Open opens the store and creates its schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

// ============================================================================
// CredentialStore
// ============================================================================

// Token returns the stored access token, or "" when none is held.
func (s *Store) Token(ctx context.Context) (string, error) {
	var token string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT token FROM credential WHERE slot = 1`).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	return token, nil
}

// SetToken replaces the credential slot.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO credential (slot, token, updated_at_ms) VALUES (1, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET token = excluded.token, updated_at_ms = excluded.updated_at_ms`,
		token, nowMillis())
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// Clear discards the credential slot.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM credential WHERE slot = 1`); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// ============================================================================
// PendingStore
// ============================================================================

// Put replaces the pending checkout record for its order reference.
func (s *Store) Put(ctx context.Context, record storefront.PendingCheckout) error {
	if record.OrderRef == "" {
		return fmt.Errorf("order reference is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode pending checkout: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO pending_checkout (order_ref, payload, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT (order_ref) DO UPDATE SET payload = excluded.payload, updated_at_ms = excluded.updated_at_ms`,
		record.OrderRef, payload, nowMillis())
	if err != nil {
		return fmt.Errorf("store pending checkout: %w", err)
	}
	s.notifyPending(record.OrderRef)
	return nil
}

// Get returns nil, nil when no record exists for orderRef. The stored
// payload is schema-validated before it is trusted.
func (s *Store) Get(ctx context.Context, orderRef string) (*storefront.PendingCheckout, error) {
	var payload []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT payload FROM pending_checkout WHERE order_ref = ?`, orderRef).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending checkout: %w", err)
	}
	return storefront.DecodePendingCheckout(payload)
}

// Delete removes the pending checkout record for orderRef, if any.
func (s *Store) Delete(ctx context.Context, orderRef string) error {
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pending_checkout WHERE order_ref = ?`, orderRef)
	if err != nil {
		return fmt.Errorf("delete pending checkout: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		s.notifyPending(orderRef)
	}
	return nil
}

// Watch registers a pending-checkout change observer.
func (s *Store) Watch(fn func(orderRef string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingWatchers = append(s.pendingWatchers, fn)
}

func (s *Store) notifyPending(orderRef string) {
	s.mu.Lock()
	watchers := append([]func(string){}, s.pendingWatchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(orderRef)
	}
}

// ============================================================================
// LocationStore
// ============================================================================

// SaveLocation replaces the saved delivery location.
func (s *Store) SaveLocation(ctx context.Context, addr storefront.Address) error {
	payload, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO delivery_location (slot, payload, updated_at_ms) VALUES (1, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET payload = excluded.payload, updated_at_ms = excluded.updated_at_ms`,
		payload, nowMillis())
	if err != nil {
		return fmt.Errorf("store location: %w", err)
	}

	s.mu.Lock()
	watchers := append([]func(storefront.Address){}, s.locationWatchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(addr)
	}
	return nil
}

// Location returns nil, nil when no location has been saved.
func (s *Store) Location(ctx context.Context) (*storefront.Address, error) {
	var payload []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT payload FROM delivery_location WHERE slot = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read location: %w", err)
	}
	var addr storefront.Address
	if err := json.Unmarshal(payload, &addr); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return &addr, nil
}

// WatchLocation registers a location change observer.
func (s *Store) WatchLocation(fn func(storefront.Address)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locationWatchers = append(s.locationWatchers, fn)
}

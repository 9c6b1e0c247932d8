package storefront

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MemoryCredentialStore is an in-process CredentialStore. Production
// wiring uses the sqlite-backed store so the credential survives
// reloads; this one backs tests and short-lived tools.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryCredentialStore creates an empty in-memory credential store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Token returns the stored token, or "" when none is held
func (s *MemoryCredentialStore) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// SetToken replaces the stored token
func (s *MemoryCredentialStore) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Clear discards the stored token
func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// CredentialExpiry extracts the expiry claim from a bearer token without
// verifying its signature. The client never validates tokens, it only
// inspects expiry to decide when to renew proactively.
func CredentialExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse credential: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("credential expiry claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("credential has no expiry claim")
	}
	return exp.Time, nil
}

package storefront

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRenewalLeeway is how close to expiry a credential may get
// before EnsureFresh renews it proactively.
const DefaultRenewalLeeway = 30 * time.Second

// Session owns the authentication status and session lifecycle
// operations. It is the only component that writes the credential store
// or the session status; all other components read them.
type Session struct {
	mu        sync.RWMutex
	status    SessionStatus
	principal *Principal

	api   AuthAPI
	creds CredentialStore

	// renewal is single-flight: concurrent callers share the in-flight
	// renewal's result instead of starting a second one
	renewal    singleflight.Group
	loggingOut atomic.Bool

	hooks         SessionHooks
	renewalLeeway time.Duration
}

// SessionConfig configures a Session
type SessionConfig struct {
	API         AuthAPI
	Credentials CredentialStore

	// Hooks for status-change and session-expired broadcasts (optional)
	Hooks SessionHooks

	// RenewalLeeway for proactive renewal (optional, defaults to 30s)
	RenewalLeeway time.Duration
}

// NewSession creates a session state machine in the unauthenticated state
func NewSession(cfg SessionConfig) *Session {
	leeway := cfg.RenewalLeeway
	if leeway <= 0 {
		leeway = DefaultRenewalLeeway
	}
	return &Session{
		status:        StatusUnauthenticated,
		api:           cfg.API,
		creds:         cfg.Credentials,
		hooks:         cfg.Hooks,
		renewalLeeway: leeway,
	}
}

// Status returns the current session status
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Principal returns the authenticated user, or nil when unauthenticated
func (s *Session) Principal() *Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

// LoggingOut reports whether a logout is currently in flight. The
// request interceptor consults this to avoid piling renewal attempts on
// top of a teardown.
func (s *Session) LoggingOut() bool {
	return s.loggingOut.Load()
}

func (s *Session) transition(status SessionStatus, principal *Principal) {
	s.mu.Lock()
	previous := s.status
	s.status = status
	s.principal = principal
	s.mu.Unlock()

	if previous == status {
		return
	}
	ctxInfo := SessionStatusContext{
		Previous:  previous,
		Current:   status,
		Principal: principal,
		Timestamp: time.Now(),
	}
	for _, hook := range s.hooks.OnStatusChange {
		hook(ctxInfo)
	}
}

// SignUp validates the password confirmation locally, then submits the
// sign-up form. On success the session becomes authenticated and the
// returned credential is stored.
func (s *Session) SignUp(ctx context.Context, req SignUpRequest) (*Principal, error) {
	if req.Password != req.ConfirmPassword {
		return nil, NewValidationError("passwords do not match")
	}
	res, err := s.api.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, res)
}

// Login submits credentials and, on success, transitions to
// authenticated with the returned principal and credential.
func (s *Session) Login(ctx context.Context, req LoginRequest) (*Principal, error) {
	res, err := s.api.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, res)
}

func (s *Session) establish(ctx context.Context, res *AuthResult) (*Principal, error) {
	if res.AccessToken != "" {
		if err := s.creds.SetToken(ctx, res.AccessToken); err != nil {
			return nil, err
		}
	}
	s.transition(StatusAuthenticated, res.User)
	return res.User, nil
}

// Logout tears the session down. Idempotent: a concurrent second call is
// a no-op. The session always leaves authenticated, even when the remote
// invalidation or the credential clear fails.
func (s *Session) Logout(ctx context.Context) error {
	if !s.loggingOut.CompareAndSwap(false, true) {
		return nil
	}
	defer s.loggingOut.Store(false)

	// best-effort remote invalidation
	remoteErr := s.api.Logout(ctx)

	clearErr := s.creds.Clear(ctx)
	s.transition(StatusUnauthenticated, nil)
	if clearErr != nil {
		return clearErr
	}
	return remoteErr
}

// CheckAuth determines at startup whether a previously persisted
// credential still denotes a valid session. On any failure the persisted
// credential is discarded so stale tokens are not retried on next boot.
func (s *Session) CheckAuth(ctx context.Context) error {
	s.transition(StatusChecking, nil)

	principal, err := s.api.Profile(ctx)
	if err != nil {
		_ = s.creds.Clear(ctx)
		s.transition(StatusUnauthenticated, nil)
		return err
	}
	s.transition(StatusAuthenticated, principal)
	return nil
}

// RenewToken exchanges the current credential for a fresh one. At most
// one renewal is in flight at any time; concurrent callers wait on the
// outstanding renewal and share its result. On any failure the session
// conservatively resets to unauthenticated and the credential is
// cleared; retrying belongs to the caller.
func (s *Session) RenewToken(ctx context.Context) error {
	_, err, _ := s.renewal.Do("renew", func() (interface{}, error) {
		token, err := s.api.Refresh(ctx)
		if err != nil {
			_ = s.creds.Clear(ctx)
			s.transition(StatusUnauthenticated, nil)
			return nil, err
		}
		if err := s.creds.SetToken(ctx, token); err != nil {
			return nil, err
		}
		// renewal refreshes the credential only; the session status and
		// principal are unchanged
		return token, nil
	})
	return err
}

// EnsureFresh renews the credential proactively when it expires within
// the configured leeway. Checkout calls this before opening the payment
// collector: payment endpoints are excluded from transparent retry, so
// an expiry mid-checkout would be unrecoverable.
func (s *Session) EnsureFresh(ctx context.Context) error {
	token, err := s.creds.Token(ctx)
	if err != nil || token == "" {
		return err
	}
	expiry, err := CredentialExpiry(token)
	if err != nil {
		// opaque token, nothing to inspect
		return nil
	}
	if time.Until(expiry) > s.renewalLeeway {
		return nil
	}
	return s.RenewToken(ctx)
}

// ForceLogout is the synchronous, local-only teardown used by the
// request interceptor once renewal has definitively failed. No network
// call is made. Emits the session-expired broadcast.
func (s *Session) ForceLogout() {
	_ = s.creds.Clear(context.Background())
	s.transition(StatusUnauthenticated, nil)

	ctxInfo := SessionExpiredContext{
		Reason:    "session expired, please login again",
		Timestamp: time.Now(),
	}
	for _, hook := range s.hooks.OnSessionExpired {
		hook(ctxInfo)
	}
}

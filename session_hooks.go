package storefront

import "time"

// ============================================================================
// Session Hook Context Types
// ============================================================================

// SessionStatusContext contains information passed to status-change hooks
type SessionStatusContext struct {
	Previous  SessionStatus
	Current   SessionStatus
	Principal *Principal
	Timestamp time.Time
}

// SessionExpiredContext contains information passed to session-expired hooks
type SessionExpiredContext struct {
	Reason    string
	Timestamp time.Time
}

// ============================================================================
// Session Hook Function Types
// ============================================================================

// OnSessionStatusChangeHook is called after every session status
// transition. Hooks run synchronously on the transitioning goroutine and
// must not call back into the session.
type OnSessionStatusChangeHook func(SessionStatusContext)

// OnSessionExpiredHook is the "session expired" broadcast, fired on
// forced logout so listeners can notify the user.
type OnSessionExpiredHook func(SessionExpiredContext)

// SessionHooks configures session observability
type SessionHooks struct {
	OnStatusChange   []OnSessionStatusChangeHook
	OnSessionExpired []OnSessionExpiredHook
}

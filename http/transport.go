// Package http provides the wire layer of the storefront client: the
// API client and the request-interception transport that transparently
// recovers from expired credentials.
package http

import (
	"context"
	"io"
	"net/http"
	"strings"

	storefront "github.com/haleemlabs/storefront-go"
)

// SessionController is the slice of the session state machine the
// transport needs: renewal, forced teardown, and the logout guard.
type SessionController interface {
	// RenewToken is single-flight; concurrent callers share one renewal
	RenewToken(ctx context.Context) error
	ForceLogout()
	LoggingOut() bool
}

// DefaultSkipPaths are endpoints whose 401 responses must never enter
// the renewal path. Auth endpoints would loop; payment endpoints risk
// duplicate processing on replay.
var DefaultSkipPaths = []string{
	"/auth/login",
	"/auth/signup",
	"/auth/logout",
	"/auth/refresh",
	"/payment/verify",
	"/payment/create-intent",
}

// AuthRoundTripper implements http.RoundTripper with transparent
// credential renewal. On a 401 it triggers exactly one renewal per
// failure wave (concurrent failing requests join the in-flight renewal)
// and replays the original request at most once with the refreshed
// credential. The original caller sees either the transparent retry's
// response or a single clear 401.
// A nil Session puts the transport in attach-only mode: the credential
// is still attached but 401s pass through. The session's own API client
// runs in this mode, breaking the construction cycle between the two.
type AuthRoundTripper struct {
	Transport   http.RoundTripper
	Credentials storefront.CredentialStore
	Session     SessionController

	// SkipPaths overrides DefaultSkipPaths when non-nil
	SkipPaths []string
}

func (t *AuthRoundTripper) base() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

func (t *AuthRoundTripper) skipped(path string) bool {
	skip := t.SkipPaths
	if skip == nil {
		skip = DefaultSkipPaths
	}
	for _, s := range skip {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// RoundTrip implements http.RoundTripper
func (t *AuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	authed := req
	if token, err := t.Credentials.Token(ctx); err == nil && token != "" {
		authed = req.Clone(ctx)
		authed.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base().RoundTrip(authed)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if t.Session == nil {
		return resp, nil
	}
	// never renew for the endpoints that implement renewal and payment
	if t.skipped(req.URL.Path) {
		return resp, nil
	}
	// a teardown is in progress; do not pile a renewal on top of it
	if t.Session.LoggingOut() {
		return resp, nil
	}

	if err := t.Session.RenewToken(ctx); err != nil {
		t.Session.ForceLogout()
		return resp, nil
	}

	retry, ok := cloneForRetry(req)
	if !ok {
		return resp, nil
	}
	token, err := t.Credentials.Token(ctx)
	if err != nil || token == "" {
		return resp, nil
	}
	retry.Header.Set("Authorization", "Bearer "+token)

	// the replayed response supersedes the 401
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()

	return t.base().RoundTrip(retry)
}

// cloneForRetry clones req with a replayable body. Requests whose body
// cannot be regenerated are not replayed; the caller keeps the 401.
func cloneForRetry(req *http.Request) (*http.Request, bool) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	retry.Body = body
	return retry, true
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	storefront "github.com/haleemlabs/storefront-go"
)

// DefaultTimeout is the fixed timeout applied to every request
const DefaultTimeout = 30 * time.Second

// ============================================================================
// API Client
// ============================================================================

// APIClient talks to the storefront API over HTTP. It implements
// storefront.AuthAPI, storefront.PaymentAPI and storefront.AddressAPI.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// ClientConfig configures the API client
type ClientConfig struct {
	// BaseURL is the base URL of the storefront API
	BaseURL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// Credentials enables credential attachment; Session additionally
	// enables transparent renewal on 401 (both optional). The session's
	// own client is built with Credentials only.
	Credentials storefront.CredentialStore
	Session     SessionController
}

// NewAPIClient creates a storefront API client
func NewAPIClient(cfg ClientConfig) *APIClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient.Timeout = timeout
	}
	if cfg.Credentials != nil {
		httpClient.Transport = &AuthRoundTripper{
			Transport:   httpClient.Transport,
			Credentials: cfg.Credentials,
			Session:     cfg.Session,
		}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
}

// ============================================================================
// AuthAPI
// ============================================================================

// SignUp submits the sign-up form
func (c *APIClient) SignUp(ctx context.Context, req storefront.SignUpRequest) (*storefront.AuthResult, error) {
	var result storefront.AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/auth/signup", req, &result, ""); err != nil {
		return nil, err
	}
	return &result, nil
}

// Login submits login credentials
func (c *APIClient) Login(ctx context.Context, req storefront.LoginRequest) (*storefront.AuthResult, error) {
	var result storefront.AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, &result, ""); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout asks the server to invalidate the session, best effort
func (c *APIClient) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", struct{}{}, nil, "")
}

// Profile fetches the current principal using the attached credential
func (c *APIClient) Profile(ctx context.Context) (*storefront.Principal, error) {
	var principal storefront.Principal
	if err := c.doJSON(ctx, http.MethodGet, "/auth/profile", nil, &principal, ""); err != nil {
		return nil, err
	}
	return &principal, nil
}

// Refresh exchanges the current credential for a fresh access token
func (c *APIClient) Refresh(ctx context.Context) (string, error) {
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/auth/refresh", nil, &body, ""); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", storefront.NewError(storefront.ErrCodeAuthExpired, "refresh returned no token", nil)
	}
	return body.AccessToken, nil
}

// ============================================================================
// PaymentAPI
// ============================================================================

// CreateIntent requests an order intent
func (c *APIClient) CreateIntent(ctx context.Context, req storefront.CreateIntentRequest) (*storefront.OrderIntent, error) {
	var intent storefront.OrderIntent
	if err := c.doJSON(ctx, http.MethodPost, "/payment/create-intent", req, &intent, req.IdempotencyKey); err != nil {
		return nil, err
	}
	return &intent, nil
}

// Verify submits a payment confirmation for verification. A server
// rejection is returned as a payment_rejected error; a needs-address
// answer is a successful result regardless of the HTTP status the
// server chose for it.
func (c *APIClient) Verify(ctx context.Context, req storefront.VerifyRequest) (*storefront.VerifyResult, error) {
	var result storefront.VerifyResult
	err := c.doJSON(ctx, http.MethodPost, "/payment/verify", req, &result, req.IdempotencyKey)
	if err == nil {
		return &result, nil
	}

	var sfErr *storefront.Error
	if !errors.As(err, &sfErr) || storefront.IsTransient(err) {
		return nil, err
	}
	// an expired session is not a verdict on the payment
	if storefront.IsAuthExpired(err) {
		return nil, err
	}
	// some servers report the missing address with a non-2xx status
	if needs, ok := sfErr.Details["needsAddress"].(bool); ok && needs {
		orderID, _ := sfErr.Details["orderId"].(string)
		return &storefront.VerifyResult{NeedsAddress: true, OrderID: orderID}, nil
	}
	return nil, storefront.NewError(storefront.ErrCodePaymentRejected, sfErr.Message, sfErr.Details)
}

// PendingCheckout recovers a pending checkout by order reference
func (c *APIClient) PendingCheckout(ctx context.Context, orderRef string) (*storefront.PendingCheckout, error) {
	data, err := c.doRaw(ctx, http.MethodGet, "/payment/pending/"+orderRef, nil, "")
	if err != nil {
		var sfErr *storefront.Error
		if errors.As(err, &sfErr) {
			if status, ok := sfErr.Details["status"].(int); ok && status == http.StatusNotFound {
				return nil, storefront.NewError(storefront.ErrCodeCheckoutNotFound, "no pending checkout for "+orderRef, nil)
			}
		}
		return nil, err
	}
	// persisted slots and server payloads share the record schema
	return storefront.DecodePendingCheckout(data)
}

// ============================================================================
// AddressAPI
// ============================================================================

// SaveAddress persists a delivery address server-side
func (c *APIClient) SaveAddress(ctx context.Context, addr storefront.Address) error {
	return c.doJSON(ctx, http.MethodPost, "/addresses", addr, nil, uuid.NewString())
}

// ============================================================================
// Internals
// ============================================================================

func (c *APIClient) doJSON(ctx context.Context, method, path string, in, out interface{}, idempotencyKey string) error {
	data, err := c.doRaw(ctx, method, path, in, idempotencyKey)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *APIClient) doRaw(ctx context.Context, method, path string, in interface{}, idempotencyKey string) ([]byte, error) {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// timeouts, refused connections, DNS failures: all retriable at
		// the caller's discretion
		return nil, storefront.NewError(storefront.ErrCodeTransientNetwork, err.Error(), nil)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, storefront.NewError(storefront.ErrCodeTransientNetwork, err.Error(), nil)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, decodeAPIError(resp.StatusCode, data)
}

// decodeAPIError converts a non-2xx response into a *storefront.Error,
// preferring the server's message when the body carries one.
func decodeAPIError(status int, data []byte) *storefront.Error {
	var body struct {
		Message      string `json:"message"`
		NeedsAddress bool   `json:"needsAddress"`
		OrderID      string `json:"orderId"`
	}
	_ = json.Unmarshal(data, &body)

	code := storefront.ErrCodeServer
	if status == http.StatusUnauthorized {
		code = storefront.ErrCodeAuthExpired
	}
	message := body.Message
	if message == "" {
		message = http.StatusText(status)
	}

	details := map[string]interface{}{"status": status}
	if body.NeedsAddress {
		details["needsAddress"] = true
		details["orderId"] = body.OrderID
	}
	return storefront.NewError(code, message, details)
}

package http

import (
	"net/http"

	storefront "github.com/haleemlabs/storefront-go"
)

// ============================================================================
// Convenience constructors
// ============================================================================

// NewClient creates an API client from the environment configuration.
func NewClient(cfg storefront.Config, creds storefront.CredentialStore, session SessionController) *APIClient {
	return NewAPIClient(ClientConfig{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.RequestTimeout,
		Credentials: creds,
		Session:     session,
	})
}

// WrapClient wraps a standard HTTP client with credential attachment and
// transparent renewal. The client is returned for chaining.
func WrapClient(client *http.Client, creds storefront.CredentialStore, session SessionController) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	client.Transport = &AuthRoundTripper{
		Transport:   client.Transport,
		Credentials: creds,
		Session:     session,
	}
	return client
}

// ABOUTME: Federated login provider abstraction
// ABOUTME: Builds authorization URLs and turns callback codes into identity assertions

package oauth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/2389/identity-gateway/internal/identity"
)

// Provider errors
var (
	ErrExchangeFailed = errors.New("authorization code exchange failed")
	ErrInvalidIDToken = errors.New("invalid id token")
)

// Provider is an external identity provider using the authorization code flow with PKCE.
type Provider interface {
	// Name identifies the provider in routes, logs, and metrics.
	Name() string
	// AuthCodeURL returns the consent page URL for state, challenging with verifier.
	AuthCodeURL(state, verifier string) string
	// Exchange redeems code and returns the verified identity.
	Exchange(ctx context.Context, code, verifier string) (*identity.Assertion, error)
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// NewState returns an unguessable state value for a login attempt.
func NewState() string {
	// Same 32 bytes of crypto/rand entropy as a verifier, base64url encoded.
	return oauth2.GenerateVerifier()
}

// ABOUTME: Google OpenID Connect provider
// ABOUTME: Uses go-oidc for ID token verification and x/oauth2 for the PKCE code exchange

package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/2389/identity-gateway/internal/identity"
)

const (
	// GoogleName is the provider name used in routes and metrics.
	GoogleName = "google"
	// GoogleIssuer is Google's OpenID Connect issuer.
	GoogleIssuer = "https://accounts.google.com"
)

// GoogleProvider signs users in with their Google account.
type GoogleProvider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	logger      *slog.Logger
}

var _ Provider = (*GoogleProvider)(nil)

// NewGoogleProvider discovers Google's OIDC endpoints and returns a provider.
// Discovery needs network access to the issuer.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURL string) (*GoogleProvider, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discovering google oidc provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	return newGoogleProvider(oauthCfg, oidcProvider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

func newGoogleProvider(oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *GoogleProvider {
	return &GoogleProvider{
		oauthConfig: oauthCfg,
		verifier:    verifier,
		logger:      slog.Default().With("component", "oauth", "provider", GoogleName),
	}
}

// Name returns "google".
func (p *GoogleProvider) Name() string {
	return GoogleName
}

// AuthCodeURL builds the consent URL with an S256 PKCE challenge.
func (p *GoogleProvider) AuthCodeURL(state, verifier string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// googleClaims are the ID token claims the gateway reads.
type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange redeems the code, verifies the returned ID token, and maps its claims.
func (p *GoogleProvider) Exchange(ctx context.Context, code, verifier string) (*identity.Assertion, error) {
	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: no id_token in token response", ErrInvalidIDToken)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	p.logger.Debug("id token verified",
		"email_present", claims.Email != "",
		"email_verified", claims.EmailVerified,
		"expiry", idToken.Expiry,
	)

	return assertionFromClaims(claims)
}

// assertionFromClaims maps Google claims to an assertion. An unverified email is
// dropped so it can never be used to link onto an existing account.
func assertionFromClaims(claims googleClaims) (*identity.Assertion, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidIDToken)
	}

	assertion := &identity.Assertion{
		ExternalID:  claims.Subject,
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
	}
	if claims.EmailVerified {
		assertion.Email = claims.Email
	}
	return assertion, nil
}

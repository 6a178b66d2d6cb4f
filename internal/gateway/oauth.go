// ABOUTME: HTTP handlers for Google sign-in using the authorization code flow with PKCE
// ABOUTME: Callback reconciles the federated identity and hands the session token to the frontend

package gateway

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/2389/identity-gateway/internal/identity"
	"github.com/2389/identity-gateway/internal/metrics"
	"github.com/2389/identity-gateway/internal/oauth"
	"github.com/2389/identity-gateway/internal/store"
)

// Callback error codes passed to the frontend as ?error=.
const (
	callbackErrDenied   = "access_denied"
	callbackErrState    = "invalid_state"
	callbackErrCode     = "missing_code"
	callbackErrExchange = "exchange_failed"
	callbackErrConflict = "account_conflict"
	callbackErrServer   = "server_error"
)

// frontendCallback returns the frontend callback URL carrying params.
func (g *Gateway) frontendCallback(params url.Values) string {
	return g.config.Server.FrontendURL + "/auth/callback?" + params.Encode()
}

// redirectCallbackError sends the browser back to the frontend with an error code.
func (g *Gateway) redirectCallbackError(w http.ResponseWriter, r *http.Request, code string) {
	g.metrics.RecordAuth(g.google.Name(), code)
	http.Redirect(w, r, g.frontendCallback(url.Values{"error": {code}}), http.StatusFound)
}

// handleGoogleLogin handles GET /auth/google by redirecting to the consent page.
func (g *Gateway) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	state := oauth.NewState()
	verifier := oauth.NewVerifier()
	g.states.Put(state, verifier)

	http.Redirect(w, r, g.google.AuthCodeURL(state, verifier), http.StatusFound)
}

// handleGoogleCallback handles GET /auth/google/callback.
func (g *Gateway) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	logger := g.logger.With("provider", g.google.Name())

	// The state is consumed even when the provider reports an error.
	verifier, ok := g.states.Take(q.Get("state"))

	if providerErr := q.Get("error"); providerErr != "" {
		logger.Info("provider returned error", "error", providerErr)
		g.redirectCallbackError(w, r, callbackErrDenied)
		return
	}
	if !ok {
		logger.Warn("callback with unknown or expired state")
		g.redirectCallbackError(w, r, callbackErrState)
		return
	}
	code := q.Get("code")
	if code == "" {
		g.redirectCallbackError(w, r, callbackErrCode)
		return
	}

	assertion, err := g.google.Exchange(r.Context(), code, verifier)
	if err != nil {
		logger.Warn("code exchange failed", "error", err)
		g.redirectCallbackError(w, r, callbackErrExchange)
		return
	}

	session, err := g.reconciler.SignInFederated(r.Context(), *assertion)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrConflict):
		logger.Warn("federated identity conflicts with an existing account")
		g.redirectCallbackError(w, r, callbackErrConflict)
		return
	default:
		logger.Error("federated sign-in failed", "error", err)
		g.redirectCallbackError(w, r, callbackErrServer)
		return
	}

	g.metrics.RecordAuth(g.google.Name(), metrics.OutcomeSuccess)
	g.recordActivity(r, session.Profile.ID, store.AuditFederatedSignIn, map[string]any{"provider": g.google.Name()})
	logger.Info("federated sign-in", "account_id", session.Profile.ID)
	http.Redirect(w, r, g.frontendCallback(url.Values{"token": {session.Token}}), http.StatusFound)
}

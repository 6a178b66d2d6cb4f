// ABOUTME: HTTP JSON handlers for credential auth, profile, and newsletter endpoints
// ABOUTME: Validates request bodies and maps identity and newsletter errors to status codes

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/2389/identity-gateway/internal/auth"
	"github.com/2389/identity-gateway/internal/identity"
	"github.com/2389/identity-gateway/internal/metrics"
	"github.com/2389/identity-gateway/internal/newsletter"
	"github.com/2389/identity-gateway/internal/store"
)

const (
	// maxBodyBytes bounds every JSON request body.
	maxBodyBytes = 1 << 20

	minPasswordLength = 6
	// maxPasswordLength is bcrypt's input limit; longer inputs are silently truncated by it.
	maxPasswordLength = 72
)

// Response messages shared with the web frontend.
const (
	msgUserExists          = "User with this email already exists"
	msgInvalidCredentials  = "Invalid credentials"
	msgUserNotFound        = "User not found"
	msgLoggedOut           = "Logged out successfully"
	msgSubscribed          = "Successfully subscribed to newsletter! Check your email for confirmation."
	msgAlreadySubscribed   = "This email is already subscribed to our newsletter"
	msgInvalidEmail        = "Please provide a valid email address"
	msgInternalError       = "internal error"
	msgInvalidRequestBody  = "invalid request body"
	msgMethodNotAllowed    = "method not allowed"
	msgNameRequired        = "name is required"
	msgPasswordRequired    = "password is required"
	msgPasswordTooShort    = "password must be at least 6 characters"
	msgPasswordTooLong     = "password must be at most 72 bytes"
	msgCredentialsRequired = "email and password are required"
)

// SignupRequest is the JSON request body for POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the JSON request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SubscribeRequest is the JSON request body for POST /newsletter/subscribe.
type SubscribeRequest struct {
	Email string `json:"email"`
}

// SubscribeResponse is the JSON response for POST /newsletter/subscribe.
type SubscribeResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// SubscriberResponse is one entry of GET /newsletter/subscribers.
type SubscriberResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Status       string    `json:"status"`
	SubscribedAt time.Time `json:"subscribedAt"`
}

// MessageResponse is a bare confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}

// validEmail reports whether s is a bare email address (no display name).
func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".")
}

// validateSignup returns the first validation failure, or "" if req is acceptable.
func validateSignup(req *SignupRequest) string {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return msgNameRequired
	case !validEmail(req.Email):
		return msgInvalidEmail
	case req.Password == "":
		return msgPasswordRequired
	case len([]rune(req.Password)) < minPasswordLength:
		return msgPasswordTooShort
	case len(req.Password) > maxPasswordLength:
		return msgPasswordTooLong
	}
	return ""
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// sendJSON writes v as a JSON response with status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// handleSignup handles POST /auth/signup.
func (g *Gateway) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.metrics.RecordAuth("signup", metrics.OutcomeInvalid)
		g.sendJSONError(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}
	if msg := validateSignup(&req); msg != "" {
		g.metrics.RecordAuth("signup", metrics.OutcomeInvalid)
		g.sendJSONError(w, http.StatusBadRequest, msg)
		return
	}

	session, err := g.authenticator.Signup(r.Context(), req.Email, strings.TrimSpace(req.Name), req.Password)
	g.metrics.RecordAuth("signup", authOutcome(err))
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrConflict):
		g.sendJSONError(w, http.StatusConflict, msgUserExists)
		return
	case errors.Is(err, identity.ErrMissingEmail):
		g.sendJSONError(w, http.StatusBadRequest, msgInvalidEmail)
		return
	default:
		g.logger.Error("signup failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	g.recordActivity(r, session.Profile.ID, store.AuditSignup, nil)
	g.sendJSON(w, http.StatusCreated, session)
}

// handleLogin handles POST /auth/login.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.metrics.RecordAuth("login", metrics.OutcomeInvalid)
		g.sendJSONError(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		g.metrics.RecordAuth("login", metrics.OutcomeInvalid)
		g.sendJSONError(w, http.StatusBadRequest, msgCredentialsRequired)
		return
	}

	session, err := g.authenticator.Login(r.Context(), req.Email, req.Password)
	g.metrics.RecordAuth("login", authOutcome(err))
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrInvalidCredentials):
		g.sendJSONError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	default:
		g.logger.Error("login failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	g.recordActivity(r, session.Profile.ID, store.AuditLogin, nil)
	g.sendJSON(w, http.StatusOK, session)
}

// handleProfile handles GET /auth/profile. Requires HTTPAuthMiddleware.
func (g *Gateway) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	authCtx := auth.MustFromContext(r.Context())
	profile, err := g.issuer.GetProfile(r.Context(), authCtx.AccountID)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, msgUserNotFound)
		return
	default:
		g.logger.Error("profile lookup failed", "account_id", authCtx.AccountID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	g.sendJSON(w, http.StatusOK, profile)
}

// handleLogout handles GET /auth/logout. Tokens are stateless, so there is
// nothing to revoke; the client discards its token.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}
	if authCtx := auth.FromContext(r.Context()); authCtx != nil {
		g.logger.Debug("logout", "account_id", authCtx.AccountID)
	}
	g.sendJSON(w, http.StatusOK, MessageResponse{Message: msgLoggedOut})
}

// handleSubscribe handles POST /newsletter/subscribe.
func (g *Gateway) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	var req SubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil || !validEmail(req.Email) {
		g.metrics.RecordSubscription(metrics.OutcomeInvalid)
		g.sendJSONError(w, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	sub, err := g.newsletter.Subscribe(r.Context(), req.Email)
	switch {
	case err == nil:
		g.metrics.RecordSubscription(metrics.OutcomeSuccess)
	case errors.Is(err, newsletter.ErrAlreadySubscribed):
		g.metrics.RecordSubscription(metrics.OutcomeConflict)
		g.sendJSONError(w, http.StatusConflict, msgAlreadySubscribed)
		return
	case errors.Is(err, newsletter.ErrInvalidEmail):
		g.metrics.RecordSubscription(metrics.OutcomeInvalid)
		g.sendJSONError(w, http.StatusBadRequest, msgInvalidEmail)
		return
	default:
		g.metrics.RecordSubscription(metrics.OutcomeError)
		g.logger.Error("subscribe failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	g.sendJSON(w, http.StatusCreated, SubscribeResponse{Message: msgSubscribed, Email: sub.Email})
}

// handleListSubscribers handles GET /newsletter/subscribers. Requires HTTPAuthMiddleware.
func (g *Gateway) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	subs, err := g.newsletter.List(r.Context())
	if err != nil {
		g.logger.Error("listing subscribers failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	response := make([]SubscriberResponse, 0, len(subs))
	for _, s := range subs {
		response = append(response, SubscriberResponse{
			ID:           s.ID,
			Email:        s.Email,
			Status:       s.Status,
			SubscribedAt: s.SubscribedAt,
		})
	}
	g.sendJSON(w, http.StatusOK, response)
}

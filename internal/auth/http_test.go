// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, expiry, and anonymous passthrough

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2389/identity-gateway/internal/identity"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantErr   string
	}{
		{header: "", wantErr: "missing authorization header"},
		{header: "Basic dXNlcjpwYXNz", wantErr: "invalid authorization header format"},
		{header: "Bearer", wantErr: "invalid authorization header format"},
		{header: "Bearer   ", wantErr: "empty token"},
		{header: "Bearer abc.def.ghi", wantToken: "abc.def.ghi"},
		{header: "bearer abc.def.ghi", wantToken: "abc.def.ghi"},
	}

	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		if token != tt.wantToken || errMsg != tt.wantErr {
			t.Errorf("extractBearerToken(%q) = (%q, %q), want (%q, %q)", tt.header, token, errMsg, tt.wantToken, tt.wantErr)
		}
	}
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	signer := newTestSigner(t)
	token, err := signer.Sign(identity.Claims{
		AccountID:   "account-123",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		AvatarURL:   "https://example.com/a.png",
	}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	middleware := HTTPAuthMiddleware(signer, nil)

	// Create test handler that checks context
	var gotAuthCtx *AuthContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthCtx = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if gotAuthCtx == nil {
		t.Fatal("expected AuthContext in context")
	}
	if gotAuthCtx.AccountID != "account-123" {
		t.Errorf("expected account ID 'account-123', got '%s'", gotAuthCtx.AccountID)
	}
	if gotAuthCtx.Email != "alice@example.com" {
		t.Errorf("expected email 'alice@example.com', got '%s'", gotAuthCtx.Email)
	}
	if gotAuthCtx.DisplayName != "Alice" {
		t.Errorf("expected name 'Alice', got '%s'", gotAuthCtx.DisplayName)
	}
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	signer := newTestSigner(t)
	expired, err := signer.Sign(identity.Claims{AccountID: "account-123"}, -time.Minute)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{name: "missing header", header: "", wantMsg: "missing authorization header"},
		{name: "wrong scheme", header: "Token abc", wantMsg: "invalid authorization header format"},
		{name: "invalid token", header: "Bearer invalid-token", wantMsg: "invalid token"},
		{name: "expired token", header: "Bearer " + expired, wantMsg: "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := HTTPAuthMiddleware(signer, nil)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			middleware(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %q", ct)
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body["message"] != tt.wantMsg {
				t.Errorf("expected message %q, got %v", tt.wantMsg, body["message"])
			}
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	signer := newTestSigner(t)
	token, err := signer.Sign(identity.Claims{AccountID: "account-7"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tests := []struct {
		name        string
		header      string
		wantAccount string
	}{
		{name: "anonymous", header: ""},
		{name: "bad token", header: "Bearer nope"},
		{name: "valid token", header: "Bearer " + token, wantAccount: "account-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			var gotAccount string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if authCtx := FromContext(r.Context()); authCtx != nil {
					gotAccount = authCtx.AccountID
				}
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			OptionalAuthMiddleware(signer)(handler).ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Fatal("handler should always be called")
			}
			if gotAccount != tt.wantAccount {
				t.Errorf("account = %q, want %q", gotAccount, tt.wantAccount)
			}
		})
	}
}

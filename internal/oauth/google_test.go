// ABOUTME: Tests for the Google OIDC provider against a local token endpoint
// ABOUTME: Signs ID tokens with a throwaway RSA key and verifies PKCE parameters

package oauth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testClientID = "test-client.apps.googleusercontent.com"

// tokenServer plays Google's token endpoint.
type tokenServer struct {
	t        *testing.T
	server   *httptest.Server
	key      *rsa.PrivateKey
	code     string
	verifier string
	claims   map[string]any
	omitID   bool
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ts := &tokenServer{t: t, key: key}
	ts.server = httptest.NewServer(http.HandlerFunc(ts.handleToken))
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *tokenServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("code") != ts.code || r.PostForm.Get("code_verifier") != ts.verifier {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	resp := map[string]any{
		"access_token": "access",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if !ts.omitID {
		resp["id_token"] = ts.sign(ts.claims)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (ts *tokenServer) sign(claims map[string]any) string {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: ts.key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(ts.t, err)
	payload, err := json.Marshal(claims)
	require.NoError(ts.t, err)
	obj, err := signer.Sign(payload)
	require.NoError(ts.t, err)
	raw, err := obj.CompactSerialize()
	require.NoError(ts.t, err)
	return raw
}

func (ts *tokenServer) provider() *GoogleProvider {
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&ts.key.PublicKey}}
	verifier := oidc.NewVerifier(GoogleIssuer, keySet, &oidc.Config{ClientID: testClientID})
	return newGoogleProvider(&oauth2.Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:3000/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:  ts.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{oidc.ScopeOpenID, "profile", "email"},
	}, verifier)
}

func validClaims() map[string]any {
	now := time.Now()
	return map[string]any{
		"iss":            GoogleIssuer,
		"aud":            testClientID,
		"sub":            "1234567890",
		"email":          "alice@gmail.com",
		"email_verified": true,
		"name":           "Alice",
		"picture":        "https://lh3.googleusercontent.com/alice",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	ts := newTokenServer(t)
	p := ts.provider()

	verifier := NewVerifier()
	raw := p.AuthCodeURL("state-abc", verifier)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-abc", q.Get("state"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))
	assert.Empty(t, q.Get("code_verifier"), "verifier must never reach the browser")
}

func TestGoogleProvider_Exchange(t *testing.T) {
	ts := newTokenServer(t)
	ts.code = "auth-code"
	ts.verifier = NewVerifier()
	ts.claims = validClaims()

	assertion, err := ts.provider().Exchange(context.Background(), "auth-code", ts.verifier)
	require.NoError(t, err)
	assert.Equal(t, "1234567890", assertion.ExternalID)
	assert.Equal(t, "alice@gmail.com", assertion.Email)
	assert.Equal(t, "Alice", assertion.DisplayName)
	assert.Equal(t, "https://lh3.googleusercontent.com/alice", assertion.AvatarURL)
}

func TestGoogleProvider_ExchangeWrongVerifier(t *testing.T) {
	ts := newTokenServer(t)
	ts.code = "auth-code"
	ts.verifier = NewVerifier()
	ts.claims = validClaims()

	_, err := ts.provider().Exchange(context.Background(), "auth-code", NewVerifier())
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestGoogleProvider_ExchangeRejectsBadIDToken(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ts *tokenServer)
	}{
		{
			name:   "missing id token",
			mutate: func(ts *tokenServer) { ts.omitID = true },
		},
		{
			name:   "wrong audience",
			mutate: func(ts *tokenServer) { ts.claims["aud"] = "someone-else" },
		},
		{
			name:   "wrong issuer",
			mutate: func(ts *tokenServer) { ts.claims["iss"] = "https://evil.example.com" },
		},
		{
			name:   "expired",
			mutate: func(ts *tokenServer) { ts.claims["exp"] = time.Now().Add(-time.Hour).Unix() },
		},
		{
			name: "signed by another key",
			mutate: func(ts *tokenServer) {
				other, err := rsa.GenerateKey(rand.Reader, 2048)
				require.NoError(t, err)
				ts.key = other
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			ts.code = "auth-code"
			ts.verifier = NewVerifier()
			ts.claims = validClaims()
			p := ts.provider()
			tt.mutate(ts)

			_, err := p.Exchange(context.Background(), "auth-code", ts.verifier)
			assert.ErrorIs(t, err, ErrInvalidIDToken)
		})
	}
}

func TestAssertionFromClaims(t *testing.T) {
	t.Run("verified email is kept", func(t *testing.T) {
		a, err := assertionFromClaims(googleClaims{Subject: "s", Email: "a@b.c", EmailVerified: true, Name: "N"})
		require.NoError(t, err)
		assert.Equal(t, "a@b.c", a.Email)
		assert.Equal(t, "N", a.DisplayName)
	})

	t.Run("unverified email is dropped", func(t *testing.T) {
		a, err := assertionFromClaims(googleClaims{Subject: "s", Email: "a@b.c", EmailVerified: false})
		require.NoError(t, err)
		assert.Empty(t, a.Email)
		assert.Equal(t, "s", a.ExternalID)
	})

	t.Run("subject is required", func(t *testing.T) {
		_, err := assertionFromClaims(googleClaims{Email: "a@b.c", EmailVerified: true})
		assert.ErrorIs(t, err, ErrInvalidIDToken)
	})
}

func TestNewStateIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := NewState()
		assert.False(t, seen[s], "duplicate state")
		assert.GreaterOrEqual(t, len(s), 43)
		seen[s] = true
	}
}

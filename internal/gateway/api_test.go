// ABOUTME: Tests for the credential, profile and newsletter HTTP handlers
// ABOUTME: Verifies request validation, status mapping, and the JSON wire format

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/identity-gateway/internal/assets"
	"github.com/2389/identity-gateway/internal/identity"
	"github.com/2389/identity-gateway/internal/store"
)

type sessionBody struct {
	AccessToken string           `json:"access_token"`
	User        identity.Profile `json:"user"`
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func signup(t *testing.T, gw *Gateway, name, email, password string) sessionBody {
	t.Helper()
	rec := serve(gw, postJSON("/auth/signup", `{"name":"`+name+`","email":"`+email+`","password":"`+password+`"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[sessionBody](t, rec)
}

func TestSignupLoginProfile(t *testing.T) {
	gw := newTestGateway(t)

	created := signup(t, gw, "Alice", "a@x.com", "pw1234")
	assert.NotEmpty(t, created.AccessToken)
	assert.NotEmpty(t, created.User.ID)
	assert.Equal(t, "a@x.com", created.User.Email)
	assert.Equal(t, "Alice", created.User.DisplayName)

	rec := serve(gw, postJSON("/auth/login", `{"email":"a@x.com","password":"pw1234"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	loggedIn := decodeBody[sessionBody](t, rec)
	assert.Equal(t, created.User.ID, loggedIn.User.ID)

	rec = serve(gw, bearer(httptest.NewRequest(http.MethodGet, "/auth/profile", nil), loggedIn.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody[map[string]string](t, rec)
	assert.Equal(t, map[string]string{
		"id":      created.User.ID,
		"email":   "a@x.com",
		"name":    "Alice",
		"picture": "",
	}, profile)
}

func TestSignup_WireFormat(t *testing.T) {
	gw := newTestGateway(t)

	rec := serve(gw, postJSON("/auth/signup", `{"name":"Alice","email":"a@x.com","password":"pw1234"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody[map[string]any](t, rec)
	assert.Contains(t, body, "access_token")
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"id", "email", "name", "picture"}, keys(user))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSignup_DuplicateEmail(t *testing.T) {
	gw := newTestGateway(t)
	signup(t, gw, "Alice", "a@x.com", "pw1234")

	rec := serve(gw, postJSON("/auth/signup", `{"name":"Other","email":" A@X.com ","password":"another1"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User with this email already exists", decodeBody[map[string]string](t, rec)["error"])
}

func TestSignup_Validation(t *testing.T) {
	gw := newTestGateway(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"name":`, msgInvalidRequestBody},
		{"missing name", `{"email":"a@x.com","password":"pw1234"}`, msgNameRequired},
		{"blank name", `{"name":"  ","email":"a@x.com","password":"pw1234"}`, msgNameRequired},
		{"bad email", `{"name":"A","email":"not-an-email","password":"pw1234"}`, msgInvalidEmail},
		{"email without domain dot", `{"name":"A","email":"a@localhost","password":"pw1234"}`, msgInvalidEmail},
		{"display-name email", `{"name":"A","email":"Alice <a@x.com>","password":"pw1234"}`, msgInvalidEmail},
		{"missing password", `{"name":"A","email":"a@x.com"}`, msgPasswordRequired},
		{"short password", `{"name":"A","email":"a@x.com","password":"pw1"}`, msgPasswordTooShort},
		{"long password", `{"name":"A","email":"a@x.com","password":"` + strings.Repeat("p", 73) + `"}`, msgPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(gw, postJSON("/auth/signup", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeBody[map[string]string](t, rec)["error"])
		})
	}

	count, err := gw.store.CountAccounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "invalid signups must not create accounts")
}

func TestSignup_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t)

	rec := serve(gw, httptest.NewRequest(http.MethodGet, "/auth/signup", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	gw := newTestGateway(t)
	signup(t, gw, "Alice", "a@x.com", "pw1234")

	cases := map[string]string{
		"wrong password": `{"email":"a@x.com","password":"wrong1"}`,
		"unknown email":  `{"email":"nobody@x.com","password":"pw1234"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(gw, postJSON("/auth/login", body))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid credentials", decodeBody[map[string]string](t, rec)["error"])
		})
	}
}

func TestLogin_FederatedOnlyAccount(t *testing.T) {
	mock := store.NewMockStore()
	gw := newTestGateway(t, WithStore(mock))
	require.NoError(t, mock.CreateAccount(context.Background(), &store.Account{
		Email: "g@x.com", ExternalID: "google-1", IsActive: true,
	}))

	rec := serve(gw, postJSON("/auth/login", `{"email":"g@x.com","password":"anything"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	gw := newTestGateway(t)

	rec := serve(gw, postJSON("/auth/login", `{"email":"a@x.com"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgCredentialsRequired, decodeBody[map[string]string](t, rec)["error"])
}

func TestProfile_RequiresToken(t *testing.T) {
	gw := newTestGateway(t)

	rec := serve(gw, httptest.NewRequest(http.MethodGet, "/auth/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(gw, bearer(httptest.NewRequest(http.MethodGet, "/auth/profile", nil), "garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfile_AccountGone(t *testing.T) {
	gw := newTestGateway(t)

	// A validly signed token for an account the store has never seen
	token, err := gw.signer.Sign(identity.Claims{AccountID: "ghost", Email: "ghost@x.com"}, time.Hour)
	require.NoError(t, err)

	rec := serve(gw, bearer(httptest.NewRequest(http.MethodGet, "/auth/profile", nil), token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgUserNotFound, decodeBody[map[string]string](t, rec)["error"])
}

func TestProfile_ReflectsStoreNotToken(t *testing.T) {
	mock := store.NewMockStore()
	gw := newTestGateway(t, WithStore(mock))
	created := signup(t, gw, "Alice", "a@x.com", "pw1234")

	renamed := "Alice Cooper"
	_, err := mock.UpdateAccount(context.Background(), created.User.ID, store.AccountUpdate{DisplayName: &renamed})
	require.NoError(t, err)

	rec := serve(gw, bearer(httptest.NewRequest(http.MethodGet, "/auth/profile", nil), created.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice Cooper", decodeBody[identity.Profile](t, rec).DisplayName)
}

func TestLogout(t *testing.T) {
	gw := newTestGateway(t)

	rec := serve(gw, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"message": "Logged out successfully"}, decodeBody[map[string]string](t, rec))

	// A token is accepted but not required
	created := signup(t, gw, "Alice", "a@x.com", "pw1234")
	rec = serve(gw, bearer(httptest.NewRequest(http.MethodGet, "/auth/logout", nil), created.AccessToken))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type recordingMailer struct {
	mu       sync.Mutex
	contacts []string
	sent     []string
}

func (m *recordingMailer) AddContact(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = append(m.contacts, email)
	return nil
}

func (m *recordingMailer) SendEmail(ctx context.Context, to string, email *assets.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

func TestSubscribe(t *testing.T) {
	mailer := &recordingMailer{}
	gw := newTestGateway(t, WithMailer(mailer))

	rec := serve(gw, postJSON("/newsletter/subscribe", `{"email":"  Reader@Example.com "}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, SubscribeResponse{
		Message: "Successfully subscribed to newsletter! Check your email for confirmation.",
		Email:   "reader@example.com",
	}, decodeBody[SubscribeResponse](t, rec))

	assert.Equal(t, []string{"reader@example.com"}, mailer.contacts)
	assert.Equal(t, []string{"reader@example.com"}, mailer.sent)

	rec = serve(gw, postJSON("/newsletter/subscribe", `{"email":"reader@example.com"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "This email is already subscribed to our newsletter", decodeBody[map[string]string](t, rec)["error"])
}

func TestSubscribe_InvalidEmail(t *testing.T) {
	gw := newTestGateway(t)

	for _, body := range []string{`{"email":"nope"}`, `{}`, `not json`} {
		rec := serve(gw, postJSON("/newsletter/subscribe", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Please provide a valid email address", decodeBody[map[string]string](t, rec)["error"])
	}
}

func TestListSubscribers(t *testing.T) {
	gw := newTestGateway(t)

	for _, email := range []string{"first@example.com", "second@example.com"} {
		rec := serve(gw, postJSON("/newsletter/subscribe", `{"email":"`+email+`"}`))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := serve(gw, httptest.NewRequest(http.MethodGet, "/newsletter/subscribers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "subscriber list needs a session")

	session := signup(t, gw, "Admin", "admin@example.com", "pw1234")
	rec = serve(gw, bearer(httptest.NewRequest(http.MethodGet, "/newsletter/subscribers", nil), session.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)

	subs := decodeBody[[]SubscriberResponse](t, rec)
	require.Len(t, subs, 2)
	assert.Equal(t, "first@example.com", subs[0].Email)
	assert.Equal(t, "second@example.com", subs[1].Email)
	assert.Equal(t, store.SubscriberStatusActive, subs[0].Status)
	assert.False(t, subs[0].SubscribedAt.IsZero())
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@x.com", "first.last+tag@sub.example.org", " padded@x.com "}
	invalid := []string{"", "a", "a@", "@x.com", "a@x", "a b@x.com", "Alice <a@x.com>"}

	for _, e := range valid {
		assert.True(t, validEmail(e), e)
	}
	for _, e := range invalid {
		assert.False(t, validEmail(e), e)
	}
}

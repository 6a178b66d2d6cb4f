// ABOUTME: Shared fixtures for identity tests
// ABOUTME: Fake signer, counting hasher, and store wrappers that simulate races

package identity

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/identity-gateway/internal/store"
)

// fakeSigner records the claims it was asked to sign.
type fakeSigner struct {
	mu     sync.Mutex
	claims []Claims
	ttl    time.Duration
	err    error
}

func (f *fakeSigner) Sign(claims Claims, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.claims = append(f.claims, claims)
	f.ttl = ttl
	return "token:" + claims.AccountID, nil
}

func (f *fakeSigner) lastClaims() Claims {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims[len(f.claims)-1]
}

// countingHasher counts Verify calls so tests can see the dummy comparison.
type countingHasher struct {
	*BcryptHasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(plaintext, digest string) bool {
	h.verifies.Add(1)
	return h.BcryptHasher.Verify(plaintext, digest)
}

func testConfig() Config {
	return Config{
		SigningKey: []byte(strings.Repeat("k", MinSigningKeyLength)),
		BcryptCost: bcrypt.MinCost,
		TokenTTL:   time.Hour,
	}
}

type fixture struct {
	store      *store.MockStore
	signer     *fakeSigner
	hasher     *countingHasher
	issuer     *Issuer
	auth       *Authenticator
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, store.NewMockStore(), nil)
}

// newFixtureWithStore wires the core against accounts; when accounts is nil the
// fixture's own MockStore is used.
func newFixtureWithStore(t *testing.T, mock *store.MockStore, accounts AccountStore) *fixture {
	t.Helper()
	if accounts == nil {
		accounts = mock
	}

	cfg := testConfig()
	signer := &fakeSigner{}
	hasher := &countingHasher{BcryptHasher: NewBcryptHasher(cfg.BcryptCost)}
	issuer := NewIssuer(accounts, signer, cfg)

	authn, err := NewAuthenticator(accounts, hasher, issuer)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	return &fixture{
		store:      mock,
		signer:     signer,
		hasher:     hasher,
		issuer:     issuer,
		auth:       authn,
		reconciler: NewReconciler(accounts, issuer),
	}
}

// racingStore lets a competing writer sneak in right before the first create.
type racingStore struct {
	*store.MockStore
	once          sync.Once
	beforeCreate  func(ctx context.Context, s *store.MockStore)
	createAttempt atomic.Int32
}

func (r *racingStore) CreateAccount(ctx context.Context, account *store.Account) error {
	r.createAttempt.Add(1)
	r.once.Do(func() {
		r.beforeCreate(ctx, r.MockStore)
	})
	return r.MockStore.CreateAccount(ctx, account)
}

// linkRacingStore lets a competing writer change the account's link right
// before the first update lands.
type linkRacingStore struct {
	*store.MockStore
	once         sync.Once
	beforeUpdate func(ctx context.Context, s *store.MockStore, id string)
}

func (l *linkRacingStore) UpdateAccount(ctx context.Context, id string, update store.AccountUpdate) (*store.Account, error) {
	l.once.Do(func() {
		l.beforeUpdate(ctx, l.MockStore, id)
	})
	return l.MockStore.UpdateAccount(ctx, id, update)
}

// duplicateStore reports every create as a unique violation while lookups keep
// missing, which is what a store with a phantom conflicting key looks like.
type duplicateStore struct {
	*store.MockStore
	createAttempt atomic.Int32
}

func (d *duplicateStore) CreateAccount(ctx context.Context, account *store.Account) error {
	d.createAttempt.Add(1)
	return store.ErrDuplicateKey
}

// failingStore fails every lookup with err.
type failingStore struct {
	*store.MockStore
	err error
}

func (f *failingStore) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	return nil, f.err
}

func (f *failingStore) GetAccountByExternalID(ctx context.Context, externalID string) (*store.Account, error) {
	return nil, f.err
}

// ABOUTME: Email and password signup/login
// ABOUTME: Store unique violations are the authoritative duplicate-email signal

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/identity-gateway/internal/store"
)

// dummyPassword seeds the digest compared against on login misses
const dummyPassword = "identity-gateway-timing-equalizer"

// Authenticator handles credential signup and login.
type Authenticator struct {
	accounts    AccountStore
	hasher      PasswordHasher
	issuer      *Issuer
	dummyDigest string
}

// NewAuthenticator creates an Authenticator. It hashes a throwaway password
// with the configured hasher so failed logins cost the same as real ones.
func NewAuthenticator(accounts AccountStore, hasher PasswordHasher, issuer *Issuer) (*Authenticator, error) {
	digest, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("preparing dummy digest: %w", err)
	}
	return &Authenticator{
		accounts:    accounts,
		hasher:      hasher,
		issuer:      issuer,
		dummyDigest: digest,
	}, nil
}

// Signup creates a password account and issues a session.
// Returns ErrConflict if the email is already in use.
func (a *Authenticator) Signup(ctx context.Context, email, displayName, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrMissingEmail
	}

	if err := a.ensureEmailAvailable(ctx, email); err != nil {
		return nil, err
	}

	// Hash outside of any store call; bcrypt is the slow part
	digest, err := a.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	account := &store.Account{
		Email:        email,
		PasswordHash: digest,
		DisplayName:  strings.TrimSpace(displayName),
		IsActive:     true,
	}

	err = a.accounts.CreateAccount(ctx, account)
	if errors.Is(err, store.ErrDuplicateKey) {
		// Another signup won the race between our check and insert. Decide again once.
		if err := a.ensureEmailAvailable(ctx, email); err != nil {
			return nil, err
		}
		err = a.accounts.CreateAccount(ctx, account)
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrConflict
		}
	}
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	return a.issuer.Issue(account)
}

func (a *Authenticator) ensureEmailAvailable(ctx context.Context, email string) error {
	_, err := a.accounts.GetAccountByEmail(ctx, email)
	if err == nil {
		return ErrConflict
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up email: %w", err)
	}
	return nil
}

// Login verifies a password and issues a session. Unknown email, an account
// without a password, and a wrong password all return ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := a.accounts.GetAccountByEmail(ctx, NormalizeEmail(email))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up email: %w", err)
	}

	if account == nil || !account.HasPassword() {
		_ = a.hasher.Verify(password, a.dummyDigest)
		return nil, ErrInvalidCredentials
	}

	if !a.hasher.Verify(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return a.issuer.Issue(account)
}

// ABOUTME: Federated identity reconciliation
// ABOUTME: Refreshes a linked account, links by email, or creates a new account

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/identity-gateway/internal/store"
)

// Assertion is a validated federated identity from an external provider.
type Assertion struct {
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Reconciler maps federated assertions onto accounts.
type Reconciler struct {
	accounts AccountStore
	issuer   *Issuer
}

// NewReconciler creates a Reconciler.
func NewReconciler(accounts AccountStore, issuer *Issuer) *Reconciler {
	return &Reconciler{
		accounts: accounts,
		issuer:   issuer,
	}
}

// ReconcileFederated returns the account for the assertion:
//  1. an account already linked to the external id gets its profile refreshed
//  2. otherwise an account with the same email is linked and refreshed
//  3. otherwise a new account is created
//
// Repeating an assertion never creates a second account. A unique violation
// from a concurrent writer triggers one more pass of the decision.
func (r *Reconciler) ReconcileFederated(ctx context.Context, assertion Assertion) (*store.Account, error) {
	assertion.ExternalID = strings.TrimSpace(assertion.ExternalID)
	assertion.Email = NormalizeEmail(assertion.Email)
	assertion.DisplayName = strings.TrimSpace(assertion.DisplayName)
	assertion.AvatarURL = strings.TrimSpace(assertion.AvatarURL)

	if assertion.ExternalID == "" {
		return nil, ErrInvalidAssertion
	}

	account, err := r.reconcile(ctx, assertion)
	if errors.Is(err, store.ErrDuplicateKey) {
		account, err = r.reconcile(ctx, assertion)
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrConflict
		}
	}
	return account, err
}

// SignInFederated reconciles the assertion and issues a session for the result.
func (r *Reconciler) SignInFederated(ctx context.Context, assertion Assertion) (*Session, error) {
	account, err := r.ReconcileFederated(ctx, assertion)
	if err != nil {
		return nil, err
	}
	return r.issuer.Issue(account)
}

func (r *Reconciler) reconcile(ctx context.Context, assertion Assertion) (*store.Account, error) {
	account, err := r.accounts.GetAccountByExternalID(ctx, assertion.ExternalID)
	if err == nil {
		return r.refresh(ctx, account, assertion, false)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up external id: %w", err)
	}

	if assertion.Email != "" {
		account, err = r.accounts.GetAccountByEmail(ctx, assertion.Email)
		if err == nil {
			if account.ExternalID != "" && account.ExternalID != assertion.ExternalID {
				return nil, ErrConflict
			}
			return r.refresh(ctx, account, assertion, true)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("looking up email: %w", err)
		}
	}

	account = &store.Account{
		ExternalID:  assertion.ExternalID,
		Email:       assertion.Email,
		DisplayName: assertion.DisplayName,
		AvatarURL:   assertion.AvatarURL,
		IsActive:    true,
	}
	if err := r.accounts.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return account, nil
}

// refresh applies upstream profile changes and, when link is set, the external id.
// Email and password hash are never touched. Empty upstream values keep the
// stored ones.
func (r *Reconciler) refresh(ctx context.Context, account *store.Account, assertion Assertion, link bool) (*store.Account, error) {
	var update store.AccountUpdate
	if link && account.ExternalID != assertion.ExternalID {
		update.ExternalID = &assertion.ExternalID
	}
	if assertion.DisplayName != "" && assertion.DisplayName != account.DisplayName {
		update.DisplayName = &assertion.DisplayName
	}
	if assertion.AvatarURL != "" && assertion.AvatarURL != account.AvatarURL {
		update.AvatarURL = &assertion.AvatarURL
	}

	if update.IsEmpty() {
		return account, nil
	}

	// Apply only if the link we decided on is still in place; a concurrent
	// link comes back as ErrDuplicateKey and sends us through the decision again.
	expected := account.ExternalID
	update.ExpectExternalID = &expected

	updated, err := r.accounts.UpdateAccount(ctx, account.ID, update)
	if err != nil {
		return nil, fmt.Errorf("updating account: %w", err)
	}
	return updated, nil
}

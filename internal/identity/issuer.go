// ABOUTME: Session issuance shared by the credential and federated login paths
// ABOUTME: Builds signed token claims and the public profile projection

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/identity-gateway/internal/store"
)

// Claims is the session token payload.
type Claims struct {
	AccountID   string
	Email       string
	DisplayName string
	AvatarURL   string
}

// TokenSigner turns claims into a signed, time-bounded token.
type TokenSigner interface {
	Sign(claims Claims, ttl time.Duration) (string, error)
}

// Profile is the public projection of an account.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"picture"`
}

// Session is the result of a successful authentication.
type Session struct {
	Token   string  `json:"access_token"`
	Profile Profile `json:"user"`
}

// AccountStore is the slice of the account store the core depends on.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *store.Account) error
	GetAccount(ctx context.Context, id string) (*store.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*store.Account, error)
	GetAccountByExternalID(ctx context.Context, externalID string) (*store.Account, error)
	UpdateAccount(ctx context.Context, id string, update store.AccountUpdate) (*store.Account, error)
}

// Issuer builds sessions and resolves profiles. It holds no mutable state.
type Issuer struct {
	accounts AccountStore
	signer   TokenSigner
	cfg      Config
}

// NewIssuer creates an Issuer.
func NewIssuer(accounts AccountStore, signer TokenSigner, cfg Config) *Issuer {
	return &Issuer{
		accounts: accounts,
		signer:   signer,
		cfg:      cfg,
	}
}

// Issue signs a token for the account and returns it with the public profile.
func (i *Issuer) Issue(account *store.Account) (*Session, error) {
	profile := i.profileOf(account)

	token, err := i.signer.Sign(Claims{
		AccountID:   profile.ID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
	}, i.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &Session{Token: token, Profile: profile}, nil
}

// GetProfile returns the public profile for an account id.
func (i *Issuer) GetProfile(ctx context.Context, accountID string) (*Profile, error) {
	account, err := i.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	profile := i.profileOf(account)
	return &profile, nil
}

func (i *Issuer) profileOf(account *store.Account) Profile {
	p := Profile{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		AvatarURL:   account.AvatarURL,
	}
	if p.DisplayName == "" {
		p.DisplayName = i.cfg.DefaultDisplayName
	}
	if p.AvatarURL == "" {
		p.AvatarURL = i.cfg.DefaultAvatarURL
	}
	return p
}

// ABOUTME: Store interfaces and data types for identity-gateway persistence
// ABOUTME: Defines Account and Subscriber records plus the sentinel errors every backend returns

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateKey is returned when an insert or update would violate a unique
// constraint (account email, account external id, subscriber email). Callers
// treat it as "another writer claimed this key first".
var ErrDuplicateKey = errors.New("duplicate key")

// ErrStoreClosed is returned by Ping after the store has been closed
var ErrStoreClosed = errors.New("store closed")

// Account is the durable identity record.
// Email and ExternalID are optional but unique when present.
type Account struct {
	ID           string // assigned by the store on creation
	Email        string
	ExternalID   string // linked federated identity, empty if none
	PasswordHash string // bcrypt hash, empty for federated-only accounts
	DisplayName  string
	AvatarURL    string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account can sign in with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// AccountUpdate carries the mutable account fields. Nil fields are left untouched;
// a pointer to an empty string clears ExternalID.
//
// ExpectExternalID is a precondition, not a change: when set, the update applies
// only if the stored external id still equals it (empty meaning none linked).
// A failed precondition returns ErrDuplicateKey.
type AccountUpdate struct {
	ExternalID       *string
	DisplayName      *string
	AvatarURL        *string
	PasswordHash     *string
	IsActive         *bool
	ExpectExternalID *string
}

// externalIDMatches reports whether the ExpectExternalID precondition holds for a.
func (u AccountUpdate) externalIDMatches(a *Account) bool {
	return u.ExpectExternalID == nil || *u.ExpectExternalID == a.ExternalID
}

// IsEmpty reports whether the update changes nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.ExternalID == nil && u.DisplayName == nil && u.AvatarURL == nil &&
		u.PasswordHash == nil && u.IsActive == nil
}

// SubscriberStatusActive is the status given to new newsletter subscribers.
const SubscriberStatusActive = "active"

// Subscriber is a newsletter subscription.
type Subscriber struct {
	ID           string
	Email        string
	Status       string
	SubscribedAt time.Time
}

// AccountStore persists accounts.
type AccountStore interface {
	// CreateAccount inserts a new account, assigning ID and timestamps on success.
	// Returns ErrDuplicateKey if the email or external id is already claimed.
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByExternalID(ctx context.Context, externalID string) (*Account, error)
	// UpdateAccount applies the non-nil fields and returns the updated record.
	// Returns ErrNotFound for unknown ids and ErrDuplicateKey on a unique violation
	// or a failed ExpectExternalID precondition.
	UpdateAccount(ctx context.Context, id string, update AccountUpdate) (*Account, error)
	CountAccounts(ctx context.Context) (int, error)
}

// SubscriberStore persists newsletter subscribers.
type SubscriberStore interface {
	// CreateSubscriber returns ErrDuplicateKey if the email is already subscribed.
	CreateSubscriber(ctx context.Context, sub *Subscriber) error
	GetSubscriberByEmail(ctx context.Context, email string) (*Subscriber, error)
	// ListSubscribers returns all subscribers, oldest subscription first.
	ListSubscribers(ctx context.Context) ([]*Subscriber, error)
}

// Store is the full persistence surface implemented by every backend.
type Store interface {
	AccountStore
	SubscriberStore
	AuditStore

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

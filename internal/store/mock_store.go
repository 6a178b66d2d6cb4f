// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite while enforcing the same unique keys

package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu              sync.RWMutex
	accounts        map[string]*Account    // keyed by account ID
	byEmail         map[string]string      // email -> account ID
	byExternalID    map[string]string      // external ID -> account ID
	subscribers     map[string]*Subscriber // keyed by email
	subscriberOrder []string               // emails in insertion order
	audit           []AuditEntry           // append order
	closed          bool
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		accounts:     make(map[string]*Account),
		byEmail:      make(map[string]string),
		byExternalID: make(map[string]string),
		subscribers:  make(map[string]*Subscriber),
	}
}

// CreateAccount stores a new account.
func (m *MockStore) CreateAccount(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.Email != "" {
		if _, taken := m.byEmail[account.Email]; taken {
			return ErrDuplicateKey
		}
	}
	if account.ExternalID != "" {
		if _, taken := m.byExternalID[account.ExternalID]; taken {
			return ErrDuplicateKey
		}
	}

	id := account.ID
	if id == "" {
		id = uuid.New().String()
	}
	if _, taken := m.accounts[id]; taken {
		return ErrDuplicateKey
	}

	now := time.Now().UTC()
	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now

	// Make a copy to avoid external modification
	a := *account
	m.accounts[id] = &a
	if a.Email != "" {
		m.byEmail[a.Email] = id
	}
	if a.ExternalID != "" {
		m.byExternalID[a.ExternalID] = id
	}
	return nil
}

// GetAccount retrieves an account by ID.
func (m *MockStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyAccount(id)
}

// GetAccountByEmail retrieves an account by email.
func (m *MockStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok || email == "" {
		return nil, ErrNotFound
	}
	return m.copyAccount(id)
}

// GetAccountByExternalID retrieves an account by external ID.
func (m *MockStore) GetAccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byExternalID[externalID]
	if !ok || externalID == "" {
		return nil, ErrNotFound
	}
	return m.copyAccount(id)
}

// copyAccount returns a copy of the stored account. Must be called with mu held.
func (m *MockStore) copyAccount(id string) (*Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *a
	return &result, nil
}

// UpdateAccount applies the non-nil fields of update.
func (m *MockStore) UpdateAccount(ctx context.Context, id string, update AccountUpdate) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !update.externalIDMatches(a) {
		return nil, ErrDuplicateKey
	}
	if update.IsEmpty() {
		return m.copyAccount(id)
	}

	if update.ExternalID != nil && *update.ExternalID != a.ExternalID {
		newID := *update.ExternalID
		if newID != "" {
			if owner, taken := m.byExternalID[newID]; taken && owner != id {
				return nil, ErrDuplicateKey
			}
		}
		if a.ExternalID != "" {
			delete(m.byExternalID, a.ExternalID)
		}
		if newID != "" {
			m.byExternalID[newID] = id
		}
		a.ExternalID = newID
	}
	if update.DisplayName != nil {
		a.DisplayName = *update.DisplayName
	}
	if update.AvatarURL != nil {
		a.AvatarURL = *update.AvatarURL
	}
	if update.PasswordHash != nil {
		a.PasswordHash = *update.PasswordHash
	}
	if update.IsActive != nil {
		a.IsActive = *update.IsActive
	}
	a.UpdatedAt = time.Now().UTC()

	return m.copyAccount(id)
}

// CountAccounts returns the number of stored accounts.
func (m *MockStore) CountAccounts(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts), nil
}

// CreateSubscriber stores a newsletter subscriber.
func (m *MockStore) CreateSubscriber(ctx context.Context, sub *Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.subscribers[sub.Email]; taken {
		return ErrDuplicateKey
	}

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = SubscriberStatusActive
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now().UTC()
	}

	s := *sub
	m.subscribers[s.Email] = &s
	m.subscriberOrder = append(m.subscriberOrder, s.Email)
	return nil
}

// GetSubscriberByEmail retrieves a subscriber by email.
func (m *MockStore) GetSubscriberByEmail(ctx context.Context, email string) (*Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subscribers[email]
	if !ok {
		return nil, ErrNotFound
	}
	result := *s
	return &result, nil
}

// ListSubscribers returns subscribers ordered by subscription time.
func (m *MockStore) ListSubscribers(ctx context.Context) ([]*Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]*Subscriber, 0, len(m.subscriberOrder))
	for _, email := range m.subscriberOrder {
		s := *m.subscribers[email]
		subs = append(subs, &s)
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubscribedAt.Before(subs[j].SubscribedAt)
	})
	return subs, nil
}

// AppendAuditLog records an activity entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if err := validateAuditEntry(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	entry := *e
	entry.Detail = maps.Clone(e.Detail)
	m.audit = append(m.audit, entry)
	return nil
}

// ListAuditLog returns matching entries, newest first. Entries with equal
// timestamps come back in reverse append order, like the SQL backends.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.AccountID != nil && e.AccountID != *f.AccountID {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		e.Detail = maps.Clone(e.Detail)
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if limit := normalizeAuditLimit(f.Limit); len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Ping always succeeds until Close is called.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

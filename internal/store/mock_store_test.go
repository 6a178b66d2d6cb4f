// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on copy semantics and index bookkeeping specific to the in-memory implementation

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_ReturnsCopies(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	account := &Account{Email: "copy@example.com", PasswordHash: "h", DisplayName: "Original", IsActive: true}
	require.NoError(t, store.CreateAccount(ctx, account))

	// Mutating the caller's struct must not leak into the store
	account.DisplayName = "Mutated"

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", got.DisplayName)

	got.DisplayName = "Also mutated"
	again, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", again.DisplayName)
}

func TestMockStore_RelinkMovesExternalIDIndex(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	account := &Account{Email: "relink@example.com", ExternalID: "old", IsActive: true}
	require.NoError(t, store.CreateAccount(ctx, account))

	_, err := store.UpdateAccount(ctx, account.ID, AccountUpdate{ExternalID: strPtr("new")})
	require.NoError(t, err)

	_, err = store.GetAccountByExternalID(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound, "old external id should be released")

	got, err := store.GetAccountByExternalID(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	// The released id can be claimed by another account
	require.NoError(t, store.CreateAccount(ctx, &Account{ExternalID: "old", IsActive: true}))
}

func TestMockStore_PingAfterClose(t *testing.T) {
	store := NewMockStore()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Ping(context.Background()), ErrStoreClosed)
}

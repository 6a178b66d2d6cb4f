// ABOUTME: Tests for activity log details specific to the SQLite backend
// ABOUTME: Covers limit normalization, generated fields and NULL detail columns

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_AppendGeneratesFields(t *testing.T) {
	store := setupTestStore(t)

	entry := &AuditEntry{AccountID: "acct-1", Action: AuditLogin}
	require.NoError(t, store.AppendAuditLog(context.Background(), entry))

	assert.NotEmpty(t, entry.ID)
	assert.WithinDuration(t, time.Now(), entry.Timestamp, 5*time.Second)
}

func TestAuditStore_NilDetailStoredAsNull(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{AccountID: "acct-1", Action: AuditSignup}))

	var detail *string
	require.NoError(t, store.db.QueryRow(`SELECT detail_json FROM audit_log`).Scan(&detail))
	assert.Nil(t, detail)

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Detail)
}

func TestAuditStore_SameTimestampNewestAppendFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{
			AccountID: "acct-1",
			Action:    AuditLogin,
			IP:        fmt.Sprintf("192.0.2.%d", i),
			Timestamp: ts,
		}))
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "192.0.2.2", entries[0].IP)
	assert.Equal(t, "192.0.2.0", entries[2].IP)
}

func TestAuditStore_DefaultLimit(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{AccountID: "acct-1", Action: AuditLogin}))
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 100)
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-5))
	assert.Equal(t, 25, normalizeAuditLimit(25))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}

func TestAuditAction_IsValid(t *testing.T) {
	for _, a := range ValidAuditActions {
		assert.True(t, a.IsValid(), a)
	}
	assert.False(t, AuditAction("delete_everything").IsValid())
}

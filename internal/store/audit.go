// ABOUTME: Account activity log entity and SQLite store methods
// ABOUTME: Records successful sign-ups and sign-ins so users can review recent access

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAuditAction is returned when appending an entry with an unknown action.
var ErrInvalidAuditAction = errors.New("invalid audit action")

// AuditAction represents an auditable account event.
type AuditAction string

const (
	AuditSignup          AuditAction = "signup"
	AuditLogin           AuditAction = "login"
	AuditFederatedSignIn AuditAction = "federated_sign_in"
)

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditSignup,
	AuditLogin,
	AuditFederatedSignIn,
}

// IsValid reports whether a is a known action.
func (a AuditAction) IsValid() bool {
	for _, v := range ValidAuditActions {
		if a == v {
			return true
		}
	}
	return false
}

// AuditEntry represents a single account activity entry.
type AuditEntry struct {
	ID        string         // UUID v4 (ObjectID hex on MongoDB)
	AccountID string         // account the event belongs to
	Action    AuditAction    // what happened
	IP        string         // client address, empty if unknown
	Timestamp time.Time      // when it happened
	Detail    map[string]any // additional context, e.g. the provider name
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	AccountID *string      // filter by account
	Action    *AuditAction // filter by action type
	Since     *time.Time   // entries at or after this time
	Limit     int          // max results (default 100, max 1000)
}

// AuditStore persists the account activity log.
type AuditStore interface {
	// AppendAuditLog records an entry, generating ID and Timestamp if unset.
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	// ListAuditLog returns matching entries, newest first.
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// validateAuditEntry rejects entries the activity log cannot describe.
func validateAuditEntry(e *AuditEntry) error {
	if !e.Action.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAuditAction, e.Action)
	}
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// AppendAuditLog appends a new entry to the audit log.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if err := validateAuditEntry(e); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, account_id, action, ip, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, string(e.Action), e.IP, formatTime(e.Timestamp), detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log", "id", e.ID, "account_id", e.AccountID, "action", e.Action)
	return nil
}

const auditLogQuery = `
	SELECT audit_id, account_id, action, ip, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR account_id = ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?`

// ListAuditLog returns entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	var action, since *string
	if f.Action != nil {
		a := string(*f.Action)
		action = &a
	}
	if f.Since != nil {
		ts := formatTime(*f.Since)
		since = &ts
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		f.AccountID, f.AccountID,
		action, action,
		since, since,
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return entries, nil
}

// scanAuditEntry scans a row into an AuditEntry.
func scanAuditEntry(rows *sql.Rows) (AuditEntry, error) {
	var e AuditEntry
	var actionStr, tsStr string
	var detailJSON sql.NullString

	if err := rows.Scan(&e.ID, &e.AccountID, &actionStr, &e.IP, &tsStr, &detailJSON); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Action = AuditAction(actionStr)
	var err error
	if e.Timestamp, err = parseTime("ts", tsStr); err != nil {
		return e, err
	}
	if detailJSON.Valid {
		if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}

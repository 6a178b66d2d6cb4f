// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides account, subscriber and activity log persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection, so pin it to one
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// NULL email and external_id values don't collide under UNIQUE, which gives
// the unique-when-present semantics accounts need.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			email         TEXT UNIQUE,
			external_id   TEXT UNIQUE,
			password_hash TEXT,
			display_name  TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (password_hash IS NOT NULL OR external_id IS NOT NULL)
		);

		CREATE TABLE IF NOT EXISTS subscribers (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			status        TEXT NOT NULL,
			subscribed_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_subscribers_subscribed_at
			ON subscribers(subscribed_at);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id    TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL,
			action      TEXT NOT NULL,
			ip          TEXT NOT NULL DEFAULT '',
			ts          TEXT NOT NULL,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_account_ts
			ON audit_log(account_id, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('accounts') WHERE name = 'avatar_url'`,
			apply:  `ALTER TABLE accounts ADD COLUMN avatar_url TEXT NOT NULL DEFAULT ''`,
			column: "avatar_url",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('accounts') WHERE name = 'is_active'`,
			apply:  `ALTER TABLE accounts ADD COLUMN is_active INTEGER NOT NULL DEFAULT 1`,
			column: "is_active",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking column %s: %w", m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding column %s: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "unique constraint")
}

// nullString returns nil for empty strings so optional unique columns store NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeLayout keeps a fixed-width fraction so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// CreateAccount inserts a new account. The ID is generated when empty.
// On failure the passed account is left unmodified.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	id := account.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO accounts (id, email, external_id, password_hash, display_name, avatar_url, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		id,
		nullString(account.Email),
		nullString(account.ExternalID),
		nullString(account.PasswordHash),
		account.DisplayName,
		account.AvatarURL,
		account.IsActive,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now

	s.logger.Debug("created account", "id", id)
	return nil
}

const accountColumns = `id, email, external_id, password_hash, display_name, avatar_url, is_active, created_at, updated_at`

// GetAccount retrieves an account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetAccountByEmail retrieves an account by exact email match.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

// GetAccountByExternalID retrieves the account linked to a federated identity.
func (s *SQLiteStore) GetAccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE external_id = ?`, externalID)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*Account, error) {
	var account Account
	var email, externalID, passwordHash sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&account.ID,
		&email,
		&externalID,
		&passwordHash,
		&account.DisplayName,
		&account.AvatarURL,
		&account.IsActive,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	account.Email = email.String
	account.ExternalID = externalID.String
	account.PasswordHash = passwordHash.String

	if account.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if account.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return nil, err
	}

	return &account, nil
}

// UpdateAccount applies the non-nil fields of update to the account.
func (s *SQLiteStore) UpdateAccount(ctx context.Context, id string, update AccountUpdate) (*Account, error) {
	if update.IsEmpty() {
		account, err := s.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		if !update.externalIDMatches(account) {
			return nil, ErrDuplicateKey
		}
		return account, nil
	}

	var sets []string
	var args []any
	if update.ExternalID != nil {
		sets = append(sets, "external_id = ?")
		args = append(args, nullString(*update.ExternalID))
	}
	if update.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *update.DisplayName)
	}
	if update.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *update.AvatarURL)
	}
	if update.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, nullString(*update.PasswordHash))
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *update.IsActive)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id)

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if update.ExpectExternalID != nil {
		// IS matches NULL against NULL, so an empty expectation means "not linked"
		query += ` AND external_id IS ?`
		args = append(args, nullString(*update.ExpectExternalID))
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("updating account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		if update.ExpectExternalID == nil {
			return nil, ErrNotFound
		}
		// Either the id is unknown or another writer changed the link first
		if _, err := s.GetAccount(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrDuplicateKey
	}

	return s.GetAccount(ctx, id)
}

// CountAccounts returns the number of stored accounts.
func (s *SQLiteStore) CountAccounts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

// CreateSubscriber inserts a newsletter subscriber.
func (s *SQLiteStore) CreateSubscriber(ctx context.Context, sub *Subscriber) error {
	id := sub.ID
	if id == "" {
		id = uuid.New().String()
	}
	subscribedAt := sub.SubscribedAt
	if subscribedAt.IsZero() {
		subscribedAt = time.Now().UTC()
	}
	status := sub.Status
	if status == "" {
		status = SubscriberStatusActive
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, status, subscribed_at) VALUES (?, ?, ?, ?)`,
		id, sub.Email, status, formatTime(subscribedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting subscriber: %w", err)
	}

	sub.ID = id
	sub.Status = status
	sub.SubscribedAt = subscribedAt.UTC()
	return nil
}

// GetSubscriberByEmail retrieves a subscriber by email.
func (s *SQLiteStore) GetSubscriberByEmail(ctx context.Context, email string) (*Subscriber, error) {
	var sub Subscriber
	var subscribedAtStr string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, status, subscribed_at FROM subscribers WHERE email = ?`, email,
	).Scan(&sub.ID, &sub.Email, &sub.Status, &subscribedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying subscriber: %w", err)
	}

	if sub.SubscribedAt, err = parseTime("subscribed_at", subscribedAtStr); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubscribers returns all subscribers ordered by subscription time.
func (s *SQLiteStore) ListSubscribers(ctx context.Context) ([]*Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, status, subscribed_at FROM subscribers ORDER BY subscribed_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		var sub Subscriber
		var subscribedAtStr string
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.Status, &subscribedAtStr); err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		if sub.SubscribedAt, err = parseTime("subscribed_at", subscribedAtStr); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscribers: %w", err)
	}
	return subs, nil
}

// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides account/ownership/overlay persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			address       TEXT NOT NULL UNIQUE,
			display_name  TEXT NOT NULL,
			secret_hash   TEXT NOT NULL,
			token         TEXT NOT NULL UNIQUE,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_address ON accounts(address);
		CREATE INDEX IF NOT EXISTS idx_accounts_token ON accounts(token);

		CREATE TABLE IF NOT EXISTS ownership (
			message_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (message_id, account_id),
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		);

		CREATE INDEX IF NOT EXISTS idx_ownership_account ON ownership(account_id);
		CREATE INDEX IF NOT EXISTS idx_ownership_message ON ownership(message_id);

		CREATE TABLE IF NOT EXISTS status_overlay (
			message_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			is_read    INTEGER NOT NULL DEFAULT 0,
			read_at    TEXT,
			is_starred INTEGER NOT NULL DEFAULT 0,

			PRIMARY KEY (message_id, account_id),
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		);

		CREATE TABLE IF NOT EXISTS resolver_state (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			cursor     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS resolver_lease (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			holder     TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}

// Ensure SQLiteStore implements the full Store interface.
var _ Store = (*SQLiteStore)(nil)

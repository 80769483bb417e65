// ABOUTME: Account persistence and token resolution for the SQLite store
// ABOUTME: Token lookups are single indexed queries since they gate every request

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateAccount inserts a new account.
// Returns ErrAddressExists if the address is already registered.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (id, address, display_name, secret_hash, token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		account.Address,
		account.DisplayName,
		account.SecretHash,
		account.Token,
		account.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAddressExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	s.logger.Info("created account", "id", account.ID, "address", account.Address)
	return nil
}

// GetAccount retrieves an account by ID.
// Returns ErrNotFound if the account doesn't exist.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.getAccountWhere(ctx, "id = ?", id)
}

// GetAccountByAddress retrieves an account by its normalized address.
func (s *SQLiteStore) GetAccountByAddress(ctx context.Context, address string) (*Account, error) {
	return s.getAccountWhere(ctx, "address = ?", address)
}

// GetAccountByToken resolves a bearer token to its account.
// This runs on every request and uses the idx_accounts_token index.
func (s *SQLiteStore) GetAccountByToken(ctx context.Context, token string) (*Account, error) {
	return s.getAccountWhere(ctx, "token = ?", token)
}

func (s *SQLiteStore) getAccountWhere(ctx context.Context, where string, arg any) (*Account, error) {
	query := `
		SELECT id, address, display_name, secret_hash, token, created_at
		FROM accounts
		WHERE ` + where

	var account Account
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID,
		&account.Address,
		&account.DisplayName,
		&account.SecretHash,
		&account.Token,
		&createdAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	account.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &account, nil
}

// RotateToken atomically swaps oldToken for newToken. The conditional
// update guarantees the old value stops resolving the moment this returns;
// a concurrent rotation with a stale token loses and gets ErrNotFound.
func (s *SQLiteStore) RotateToken(ctx context.Context, oldToken, newToken string) error {
	query := `UPDATE accounts SET token = ? WHERE token = ?`

	result, err := s.db.ExecContext(ctx, query, newToken, oldToken)
	if err != nil {
		return fmt.Errorf("rotating token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("rotated account token")
	return nil
}

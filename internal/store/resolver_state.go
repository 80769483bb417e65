// ABOUTME: Resolver scan cursor and single-holder lease persisted in singleton rows
// ABOUTME: The lease uses conditional updates so exactly one process scans at a time

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCursor returns the persisted resolver cursor, or "" when no scan
// has completed yet.
func (s *SQLiteStore) GetCursor(ctx context.Context) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM resolver_state WHERE id = 1`).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying cursor: %w", err)
	}

	return cursor, nil
}

// SetCursor persists the resolver cursor.
func (s *SQLiteStore) SetCursor(ctx context.Context, cursor string) error {
	query := `
		INSERT INTO resolver_state (id, cursor, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, cursor, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("setting cursor: %w", err)
	}

	return nil
}

// AcquireLease attempts to claim or renew the resolver lease for holder.
// Returns true on success. A live lease held by someone else wins.
func (s *SQLiteStore) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl).Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, `
		UPDATE resolver_lease
		SET holder = ?, expires_at = ?
		WHERE id = 1 AND (holder = ? OR expires_at <= ?)
	`, holder, expiresAt, holder, now.Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("updating lease: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	// No row yet, or a live lease held elsewhere. INSERT OR IGNORE
	// settles the race: only one claimant creates the row.
	result, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO resolver_lease (id, holder, expires_at)
		VALUES (1, ?, ?)
	`, holder, expiresAt)
	if err != nil {
		return false, fmt.Errorf("inserting lease: %w", err)
	}

	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ReleaseLease drops the lease if holder still owns it. Releasing a lease
// you lost is a no-op, not an error.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, holder string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resolver_lease WHERE id = 1 AND holder = ?`, holder); err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}

	return nil
}

// ABOUTME: Ownership edge persistence linking shared-store message IDs to accounts
// ABOUTME: Writes are idempotent via INSERT OR IGNORE so the resolver can replay safely

package store

import (
	"context"
	"fmt"
	"time"
)

// AddOwnership records that accountID participates in messageID. Returns
// true when a new edge was written, false when it already existed.
func (s *SQLiteStore) AddOwnership(ctx context.Context, messageID, accountID string) (bool, error) {
	query := `
		INSERT OR IGNORE INTO ownership (message_id, account_id, created_at)
		VALUES (?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, messageID, accountID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("inserting ownership: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// HasOwnership reports whether accountID holds an ownership edge for messageID.
func (s *SQLiteStore) HasOwnership(ctx context.Context, messageID, accountID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM ownership WHERE message_id = ? AND account_id = ?)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, messageID, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking ownership: %w", err)
	}

	return exists, nil
}

// ListOwnedMessageIDs returns every message ID the account owns,
// newest edge first.
func (s *SQLiteStore) ListOwnedMessageIDs(ctx context.Context, accountID string) ([]string, error) {
	query := `
		SELECT message_id FROM ownership
		WHERE account_id = ?
		ORDER BY created_at DESC, message_id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing owned messages: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning message id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// RemoveOwnership deletes the ownership edge and the account's overlay row
// for the message in one transaction. Returns true when an edge was removed.
func (s *SQLiteStore) RemoveOwnership(ctx context.Context, messageID, accountID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM ownership WHERE message_id = ? AND account_id = ?`,
		messageID, accountID)
	if err != nil {
		return false, fmt.Errorf("deleting ownership: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM status_overlay WHERE message_id = ? AND account_id = ?`,
		messageID, accountID); err != nil {
		return false, fmt.Errorf("deleting overlay: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountOwners returns how many accounts currently own the message.
func (s *SQLiteStore) CountOwners(ctx context.Context, messageID string) (int, error) {
	query := `SELECT COUNT(*) FROM ownership WHERE message_id = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, messageID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting owners: %w", err)
	}

	return count, nil
}

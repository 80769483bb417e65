// ABOUTME: Per-account read/starred overlay rows keyed by (message_id, account_id)
// ABOUTME: Absent rows read as zero-value overlays so unmarked messages need no storage

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetOverlay returns the account's overlay for a message. A missing row is
// not an error; it yields a zero-value overlay (unread, unstarred).
func (s *SQLiteStore) GetOverlay(ctx context.Context, messageID, accountID string) (*Overlay, error) {
	query := `
		SELECT message_id, account_id, is_read, read_at, is_starred
		FROM status_overlay
		WHERE message_id = ? AND account_id = ?
	`

	overlay, err := scanOverlay(s.db.QueryRowContext(ctx, query, messageID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return &Overlay{MessageID: messageID, AccountID: accountID}, nil
	}
	if err != nil {
		return nil, err
	}

	return overlay, nil
}

// GetOverlays fetches overlay rows for a batch of message IDs in one query.
// The result map only contains entries for rows that exist.
func (s *SQLiteStore) GetOverlays(ctx context.Context, messageIDs []string, accountID string) (map[string]*Overlay, error) {
	result := make(map[string]*Overlay)
	if len(messageIDs) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(messageIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT message_id, account_id, is_read, read_at, is_starred
		FROM status_overlay
		WHERE account_id = ? AND message_id IN (%s)
	`, placeholders)

	args := make([]any, 0, len(messageIDs)+1)
	args = append(args, accountID)
	for _, id := range messageIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying overlays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		overlay, err := scanOverlay(rows)
		if err != nil {
			return nil, err
		}
		result[overlay.MessageID] = overlay
	}

	return result, rows.Err()
}

// SetRead upserts the read flag. Marking read stamps read_at once; marking
// unread clears it.
func (s *SQLiteStore) SetRead(ctx context.Context, messageID, accountID string, read bool) error {
	var readAt any
	if read {
		readAt = time.Now().UTC().Format(time.RFC3339)
	}

	query := `
		INSERT INTO status_overlay (message_id, account_id, is_read, read_at, is_starred)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(message_id, account_id) DO UPDATE SET
			is_read = excluded.is_read,
			read_at = CASE
				WHEN excluded.is_read = 0 THEN NULL
				WHEN status_overlay.read_at IS NULL THEN excluded.read_at
				ELSE status_overlay.read_at
			END
	`

	if _, err := s.db.ExecContext(ctx, query, messageID, accountID, read, readAt); err != nil {
		return fmt.Errorf("setting read flag: %w", err)
	}

	return nil
}

// SetStarred upserts the starred flag, preserving the read state.
func (s *SQLiteStore) SetStarred(ctx context.Context, messageID, accountID string, starred bool) error {
	query := `
		INSERT INTO status_overlay (message_id, account_id, is_read, read_at, is_starred)
		VALUES (?, ?, 0, NULL, ?)
		ON CONFLICT(message_id, account_id) DO UPDATE SET
			is_starred = excluded.is_starred
	`

	if _, err := s.db.ExecContext(ctx, query, messageID, accountID, starred); err != nil {
		return fmt.Errorf("setting starred flag: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOverlay(row rowScanner) (*Overlay, error) {
	var overlay Overlay
	var readAtStr sql.NullString

	err := row.Scan(
		&overlay.MessageID,
		&overlay.AccountID,
		&overlay.IsRead,
		&readAtStr,
		&overlay.IsStarred,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning overlay: %w", err)
	}

	if readAtStr.Valid {
		readAt, err := time.Parse(time.RFC3339, readAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing read_at: %w", err)
		}
		overlay.ReadAt = &readAt
	}

	return &overlay, nil
}

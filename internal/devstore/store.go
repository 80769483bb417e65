// ABOUTME: SQLite-backed message store for the local shared-store stand-in
// ABOUTME: Tenant-agnostic by construction, every caller sees every message

package devstore

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

	_ "modernc.org/sqlite"

	"github.com/2389/mailgate/internal/mailstore"
)

// ErrNotFound is returned when a message ID does not exist.
var ErrNotFound = errors.New("message not found")

const snippetLength = 160

// MessageStore holds raw messages and their recipients. It mirrors the
// shared store the gateway proxies in production: no accounts, no
// visibility rules, just messages.
type MessageStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMessageStore opens or creates the store at the given path.
func NewMessageStore(path string) (*MessageStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &MessageStore{
		db:     db,
		logger: slog.Default().With("component", "devstore"),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

func (s *MessageStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		from_name TEXT NOT NULL DEFAULT '',
		from_address TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		text_body TEXT NOT NULL DEFAULT '',
		html_body TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recipients (
		message_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('to', 'cc', 'bcc')),
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS attachments (
		message_id TEXT NOT NULL,
		part_id TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at, id);
	CREATE INDEX IF NOT EXISTS idx_recipients_message ON recipients(message_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// Close closes the underlying database.
func (s *MessageStore) Close() error {
	return s.db.Close()
}

// Insert stores a message and its recipients in one transaction.
func (s *MessageStore) Insert(ctx context.Context, msg *mailstore.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, from_name, from_address, subject, text_body, html_body, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.From.Name,
		msg.From.Address,
		msg.Subject,
		msg.Text,
		msg.HTML,
		msg.Size,
		msg.Created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	insertRecipients := func(kind string, addrs []mailstore.Address) error {
		for _, a := range addrs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO recipients (message_id, name, address, kind) VALUES (?, ?, ?, ?)
			`, msg.ID, a.Name, a.Address, kind); err != nil {
				return fmt.Errorf("inserting %s recipient: %w", kind, err)
			}
		}
		return nil
	}

	if err := insertRecipients("to", msg.To); err != nil {
		return err
	}
	if err := insertRecipients("cc", msg.Cc); err != nil {
		return err
	}
	if err := insertRecipients("bcc", msg.Bcc); err != nil {
		return err
	}

	for _, att := range msg.Attachments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (message_id, part_id, filename, content_type, size) VALUES (?, ?, ?, ?, ?)
		`, msg.ID, att.PartID, att.FileName, att.ContentType, att.Size); err != nil {
			return fmt.Errorf("inserting attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("stored message", "id", msg.ID, "from", msg.From.Address)
	return nil
}

// ListSince returns summaries created at or after cursor, oldest first.
// The comparison is inclusive.
func (s *MessageStore) ListSince(ctx context.Context, cursor string, limit int) ([]mailstore.Summary, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT id, from_name, from_address, subject, text_body, size, created_at
		FROM messages
		WHERE created_at >= ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	return s.collectSummaries(ctx, rows)
}

// Get returns the full message by ID.
func (s *MessageStore) Get(ctx context.Context, id string) (*mailstore.Message, error) {
	query := `
		SELECT id, from_name, from_address, subject, text_body, html_body, size, created_at
		FROM messages
		WHERE id = ?
	`

	var msg mailstore.Message
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.From.Name,
		&msg.From.Address,
		&msg.Subject,
		&msg.Text,
		&msg.HTML,
		&msg.Size,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	msg.Created, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	msg.Snippet = makeSnippet(msg.Text)

	if err := s.attachRecipients(ctx, map[string]*mailstore.Summary{msg.ID: &msg.Summary}); err != nil {
		return nil, err
	}
	if msg.Attachments, err = s.loadAttachments(ctx, msg.ID); err != nil {
		return nil, err
	}

	return &msg, nil
}

func (s *MessageStore) loadAttachments(ctx context.Context, messageID string) ([]mailstore.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT part_id, filename, content_type, size
		FROM attachments
		WHERE message_id = ?
		ORDER BY part_id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	atts := []mailstore.Attachment{}
	for rows.Next() {
		var a mailstore.Attachment
		if err := rows.Scan(&a.PartID, &a.FileName, &a.ContentType, &a.Size); err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		atts = append(atts, a)
	}

	return atts, rows.Err()
}

// Delete removes the given messages. Unknown IDs are ignored.
func (s *MessageStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM messages WHERE id IN (%s)`, placeholders), args...); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}

	return nil
}

// DeleteAll clears the store. The HTTP API maps a bodyless DELETE here,
// matching the upstream store this stand-in imitates.
func (s *MessageStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("deleting all messages: %w", err)
	}

	s.logger.Warn("deleted all messages")
	return nil
}

// Search returns summaries whose subject, body, sender, or recipients
// contain the query, newest first. start skips that many matches, so
// callers can walk the full result set page by page.
func (s *MessageStore) Search(ctx context.Context, query string, start, limit int) ([]mailstore.Summary, error) {
	if limit <= 0 {
		limit = 200
	}
	if start < 0 {
		start = 0
	}

	pattern := "%" + query + "%"
	sqlQuery := `
		SELECT DISTINCT m.id, m.from_name, m.from_address, m.subject, m.text_body, m.size, m.created_at
		FROM messages m
		LEFT JOIN recipients r ON r.message_id = m.id
		WHERE m.subject LIKE ? OR m.text_body LIKE ? OR m.from_address LIKE ? OR r.address LIKE ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, sqlQuery, pattern, pattern, pattern, pattern, limit, start)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()

	return s.collectSummaries(ctx, rows)
}

func (s *MessageStore) collectSummaries(ctx context.Context, rows *sql.Rows) ([]mailstore.Summary, error) {
	summaries := []mailstore.Summary{}
	byID := make(map[string]*mailstore.Summary)

	for rows.Next() {
		var sm mailstore.Summary
		var textBody, createdAtStr string

		if err := rows.Scan(&sm.ID, &sm.From.Name, &sm.From.Address, &sm.Subject, &textBody, &sm.Size, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		created, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		sm.Created = created
		sm.Snippet = makeSnippet(textBody)

		summaries = append(summaries, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		byID[summaries[i].ID] = &summaries[i]
	}
	if err := s.attachRecipients(ctx, byID); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (s *MessageStore) attachRecipients(ctx context.Context, byID map[string]*mailstore.Summary) error {
	if len(byID) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(byID))
	args := make([]any, 0, len(byID))
	for id := range byID {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT message_id, name, address, kind
		FROM recipients
		WHERE message_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, kind string
		var addr mailstore.Address
		if err := rows.Scan(&messageID, &addr.Name, &addr.Address, &kind); err != nil {
			return fmt.Errorf("scanning recipient: %w", err)
		}

		sm, ok := byID[messageID]
		if !ok {
			continue
		}
		switch kind {
		case "to":
			sm.To = append(sm.To, addr)
		case "cc":
			sm.Cc = append(sm.Cc, addr)
		case "bcc":
			sm.Bcc = append(sm.Bcc, addr)
		}
	}

	return rows.Err()
}

func makeSnippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > snippetLength {
		return text[:snippetLength]
	}
	return text
}

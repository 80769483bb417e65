// ABOUTME: Access-scoped proxy between authenticated accounts and the shared message store
// ABOUTME: Restricts every operation to owned messages and merges the caller's overlay

package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/mailgate/internal/auth"
	"github.com/2389/mailgate/internal/mailstore"
	"github.com/2389/mailgate/internal/store"
)

// MessageSummary is a shared-store summary merged with the caller's overlay.
type MessageSummary struct {
	mailstore.Summary
	Read    bool       `json:"Read"`
	ReadAt  *time.Time `json:"ReadAt,omitempty"`
	Starred bool       `json:"Starred"`
}

// Message is a full shared-store message merged with the caller's overlay.
type Message struct {
	mailstore.Message
	Read    bool       `json:"Read"`
	ReadAt  *time.Time `json:"ReadAt,omitempty"`
	Starred bool       `json:"Starred"`
}

// ListParams bound a listing or search.
type ListParams struct {
	Limit  int
	Offset int
}

// SendRequest is an outbound message as the caller describes it. From is
// optional; when present it must match the caller's own address.
type SendRequest struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
}

// ListResult carries one page of summaries plus the caller's total.
type ListResult struct {
	Messages []MessageSummary
	Total    int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// searchPageSize bounds one round trip to the shared store's search.
	searchPageSize = 200
)

// Service is the access-scoped proxy. Callers arrive already resolved to
// an account; the service never sees a raw token.
type Service struct {
	store  store.Store
	mail   *mailstore.Client
	logger *slog.Logger
}

// New creates the proxy service.
func New(st store.Store, mail *mailstore.Client) *Service {
	return &Service{
		store:  st,
		mail:   mail,
		logger: slog.Default().With("component", "proxy"),
	}
}

// List returns a page of the caller's messages, newest first, each
// merged with the caller's overlay.
func (s *Service) List(ctx context.Context, account *store.Account, params ListParams) (*ListResult, error) {
	params = params.clamp()

	ownedIDs, err := s.store.ListOwnedMessageIDs(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("listing owned messages: %w", err)
	}

	total := len(ownedIDs)
	if params.Offset >= total {
		return &ListResult{Messages: []MessageSummary{}, Total: total}, nil
	}

	end := params.Offset + params.Limit
	if end > total {
		end = total
	}
	page := ownedIDs[params.Offset:end]

	summaries := make([]MessageSummary, 0, len(page))
	for _, id := range page {
		msg, err := s.mail.Get(ctx, id)
		if errors.Is(err, mailstore.ErrMessageNotFound) {
			// The shared record is gone but our edge survived; drop the
			// edge so the phantom stops occupying the listing.
			if _, rmErr := s.store.RemoveOwnership(ctx, id, account.ID); rmErr != nil {
				s.logger.Warn("pruning stale ownership", "message", id, "error", rmErr)
			}
			total--
			continue
		}
		if err != nil {
			return nil, s.storeErr("fetching message", err)
		}
		summaries = append(summaries, MessageSummary{Summary: msg.Summary})
	}

	if err := s.mergeOverlays(ctx, account.ID, summaries); err != nil {
		return nil, err
	}

	return &ListResult{Messages: summaries, Total: total}, nil
}

// Get returns one owned message with the caller's overlay. Unowned and
// nonexistent are the same ErrNotFound.
func (s *Service) Get(ctx context.Context, account *store.Account, id string) (*Message, error) {
	if err := s.requireOwnership(ctx, account, id); err != nil {
		return nil, err
	}

	raw, err := s.mail.Get(ctx, id)
	if errors.Is(err, mailstore.ErrMessageNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("fetching message", err)
	}

	overlay, err := s.store.GetOverlay(ctx, id, account.ID)
	if err != nil {
		return nil, fmt.Errorf("loading overlay: %w", err)
	}

	return &Message{
		Message: *raw,
		Read:    overlay.IsRead,
		ReadAt:  overlay.ReadAt,
		Starred: overlay.IsStarred,
	}, nil
}

// Delete removes the caller's visibility of each owned ID and returns
// the count removed. Unowned IDs no-op silently. An empty ID list means
// everything the caller owns. The shared record itself is deleted only
// when the caller was its last owner.
func (s *Service) Delete(ctx context.Context, account *store.Account, ids []string) (int, error) {
	if len(ids) == 0 {
		owned, err := s.store.ListOwnedMessageIDs(ctx, account.ID)
		if err != nil {
			return 0, fmt.Errorf("listing owned messages: %w", err)
		}
		ids = owned
	}

	deleted := 0
	var orphaned []string

	for _, id := range ids {
		removed, err := s.store.RemoveOwnership(ctx, id, account.ID)
		if err != nil {
			return deleted, fmt.Errorf("removing ownership: %w", err)
		}
		if !removed {
			continue
		}
		deleted++

		remaining, err := s.store.CountOwners(ctx, id)
		if err != nil {
			return deleted, fmt.Errorf("counting owners: %w", err)
		}
		if remaining == 0 {
			orphaned = append(orphaned, id)
		}
	}

	if len(orphaned) > 0 {
		if err := s.mail.Delete(ctx, orphaned); err != nil {
			// Visibility is already gone for the caller; an orphaned
			// record lingering in the shared store is harmless.
			s.logger.Warn("deleting orphaned shared records", "count", len(orphaned), "error", err)
		}
	}

	s.logger.Info("deleted messages", "account", account.Address, "deleted", deleted, "orphaned", len(orphaned))
	return deleted, nil
}

// Send submits an outbound message as the caller. A From that differs
// from the caller's own address is refused; sender ownership is recorded
// only after the store confirms acceptance.
func (s *Service) Send(ctx context.Context, account *store.Account, req SendRequest) (string, error) {
	if len(req.To) == 0 {
		return "", fmt.Errorf("%w: at least one recipient required", ErrInvalidArgument)
	}

	if req.From != "" {
		normalized, err := auth.NormalizeAddress(req.From)
		if err != nil {
			return "", fmt.Errorf("%w: from: %v", ErrInvalidArgument, err)
		}
		if normalized != account.Address {
			return "", fmt.Errorf("%w: cannot send as %s", ErrPermissionDenied, normalized)
		}
	}

	envelope := &mailstore.Envelope{
		From:    mailstore.Address{Name: account.DisplayName, Address: account.Address},
		Subject: req.Subject,
		Text:    req.Body,
	}
	for _, field := range []struct {
		raw  []string
		dest *[]mailstore.Address
		name string
	}{
		{req.To, &envelope.To, "to"},
		{req.Cc, &envelope.Cc, "cc"},
		{req.Bcc, &envelope.Bcc, "bcc"},
	} {
		for _, raw := range field.raw {
			addr, err := auth.NormalizeAddress(raw)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrInvalidArgument, field.name, err)
			}
			*field.dest = append(*field.dest, mailstore.Address{Address: addr})
		}
	}

	id, err := s.mail.Submit(ctx, envelope)
	if err != nil {
		return "", s.storeErr("submitting message", err)
	}

	if _, err := s.store.AddOwnership(ctx, id, account.ID); err != nil {
		// The message is sent either way; the resolver back-fills the
		// edge on its next pass over the store.
		s.logger.Warn("recording sender ownership", "message", id, "error", err)
	}

	s.logger.Info("sent message", "account", account.Address, "message", id, "recipients", len(envelope.To))
	return id, nil
}

// Reply sends a reply to an owned message: addressed to its sender,
// subject prefixed with Re:, original body quoted below the reply.
func (s *Service) Reply(ctx context.Context, account *store.Account, id, body string) (string, error) {
	original, err := s.Get(ctx, account, id)
	if err != nil {
		return "", err
	}
	if original.From.Address == "" {
		return "", fmt.Errorf("%w: original message has no sender", ErrInvalidArgument)
	}

	subject := original.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	envelope := &mailstore.Envelope{
		From:      mailstore.Address{Name: account.DisplayName, Address: account.Address},
		To:        []mailstore.Address{original.From},
		Subject:   subject,
		Text:      body + "\n\n" + quote(original.Text),
		InReplyTo: original.ID,
	}

	replyID, err := s.mail.Submit(ctx, envelope)
	if err != nil {
		return "", s.storeErr("submitting reply", err)
	}

	if _, err := s.store.AddOwnership(ctx, replyID, account.ID); err != nil {
		s.logger.Warn("recording sender ownership", "message", replyID, "error", err)
	}

	s.logger.Info("sent reply", "account", account.Address, "original", id, "message", replyID)
	return replyID, nil
}

// Forward sends an owned message onward to new recipients: subject
// prefixed with Fwd:, the caller's note above a forwarded-message block
// carrying the original sender, body, and attachment metadata.
func (s *Service) Forward(ctx context.Context, account *store.Account, id string, to []string, body string) (string, error) {
	if len(to) == 0 {
		return "", fmt.Errorf("%w: at least one recipient required", ErrInvalidArgument)
	}

	original, err := s.Get(ctx, account, id)
	if err != nil {
		return "", err
	}

	subject := original.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "fwd:") {
		subject = "Fwd: " + subject
	}

	envelope := &mailstore.Envelope{
		From:       mailstore.Address{Name: account.DisplayName, Address: account.Address},
		Subject:    subject,
		Text:       body + "\n\n" + forwardedBlock(&original.Message),
		References: []string{original.ID},
	}
	for _, raw := range to {
		addr, err := auth.NormalizeAddress(raw)
		if err != nil {
			return "", fmt.Errorf("%w: to: %v", ErrInvalidArgument, err)
		}
		envelope.To = append(envelope.To, mailstore.Address{Address: addr})
	}

	fwdID, err := s.mail.Submit(ctx, envelope)
	if err != nil {
		return "", s.storeErr("submitting forward", err)
	}

	if _, err := s.store.AddOwnership(ctx, fwdID, account.ID); err != nil {
		s.logger.Warn("recording sender ownership", "message", fwdID, "error", err)
	}

	s.logger.Info("forwarded message", "account", account.Address, "original", id, "message", fwdID)
	return fwdID, nil
}

// Search runs the shared store's text search and filters the results to
// the caller's owned messages, overlay-merged.
func (s *Service) Search(ctx context.Context, account *store.Account, query string, params ListParams) (*ListResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidArgument)
	}
	params = params.clamp()

	ownedIDs, err := s.store.ListOwnedMessageIDs(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("listing owned messages: %w", err)
	}
	owned := make(map[string]bool, len(ownedIDs))
	for _, id := range ownedIDs {
		owned[id] = true
	}

	// The store search is unscoped, so walk every result page before
	// filtering. Stopping early would let other tenants' newer matches
	// push the caller's older ones out of view.
	var matched []MessageSummary
	for start := 0; ; start += searchPageSize {
		raw, err := s.mail.Search(ctx, query, start, searchPageSize)
		if err != nil {
			return nil, s.storeErr("searching messages", err)
		}
		for _, sm := range raw {
			if owned[sm.ID] {
				matched = append(matched, MessageSummary{Summary: sm})
			}
		}
		if len(raw) < searchPageSize {
			break
		}
	}

	total := len(matched)
	if params.Offset >= total {
		return &ListResult{Messages: []MessageSummary{}, Total: total}, nil
	}
	end := params.Offset + params.Limit
	if end > total {
		end = total
	}
	page := matched[params.Offset:end]

	if err := s.mergeOverlays(ctx, account.ID, page); err != nil {
		return nil, err
	}

	return &ListResult{Messages: page, Total: total}, nil
}

// MarkRead sets the caller's read flag on an owned message.
func (s *Service) MarkRead(ctx context.Context, account *store.Account, id string, read bool) error {
	if err := s.requireOwnership(ctx, account, id); err != nil {
		return err
	}

	if err := s.store.SetRead(ctx, id, account.ID, read); err != nil {
		return fmt.Errorf("setting read flag: %w", err)
	}
	return nil
}

// ToggleStar sets the caller's starred flag on an owned message.
func (s *Service) ToggleStar(ctx context.Context, account *store.Account, id string, starred bool) error {
	if err := s.requireOwnership(ctx, account, id); err != nil {
		return err
	}

	if err := s.store.SetStarred(ctx, id, account.ID, starred); err != nil {
		return fmt.Errorf("setting starred flag: %w", err)
	}
	return nil
}

func (s *Service) requireOwnership(ctx context.Context, account *store.Account, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty message id", ErrInvalidArgument)
	}

	has, err := s.store.HasOwnership(ctx, id, account.ID)
	if err != nil {
		return fmt.Errorf("checking ownership: %w", err)
	}
	if !has {
		return ErrNotFound
	}
	return nil
}

func (s *Service) mergeOverlays(ctx context.Context, accountID string, summaries []MessageSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	ids := make([]string, len(summaries))
	for i := range summaries {
		ids[i] = summaries[i].ID
	}

	overlays, err := s.store.GetOverlays(ctx, ids, accountID)
	if err != nil {
		return fmt.Errorf("loading overlays: %w", err)
	}

	for i := range summaries {
		if o, ok := overlays[summaries[i].ID]; ok {
			summaries[i].Read = o.IsRead
			summaries[i].ReadAt = o.ReadAt
			summaries[i].Starred = o.IsStarred
		}
	}

	return nil
}

func (s *Service) storeErr(msg string, err error) error {
	if errors.Is(err, mailstore.ErrStoreUnavailable) {
		s.logger.Warn(msg, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (p ListParams) clamp() ListParams {
	if p.Limit <= 0 {
		p.Limit = defaultListLimit
	}
	if p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// forwardedBlock renders the original message under the conventional
// forwarded-message separator. The store keeps the attachment bytes, so
// forwarding carries their descriptions.
func forwardedBlock(msg *mailstore.Message) string {
	var b strings.Builder
	b.WriteString("---------- Forwarded message ----------\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From.Address)
	fmt.Fprintf(&b, "Date: %s\n", msg.Created.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	for _, att := range msg.Attachments {
		fmt.Fprintf(&b, "Attachment: %s (%s, %d bytes)\n", att.FileName, att.ContentType, att.Size)
	}
	b.WriteString("\n")
	b.WriteString(msg.Text)
	return b.String()
}

func quote(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

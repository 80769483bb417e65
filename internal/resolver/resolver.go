// ABOUTME: Background loop inferring message ownership from participant addresses
// ABOUTME: Lease-guarded single scanner with a persisted cursor and idempotent writes

package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mailgate/internal/auth"
	"github.com/2389/mailgate/internal/dedupe"
	"github.com/2389/mailgate/internal/mailstore"
	"github.com/2389/mailgate/internal/store"
)

const (
	defaultInterval   = 5 * time.Second
	defaultLeaseTTL   = 30 * time.Second
	defaultBatchLimit = 200
	defaultMaxBackoff = 2 * time.Minute

	dedupeTTL  = 10 * time.Minute
	dedupeSize = 10000
)

// MessageLister is the slice of the store client the resolver needs.
type MessageLister interface {
	ListSince(ctx context.Context, cursor string, limit int) ([]mailstore.Summary, error)
}

// Options tune the scan loop. Zero values fall back to defaults.
type Options struct {
	Interval   time.Duration
	LeaseTTL   time.Duration
	BatchLimit int
	MaxBackoff time.Duration
	HolderID   string
}

// Resolver scans the shared store and writes ownership edges for every
// participant address that maps to a registered account.
type Resolver struct {
	store    store.Store
	lister   MessageLister
	seen     *dedupe.Cache
	logger   *slog.Logger
	opts     Options
	holderID string
}

// New creates a resolver. Run must be called to start scanning.
func New(st store.Store, lister MessageLister, opts Options) *Resolver {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = defaultLeaseTTL
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaultBatchLimit
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}

	holderID := opts.HolderID
	if holderID == "" {
		hostname, _ := os.Hostname()
		holderID = fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	}

	return &Resolver{
		store:    st,
		lister:   lister,
		seen:     dedupe.New(dedupeTTL, dedupeSize),
		logger:   slog.Default().With("component", "resolver"),
		opts:     opts,
		holderID: holderID,
	}
}

// Run scans until the context is cancelled. Only the lease holder scans;
// everyone else idles and retries, so ownership writes never race across
// processes.
func (r *Resolver) Run(ctx context.Context) error {
	defer r.seen.Close()

	r.logger.Info("resolver starting", "holder", r.holderID, "interval", r.opts.Interval)

	backoff := r.opts.Interval

	for {
		// One wait per iteration: the interval normally, the current
		// backoff after a failed cycle.
		wait := r.opts.Interval

		acquired, err := r.store.AcquireLease(ctx, r.holderID, r.opts.LeaseTTL)
		if err != nil {
			r.logger.Error("acquiring lease", "error", err)
		} else if !acquired {
			r.logger.Debug("lease held elsewhere, idling")
		} else {
			if err := r.runCycle(ctx); err != nil {
				r.logger.Warn("scan cycle failed", "error", err, "backoff", backoff)
				wait = backoff
				backoff = min(backoff*2, r.opts.MaxBackoff)
			} else {
				backoff = r.opts.Interval
			}
		}

		if !sleepCtx(ctx, wait) {
			return r.shutdown()
		}
	}
}

func (r *Resolver) shutdown() error {
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.ReleaseLease(releaseCtx, r.holderID); err != nil {
		r.logger.Warn("releasing lease", "error", err)
	}
	r.logger.Info("resolver stopped")
	return nil
}

// runCycle performs one scan pass. The cursor only advances after the
// whole batch lands, so a failed cycle is retried from the same point.
func (r *Resolver) runCycle(ctx context.Context) error {
	cursor, err := r.store.GetCursor(ctx)
	if err != nil {
		return fmt.Errorf("loading cursor: %w", err)
	}

	messages, err := r.lister.ListSince(ctx, cursor, r.opts.BatchLimit)
	if err != nil {
		if errors.Is(err, mailstore.ErrStoreUnavailable) {
			return fmt.Errorf("store unavailable: %w", err)
		}
		return fmt.Errorf("listing messages: %w", err)
	}

	highWater := cursor
	processed := 0

	for i := range messages {
		msg := &messages[i]

		if ts := msg.Created.UTC().Format(time.RFC3339); highWater == "" || ts > highWater {
			highWater = ts
		}

		if r.seen.CheckAndMark(msg.ID) {
			continue
		}

		if err := r.resolveMessage(ctx, msg); err != nil {
			// Unresolved means unseen: the failed cycle leaves the cursor
			// behind, and the retry must not skip this message.
			r.seen.Forget(msg.ID)
			return fmt.Errorf("resolving message %s: %w", msg.ID, err)
		}
		processed++
	}

	if highWater != cursor {
		if err := r.store.SetCursor(ctx, highWater); err != nil {
			return fmt.Errorf("persisting cursor: %w", err)
		}
	}

	if processed > 0 {
		r.logger.Info("scan cycle complete", "processed", processed, "cursor", highWater)
	}

	return nil
}

// resolveMessage writes ownership edges for every participant that is a
// registered account. AddOwnership is INSERT OR IGNORE, so re-observing
// a message never produces a second row.
func (r *Resolver) resolveMessage(ctx context.Context, msg *mailstore.Summary) error {
	for _, addr := range participantAddresses(msg, r.logger) {
		account, err := r.store.GetAccountByAddress(ctx, addr)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("looking up account %s: %w", addr, err)
		}

		created, err := r.store.AddOwnership(ctx, msg.ID, account.ID)
		if err != nil {
			return fmt.Errorf("adding ownership: %w", err)
		}
		if created {
			r.logger.Debug("ownership recorded", "message", msg.ID, "account", account.Address)
		}
	}

	return nil
}

// participantAddresses normalizes every From/To/Cc/Bcc address of a
// summary. Malformed entries are logged and skipped so one bad header
// never blocks a scan.
func participantAddresses(msg *mailstore.Summary, logger *slog.Logger) []string {
	seen := make(map[string]bool)
	var out []string

	for _, raw := range msg.Addresses() {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		normalized, err := auth.NormalizeAddress(raw)
		if err != nil {
			// Some stores hand back pre-split lists; try the list grammar
			// before giving up on the field.
			if list, listErr := mail.ParseAddressList(raw); listErr == nil {
				for _, a := range list {
					addr := strings.ToLower(a.Address)
					if !seen[addr] {
						seen[addr] = true
						out = append(out, addr)
					}
				}
				continue
			}
			logger.Warn("skipping malformed address", "message", msg.ID, "address", raw)
			continue
		}
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}

	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ABOUTME: Store interfaces and data types for mailgate persistence
// ABOUTME: Defines Account, OwnershipRecord, Overlay and the per-concern store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAddressExists is returned when registering an address that is already taken.
var ErrAddressExists = errors.New("address already registered")

// Account is a tenant identity. The token is an opaque bearer credential
// that maps to exactly one account; rotating it invalidates the old value
// for every subsequent lookup.
type Account struct {
	ID          string
	Address     string
	DisplayName string
	SecretHash  string
	Token       string
	CreatedAt   time.Time
}

// OwnershipRecord links an account to a message in the shared store.
// Its existence is the sole condition for the account observing the message.
type OwnershipRecord struct {
	MessageID string
	AccountID string
	CreatedAt time.Time
}

// Overlay is per-(message, account) mutable status layered over the shared
// record. The zero value is the state of a message no row exists for.
type Overlay struct {
	MessageID string
	AccountID string
	IsRead    bool
	ReadAt    *time.Time
	IsStarred bool
}

// AccountStore persists accounts and serves token resolution.
// GetAccountByToken runs on every request's hot path and must be an
// indexed lookup.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByAddress(ctx context.Context, address string) (*Account, error)
	GetAccountByToken(ctx context.Context, token string) (*Account, error)
	// RotateToken swaps oldToken for newToken in a single conditional
	// update. Returns ErrNotFound if oldToken is not current.
	RotateToken(ctx context.Context, oldToken, newToken string) error
}

// OwnershipStore persists message-account associations.
type OwnershipStore interface {
	// AddOwnership records the association if absent. Re-running over an
	// already-recorded pair is a no-op; the bool reports whether a row
	// was inserted.
	AddOwnership(ctx context.Context, messageID, accountID string) (bool, error)
	HasOwnership(ctx context.Context, messageID, accountID string) (bool, error)
	ListOwnedMessageIDs(ctx context.Context, accountID string) ([]string, error)
	// RemoveOwnership deletes the association and the account's overlay
	// row for the message. The bool reports whether an ownership row
	// existed.
	RemoveOwnership(ctx context.Context, messageID, accountID string) (bool, error)
	// CountOwners returns how many accounts currently own the message.
	CountOwners(ctx context.Context, messageID string) (int, error)
}

// OverlayStore persists per-account read/starred state.
type OverlayStore interface {
	// GetOverlay returns the overlay row, or the zero-value state when no
	// row exists. Absence is not an error.
	GetOverlay(ctx context.Context, messageID, accountID string) (*Overlay, error)
	GetOverlays(ctx context.Context, messageIDs []string, accountID string) (map[string]*Overlay, error)
	SetRead(ctx context.Context, messageID, accountID string, read bool) error
	SetStarred(ctx context.Context, messageID, accountID string, starred bool) error
}

// ResolverStateStore persists the ownership resolver's scan cursor and the
// single-instance lease.
type ResolverStateStore interface {
	GetCursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, cursor string) error
	// AcquireLease claims or renews the resolver lease for holder. It
	// returns false when another holder's lease is still unexpired.
	AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, holder string) error
}

// Store is the full persistence surface backing mailgate.
type Store interface {
	AccountStore
	OwnershipStore
	OverlayStore
	ResolverStateStore

	// Close releases any resources held by the store.
	Close() error
}

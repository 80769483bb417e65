// ABOUTME: Credential issuer handling register, authenticate, resolve, and rotate
// ABOUTME: Opaque 32-byte hex tokens backed by the account store

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/mailgate/internal/store"
)

// Issuer errors
var (
	ErrAddressTaken      = errors.New("address already registered")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidToken      = errors.New("invalid token")
	ErrWeakSecret        = errors.New("secret too short")
)

// Fixed bcrypt hash compared against when the address is unknown,
// so lookup failures take as long as real comparisons.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

const minSecretLength = 8

// Issuer mints and resolves bearer tokens for mail accounts.
type Issuer struct {
	accounts store.AccountStore
	logger   *slog.Logger
}

// NewIssuer creates an issuer backed by the given account store.
func NewIssuer(accounts store.AccountStore) *Issuer {
	return &Issuer{
		accounts: accounts,
		logger:   slog.Default().With("component", "issuer"),
	}
}

// Register creates an account for the address and returns it with a fresh
// token. The address is normalized before the uniqueness check, so two
// spellings of the same mailbox cannot both register.
func (i *Issuer) Register(ctx context.Context, address, displayName, secret string) (*store.Account, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing secret: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	account := &store.Account{
		ID:          uuid.NewString(),
		Address:     normalized,
		DisplayName: displayName,
		SecretHash:  string(hash),
		Token:       token,
		CreatedAt:   time.Now().UTC(),
	}

	if err := i.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrAddressExists) {
			return nil, ErrAddressTaken
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	i.logger.Info("registered account", "address", normalized)
	return account, nil
}

// Authenticate verifies the address/secret pair and returns the account
// with its current token. Unknown addresses and wrong secrets are
// indistinguishable to the caller.
func (i *Issuer) Authenticate(ctx context.Context, address, secret string) (*store.Account, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(secret))
		return nil, ErrInvalidCredential
	}

	account, err := i.accounts.GetAccountByAddress(ctx, normalized)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(secret))
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredential
	}

	return account, nil
}

// Resolve maps a bearer token to its account.
func (i *Issuer) Resolve(ctx context.Context, token string) (*store.Account, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	account, err := i.accounts.GetAccountByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("resolving token: %w", err)
	}

	return account, nil
}

// Rotate replaces the presented token with a new one. The old token stops
// resolving the moment this returns; callers racing a rotation with the
// stale token get ErrInvalidToken.
func (i *Issuer) Rotate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	newToken, err := generateToken()
	if err != nil {
		return "", err
	}

	if err := i.accounts.RotateToken(ctx, token, newToken); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("rotating token: %w", err)
	}

	return newToken, nil
}

func generateToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

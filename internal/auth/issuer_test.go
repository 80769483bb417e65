// ABOUTME: Unit tests for the credential issuer
// ABOUTME: Covers register, authenticate, resolve, and rotate flows

package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/2389/mailgate/internal/store"
)

func TestIssuer_Register(t *testing.T) {
	issuer := newTestIssuer(t)
	ctx := context.Background()

	account, err := issuer.Register(ctx, "Alice <ALICE@Example.COM>", "Alice", "s3cret-pass")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if account.Address != "alice@example.com" {
		t.Errorf("address = %q, want normalized lowercase bare address", account.Address)
	}
	if account.Token == "" {
		t.Error("expected a token to be issued")
	}
	if account.SecretHash == "s3cret-pass" {
		t.Error("secret stored in plaintext")
	}
}

func TestIssuer_Register_DuplicateAddress(t *testing.T) {
	issuer := newTestIssuer(t)
	ctx := context.Background()

	if _, err := issuer.Register(ctx, "bob@example.com", "Bob", "s3cret-pass"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// A different spelling of the same mailbox must collide
	_, err := issuer.Register(ctx, "Bob <BOB@example.com>", "Bob 2", "other-secret")
	if !errors.Is(err, ErrAddressTaken) {
		t.Errorf("expected ErrAddressTaken, got %v", err)
	}
}

func TestIssuer_Register_Invalid(t *testing.T) {
	issuer := newTestIssuer(t)
	ctx := context.Background()

	if _, err := issuer.Register(ctx, "not-an-address", "X", "s3cret-pass"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := issuer.Register(ctx, "ok@example.com", "X", "short"); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("expected ErrWeakSecret, got %v", err)
	}
}

func TestIssuer_Authenticate(t *testing.T) {
	issuer := newTestIssuer(t)
	ctx := context.Background()

	created, err := issuer.Register(ctx, "carol@example.com", "Carol", "carol-secret")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	account, err := issuer.Authenticate(ctx, "CAROL@example.com", "carol-secret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if account.ID != created.ID {
		t.Errorf("authenticated wrong account")
	}
	if account.Token != created.Token {
		t.Errorf("authenticate should return the current token")
	}

	// Wrong secret and unknown address report the same error
	if _, err := issuer.Authenticate(ctx, "carol@example.com", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("wrong secret: expected ErrInvalidCredential, got %v", err)
	}
	if _, err := issuer.Authenticate(ctx, "nobody@example.com", "carol-secret"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("unknown address: expected ErrInvalidCredential, got %v", err)
	}
	if _, err := issuer.Authenticate(ctx, "garbage", "carol-secret"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("malformed address: expected ErrInvalidCredential, got %v", err)
	}
}

func TestIssuer_Resolve(t *testing.T) {
	issuer := newTestIssuer(t)
	ctx := context.Background()

	created, err := issuer.Register(ctx, "dave@example.com", "Dave", "dave-secret")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	account, err := issuer.Resolve(ctx, created.Token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if account.ID != created.ID {
		t.Errorf("resolved wrong account")
	}

	if _, err := issuer.Resolve(ctx, "bogus-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("bogus token: expected ErrInvalidToken, got %v", err)
	}
	if _, err := issuer.Resolve(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token: expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuer_Rotate(t *testing.T) {
	issuer := newTestIssuer(t)
	ctx := context.Background()

	created, err := issuer.Register(ctx, "erin@example.com", "Erin", "erin-secret")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	newToken, err := issuer.Rotate(ctx, created.Token)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if newToken == created.Token {
		t.Error("rotation returned the same token")
	}

	if _, err := issuer.Resolve(ctx, created.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("old token still resolves after rotation: %v", err)
	}

	account, err := issuer.Resolve(ctx, newToken)
	if err != nil {
		t.Fatalf("Resolve(new) error = %v", err)
	}
	if account.ID != created.ID {
		t.Errorf("new token resolves to wrong account")
	}

	// A second rotation with the already-replaced token must fail
	if _, err := issuer.Rotate(ctx, created.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("stale rotation: expected ErrInvalidToken, got %v", err)
	}
}

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewIssuer(st)
}

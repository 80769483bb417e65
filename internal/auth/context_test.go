// ABOUTME: Tests for auth context propagation helpers
// ABOUTME: Verifies WithAuth/FromContext round-trip and absence handling

package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	authCtx := &AuthContext{
		AccountID: "acct-123",
		Address:   "alice@example.com",
	}

	ctx := WithAuth(context.Background(), authCtx)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("FromContext returned nil")
	}
	if got.AccountID != "acct-123" {
		t.Errorf("AccountID = %q, want %q", got.AccountID, "acct-123")
	}
	if got.Address != "alice@example.com" {
		t.Errorf("Address = %q, want %q", got.Address, "alice@example.com")
	}
}

func TestFromContext_Absent(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("expected nil for bare context, got %+v", got)
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for missing AuthContext")
		}
	}()
	MustFromContext(context.Background())
}

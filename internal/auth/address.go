// ABOUTME: Email address normalization shared by registration and ownership inference
// ABOUTME: Matching is exact on the normalized form, no sub-address folding

package auth

import (
	"fmt"
	"net/mail"
	"strings"
)

// NormalizeAddress parses a single RFC 5322 address, drops any display
// name, and lowercases the result. "Alice <ALICE@Example.COM>" and
// "alice@example.com" normalize to the same string. Sub-addressed forms
// like alice+tag@example.com stay distinct.
func NormalizeAddress(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parsing address %q: %w", raw, err)
	}
	return strings.ToLower(addr.Address), nil
}

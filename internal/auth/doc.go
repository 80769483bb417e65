// ABOUTME: Package auth issues and verifies opaque bearer credentials for mail accounts
// ABOUTME: Tokens are random, stored server-side, and revoked instantly on rotation

// Package auth implements the credential issuer: account registration,
// secret authentication, token resolution, and token rotation.
//
// Credentials are opaque random tokens rather than signed claims. Every
// resolution is a store lookup, which makes rotation an immediate,
// global revocation of the previous token. Secrets are bcrypt-hashed
// and compared in constant time even when the address is unknown.
package auth

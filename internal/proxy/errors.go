// ABOUTME: Sentinel error taxonomy for access-scoped operations
// ABOUTME: Transport layers map these to HTTP statuses and tool error strings

package proxy

import "errors"

// Operation errors. Unowned messages surface as ErrNotFound, never as a
// permission error: a caller must not be able to learn which IDs exist.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("message not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnavailable      = errors.New("service unavailable")
)

// Package repository defines error types that are reused across
// repositories.  These sentinel values allow higher layers such as the
// screening engine and the HTTP handlers to distinguish between failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrSessionNotFound is returned when no session row matches the lookup,
// or the row exists but is already FINISHED for lookups that exclude
// finished sessions.  Handlers translate this into an HTTP 404 response.
var ErrSessionNotFound = errors.New("session not found")

// ErrConflict is returned when an insert collides with an existing
// session id.  Handlers translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

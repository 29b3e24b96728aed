// Package repository holds the MySQL-backed credential store. The sentinel
// errors below let higher layers such as services and handlers tell the
// failure scenarios apart without inspecting driver errors.
package repository

import "errors"

// ErrConflict is returned when an insert violates a unique index, such as
// registering a username or email that already exists. Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// ErrStaleToken is returned by SwapRefreshToken when the stored refresh
// token no longer equals the one presented: it was rotated away, cleared
// by logout, or a concurrent refresh won the swap.
var ErrStaleToken = errors.New("stale refresh token")

// Package service implements the auth flows on top of the credential
// store and the token service. Every failure a caller can act on is one
// of the sentinels below; anything else is an internal error.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation: a required field is missing or blank.
	ErrValidation = errors.New("validation failed")
	// ErrTooLong: a field exceeds its stored width, or the password exceeds
	// what bcrypt can hash.
	ErrTooLong = fmt.Errorf("%w: field too long", ErrValidation)
	// ErrConflict: username or email already taken.
	ErrConflict = errors.New("username or email already exists")
	// ErrNotFound: no user matches the login identifiers.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidCredentials: password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingRefreshToken: neither cookie nor body carried a refresh token.
	ErrMissingRefreshToken = errors.New("no refresh token provided")
	// ErrInvalidRefreshToken: bad signature, expired, unknown user, or no
	// longer the stored token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrUnauthenticated: no valid access token or the user is gone.
	ErrUnauthenticated = errors.New("unauthenticated")
)

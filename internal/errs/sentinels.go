// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Error classes. Every specific sentinel below wraps exactly one of them.
var (
	// ErrValidation indicates malformed or contradictory input.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists indicates a unique constraint violation (username or email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller exhausted its attempt budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure.
	ErrVersionConflict = errors.New("version conflict")
)

// Specific sentinels.
var (
	ErrPasswordMismatch   = fmt.Errorf("%w: passwords do not match", ErrValidation)
	ErrPasswordTooShort   = fmt.Errorf("%w: password too short", ErrValidation)
	ErrMissingCredentials = fmt.Errorf("%w: missing credentials", ErrValidation)
	ErrMissingFields      = fmt.Errorf("%w: missing required fields", ErrValidation)
	ErrNegativeXP         = fmt.Errorf("%w: xp must not be negative", ErrValidation)
	ErrLevelLocked        = fmt.Errorf("%w: level is locked", ErrValidation)

	// ErrInvalidCredentials is returned for an unknown identifier and for a wrong password alike.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)

	ErrUnknownLevel = fmt.Errorf("%w: unknown level", ErrNotFound)
)

// RateLimitError is ErrRateLimited with the time until the next accepted attempt.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

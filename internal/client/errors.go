package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/hacking-zone/internal/errs"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("account service unavailable")

// APIError is a non-2xx answer of the account service.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the answer onto the shared sentinels so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	if s, ok := codeSentinels[e.Code]; ok {
		return s
	}
	switch {
	case e.Status == http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case e.Status == http.StatusTooManyRequests:
		return errs.ErrRateLimited
	case e.Status == http.StatusNotFound:
		return errs.ErrNotFound
	case e.Status == http.StatusConflict:
		return errs.ErrVersionConflict
	case e.Status >= 400 && e.Status < 500:
		return errs.ErrValidation
	}
	return nil
}

var codeSentinels = map[string]error{
	"PASSWORD_MISMATCH":   errs.ErrPasswordMismatch,
	"PASSWORD_TOO_SHORT":  errs.ErrPasswordTooShort,
	"MISSING_CREDENTIALS": errs.ErrMissingCredentials,
	"MISSING_FIELDS":      errs.ErrMissingFields,
	"INVALID_XP":          errs.ErrNegativeXP,
	"LEVEL_LOCKED":        errs.ErrLevelLocked,
	"USER_EXISTS":         errs.ErrAlreadyExists,
	"INVALID_CREDENTIALS": errs.ErrInvalidCredentials,
	"RATE_LIMIT_EXCEEDED": errs.ErrRateLimited,
	"UNKNOWN_LEVEL":       errs.ErrUnknownLevel,
}

// serverFault reports whether err should count against the circuit breaker.
func serverFault(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

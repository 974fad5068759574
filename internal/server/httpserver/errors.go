package httpserver

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/and161185/hacking-zone/internal/errs"
	"go.uber.org/zap"
)

// Fallback codes for errors no mapping matches.
const (
	codeSignup   = "SIGNUP_ERROR"
	codeLogin    = "LOGIN_ERROR"
	codeProgress = "PROGRESS_ERROR"
	codeInternal = "INTERNAL_ERROR"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty: use the error text (client-caused only)
}

// errorTable is searched in order, so specific sentinels precede their class.
func errorTable(minPasswordLen int) []errorMapping {
	return []errorMapping{
		{errs.ErrPasswordMismatch, http.StatusBadRequest, "PASSWORD_MISMATCH", "Passwords do not match"},
		{errs.ErrPasswordTooShort, http.StatusBadRequest, "PASSWORD_TOO_SHORT", fmt.Sprintf("Password must be at least %d characters", minPasswordLen)},
		{errs.ErrMissingCredentials, http.StatusBadRequest, "MISSING_CREDENTIALS", "Please provide username and password"},
		{errs.ErrMissingFields, http.StatusBadRequest, "MISSING_FIELDS", "Please provide all required fields"},
		{errs.ErrNegativeXP, http.StatusBadRequest, "INVALID_XP", "XP must not be negative"},
		{errs.ErrLevelLocked, http.StatusBadRequest, "LEVEL_LOCKED", "Complete the prerequisite levels first"},
		{errBadJSON, http.StatusBadRequest, "INVALID_JSON", "Malformed JSON body"},
		{errs.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{errs.ErrAlreadyExists, http.StatusBadRequest, "USER_EXISTS", "User already exists with this email or username"},
		{errs.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Incorrect username or password"},
		{errs.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Access denied. Please log in again."},
		{errs.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many login attempts, please try again later."},
		{errs.ErrUnknownLevel, http.StatusNotFound, "UNKNOWN_LEVEL", "Unknown level"},
		{errs.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Not found"},
		{errs.ErrVersionConflict, http.StatusConflict, "CONFLICT", "Concurrent update, please retry"},
		{errBodyTooLarge, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large"},
	}
}

var (
	errBadJSON      = fmt.Errorf("%w: malformed json", errs.ErrValidation)
	errBodyTooLarge = errors.New("request body too large")
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError answers with the mapped status and code. Unmapped errors are
// logged and reported as fallback with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	for _, m := range s.errTable {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		var rl *errs.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		}
		writeJSON(w, m.status, errorResponse{Error: msg, Code: m.code})
		return
	}

	s.log.Error("request failed",
		zap.String("route", routePattern(r)),
		zap.String("code", fallback),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error", Code: fallback})
}

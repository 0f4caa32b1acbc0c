package authapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/identity"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/ratelimit"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/session"
)

// Stable error codes returned in the JSON error envelope.
const (
	CodeInvalidCredentials    = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken          = "AUTH_INVALID_TOKEN"
	CodeTokenExpired          = "AUTH_TOKEN_EXPIRED"
	CodeSessionCompromised    = "SESSION_COMPROMISED"
	CodeLoginLimitExceeded    = "AUTH_LOGIN_LIMIT_EXCEEDED"
	CodeRegisterLimitExceeded = "AUTH_REGISTER_LIMIT_EXCEEDED"
	CodeRefreshLimitExceeded  = "AUTH_REFRESH_LIMIT_EXCEEDED"
	CodeRefreshInProgress     = "AUTH_REFRESH_IN_PROGRESS"
	CodeSessionLimitReached   = "AUTH_SESSION_LIMIT_REACHED"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeConflict              = "CONFLICT"
	CodeServerError           = "SERVER_ERROR"
	CodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
)

var rateLimitCodes = map[string]string{
	ratelimit.LoginUser:  CodeLoginLimitExceeded,
	ratelimit.LoginIP:    CodeLoginLimitExceeded,
	ratelimit.RegisterIP: CodeRegisterLimitExceeded,
	ratelimit.RefreshIP:  CodeRefreshLimitExceeded,
}

// writeServiceError maps session engine errors onto HTTP responses.
// Unknown errors are logged and surface as 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	if rl, ok := ratelimit.AsError(err); ok {
		code, ok := rateLimitCodes[rl.Budget]
		if !ok {
			code = CodeLoginLimitExceeded
		}
		writeRetryError(w, http.StatusTooManyRequests, code, "too many requests", rl.RetryAfterSeconds())
		return
	}

	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid token")
	case errors.Is(err, session.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, CodeTokenExpired, "token expired")
	case errors.Is(err, session.ErrSessionCompromised):
		writeError(w, http.StatusForbidden, CodeSessionCompromised, "session compromised, please sign in again")
	case errors.Is(err, session.ErrSessionLimitReached):
		writeError(w, http.StatusForbidden, CodeSessionLimitReached, "active session limit reached")
	case errors.Is(err, session.ErrRefreshInProgress):
		writeRetryError(w, http.StatusConflict, CodeRefreshInProgress, "refresh already in progress", retrySeconds(h.cfg.RefreshRetryAfter.Seconds()))
	case identity.IsConflict(err):
		writeError(w, http.StatusConflict, CodeConflict, "email already registered")
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid email or password")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.log.Warn(op+".unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "service unavailable")
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, CodeServerError, "internal error")
	}
}

func retrySeconds(s float64) int {
	n := int(s)
	if float64(n) < s {
		n++
	}
	if n < 1 {
		return 1
	}
	return n
}

package session

import "errors"

var (
	// ErrInvalidCredentials is returned when the email is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for unknown refresh tokens and for access tokens that
	// fail verification or carry a stale token_version.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a refresh token is past expires_at.
	ErrTokenExpired = errors.New("token expired")

	// ErrSessionCompromised is returned when a revoked refresh token is presented again.
	// All sessions of the user have been revoked when this is returned.
	ErrSessionCompromised = errors.New("session compromised")

	// ErrSessionLimitReached is returned by Login under the reject session-limit policy.
	ErrSessionLimitReached = errors.New("session limit reached")

	// ErrRefreshInProgress is returned when another refresh for the same user holds the lock.
	ErrRefreshInProgress = errors.New("refresh in progress")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrRecordNotFound is returned by stores when no refresh token record matches.
	ErrRecordNotFound = errors.New("refresh token record not found")
)

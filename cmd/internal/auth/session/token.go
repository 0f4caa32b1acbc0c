package session

import "time"

// AccessClaims is the identity envelope carried by an access token.
type AccessClaims struct {
	UserID       string
	Email        string
	TokenVersion int
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Issuer       string
}

// AccessTokenManager issues and verifies short-lived access tokens.
// Verify checks signature, issuer and expiry only; token_version is checked
// against the user store by Service.ValidateAccessToken.
type AccessTokenManager interface {
	Issue(userID, email string, tokenVersion int, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

// NewAccessTokenManager builds the manager selected by cfg.AccessTokenFormat.
func NewAccessTokenManager(cfg Config) (AccessTokenManager, error) {
	switch cfg.AccessTokenFormat {
	case FormatPaseto, "":
		return NewPasetoV4PublicManager(cfg)
	case FormatJWT:
		return NewJWTManager(cfg)
	default:
		return nil, ErrConfig
	}
}

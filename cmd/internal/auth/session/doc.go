// Package session implements the Laba authentication session engine.
//
// Login issues a short-lived access token and an opaque refresh token. Refresh
// rotates the refresh token inside one transaction; presenting a token that was
// already revoked is treated as theft and revokes every session of the user
// and bumps the user's token_version, which invalidates all access tokens.
//
// Refresh tokens are 40 random bytes, hex-encoded, and stored as their SHA-256
// hash (HMAC-SHA256 when LABA_TOKEN_HMAC_KEY is set). Access tokens are
// PASETO v4.public by default, or HS256 JWT.
//
// Rate limiting and the per-user refresh lock fail open. The token store fails
// closed.
package session

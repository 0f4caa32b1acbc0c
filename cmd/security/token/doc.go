// Package token generates refresh-token secrets and hashes them for storage.
//
// Secrets are 40 bytes from crypto/rand, hex encoded; they are handed to the
// client once and never persisted. Storage keeps a 64-char hex digest:
// SHA-256(secret) by default, or HMAC-SHA256(secret, key) when
// LABA_TOKEN_HMAC_KEY is set, so a leaked table cannot be checked offline
// without the key.
package token

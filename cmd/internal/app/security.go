package app

import (
	"errors"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/security/token"
)

const minTokenHMACKeyBytes = 32

// ValidateSecurityConfig enforces the startup security policy.
// With RequireTokenHMAC set, refresh-token hashes must be keyed.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := token.HMACKeyFromEnv(minTokenHMACKeyBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: LABA_REQUIRE_TOKEN_HMAC=true but LABA_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: LABA_REQUIRE_TOKEN_HMAC=true but LABA_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}
	return nil
}

package session

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// SessionLimitPolicy decides what Login does when a user is at the session cap.
type SessionLimitPolicy string

const (
	// PolicyEvictOldest revokes the oldest active session and proceeds.
	PolicyEvictOldest SessionLimitPolicy = "evict_oldest"
	// PolicyReject fails the login with ErrSessionLimitReached.
	PolicyReject SessionLimitPolicy = "reject"
)

// TokenFormat selects the access token encoding.
type TokenFormat string

const (
	FormatPaseto TokenFormat = "paseto"
	FormatJWT    TokenFormat = "jwt"
)

const minJWTSecretBytes = 32

// Config defines runtime configuration for the session engine.
type Config struct {
	// Issuer is the "iss" claim of access tokens.
	Issuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// MaxSessionsPerUser caps active refresh tokens per user. Zero disables the cap.
	MaxSessionsPerUser int
	SessionLimitPolicy SessionLimitPolicy

	AccessTokenFormat TokenFormat

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for v4.public.
	PasetoV4SecretKeyHex string
	// JWTSecret is the HS256 key when AccessTokenFormat is jwt.
	JWTSecret string

	// ClockSkew is tolerated during access token validation.
	ClockSkew time.Duration

	// RefreshLockTTL bounds how long the advisory refresh lock is held.
	RefreshLockTTL time.Duration

	// AlertWebhookURL receives session.compromised events. Empty disables alerts.
	AlertWebhookURL     string
	AlertWebhookTimeout time.Duration
}

// DefaultConfig returns defaults suitable for development. Keys are not set.
func DefaultConfig() Config {
	return Config{
		Issuer:              "laba",
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		MaxSessionsPerUser:  5,
		SessionLimitPolicy:  PolicyEvictOldest,
		AccessTokenFormat:   FormatPaseto,
		ClockSkew:           30 * time.Second,
		RefreshLockTTL:      5 * time.Second,
		AlertWebhookTimeout: 3 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required (per format):
//   - LABA_PASETO_V4_SECRET_KEY_HEX when LABA_AUTH_ACCESS_TOKEN_FORMAT=paseto (default)
//   - LABA_JWT_SECRET (>= 32 bytes) when LABA_AUTH_ACCESS_TOKEN_FORMAT=jwt
//
// Optional:
//   - LABA_AUTH_ISSUER
//   - LABA_AUTH_ACCESS_TTL, LABA_AUTH_REFRESH_TTL
//   - LABA_AUTH_MAX_SESSIONS, LABA_AUTH_SESSION_LIMIT_POLICY (evict_oldest|reject)
//   - LABA_AUTH_CLOCK_SKEW, LABA_AUTH_REFRESH_LOCK_TTL
//   - LABA_AUTH_ALERT_WEBHOOK_URL, LABA_AUTH_ALERT_WEBHOOK_TIMEOUT
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LABA_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	for _, d := range []struct {
		key      string
		dst      *time.Duration
		allowNil bool
	}{
		{"LABA_AUTH_ACCESS_TTL", &cfg.AccessTokenTTL, false},
		{"LABA_AUTH_REFRESH_TTL", &cfg.RefreshTokenTTL, false},
		{"LABA_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
		{"LABA_AUTH_REFRESH_LOCK_TTL", &cfg.RefreshLockTTL, false},
		{"LABA_AUTH_ALERT_WEBHOOK_TIMEOUT", &cfg.AlertWebhookTimeout, false},
	} {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowNil) {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := os.Getenv("LABA_AUTH_MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, ErrConfig
		}
		cfg.MaxSessionsPerUser = n
	}

	if v := os.Getenv("LABA_AUTH_SESSION_LIMIT_POLICY"); v != "" {
		switch p := SessionLimitPolicy(strings.ToLower(strings.TrimSpace(v))); p {
		case PolicyEvictOldest, PolicyReject:
			cfg.SessionLimitPolicy = p
		default:
			return Config{}, ErrConfig
		}
	}

	if v := os.Getenv("LABA_AUTH_ACCESS_TOKEN_FORMAT"); v != "" {
		switch f := TokenFormat(strings.ToLower(strings.TrimSpace(v))); f {
		case FormatPaseto, FormatJWT:
			cfg.AccessTokenFormat = f
		default:
			return Config{}, ErrConfig
		}
	}

	cfg.PasetoV4SecretKeyHex = os.Getenv("LABA_PASETO_V4_SECRET_KEY_HEX")
	cfg.JWTSecret = os.Getenv("LABA_JWT_SECRET")

	if v := os.Getenv("LABA_AUTH_ALERT_WEBHOOK_URL"); v != "" {
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, ErrConfig
		}
		cfg.AlertWebhookURL = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that LoadConfigFromEnv enforces.
func (c Config) Validate() error {
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrConfig
	}
	// Access tokens must not outlive the refresh token that minted them.
	if c.AccessTokenTTL > c.RefreshTokenTTL {
		return ErrConfig
	}
	switch c.AccessTokenFormat {
	case FormatPaseto:
		if c.PasetoV4SecretKeyHex == "" {
			return ErrConfig
		}
	case FormatJWT:
		if len(c.JWTSecret) < minJWTSecretBytes {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}

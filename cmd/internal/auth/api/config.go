package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API transport behavior.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// RefreshCookieEnabled mirrors the refresh token into an HttpOnly cookie.
	RefreshCookieEnabled bool
	RefreshCookieName    string
	CookiePath           string
	CookieDomain         string
	CookieSecure         bool
	CookieSameSite       http.SameSite

	// RefreshRetryAfter is advertised when a concurrent refresh holds the user lock.
	RefreshRetryAfter time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:         1 << 20, // 1 MiB
		RefreshCookieEnabled: true,
		RefreshCookieName:    "laba_refresh",
		CookiePath:           "/auth",
		CookieSecure:         true,
		CookieSameSite:       http.SameSiteStrictMode,
		RefreshRetryAfter:    time.Second,
	}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:           envBool("LABA_AUTH_TRUST_PROXY", def.TrustProxy),
		MaxBodyBytes:         envInt64("LABA_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		RefreshCookieEnabled: envBool("LABA_AUTH_REFRESH_COOKIE_ENABLED", def.RefreshCookieEnabled),
		RefreshCookieName:    envString("LABA_AUTH_REFRESH_COOKIE_NAME", def.RefreshCookieName),
		CookiePath:           envString("LABA_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:         strings.TrimSpace(os.Getenv("LABA_AUTH_COOKIE_DOMAIN")),
		CookieSecure:         envBool("LABA_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:       parseSameSite(os.Getenv("LABA_AUTH_COOKIE_SAMESITE")),
		RefreshRetryAfter:    envDuration("LABA_AUTH_REFRESH_RETRY_AFTER", def.RefreshRetryAfter),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	return cfg
}

func parseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteStrictMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

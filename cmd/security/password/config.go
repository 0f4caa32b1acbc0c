package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted password lengths (in runes).
type Policy struct {
	MinLength int
	MaxLength int
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login Argon2id costs and a length policy.
func DefaultConfig() Config {
	// Parallelism follows the CPU count, clamped to [1..4] for containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
//   - LABA_PASSWORD_MIN_LEN, LABA_PASSWORD_MAX_LEN
//   - LABA_ARGON2_MEMORY_KIB, LABA_ARGON2_ITERATIONS, LABA_ARGON2_PARALLELISM
//   - LABA_ARGON2_SALT_LEN, LABA_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("LABA_PASSWORD_MIN_LEN"); ok {
		n, err := parseUint(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("LABA_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = int(n)
	}
	if v, ok := os.LookupEnv("LABA_PASSWORD_MAX_LEN"); ok {
		n, err := parseUint(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("LABA_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = int(n)
	}
	if v, ok := os.LookupEnv("LABA_ARGON2_MEMORY_KIB"); ok {
		n, err := parseUint(v, 8*1024, 1024*1024)
		if err != nil {
			return Config{}, fmt.Errorf("LABA_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = n
	}
	if v, ok := os.LookupEnv("LABA_ARGON2_ITERATIONS"); ok {
		n, err := parseUint(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("LABA_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = n
	}
	if v, ok := os.LookupEnv("LABA_ARGON2_PARALLELISM"); ok {
		n, err := parseUint(v, 1, math.MaxUint8)
		if err != nil {
			return Config{}, fmt.Errorf("LABA_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = uint8(n) // #nosec G115 -- bounded by parseUint.
	}
	if v, ok := os.LookupEnv("LABA_ARGON2_SALT_LEN"); ok {
		n, err := parseUint(v, 8, 64)
		if err != nil {
			return Config{}, fmt.Errorf("LABA_ARGON2_SALT_LEN: %w", err)
		}
		cfg.Params.SaltLength = n
	}
	if v, ok := os.LookupEnv("LABA_ARGON2_KEY_LEN"); ok {
		n, err := parseUint(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("LABA_ARGON2_KEY_LEN: %w", err)
		}
		cfg.Params.KeyLength = n
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}

	return cfg, nil
}

// Validate checks the length policy. Length is counted in runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if c.Policy.MaxLength > 0 && n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	return nil
}

func parseUint(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Budget names.
const (
	LoginUser  = "login_user"
	LoginIP    = "login_ip"
	RegisterIP = "register_ip"
	RefreshIP  = "refresh_ip"
)

// Budget is a named fixed-window allowance: Max hits per Window.
type Budget struct {
	Name   string
	Max    int
	Window time.Duration
}

// Budgets is the full rate-limit configuration surface.
type Budgets struct {
	LoginUser  Budget
	LoginIP    Budget
	RegisterIP Budget
	RefreshIP  Budget

	// MaxKeys bounds the shared in-memory store.
	MaxKeys int
	// RefreshMaxKeys bounds the dedicated refresh store.
	RefreshMaxKeys int
}

// DefaultBudgets returns production defaults.
func DefaultBudgets() Budgets {
	return Budgets{
		LoginUser:      Budget{Name: LoginUser, Max: 5, Window: 15 * time.Minute},
		LoginIP:        Budget{Name: LoginIP, Max: 20, Window: 5 * time.Minute},
		RegisterIP:     Budget{Name: RegisterIP, Max: 10, Window: time.Hour},
		RefreshIP:      Budget{Name: RefreshIP, Max: 60, Window: time.Minute},
		MaxKeys:        100_000,
		RefreshMaxKeys: 50_000,
	}
}

// LoadBudgetsFromEnv overlays LABA_RL_* variables on DefaultBudgets.
//
//   - LABA_RL_LOGIN_USER_MAX, LABA_RL_LOGIN_USER_WINDOW
//   - LABA_RL_LOGIN_IP_MAX, LABA_RL_LOGIN_IP_WINDOW
//   - LABA_RL_REGISTER_IP_MAX, LABA_RL_REGISTER_IP_WINDOW
//   - LABA_RL_REFRESH_IP_MAX, LABA_RL_REFRESH_IP_WINDOW
//   - LABA_RL_MAX_KEYS, LABA_RL_REFRESH_MAX_KEYS
//
// A max of 0 disables the budget. Returns ErrConfig on invalid values.
func LoadBudgetsFromEnv() (Budgets, error) {
	b := DefaultBudgets()

	for _, item := range []struct {
		prefix string
		dst    *Budget
	}{
		{"LABA_RL_LOGIN_USER", &b.LoginUser},
		{"LABA_RL_LOGIN_IP", &b.LoginIP},
		{"LABA_RL_REGISTER_IP", &b.RegisterIP},
		{"LABA_RL_REFRESH_IP", &b.RefreshIP},
	} {
		if v := os.Getenv(item.prefix + "_MAX"); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < 0 {
				return Budgets{}, ErrConfig
			}
			item.dst.Max = n
		}
		if v := os.Getenv(item.prefix + "_WINDOW"); v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil || d <= 0 {
				return Budgets{}, ErrConfig
			}
			item.dst.Window = d
		}
	}

	if v := os.Getenv("LABA_RL_MAX_KEYS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return Budgets{}, ErrConfig
		}
		b.MaxKeys = n
	}
	if v := os.Getenv("LABA_RL_REFRESH_MAX_KEYS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return Budgets{}, ErrConfig
		}
		b.RefreshMaxKeys = n
	}

	return b, nil
}

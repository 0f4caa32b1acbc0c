package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/lock"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/ratelimit"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/security/token"
)

var testDevice = DeviceContext{UserAgent: "laba-test/1.0", IP: net.ParseIP("192.168.1.5")}

func TestLogin_RefreshHashesNeverCollide(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSessionsPerUser = 0
	env := newTestEnv(t, cfg)
	env.mustUser(t, "alice@example.com")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		issued := env.mustLogin(t, "alice@example.com", testDevice)
		if len(issued.RefreshToken) != 2*token.SecretBytes {
			t.Fatalf("expected %d hex chars, got %d", 2*token.SecretBytes, len(issued.RefreshToken))
		}
		h := token.HashRefreshTokenHex(issued.RefreshToken)
		if seen[h] {
			t.Fatalf("refresh hash collision at login %d", i)
		}
		seen[h] = true
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	if _, err := env.svc.Login(ctx, "alice@example.com", "wrong password!!", testDevice); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "nobody@example.com", testPassword, testDevice); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "  ALICE@example.com ", testPassword, testDevice); err != nil {
		t.Fatalf("normalized email should log in: %v", err)
	}
}

func TestRefresh_RotationThenReplayIsCompromise(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	u := env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	a := env.mustLogin(t, "alice@example.com", testDevice)

	env.clock.Advance(time.Second)
	b, err := env.svc.Refresh(ctx, a.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("Refresh(A): %v", err)
	}
	if b.RefreshToken == a.RefreshToken || b.SessionID == a.SessionID {
		t.Fatalf("expected a new token and session")
	}

	if _, err := env.svc.Refresh(ctx, a.RefreshToken, testDevice); !errors.Is(err, ErrSessionCompromised) {
		t.Fatalf("Refresh(A) again: expected ErrSessionCompromised, got %v", err)
	}

	// The kill switch revoked B as well.
	if _, err := env.svc.Refresh(ctx, b.RefreshToken, testDevice); err == nil {
		t.Fatalf("Refresh(B) after compromise must fail")
	}
	if got := env.tokenVersion(t, u.ID); got < 2 {
		t.Fatalf("expected token_version bumped, got %d", got)
	}

	select {
	case ev := <-env.notifier.events:
		if ev.Type != EventSessionCompromised || ev.UserID != u.ID || ev.EventID == "" {
			t.Fatalf("unexpected alert: %+v", ev)
		}
		if ev.IP != "192.168.1.5" {
			t.Fatalf("expected alert ip, got %q", ev.IP)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a compromise alert")
	}
}

func TestRefresh_NewTokenSucceedsExactlyOnce(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	a := env.mustLogin(t, "alice@example.com", testDevice)
	b, err := env.svc.Refresh(ctx, a.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("Refresh(A): %v", err)
	}
	if _, err := env.svc.Refresh(ctx, b.RefreshToken, testDevice); err != nil {
		t.Fatalf("Refresh(B): %v", err)
	}
	if _, err := env.svc.Refresh(ctx, b.RefreshToken, testDevice); !errors.Is(err, ErrSessionCompromised) {
		t.Fatalf("Refresh(B) again: expected ErrSessionCompromised, got %v", err)
	}
}

func TestRefresh_ReuseContainment(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSessionsPerUser = 10
	env := newTestEnv(t, cfg)
	u := env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	first := env.mustLogin(t, "alice@example.com", testDevice)
	others := []Issued{
		env.mustLogin(t, "alice@example.com", testDevice),
		env.mustLogin(t, "alice@example.com", DeviceContext{UserAgent: "phone", IP: net.ParseIP("10.1.2.3")}),
	}
	rotated, err := env.svc.Refresh(ctx, first.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	others = append(others, rotated)

	if _, err := env.svc.Refresh(ctx, first.RefreshToken, testDevice); !errors.Is(err, ErrSessionCompromised) {
		t.Fatalf("expected ErrSessionCompromised, got %v", err)
	}

	for i, iss := range others {
		if _, err := env.svc.Refresh(ctx, iss.RefreshToken, testDevice); err == nil {
			t.Fatalf("token %d refreshed after compromise", i)
		}
		if _, err := env.svc.ValidateAccessToken(ctx, iss.AccessToken); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("access token %d still valid after kill switch: %v", i, err)
		}
	}

	active, err := env.svc.ListSessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(active))
	}
}

func TestLogin_SessionCapEvictsOldest(t *testing.T) {
	const limit = 3
	cfg := testConfig(t)
	cfg.MaxSessionsPerUser = limit
	env := newTestEnv(t, cfg)
	u := env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	var issued []Issued
	for i := 0; i < limit+1; i++ {
		issued = append(issued, env.mustLogin(t, "alice@example.com", testDevice))
		env.clock.Advance(time.Second)
	}

	active, err := env.svc.ListSessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(active) != limit {
		t.Fatalf("expected %d active, got %d", limit, len(active))
	}
	for _, r := range active {
		if r.ID == issued[0].SessionID {
			t.Fatalf("oldest session should have been evicted")
		}
	}
	if active[0].ID != issued[limit].SessionID {
		t.Fatalf("expected newest first")
	}

	oldest, err := env.store.GetByHash(ctx, token.HashRefreshTokenHex(issued[0].RefreshToken))
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if oldest.RevokedAt == nil || oldest.RevocationReason == nil || *oldest.RevocationReason != ReasonSessionLimit {
		t.Fatalf("expected oldest revoked with reason %q, got %+v", ReasonSessionLimit, oldest)
	}
}

func TestLogin_SessionCapReject(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSessionsPerUser = 1
	cfg.SessionLimitPolicy = PolicyReject
	env := newTestEnv(t, cfg)
	env.mustUser(t, "alice@example.com")

	env.mustLogin(t, "alice@example.com", testDevice)
	if _, err := env.svc.Login(context.Background(), "alice@example.com", testPassword, testDevice); !errors.Is(err, ErrSessionLimitReached) {
		t.Fatalf("expected ErrSessionLimitReached, got %v", err)
	}
	if env.store.Len() != 1 {
		t.Fatalf("rejected login must not persist a record, have %d", env.store.Len())
	}
}

func TestLogin_RateLimitedPerEmail(t *testing.T) {
	clock := newTestClock()
	budgets := ratelimit.DefaultBudgets()
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(100), ratelimit.WithClock(clock.Now))

	cfg := testConfig(t)
	cfg.MaxSessionsPerUser = 0
	env := newTestEnv(t, cfg, WithLimiter(limiter, budgets), WithClock(clock.Now))
	env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	for i := 0; i < budgets.LoginUser.Max; i++ {
		// Vary the IP so only the per-email budget is exercised.
		dev := DeviceContext{UserAgent: "ua", IP: net.IPv4(10, 0, 0, byte(i+1))}
		if _, err := env.svc.Login(ctx, "alice@example.com", "wrong password!!", dev); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := env.svc.Login(ctx, "alice@example.com", testPassword, testDevice)
	rl, ok := ratelimit.AsError(err)
	if !ok {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rl.Budget != ratelimit.LoginUser || rl.RetryAfterSeconds() <= 0 {
		t.Fatalf("unexpected rate limit error: %+v", rl)
	}

	clock.Advance(budgets.LoginUser.Window)
	if _, err := env.svc.Login(ctx, "alice@example.com", testPassword, testDevice); err != nil {
		t.Fatalf("expected login after window, got %v", err)
	}
}

func TestRefresh_RateLimitedPerIP(t *testing.T) {
	budgets := ratelimit.DefaultBudgets()
	budgets.RefreshIP.Max = 2
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(100),
		ratelimit.WithBudgetBackend(ratelimit.RefreshIP, ratelimit.NewMemoryBackend(budgets.RefreshMaxKeys)))

	env := newTestEnv(t, testConfig(t), WithLimiter(limiter, budgets))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Refresh(ctx, "unknown", testDevice); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	}
	if _, err := env.svc.Refresh(ctx, "unknown", testDevice); !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.RefreshTokenTTL = time.Hour
	env := newTestEnv(t, cfg)
	env.mustUser(t, "alice@example.com")

	a := env.mustLogin(t, "alice@example.com", testDevice)
	env.clock.Advance(time.Hour + time.Second)

	if _, err := env.svc.Refresh(context.Background(), a.RefreshToken, testDevice); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefresh_UnknownOrMalformedToken(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	ctx := context.Background()

	for _, raw := range []string{"", "   ", "deadbeef", string(make([]byte, maxRefreshTokenLen+1))} {
		if _, err := env.svc.Refresh(ctx, raw, testDevice); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("raw len=%d: expected ErrInvalidToken, got %v", len(raw), err)
		}
	}
}

func TestRefresh_LockHeldReturnsInProgress(t *testing.T) {
	locker := lock.NewMemoryLocker()
	env := newTestEnv(t, testConfig(t), WithLocker(locker))
	u := env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	a := env.mustLogin(t, "alice@example.com", testDevice)
	if !locker.Acquire(ctx, u.ID, time.Minute) {
		t.Fatalf("pre-acquire failed")
	}

	if _, err := env.svc.Refresh(ctx, a.RefreshToken, testDevice); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("expected ErrRefreshInProgress, got %v", err)
	}

	locker.Release(ctx, u.ID)
	if _, err := env.svc.Refresh(ctx, a.RefreshToken, testDevice); err != nil {
		t.Fatalf("Refresh after release: %v", err)
	}
}

func TestRefresh_DeviceMismatchDoesNotBlock(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	env.mustUser(t, "alice@example.com")

	a := env.mustLogin(t, "alice@example.com", testDevice)
	other := DeviceContext{UserAgent: "curl/8", IP: net.ParseIP("203.0.113.9")}
	if _, err := env.svc.Refresh(context.Background(), a.RefreshToken, other); err != nil {
		t.Fatalf("device mismatch must not block refresh: %v", err)
	}
}

func TestRefresh_ConcurrentRotationHasOneWinner(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	env.mustUser(t, "alice@example.com")
	a := env.mustLogin(t, "alice@example.com", testDevice)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Refresh(context.Background(), a.RefreshToken, testDevice)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrSessionCompromised) && !errors.Is(err, ErrRefreshInProgress) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", successes)
	}
}

func TestRefresh_AlertFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	env.notifier.err = errors.New("webhook down")
	env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	a := env.mustLogin(t, "alice@example.com", testDevice)
	if _, err := env.svc.Refresh(ctx, a.RefreshToken, testDevice); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, a.RefreshToken, testDevice); !errors.Is(err, ErrSessionCompromised) {
		t.Fatalf("expected ErrSessionCompromised, got %v", err)
	}
}

type brokenStore struct{ *MemoryStore }

func (brokenStore) GetByHash(context.Context, string) (Record, error) {
	return Record{}, errors.New("connection reset")
}

func TestRefresh_StoreErrorFailsClosed(t *testing.T) {
	cfg := testConfig(t)
	tokens, err := NewAccessTokenManager(cfg)
	if err != nil {
		t.Fatalf("NewAccessTokenManager: %v", err)
	}
	svc := NewService(cfg, brokenStore{NewMemoryStore()}, nil, tokens)

	_, err = svc.Refresh(context.Background(), "some-token", testDevice)
	if err == nil || errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected a hard store error, got %v", err)
	}
}

func TestLogout_IsIdempotent(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	u := env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	a := env.mustLogin(t, "alice@example.com", testDevice)
	for i := 0; i < 2; i++ {
		if err := env.svc.Logout(ctx, a.RefreshToken); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
	}
	if err := env.svc.Logout(ctx, "never-issued"); err != nil {
		t.Fatalf("Logout unknown: %v", err)
	}

	active, _ := env.svc.ListSessions(ctx, u.ID)
	if len(active) != 0 {
		t.Fatalf("expected no active sessions after logout")
	}
	rec, err := env.store.GetByHash(ctx, token.HashRefreshTokenHex(a.RefreshToken))
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if rec.RevocationReason == nil || *rec.RevocationReason != ReasonLogout {
		t.Fatalf("expected reason %q, got %v", ReasonLogout, rec.RevocationReason)
	}
}

func TestRevokeAll_KillSwitch(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	u := env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	if err := env.svc.RevokeAll(ctx, u.ID); err != nil {
		t.Fatalf("RevokeAll with zero sessions: %v", err)
	}
	if got := env.tokenVersion(t, u.ID); got != 2 {
		t.Fatalf("expected token_version=2, got %d", got)
	}

	a := env.mustLogin(t, "alice@example.com", testDevice)
	if _, err := env.svc.ValidateAccessToken(ctx, a.AccessToken); err != nil {
		t.Fatalf("ValidateAccessToken before revoke: %v", err)
	}

	if err := env.svc.RevokeAll(ctx, u.ID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if _, err := env.svc.ValidateAccessToken(ctx, a.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after kill switch, got %v", err)
	}
	active, _ := env.svc.ListSessions(ctx, u.ID)
	if len(active) != 0 {
		t.Fatalf("expected all sessions revoked, got %d", len(active))
	}
}

func TestRefresh_AccessTokenCarriesCurrentTokenVersion(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	u := env.mustUser(t, "alice@example.com")
	ctx := context.Background()

	a := env.mustLogin(t, "alice@example.com", testDevice)
	if _, err := env.users.IncrementTokenVersion(ctx, u.ID); err != nil {
		t.Fatalf("IncrementTokenVersion: %v", err)
	}

	b, err := env.svc.Refresh(ctx, a.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := env.svc.ValidateAccessToken(ctx, b.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.TokenVersion != 2 || claims.UserID != u.ID || claims.Email != u.Email {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/identity"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/device"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/lock"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/ratelimit"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/metrics"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/security/token"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// maxRefreshTokenLen bounds presented refresh tokens before hashing.
const maxRefreshTokenLen = 512

// Service implements login, refresh rotation with reuse detection, logout and
// global revocation.
type Service struct {
	cfg    Config
	store  Store
	users  UserStore
	tokens AccessTokenManager

	limiter  *ratelimit.Limiter
	budgets  ratelimit.Budgets
	locker   lock.Locker
	fp       device.Fingerprinter
	notifier Notifier
	log      *slog.Logger
	metrics  *metrics.Auth
	now      func() time.Time

	alerts sync.WaitGroup
}

// Issued is the result of a login or rotation.
type Issued struct {
	SessionID    string
	UserID       string
	Email        string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter enables rate limiting with the given budgets.
func WithLimiter(l *ratelimit.Limiter, b ratelimit.Budgets) Option {
	return func(s *Service) {
		s.limiter = l
		s.budgets = b
	}
}

// WithLocker sets the advisory refresh lock. Default is lock.NoopLocker.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithFingerprinter overrides the device fingerprinter.
func WithFingerprinter(f device.Fingerprinter) Option {
	return func(s *Service) {
		if f != nil {
			s.fp = f
		}
	}
}

// WithNotifier sets the compromise alert channel. Default drops alerts.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Auth) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, users UserStore, tokens AccessTokenManager, opts ...Option) *Service {
	if cfg.SessionLimitPolicy == "" {
		cfg.SessionLimitPolicy = PolicyEvictOldest
	}
	if cfg.RefreshLockTTL <= 0 {
		cfg.RefreshLockTTL = DefaultConfig().RefreshLockTTL
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		users:    users,
		tokens:   tokens,
		locker:   lock.NoopLocker{},
		fp:       device.SubnetFingerprinter{},
		notifier: NoopNotifier{},
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Register creates a user. Conflicts surface as identity.ConflictError.
func (s *Service) Register(ctx context.Context, email, password string, dev DeviceContext) (identity.User, error) {
	if dev.IP != nil {
		if err := s.limiter.Allow(ctx, s.budgets.RegisterIP, dev.IP.String()); err != nil {
			return identity.User{}, err
		}
	}

	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{Email: email, Password: password, Now: s.now()})
	if err != nil {
		return identity.User{}, err
	}
	s.log.Info("auth.register.ok", "user_id", u.ID)
	return u, nil
}

// Login authenticates email/password and issues a new session.
func (s *Service) Login(ctx context.Context, email, password string, dev DeviceContext) (Issued, error) {
	norm := identity.NormalizeEmail(email)

	if err := s.limiter.Allow(ctx, s.budgets.LoginUser, norm); err != nil {
		s.metrics.Login("rate_limited")
		return Issued{}, err
	}
	if dev.IP != nil {
		if err := s.limiter.Allow(ctx, s.budgets.LoginIP, dev.IP.String()); err != nil {
			s.metrics.Login("rate_limited")
			return Issued{}, err
		}
	}

	u, err := s.users.FindByEmail(ctx, norm)
	if err != nil {
		if identity.IsNotFound(err) {
			// Same cost as a real verification so timing does not reveal existence.
			s.users.DummyVerify(password)
			s.metrics.Login("invalid_credentials")
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, fmt.Errorf("session: find user: %w", err)
	}
	if !s.users.VerifyPassword(u.PasswordHash, password) {
		s.metrics.Login("invalid_credentials")
		return Issued{}, ErrInvalidCredentials
	}

	now := s.now()
	rec, plain, err := s.newRecord(now, u.ID, dev)
	if err != nil {
		return Issued{}, err
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := s.enforceSessionCap(ctx, tx, u.ID, now); err != nil {
			return err
		}
		return tx.Create(ctx, rec)
	})
	if err != nil {
		if errors.Is(err, ErrSessionLimitReached) {
			s.metrics.Login("session_limit")
			return Issued{}, err
		}
		return Issued{}, fmt.Errorf("session: login: %w", err)
	}

	issued, err := s.issue(u, rec, plain, now)
	if err != nil {
		return Issued{}, err
	}
	s.metrics.Login("ok")
	s.log.Info("auth.login.ok", "user_id", u.ID, "session_id", rec.ID)
	return issued, nil
}

// enforceSessionCap runs inside the login transaction.
func (s *Service) enforceSessionCap(ctx context.Context, tx Tx, userID string, now time.Time) error {
	limit := s.cfg.MaxSessionsPerUser
	if limit <= 0 {
		return nil
	}

	active, err := tx.ListActiveForUpdate(ctx, userID, now)
	if err != nil {
		return err
	}
	if len(active) < limit {
		return nil
	}
	if s.cfg.SessionLimitPolicy == PolicyReject {
		return ErrSessionLimitReached
	}

	// Oldest first; normally exactly one is over the cap.
	for _, r := range active[:len(active)-limit+1] {
		if err := tx.Revoke(ctx, r.ID, now, ReasonSessionLimit); err != nil {
			return err
		}
		s.metrics.SessionEvicted()
		s.log.Info("auth.login.session_evicted", "user_id", userID, "session_id", r.ID)
	}
	return nil
}

// Refresh rotates a refresh token.
//
// A presented token that is already revoked means it was replayed: every
// session of the user is revoked, token_version is bumped, an alert is sent
// and ErrSessionCompromised is returned.
func (s *Service) Refresh(ctx context.Context, raw string, dev DeviceContext) (Issued, error) {
	if dev.IP != nil {
		if err := s.limiter.Allow(ctx, s.budgets.RefreshIP, dev.IP.String()); err != nil {
			s.metrics.Refresh("rate_limited")
			return Issued{}, err
		}
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRefreshTokenLen {
		s.metrics.Refresh("invalid_token")
		return Issued{}, ErrInvalidToken
	}
	hash := token.HashRefreshTokenHex(raw)
	now := s.now()

	rec, err := s.store.GetByHash(ctx, hash)
	if errors.Is(err, ErrRecordNotFound) {
		s.metrics.Refresh("invalid_token")
		return Issued{}, ErrInvalidToken
	}
	if err != nil {
		return Issued{}, fmt.Errorf("session: lookup: %w", err)
	}

	// Reuse is checked before expiry: a replayed token is alarming even if expired.
	if rec.RevokedAt != nil {
		return Issued{}, s.compromised(ctx, now, rec, dev)
	}
	if !rec.ExpiresAt.After(now) {
		s.metrics.Refresh("expired")
		return Issued{}, ErrTokenExpired
	}

	if fp := s.fp.Fingerprint(dev.UserAgent, dev.IP); rec.DeviceHash != "" && fp != rec.DeviceHash {
		s.metrics.DeviceMismatch()
		s.log.Warn("auth.refresh.device_mismatch", "user_id", rec.UserID, "session_id", rec.ID)
	}

	if !s.locker.Acquire(ctx, rec.UserID, s.cfg.RefreshLockTTL) {
		s.metrics.Refresh("in_progress")
		return Issued{}, ErrRefreshInProgress
	}
	defer s.locker.Release(context.WithoutCancel(ctx), rec.UserID)

	next, plain, err := s.newRecord(now, rec.UserID, dev)
	if err != nil {
		return Issued{}, err
	}

	var replayed *Record
	err = s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetByHashForUpdate(ctx, hash)
		if err != nil {
			return err
		}
		// A concurrent rotation won the race; the loser holds a replayed token.
		if cur.RevokedAt != nil {
			replayed = &cur
			return nil
		}
		if !cur.ExpiresAt.After(now) {
			return ErrTokenExpired
		}
		if err := tx.Create(ctx, next); err != nil {
			return err
		}
		return tx.MarkRotated(ctx, cur.ID, next.ID, now)
	})
	switch {
	case errors.Is(err, ErrRecordNotFound):
		s.metrics.Refresh("invalid_token")
		return Issued{}, ErrInvalidToken
	case errors.Is(err, ErrTokenExpired):
		s.metrics.Refresh("expired")
		return Issued{}, err
	case err != nil:
		return Issued{}, fmt.Errorf("session: rotate: %w", err)
	}
	if replayed != nil {
		return Issued{}, s.compromised(ctx, now, *replayed, dev)
	}

	// Reload so a kill switch that fired concurrently is reflected in the access token.
	u, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Issued{}, ErrInvalidToken
		}
		return Issued{}, fmt.Errorf("session: load user: %w", err)
	}

	issued, err := s.issue(u, next, plain, now)
	if err != nil {
		return Issued{}, err
	}
	s.metrics.Refresh("ok")
	s.log.Info("auth.refresh.rotated", "user_id", u.ID, "session_id", next.ID, "previous_id", rec.ID)
	return issued, nil
}

func (s *Service) compromised(ctx context.Context, now time.Time, rec Record, dev DeviceContext) error {
	ip := ""
	if dev.IP != nil {
		ip = dev.IP.String()
	}
	s.metrics.ReuseDetected()
	s.metrics.Refresh("compromised")
	s.log.Warn("auth.refresh.reuse_detected", "user_id", rec.UserID, "session_id", rec.ID, "ip", ip)

	n, err := s.store.RevokeAllForUser(ctx, rec.UserID, now, ReasonReuseDetected)
	if err != nil {
		return fmt.Errorf("session: revoke on reuse: %w", err)
	}
	if _, err := s.users.IncrementTokenVersion(ctx, rec.UserID); err != nil {
		return fmt.Errorf("session: bump token version: %w", err)
	}
	s.log.Warn("auth.session.kill_switch", "user_id", rec.UserID, "revoked", n)

	s.alert(CompromiseEvent{
		EventID:    uuid.NewString(),
		Type:       EventSessionCompromised,
		UserID:     rec.UserID,
		IP:         ip,
		UserAgent:  dev.UserAgent,
		OccurredAt: now,
	})
	return ErrSessionCompromised
}

// alert delivers ev in the background, detached from the request context.
func (s *Service) alert(ev CompromiseEvent) {
	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.alertTimeout())
		defer cancel()

		if err := s.notifier.SessionCompromised(ctx, ev); err != nil {
			s.metrics.Alert("failed")
			s.log.Warn("auth.alert.fail", "event_id", ev.EventID, "user_id", ev.UserID, "err", err)
			return
		}
		s.metrics.Alert("sent")
	}()
}

func (s *Service) alertTimeout() time.Duration {
	if s.cfg.AlertWebhookTimeout > 0 {
		return s.cfg.AlertWebhookTimeout
	}
	return DefaultConfig().AlertWebhookTimeout
}

// Wait blocks until in-flight alerts have finished.
func (s *Service) Wait() { s.alerts.Wait() }

// Logout revokes the session behind raw. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRefreshTokenLen {
		return nil
	}
	err := s.store.RevokeByHash(ctx, token.HashRefreshTokenHex(raw), s.now(), ReasonLogout)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("session: logout: %w", err)
	}
	return nil
}

// RevokeAll bumps token_version and revokes every session of the user.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	if _, err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		return fmt.Errorf("session: bump token version: %w", err)
	}
	n, err := s.store.RevokeAllForUser(ctx, userID, s.now(), ReasonRevokeAll)
	if err != nil {
		return fmt.Errorf("session: revoke all: %w", err)
	}
	s.log.Info("auth.session.revoke_all", "user_id", userID, "revoked", n)
	return nil
}

// ValidateAccessToken verifies token and checks its token_version against the user record.
func (s *Service) ValidateAccessToken(ctx context.Context, tok string) (AccessClaims, error) {
	claims, err := s.tokens.Verify(tok, s.now())
	if err != nil {
		return AccessClaims{}, err
	}

	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return AccessClaims{}, ErrInvalidToken
		}
		return AccessClaims{}, fmt.Errorf("session: load user: %w", err)
	}
	if u.TokenVersion != claims.TokenVersion {
		return AccessClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// ListSessions returns the user's active sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]Record, error) {
	return s.store.ListActive(ctx, userID, s.now())
}

func (s *Service) newRecord(now time.Time, userID string, dev DeviceContext) (Record, string, error) {
	plain, hash, err := token.NewSecret()
	if err != nil {
		return Record{}, "", fmt.Errorf("session: new secret: %w", err)
	}
	return Record{
		ID:         ulid.Make().String(),
		UserID:     userID,
		TokenHash:  hash,
		DeviceHash: s.fp.Fingerprint(dev.UserAgent, dev.IP),
		DeviceInfo: device.NewInfo(dev.UserAgent, dev.IP),
		ExpiresAt:  now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt:  now,
	}, plain, nil
}

func (s *Service) issue(u identity.User, rec Record, plain string, now time.Time) (Issued, error) {
	access, accessExp, err := s.tokens.Issue(u.ID, u.Email, u.TokenVersion, now)
	if err != nil {
		return Issued{}, fmt.Errorf("session: issue access token: %w", err)
	}
	return Issued{
		SessionID:    rec.ID,
		UserID:       u.ID,
		Email:        u.Email,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: plain,
		RefreshExp:   rec.ExpiresAt,
	}, nil
}

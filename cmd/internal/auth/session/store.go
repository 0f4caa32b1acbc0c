package session

import (
	"context"
	"net"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/device"
)

// Revocation reasons persisted with revoked_at.
const (
	ReasonRotation      = "rotation"
	ReasonLogout        = "logout"
	ReasonSessionLimit  = "session_limit"
	ReasonReuseDetected = "reuse_detected"
	ReasonRevokeAll     = "revoke_all"
)

// DeviceContext describes the client presenting a request.
type DeviceContext struct {
	UserAgent string
	IP        net.IP
}

// Record mirrors a laba.refresh_tokens row.
type Record struct {
	ID         string
	UserID     string
	TokenHash  string
	DeviceHash string
	DeviceInfo device.Info
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time

	RevocationReason *string
	ReplacedByID     *string
}

// Active reports whether the record is neither revoked nor expired at now.
func (r Record) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}

// Store persists refresh token records.
//
// revoked_at is set at most once and never cleared. Implementations must make
// InTx atomic: either every Tx write commits or none does.
type Store interface {
	// InTx runs fn in one transaction. A non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(Tx) error) error

	// GetByHash loads a record by token hash without locking.
	GetByHash(ctx context.Context, tokenHash string) (Record, error)

	// ListActive returns the user's active records, newest first.
	ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error)

	// RevokeByHash revokes one record. No match returns ErrRecordNotFound.
	RevokeByHash(ctx context.Context, tokenHash string, now time.Time, reason string) error

	// RevokeAllForUser revokes every non-revoked record of the user and returns the count.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time, reason string) (int, error)

	// DeleteStale deletes up to limit records whose expires_at or revoked_at is before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Tx is the transactional subset used by login and rotation.
type Tx interface {
	// GetByHashForUpdate loads and row-locks a record by token hash.
	GetByHashForUpdate(ctx context.Context, tokenHash string) (Record, error)

	// ListActiveForUpdate returns and row-locks the user's active records, oldest first.
	ListActiveForUpdate(ctx context.Context, userID string, now time.Time) ([]Record, error)

	Create(ctx context.Context, rec Record) error

	// Revoke sets revoked_at on one record if it is not already revoked.
	Revoke(ctx context.Context, id string, now time.Time, reason string) error

	// MarkRotated revokes oldID and links it to newID.
	MarkRotated(ctx context.Context, oldID, newID string, now time.Time) error
}

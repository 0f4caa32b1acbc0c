package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `
	id, user_id, token_hash, device_hash, device_info,
	expires_at, revoked_at, created_at, revocation_reason, replaced_by_id`

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL (laba.refresh_tokens).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed token store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InTx implements Store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

// GetByHash implements Store.
func (s *PostgresStore) GetByHash(ctx context.Context, tokenHash string) (Record, error) {
	return getByHash(ctx, s.pool, tokenHash, false)
}

// ListActive implements Store.
func (s *PostgresStore) ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM laba.refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC, id DESC
	`, userID, now)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// RevokeByHash implements Store.
func (s *PostgresStore) RevokeByHash(ctx context.Context, tokenHash string, now time.Time, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE laba.refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE token_hash = $1
	`, tokenHash, now, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RevokeAllForUser implements Store.
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time, reason string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE laba.refresh_tokens
		SET revoked_at = $2,
		    revocation_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, now, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DeleteStale implements Store. SKIP LOCKED keeps concurrent sweeps from
// blocking on rows a rotation is holding.
func (s *PostgresStore) DeleteStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM laba.refresh_tokens
		WHERE id IN (
			SELECT id FROM laba.refresh_tokens
			WHERE expires_at < $1
			   OR (revoked_at IS NOT NULL AND revoked_at < $1)
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Ping reports whether the backing database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.TokenHash,
		&r.DeviceHash,
		&r.DeviceInfo,
		&r.ExpiresAt,
		&r.RevokedAt,
		&r.CreatedAt,
		&r.RevocationReason,
		&r.ReplacedByID,
	)
	return r, err
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		return scanRecord(row)
	})
}

func getByHash(ctx context.Context, q querier, tokenHash string, forUpdate bool) (Record, error) {
	sql := `SELECT ` + recordColumns + ` FROM laba.refresh_tokens WHERE token_hash = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	r, err := scanRecord(q.QueryRow(ctx, sql, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

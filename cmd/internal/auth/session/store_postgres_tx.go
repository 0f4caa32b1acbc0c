package session

import (
	"context"
	"time"
)

// pgTx implements Tx over a pgx transaction.
type pgTx struct {
	q querier
}

func (t pgTx) GetByHashForUpdate(ctx context.Context, tokenHash string) (Record, error) {
	return getByHash(ctx, t.q, tokenHash, true)
}

func (t pgTx) ListActiveForUpdate(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+recordColumns+`
		FROM laba.refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at, id
		FOR UPDATE
	`, userID, now)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (t pgTx) Create(ctx context.Context, rec Record) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO laba.refresh_tokens (
			id, user_id, token_hash, device_hash, device_info,
			expires_at, revoked_at, created_at, revocation_reason, replaced_by_id
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, NULL, $7, NULL, NULL
		)
	`, rec.ID, rec.UserID, rec.TokenHash, rec.DeviceHash, rec.DeviceInfo, rec.ExpiresAt, rec.CreatedAt)
	return err
}

func (t pgTx) Revoke(ctx context.Context, id string, now time.Time, reason string) error {
	_, err := t.q.Exec(ctx, `
		UPDATE laba.refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, id, now, reason)
	return err
}

func (t pgTx) MarkRotated(ctx context.Context, oldID, newID string, now time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE laba.refresh_tokens
		SET revoked_at = $2,
		    replaced_by_id = $3,
		    revocation_reason = 'rotation'
		WHERE id = $1 AND revoked_at IS NULL
	`, oldID, now, newID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

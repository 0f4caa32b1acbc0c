package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for dev mode and tests.
//
// InTx holds the store mutex for the whole callback, which serializes
// transactions the way row locks would, and undoes writes when fn fails.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Record
	byHash map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Record),
		byHash: make(map[string]string),
	}
}

// InTx implements Store.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// GetByHash implements Store.
func (s *MemoryStore) GetByHash(ctx context.Context, tokenHash string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getByHashLocked(tokenHash)
}

// ListActive implements Store.
func (s *MemoryStore) ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.activeLocked(userID, now)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RevokeByHash implements Store.
func (s *MemoryStore) RevokeByHash(ctx context.Context, tokenHash string, now time.Time, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return ErrRecordNotFound
	}
	revoke(s.byID[id], now, reason)
	return nil
}

// RevokeAllForUser implements Store.
func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time, reason string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.byID {
		if r.UserID == userID && r.RevokedAt == nil {
			revoke(r, now, reason)
			n++
		}
	}
	return n, nil
}

// DeleteStale implements Store.
func (s *MemoryStore) DeleteStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := make([]*Record, 0)
	for _, r := range s.byID {
		if r.ExpiresAt.Before(cutoff) || (r.RevokedAt != nil && r.RevokedAt.Before(cutoff)) {
			stale = append(stale, r)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	for _, r := range stale {
		delete(s.byHash, r.TokenHash)
		delete(s.byID, r.ID)
	}
	return len(stale), nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *MemoryStore) getByHashLocked(tokenHash string) (Record, error) {
	id, ok := s.byHash[tokenHash]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return cloneRecord(s.byID[id]), nil
}

// activeLocked returns active records oldest first.
func (s *MemoryStore) activeLocked(userID string, now time.Time) []Record {
	out := make([]Record, 0)
	for _, r := range s.byID {
		if r.UserID == userID && r.Active(now) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) GetByHashForUpdate(_ context.Context, tokenHash string) (Record, error) {
	return t.s.getByHashLocked(tokenHash)
}

func (t *memTx) ListActiveForUpdate(_ context.Context, userID string, now time.Time) ([]Record, error) {
	return t.s.activeLocked(userID, now), nil
}

func (t *memTx) Create(_ context.Context, rec Record) error {
	if _, ok := t.s.byID[rec.ID]; ok {
		return errors.New("session: duplicate record id")
	}
	if _, ok := t.s.byHash[rec.TokenHash]; ok {
		return errors.New("session: duplicate token hash")
	}
	r := cloneRecord(&rec)
	t.s.byID[r.ID] = &r
	t.s.byHash[r.TokenHash] = r.ID
	t.undo = append(t.undo, func() {
		delete(t.s.byID, r.ID)
		delete(t.s.byHash, r.TokenHash)
	})
	return nil
}

func (t *memTx) Revoke(_ context.Context, id string, now time.Time, reason string) error {
	r, ok := t.s.byID[id]
	if !ok || r.RevokedAt != nil {
		return nil
	}
	revoke(r, now, reason)
	t.undo = append(t.undo, func() {
		r.RevokedAt = nil
		r.RevocationReason = nil
	})
	return nil
}

func (t *memTx) MarkRotated(_ context.Context, oldID, newID string, now time.Time) error {
	r, ok := t.s.byID[oldID]
	if !ok || r.RevokedAt != nil {
		return ErrRecordNotFound
	}
	revoke(r, now, ReasonRotation)
	next := newID
	r.ReplacedByID = &next
	t.undo = append(t.undo, func() {
		r.RevokedAt = nil
		r.RevocationReason = nil
		r.ReplacedByID = nil
	})
	return nil
}

func revoke(r *Record, now time.Time, reason string) {
	if r.RevokedAt != nil {
		return
	}
	at := now
	why := reason
	r.RevokedAt = &at
	r.RevocationReason = &why
}

func cloneRecord(r *Record) Record {
	out := *r
	if r.RevokedAt != nil {
		at := *r.RevokedAt
		out.RevokedAt = &at
	}
	if r.RevocationReason != nil {
		why := *r.RevocationReason
		out.RevocationReason = &why
	}
	if r.ReplacedByID != nil {
		next := *r.ReplacedByID
		out.ReplacedByID = &next
	}
	return out
}

package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/security/password"
)

// MemoryStore is a process-local Store for dev mode and tests.
type MemoryStore struct {
	hasher *password.Hasher

	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryStore constructs an empty in-memory user store.
func NewMemoryStore(hasher *password.Hasher) *MemoryStore {
	return &MemoryStore{
		hasher:  hasher,
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// CreateUser registers a user; duplicate emails yield ConflictError.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, invalid(op, "email is required")
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, invalid(op, err.Error())
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := &User{
		ID:           id,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		PasswordHash: hash,
		TokenVersion: 1,
		CreatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.EmailNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	s.byID[u.ID] = u
	s.byEmail[u.EmailNorm] = u.ID
	return *u, nil
}

// FindByEmail loads a user by normalized email.
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, notFound("identity.FindByEmail")
	}
	return *s.byID[id], nil
}

// FindByID loads a user by id.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, notFound("identity.FindByID")
	}
	return *u, nil
}

// VerifyPassword reports whether plain matches hash.
func (s *MemoryStore) VerifyPassword(hash, plain string) bool {
	ok, err := s.hasher.Verify(hash, plain)
	return err == nil && ok
}

// DummyVerify burns one verification for timing parity.
func (s *MemoryStore) DummyVerify(plain string) { s.hasher.Dummy(plain) }

// IncrementTokenVersion bumps token_version under the write lock.
func (s *MemoryStore) IncrementTokenVersion(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return 0, notFound("identity.IncrementTokenVersion")
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

package identity

import (
	"context"
	"time"
)

// User is the security principal referenced by refresh-token records.
type User struct {
	ID           string
	Email        string
	EmailNorm    string
	PasswordHash string

	// TokenVersion is embedded in access tokens; bumping it invalidates them all.
	TokenVersion int

	CreatedAt time.Time
}

// CreateUserInput describes a registration request.
type CreateUserInput struct {
	Email    string
	Password string
	Now      time.Time
}

// Store is the user-record boundary consumed by the session engine.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)

	// VerifyPassword compares in constant time through argon2id. Malformed hashes verify false.
	VerifyPassword(hash, plain string) bool
	// DummyVerify spends one verification when no user exists.
	DummyVerify(plain string)

	// IncrementTokenVersion atomically bumps token_version and returns the new value.
	IncrementTokenVersion(ctx context.Context, userID string) (int, error)
}

package session

import (
	"context"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/identity"
)

// UserStore is the user-record collaborator. identity.Store satisfies it.
type UserStore interface {
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error)
	FindByEmail(ctx context.Context, email string) (identity.User, error)
	FindByID(ctx context.Context, id string) (identity.User, error)
	VerifyPassword(hash, plain string) bool
	// DummyVerify burns one password verification when the user does not exist.
	DummyVerify(plain string)
	// IncrementTokenVersion must be a single atomic store-level update.
	IncrementTokenVersion(ctx context.Context, userID string) (int, error)
}

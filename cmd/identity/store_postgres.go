package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/security/password"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema identifiers are validated and quoted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	hasher *password.Hasher
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "laba").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, hasher *password.Hasher, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "laba", hasher: hasher}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	if st.hasher == nil {
		return nil, errors.New("identity: nil password hasher")
	}
	return st, nil
}

func (s *PostgresStore) users() string { return pgx.Identifier{s.schema, "users"}.Sanitize() }

// CreateUser hashes the password and inserts a user with token_version 1.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

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

	u := User{
		ID:           id,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		PasswordHash: hash,
		TokenVersion: 1,
		CreatedAt:    now,
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.users()+` (id, email, email_norm, password_hash, token_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.EmailNorm, u.PasswordHash, u.TokenVersion, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// FindByEmail loads a user by normalized email.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.FindByEmail"
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, notFound(op)
	}
	return s.queryOne(ctx, op, `WHERE email_norm = $1`, norm)
}

// FindByID loads a user by id.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	const op = "identity.FindByID"
	if strings.TrimSpace(id) == "" {
		return User{}, notFound(op)
	}
	return s.queryOne(ctx, op, `WHERE id = $1`, id)
}

func (s *PostgresStore) queryOne(ctx context.Context, op, where string, arg any) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, email_norm, password_hash, token_version, created_at
		   FROM `+s.users()+` `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.PasswordHash, &u.TokenVersion, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, notFound(op)
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// VerifyPassword reports whether plain matches hash.
func (s *PostgresStore) VerifyPassword(hash, plain string) bool {
	ok, err := s.hasher.Verify(hash, plain)
	return err == nil && ok
}

// DummyVerify burns one verification for timing parity.
func (s *PostgresStore) DummyVerify(plain string) { s.hasher.Dummy(plain) }

// IncrementTokenVersion bumps token_version in a single statement.
func (s *PostgresStore) IncrementTokenVersion(ctx context.Context, userID string) (int, error) {
	const op = "identity.IncrementTokenVersion"

	var v int
	err := s.pool.QueryRow(ctx,
		`UPDATE `+s.users()+` SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version`,
		userID,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound(op)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

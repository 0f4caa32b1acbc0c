package password

import "fmt"

// Hasher binds a Config to a precomputed dummy hash.
//
// Login code calls Dummy when the account does not exist so that the
// response time does not reveal whether the email is registered.
type Hasher struct {
	cfg   Config
	dummy string
}

// NewHasher builds a Hasher and precomputes its dummy hash.
func NewHasher(cfg Config) (*Hasher, error) {
	dummy, err := cfg.hash("laba-dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("password: dummy hash: %w", err)
	}
	return &Hasher{cfg: cfg, dummy: dummy}, nil
}

// Config returns the hasher configuration.
func (h *Hasher) Config() Config { return h.cfg }

// Hash hashes a new password after policy validation.
func (h *Hasher) Hash(password string) (string, error) { return h.cfg.Hash(password) }

// Verify checks password against encoded.
func (h *Hasher) Verify(encoded, password string) (bool, error) {
	return h.cfg.Verify(encoded, password)
}

// Dummy performs one verification against the dummy hash and discards the result.
func (h *Hasher) Dummy(password string) {
	_, _ = h.cfg.Verify(h.dummy, password)
}

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/identity"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/security/password"

	paseto "aidanwoods.dev/go-paseto"
)

const testPassword = "correct horse battery staple"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	events chan CompromiseEvent
	err    error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan CompromiseEvent, 64)}
}

func (n *recordingNotifier) SessionCompromised(_ context.Context, ev CompromiseEvent) error {
	n.events <- ev
	return n.err
}

type testEnv struct {
	svc      *Service
	store    *MemoryStore
	users    *identity.MemoryStore
	clock    *testClock
	notifier *recordingNotifier
	tokens   AccessTokenManager
}

func testHasher(t *testing.T) *password.Hasher {
	t.Helper()
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	h, err := password.NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	return cfg
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	tokens, err := NewAccessTokenManager(cfg)
	if err != nil {
		t.Fatalf("NewAccessTokenManager: %v", err)
	}

	env := &testEnv{
		store:    NewMemoryStore(),
		users:    identity.NewMemoryStore(testHasher(t)),
		clock:    newTestClock(),
		notifier: newRecordingNotifier(),
		tokens:   tokens,
	}
	base := []Option{WithClock(env.clock.Now), WithNotifier(env.notifier)}
	env.svc = NewService(cfg, env.store, env.users, tokens, append(base, opts...)...)
	t.Cleanup(env.svc.Wait)
	return env
}

func (e *testEnv) mustUser(t *testing.T, email string) identity.User {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), identity.CreateUserInput{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (e *testEnv) mustLogin(t *testing.T, email string, dev DeviceContext) Issued {
	t.Helper()
	issued, err := e.svc.Login(context.Background(), email, testPassword, dev)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return issued
}

func (e *testEnv) tokenVersion(t *testing.T, userID string) int {
	t.Helper()
	u, err := e.users.FindByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	return u.TokenVersion
}

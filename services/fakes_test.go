package services

import (
	"context"
	"sync"
	"time"

	"github.com/snoreguard/panel/adapters/memory"
	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
	"github.com/snoreguard/panel/pkg/crypto"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// faults lists the failures a test can inject.
type faults struct {
	getUserErr    error
	createUserErr error
	getSessionErr error
	createSessErr error
	deleteSessErr error
	sweepErr      error
	appendErr     error
	appendPanic   bool
	appendDelay   time.Duration
	lastLoginErr  error
}

// faultyStore wraps the memory store and lets a test inject failures per
// operation.
type faultyStore struct {
	*memory.Store

	mu         sync.Mutex
	faults     faults
	sweepCalls int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New()}
}

func (f *faultyStore) set(fn func(f *faults)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.faults)
}

func (f *faultyStore) snapshot() faults {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults
}

func (f *faultyStore) CreateUser(ctx context.Context, u *core.User) error {
	if err := f.snapshot().createUserErr; err != nil {
		return err
	}
	return f.Store.CreateUser(ctx, u)
}

func (f *faultyStore) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	if err := f.snapshot().getUserErr; err != nil {
		return nil, err
	}
	return f.Store.GetUserByID(ctx, id)
}

func (f *faultyStore) GetUserByUsername(ctx context.Context, name string) (*core.User, error) {
	if err := f.snapshot().getUserErr; err != nil {
		return nil, err
	}
	return f.Store.GetUserByUsername(ctx, name)
}

func (f *faultyStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	if err := f.snapshot().lastLoginErr; err != nil {
		return err
	}
	return f.Store.UpdateLastLogin(ctx, id, at)
}

func (f *faultyStore) CreateSession(ctx context.Context, s *core.Session) error {
	if err := f.snapshot().createSessErr; err != nil {
		return err
	}
	return f.Store.CreateSession(ctx, s)
}

func (f *faultyStore) GetSessionByHash(ctx context.Context, h string) (*core.Session, error) {
	if err := f.snapshot().getSessionErr; err != nil {
		return nil, err
	}
	return f.Store.GetSessionByHash(ctx, h)
}

func (f *faultyStore) DeleteSessionByHash(ctx context.Context, h string) error {
	if err := f.snapshot().deleteSessErr; err != nil {
		return err
	}
	return f.Store.DeleteSessionByHash(ctx, h)
}

func (f *faultyStore) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	f.sweepCalls++
	err := f.faults.sweepErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.Store.DeleteExpiredSessions(ctx, before)
}

func (f *faultyStore) sweeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweepCalls
}

func (f *faultyStore) AppendAudit(ctx context.Context, e *core.AuditEntry) error {
	snap := f.snapshot()
	if snap.appendDelay > 0 {
		time.Sleep(snap.appendDelay)
	}
	if snap.appendPanic {
		panic("audit store exploded")
	}
	if snap.appendErr != nil {
		return snap.appendErr
	}
	return f.Store.AppendAudit(ctx, e)
}

// manualClock is a settable time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func cheapHasher() *crypto.Argon2 {
	return &crypto.Argon2{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// recordedActivity collects entries synchronously.
type recordedActivity struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func (r *recordedActivity) Record(_ context.Context, userID *int64, level core.LogLevel, message string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, core.AuditEntry{UserID: userID, Level: level, Message: message, Context: fields})
}

func (r *recordedActivity) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Message)
	}
	return out
}

type testEnv struct {
	store       *faultyStore
	clock       *manualClock
	credentials *CredentialStore
	sessions    *SessionManager
	activity    *recordedActivity
	auth        *AuthService
}

func newTestEnv(cache core.Cache) *testEnv {
	store := newFaultyStore()
	clock := newManualClock()
	credentials := NewCredentialStore(store, cheapHasher(), logging.Nop())
	sessions := NewSessionManager(core.DefaultSessionConfig(), store, cache, testSecret, WithClock(clock.Now))
	activity := &recordedActivity{}
	auth := NewAuthService(credentials, sessions, activity, store, logging.Nop())
	auth.now = clock.Now

	return &testEnv{
		store:       store,
		clock:       clock,
		credentials: credentials,
		sessions:    sessions,
		activity:    activity,
		auth:        auth,
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
	"github.com/snoreguard/panel/pkg/crypto"
)

// SessionManager issues, resolves and revokes opaque session tokens.
// Only the keyed hash of a token ever reaches storage or the cache.
type SessionManager struct {
	config  core.SessionConfig
	storage core.SessionStorage
	cache   core.Cache // optional, can be nil if caching is disabled
	secret  []byte
	logger  logging.Logger
	now     func() time.Time
}

type SessionOption func(*SessionManager)

// WithClock overrides the time source for issuing and expiring sessions.
func WithClock(now func() time.Time) SessionOption {
	return func(sm *SessionManager) { sm.now = now }
}

func WithSessionLogger(l logging.Logger) SessionOption {
	return func(sm *SessionManager) { sm.logger = l }
}

func NewSessionManager(config core.SessionConfig, storage core.SessionStorage, cache core.Cache, secret []byte, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		config:  config,
		storage: storage,
		cache:   cache,
		secret:  secret,
		logger:  logging.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(sm)
	}
	sm.logger = sm.logger.With("component", "sessions")
	return sm
}

func (sm *SessionManager) Config() core.SessionConfig {
	return sm.config
}

// Create issues a session for userID that expires ttl from now. A ttl of
// zero or less produces a session that is already expired.
func (sm *SessionManager) Create(ctx context.Context, userID int64, ip, userAgent string, ttl time.Duration) (*core.CreateSessionResult, error) {
	// Generate cryptographic material
	pair, err := crypto.GenerateHashedToken(sm.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if ttl < 0 {
		ttl = 0
	}

	now := sm.now().UTC()
	session := &core.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: pair.Hash,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := sm.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// We don't fail the request if caching fails
	if sm.cache != nil {
		_ = sm.cache.Set(pair.Hash, session)
	}

	return &core.CreateSessionResult{Session: session, Token: pair.Token}, nil
}

// Lookup resolves a raw token. It returns core.ErrSessionNotFound for an
// unknown token and core.ErrSessionExpired once now reaches the expiry.
func (sm *SessionManager) Lookup(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrSessionNotFound
	}

	tokenHash := crypto.HashToken(sm.secret, token)
	now := sm.now()

	if sm.cache != nil {
		if session, err := sm.cache.Get(tokenHash); err == nil {
			if session.Expired(now) {
				_ = sm.cache.Delete(tokenHash)
				return nil, core.ErrSessionExpired
			}
			return session, nil
		}
	}

	session, err := sm.storage.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Expired(now) {
		return nil, core.ErrSessionExpired
	}

	if sm.cache != nil {
		_ = sm.cache.Set(tokenHash, session)
	}

	return session, nil
}

// Revoke deletes the session for token. Unknown tokens are not an error.
func (sm *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	tokenHash := crypto.HashToken(sm.secret, token)

	// drop the cached copy first so a concurrent lookup cannot resurrect it
	if sm.cache != nil {
		_ = sm.cache.Delete(tokenHash)
	}

	if err := sm.storage.DeleteSessionByHash(ctx, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if sm.cache != nil {
		_ = sm.cache.Delete(tokenHash)
	}
	return nil
}

// RevokeAllForUser deletes every session belonging to userID.
func (sm *SessionManager) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	count, err := sm.storage.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}

	if sm.cache != nil {
		_ = sm.cache.DeleteUser(userID)
	}

	return count, nil
}

// SweepExpired bulk-deletes sessions whose expiry has passed.
func (sm *SessionManager) SweepExpired(ctx context.Context) (int, error) {
	n, err := sm.storage.DeleteExpiredSessions(ctx, sm.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	if n > 0 {
		sm.logger.Info(ctx, "expired sessions removed", "count", n)
	}
	return n, nil
}

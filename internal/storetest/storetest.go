// Package storetest holds the behavior every core.AuthStorage adapter must
// share. Adapter packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoreguard/panel/core"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) core.AuthStorage

// base is microsecond precise so every backend round-trips it unchanged.
var base = time.Date(2024, 3, 1, 22, 0, 0, 123456000, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateUser", func(t *testing.T) { testCreateUser(t, newStore(t)) })
	t.Run("UniqueUsers", func(t *testing.T) { testUniqueUsers(t, newStore(t)) })
	t.Run("ConcurrentRegistration", func(t *testing.T) { testConcurrentRegistration(t, newStore(t)) })
	t.Run("UserUpdates", func(t *testing.T) { testUserUpdates(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("SweepExpired", func(t *testing.T) { testSweepExpired(t, newStore(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newStore(t)) })
	t.Run("Detections", func(t *testing.T) { testDetections(t, newStore(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, newStore(t)) })
}

func NewUser(name string) *core.User {
	return &core.User{
		Username:     name,
		Email:        name + "@example.com",
		FullName:     "User " + name,
		PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$aGFzaA",
		PasswordSalt: "c2FsdA",
		CreatedAt:    base,
		IsActive:     true,
	}
}

func testCreateUser(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()
	u := NewUser("alice")

	require.NoError(t, s.CreateUser(ctx, u))
	assert.Positive(t, u.ID)

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	byName, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)

	for _, got := range []*core.User{byID, byName} {
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.Equal(t, "User alice", got.FullName)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)
		assert.Equal(t, u.PasswordSalt, got.PasswordSalt)
		assert.True(t, base.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)
		assert.Nil(t, got.LastLogin)
		assert.True(t, got.IsActive)
	}

	_, err = s.GetUserByID(ctx, u.ID+1000)
	assert.ErrorIs(t, err, core.ErrUserNotFound)
	_, err = s.GetUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func testUniqueUsers(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, NewUser("alice")))

	sameName := NewUser("alice")
	sameName.Email = "other@example.com"
	assert.ErrorIs(t, s.CreateUser(ctx, sameName), core.ErrUniqueViolation)

	sameEmail := NewUser("bob")
	sameEmail.Email = "alice@example.com"
	assert.ErrorIs(t, s.CreateUser(ctx, sameEmail), core.ErrUniqueViolation)

	require.NoError(t, s.CreateUser(ctx, NewUser("bob")))
}

func testConcurrentRegistration(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()

	var wins, conflicts int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := NewUser("racer")
			u.Email = fmt.Sprintf("racer%d@example.com", i)
			err := s.CreateUser(ctx, u)
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case assert.ErrorIs(t, err, core.ErrUniqueViolation):
				atomic.AddInt64(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, int64(9), conflicts)
}

func testUserUpdates(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()
	a := NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, a))
	require.NoError(t, s.CreateUser(ctx, NewUser("bob")))

	require.NoError(t, s.UpdateProfile(ctx, a.ID, "alice@wonderland.org", "Alice Liddell"))
	assert.ErrorIs(t, s.UpdateProfile(ctx, a.ID, "bob@example.com", "x"), core.ErrUniqueViolation)
	assert.ErrorIs(t, s.UpdateProfile(ctx, a.ID+1000, "z@example.com", "x"), core.ErrUserNotFound)

	require.NoError(t, s.UpdatePassword(ctx, a.ID, "new-hash", "new-salt"))
	assert.ErrorIs(t, s.UpdatePassword(ctx, a.ID+1000, "h", "s"), core.ErrUserNotFound)

	at := base.Add(time.Hour)
	require.NoError(t, s.UpdateLastLogin(ctx, a.ID, at))
	assert.ErrorIs(t, s.UpdateLastLogin(ctx, a.ID+1000, at), core.ErrUserNotFound)

	require.NoError(t, s.SetActive(ctx, a.ID, false))
	assert.ErrorIs(t, s.SetActive(ctx, a.ID+1000, false), core.ErrUserNotFound)

	got, err := s.GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@wonderland.org", got.Email)
	assert.Equal(t, "Alice Liddell", got.FullName)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Equal(t, "new-salt", got.PasswordSalt)
	require.NotNil(t, got.LastLogin)
	assert.True(t, at.Equal(*got.LastLogin), "last_login %v", got.LastLogin)
	assert.False(t, got.IsActive)

	// the old address is free again
	c := NewUser("carol")
	c.Email = "alice@example.com"
	require.NoError(t, s.CreateUser(ctx, c))
}

func session(id string, userID int64, expiresAt time.Time) *core.Session {
	return &core.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: "hash-" + id,
		IPAddress: "192.168.1.10",
		UserAgent: "Mozilla/5.0",
		CreatedAt: base,
		ExpiresAt: expiresAt,
	}
}

func testSessions(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()
	alice, bob := NewUser("alice"), NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	a1 := session("8a0f6f3e-0000-4000-8000-000000000001", alice.ID, base.Add(24*time.Hour))
	require.NoError(t, s.CreateSession(ctx, a1))

	got, err := s.GetSessionByHash(ctx, a1.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, got.ID)
	assert.Equal(t, alice.ID, got.UserID)
	assert.Equal(t, a1.TokenHash, got.TokenHash)
	assert.Equal(t, "192.168.1.10", got.IPAddress)
	assert.Equal(t, "Mozilla/5.0", got.UserAgent)
	assert.True(t, a1.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, a1.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v", got.ExpiresAt)

	dup := session("8a0f6f3e-0000-4000-8000-000000000002", alice.ID, base.Add(time.Hour))
	dup.TokenHash = a1.TokenHash
	assert.ErrorIs(t, s.CreateSession(ctx, dup), core.ErrUniqueViolation)

	orphan := session("8a0f6f3e-0000-4000-8000-000000000003", alice.ID+1000, base.Add(time.Hour))
	assert.ErrorIs(t, s.CreateSession(ctx, orphan), core.ErrUserNotFound)

	_, err = s.GetSessionByHash(ctx, "hash-unknown")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	require.NoError(t, s.DeleteSessionByHash(ctx, a1.TokenHash))
	require.NoError(t, s.DeleteSessionByHash(ctx, a1.TokenHash), "delete is idempotent")
	_, err = s.GetSessionByHash(ctx, a1.TokenHash)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	require.NoError(t, s.CreateSession(ctx, session("8a0f6f3e-0000-4000-8000-000000000004", alice.ID, base.Add(time.Hour))))
	require.NoError(t, s.CreateSession(ctx, session("8a0f6f3e-0000-4000-8000-000000000005", alice.ID, base.Add(time.Hour))))
	b1 := session("8a0f6f3e-0000-4000-8000-000000000006", bob.ID, base.Add(time.Hour))
	require.NoError(t, s.CreateSession(ctx, b1))

	n, err := s.DeleteUserSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.GetSessionByHash(ctx, b1.TokenHash)
	assert.NoError(t, err)
}

func testSweepExpired(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()
	u := NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, u))

	now := base.Add(48 * time.Hour)
	past := session("8a0f6f3e-0000-4000-8000-000000000011", u.ID, now.Add(-time.Second))
	edge := session("8a0f6f3e-0000-4000-8000-000000000012", u.ID, now)
	live := session("8a0f6f3e-0000-4000-8000-000000000013", u.ID, now.Add(time.Millisecond))
	for _, sess := range []*core.Session{past, edge, live} {
		require.NoError(t, s.CreateSession(ctx, sess))
	}

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only sessions that expired strictly before now are swept")

	_, err = s.GetSessionByHash(ctx, past.TokenHash)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	_, err = s.GetSessionByHash(ctx, edge.TokenHash)
	assert.NoError(t, err)
	_, err = s.GetSessionByHash(ctx, live.TokenHash)
	assert.NoError(t, err)
}

func testAudit(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()
	alice, bob := NewUser("alice"), NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	entries := []*core.AuditEntry{
		{UserID: &alice.ID, Level: core.LevelInfo, Message: "User logged in", CreatedAt: base},
		{UserID: &bob.ID, Level: core.LevelInfo, Message: "Pump control", CreatedAt: base.Add(time.Second)},
		{Level: core.LevelWarning, Message: "Failed login attempt", Context: map[string]any{"username": "mallory"}, CreatedAt: base.Add(2 * time.Second)},
		{UserID: &alice.ID, Level: core.LevelInfo, Message: "User logged out", Context: map[string]any{"ip_address": "10.0.0.2"}, CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendAudit(ctx, e))
		assert.Positive(t, e.ID)
	}

	mine, err := s.ListAudit(ctx, &alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "User logged out", mine[0].Message, "newest first")
	assert.Equal(t, "10.0.0.2", mine[0].Context["ip_address"])
	assert.Equal(t, core.LevelInfo, mine[0].Level)
	require.NotNil(t, mine[0].UserID)
	assert.Equal(t, alice.ID, *mine[0].UserID)
	assert.True(t, entries[3].CreatedAt.Equal(mine[0].CreatedAt))
	assert.Equal(t, "User logged in", mine[1].Message)
	assert.Nil(t, mine[1].Context)

	all, err := s.ListAudit(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Nil(t, all[1].UserID, "system events keep a nil user")
	assert.Equal(t, "mallory", all[1].Context["username"])

	limited, err := s.ListAudit(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "User logged out", limited[0].Message)
}

func testDetections(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()
	alice, bob := NewUser("alice"), NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	detections := []*core.Detection{
		{UserID: alice.ID, ClassName: "snore", Confidence: 92.5, ModelType: "cnn", PumpActivated: true, CreatedAt: base.Add(-10 * 24 * time.Hour)},
		{UserID: alice.ID, ClassName: "snore", Confidence: 90, CreatedAt: base.Add(-time.Hour)},
		{UserID: alice.ID, ClassName: "noise", Confidence: 40.25, Notes: "fan", CreatedAt: base},
		{UserID: bob.ID, ClassName: "snore", Confidence: 99, CreatedAt: base},
	}
	for _, d := range detections {
		require.NoError(t, s.AppendDetection(ctx, d))
		assert.Positive(t, d.ID)
	}

	err := s.AppendDetection(ctx, &core.Detection{UserID: 9999, ClassName: "snore", Confidence: 50, CreatedAt: base})
	assert.ErrorIs(t, err, core.ErrUserNotFound)

	history, err := s.ListDetections(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "noise", history[0].ClassName, "newest first")
	assert.Equal(t, "fan", history[0].Notes)
	assert.InDelta(t, 40.25, history[0].Confidence, 0.001)
	assert.True(t, base.Equal(history[0].CreatedAt))
	assert.True(t, history[2].PumpActivated)
	assert.Equal(t, "cnn", history[2].ModelType)
	assert.Equal(t, alice.ID, history[2].UserID)

	limited, err := s.ListDetections(ctx, alice.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, detections[2].ID, limited[0].ID)

	summary, err := s.SummarizeDetections(ctx, alice.ID, base.Add(-7*24*time.Hour), "snore")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Snoring)
	assert.InDelta(t, 65.125, summary.AverageConfidence, 0.001)

	empty, err := s.SummarizeDetections(ctx, alice.ID, base.Add(time.Hour), "snore")
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AverageConfidence)
}

func testSettings(t *testing.T, s core.AuthStorage) {
	ctx := context.Background()
	alice := NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))

	_, err := s.GetSettings(ctx, alice.ID)
	require.ErrorIs(t, err, core.ErrSettingsNotFound)

	settings := core.DefaultUserSettings(alice.ID)
	settings.AutoDetectEnabled = true
	settings.DetectionDelay = 12
	settings.UpdatedAt = base
	require.NoError(t, s.SaveSettings(ctx, &settings))

	got, err := s.GetSettings(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.AutoDetectEnabled)
	assert.Equal(t, 12, got.DetectionDelay)
	assert.InDelta(t, 0.85, got.ConfidenceThreshold, 0.0001)
	assert.True(t, got.NotificationEnabled)
	assert.True(t, base.Equal(got.UpdatedAt))

	// saving again replaces the row
	settings.NotificationEnabled = false
	settings.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, s.SaveSettings(ctx, &settings))

	got, err = s.GetSettings(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, got.NotificationEnabled)
	assert.Equal(t, 12, got.DetectionDelay)

	orphan := core.DefaultUserSettings(9999)
	assert.ErrorIs(t, s.SaveSettings(ctx, &orphan), core.ErrUserNotFound)
}

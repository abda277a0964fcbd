package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/pkg/crypto"
)

func TestCredentialStore_CreateUser(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		username  string
		email     string
		password  string
		fullName  string
		wantField string
	}{
		{name: "valid", username: "alice", email: "alice@example.com", password: "secret123"},
		{name: "valid with underscore and digits", username: "night_owl_42", email: "owl@example.com", password: "secret123"},
		{name: "username too short", username: "al", email: "al@example.com", password: "secret123", wantField: "username"},
		{name: "username too long", username: strings.Repeat("a", 21), email: "long@example.com", password: "secret123", wantField: "username"},
		{name: "username with uppercase", username: "Alice", email: "upper@example.com", password: "secret123", wantField: "username"},
		{name: "username with dash", username: "al-ice", email: "dash@example.com", password: "secret123", wantField: "username"},
		{name: "missing username", username: "", email: "none@example.com", password: "secret123", wantField: "username"},
		{name: "malformed email", username: "bob", email: "not-an-email", password: "secret123", wantField: "email"},
		{name: "missing email", username: "bob", email: "", password: "secret123", wantField: "email"},
		{name: "short password", username: "bob", email: "bob@example.com", password: "12345", wantField: "password"},
		{name: "password counted in characters", username: "carol", email: "carol@example.com", password: "пароль"},
		{name: "short multibyte password", username: "dave", email: "dave@example.com", password: "äöüß", wantField: "password"},
		{name: "full name at limit", username: "erin", email: "erin@example.com", password: "secret123", fullName: strings.Repeat("ä", 100)},
		{name: "full name too long", username: "frank", email: "frank@example.com", password: "secret123", fullName: strings.Repeat("a", 150), wantField: "full_name"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := newTestEnv(nil)
			fullName := test.fullName
			if fullName == "" {
				fullName = "Full Name"
			}

			id, err := env.credentials.CreateUser(ctx, test.username, test.email, test.password, fullName)

			if test.wantField != "" {
				require.ErrorIs(t, err, core.ErrValidation)
				var verr *core.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Contains(t, verr.Fields, test.wantField)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, id)

			user, err := env.store.GetUserByID(ctx, id)
			require.NoError(t, err)
			assert.True(t, user.IsActive)
			assert.NotEqual(t, test.password, user.PasswordHash)
			assert.NotEmpty(t, user.PasswordSalt)
		})
	}
}

func TestCredentialStore_CreateUser_NormalizesEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(nil)

	id, err := env.credentials.CreateUser(ctx, "alice", "  Alice@Example.COM ", "secret123", "  Alice Smith ")
	require.NoError(t, err)

	user, err := env.store.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice Smith", user.FullName)

	_, err = env.credentials.CreateUser(ctx, "alice2", "ALICE@example.com", "secret123", "")
	assert.ErrorIs(t, err, core.ErrDuplicateUser, "emails compare case-insensitively")
}

func TestCredentialStore_CreateUser_Duplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(nil)
	_, err := env.credentials.CreateUser(ctx, "alice", "alice@example.com", "secret123", "")
	require.NoError(t, err)

	_, err = env.credentials.CreateUser(ctx, "alice", "other@example.com", "secret123", "")
	assert.ErrorIs(t, err, core.ErrDuplicateUser)

	_, err = env.credentials.CreateUser(ctx, "bob", "alice@example.com", "secret123", "")
	assert.ErrorIs(t, err, core.ErrDuplicateUser)
}

func TestCredentialStore_CreateUser_StorageError(t *testing.T) {
	env := newTestEnv(nil)
	boom := errors.New("disk full")
	env.store.set(func(f *faults) { f.createUserErr = boom })

	_, err := env.credentials.CreateUser(context.Background(), "alice", "alice@example.com", "secret123", "")

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, core.ErrDuplicateUser)
}

func TestCredentialStore_Authenticate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(nil)
	aliceID, err := env.credentials.CreateUser(ctx, "alice", "alice@example.com", "secret123", "")
	require.NoError(t, err)
	bobID, err := env.credentials.CreateUser(ctx, "bob", "bob@example.com", "hunter22", "")
	require.NoError(t, err)
	require.NoError(t, env.store.SetActive(ctx, bobID, false))

	tests := []struct {
		name     string
		username string
		password string
		wantID   int64
	}{
		{name: "correct password", username: "alice", password: "secret123", wantID: aliceID},
		{name: "wrong password", username: "alice", password: "secret124"},
		{name: "empty password", username: "alice", password: ""},
		{name: "unknown user", username: "mallory", password: "secret123"},
		{name: "inactive user with correct password", username: "bob", password: "hunter22"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			user, err := env.credentials.Authenticate(ctx, test.username, test.password)

			require.NoError(t, err)
			if test.wantID == 0 {
				assert.Nil(t, user)
				return
			}
			require.NotNil(t, user)
			assert.Equal(t, test.wantID, user.ID)
		})
	}
}

func TestCredentialStore_Authenticate_StorageError(t *testing.T) {
	env := newTestEnv(nil)
	boom := errors.New("connection refused")
	env.store.set(func(f *faults) { f.getUserErr = boom })

	user, err := env.credentials.Authenticate(context.Background(), "alice", "secret123")

	assert.Nil(t, user)
	assert.ErrorIs(t, err, boom)
}

func TestCredentialStore_Authenticate_UpgradesLegacyHash(t *testing.T) {
	// Arrange: an account imported from the previous panel
	ctx := context.Background()
	env := newTestEnv(nil)
	legacy := &core.User{
		Username:     "legacy",
		Email:        "legacy@example.com",
		PasswordHash: crypto.LegacySHA256("oldpass1", "c0ffee"),
		PasswordSalt: "c0ffee",
		IsActive:     true,
	}
	require.NoError(t, env.store.CreateUser(ctx, legacy))

	// Act
	user, err := env.credentials.Authenticate(ctx, "legacy", "oldpass1")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, user)

	stored, err := env.store.GetUserByID(ctx, legacy.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	assert.NotEqual(t, "c0ffee", stored.PasswordSalt)

	again, err := env.credentials.Authenticate(ctx, "legacy", "oldpass1")
	require.NoError(t, err)
	assert.NotNil(t, again, "upgraded hash must still verify")

	wrong, err := env.credentials.Authenticate(ctx, "legacy", "oldpass2")
	require.NoError(t, err)
	assert.Nil(t, wrong)
}

func TestCredentialStore_Authenticate_UnreadableHashIsMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(nil)
	require.NoError(t, env.store.CreateUser(ctx, &core.User{
		Username:     "broken",
		Email:        "broken@example.com",
		PasswordHash: "$argon2id$garbage",
		PasswordSalt: "x",
		IsActive:     true,
	}))

	user, err := env.credentials.Authenticate(ctx, "broken", "whatever")

	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestCredentialStore_ChangePassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(nil)
	id, err := env.credentials.CreateUser(ctx, "alice", "alice@example.com", "secret123", "")
	require.NoError(t, err)

	ok, err := env.credentials.ChangePassword(ctx, id, "wrong-old", "newsecret")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.credentials.ChangePassword(ctx, id, "secret123", "123")
	assert.ErrorIs(t, err, core.ErrValidation)

	ok, err = env.credentials.ChangePassword(ctx, id, "secret123", "newsecret")
	require.NoError(t, err)
	assert.True(t, ok)

	user, err := env.credentials.Authenticate(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Nil(t, user, "old password no longer works")

	user, err = env.credentials.Authenticate(ctx, "alice", "newsecret")
	require.NoError(t, err)
	assert.NotNil(t, user)

	_, err = env.credentials.ChangePassword(ctx, 999, "secret123", "newsecret")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestCredentialStore_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(nil)
	id, err := env.credentials.CreateUser(ctx, "alice", "alice@example.com", "secret123", "Alice")
	require.NoError(t, err)
	_, err = env.credentials.CreateUser(ctx, "bob", "bob@example.com", "secret123", "Bob")
	require.NoError(t, err)

	str := func(s string) *string { return &s }

	user, err := env.credentials.UpdateProfile(ctx, id, core.ProfileInput{FullName: str("Alice Liddell")})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", user.FullName)
	assert.Equal(t, "alice@example.com", user.Email, "nil fields stay unchanged")

	user, err = env.credentials.UpdateProfile(ctx, id, core.ProfileInput{Email: str("Alice@Wonderland.org")})
	require.NoError(t, err)
	assert.Equal(t, "alice@wonderland.org", user.Email)

	_, err = env.credentials.UpdateProfile(ctx, id, core.ProfileInput{Email: str("nope")})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = env.credentials.UpdateProfile(ctx, id, core.ProfileInput{FullName: str(strings.Repeat("x", 101))})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = env.credentials.UpdateProfile(ctx, id, core.ProfileInput{Email: str("bob@example.com")})
	assert.ErrorIs(t, err, core.ErrDuplicateUser)

	stored, err := env.store.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice@wonderland.org", stored.Email)
	assert.Equal(t, "Alice Liddell", stored.FullName)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
	"github.com/snoreguard/panel/pkg/crypto"
)

const (
	MinPasswordLength = 6
	MaxFullNameLength = 100
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

var passwordRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return fmt.Errorf("must be at least %d characters", MinPasswordLength)
	}
	return nil
})

type registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (r registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required,
			validation.Match(usernamePattern).Error("must be 3-20 lowercase letters, digits or underscores")),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 100), is.Email),
		validation.Field(&r.Password, validation.Required, passwordRule),
		validation.Field(&r.FullName, validation.RuneLength(0, MaxFullNameLength)),
	)
}

// toValidationError flattens ozzo's per-field errors into core.ValidationError.
func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for field, fe := range errs {
		if fe != nil {
			fields[field] = fe.Error()
		}
	}
	return &core.ValidationError{Fields: fields}
}

// CredentialStore owns user records and password verification.
type CredentialStore struct {
	users  core.UserStorage
	hasher crypto.PasswordHandler
	logger logging.Logger

	dummyOnce sync.Once
	dummyHash string
	dummySalt string
}

func NewCredentialStore(users core.UserStorage, hasher crypto.PasswordHandler, logger logging.Logger) *CredentialStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CredentialStore{
		users:  users,
		hasher: hasher,
		logger: logger.With("component", "credentials"),
	}
}

// CreateUser validates and stores a new active account and returns its id.
// Uniqueness of username and email is left to storage so two concurrent
// registrations cannot both succeed.
func (c *CredentialStore) CreateUser(ctx context.Context, username, email, password, fullName string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)

	reg := registration{Username: username, Email: email, Password: password, FullName: fullName}
	if err := toValidationError(reg.Validate()); err != nil {
		return 0, err
	}

	hash, salt, err := c.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &core.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		PasswordSalt: salt,
		IsActive:     true,
	}

	if err := c.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrUniqueViolation) {
			return 0, core.ErrDuplicateUser
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}

	c.logger.Info(ctx, "user created", "user_id", user.ID, "username", user.Username)
	return user.ID, nil
}

// Authenticate returns the user when the password matches. A wrong password,
// an unknown username and a deactivated account all yield (nil, nil).
func (c *CredentialStore) Authenticate(ctx context.Context, username, password string) (*core.User, error) {
	user, err := c.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			c.burnVerify(password)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	ok, err := c.hasher.Verify(password, user.PasswordHash, user.PasswordSalt)
	if err != nil {
		c.logger.Warn(ctx, "stored password hash is unreadable", "user_id", user.ID, "error", err)
		return nil, nil
	}
	if !ok || !user.IsActive {
		return nil, nil
	}

	if c.hasher.NeedsRehash(user.PasswordHash) {
		c.rehash(ctx, user, password)
	}

	return user, nil
}

// ChangePassword replaces the password after re-verifying the old one.
// It reports false when oldPassword does not match.
func (c *CredentialStore) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) (bool, error) {
	if err := validation.Validate(newPassword, validation.Required, passwordRule); err != nil {
		return false, core.NewValidationError("new_password", err.Error())
	}

	user, err := c.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to find user: %w", err)
	}

	ok, err := c.hasher.Verify(oldPassword, user.PasswordHash, user.PasswordSalt)
	if err != nil || !ok {
		return false, nil
	}

	hash, salt, err := c.hasher.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := c.users.UpdatePassword(ctx, userID, hash, salt); err != nil {
		return false, fmt.Errorf("failed to update password: %w", err)
	}

	return true, nil
}

// UpdateProfile applies the non-nil fields of input.
func (c *CredentialStore) UpdateProfile(ctx context.Context, userID int64, input core.ProfileInput) (*core.User, error) {
	user, err := c.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	email, fullName := user.Email, user.FullName
	if input.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*input.Email))
		if err := validation.Validate(email, validation.Required, validation.Length(3, 100), is.Email); err != nil {
			return nil, core.NewValidationError("email", err.Error())
		}
	}
	if input.FullName != nil {
		fullName = strings.TrimSpace(*input.FullName)
		if utf8.RuneCountInString(fullName) > MaxFullNameLength {
			return nil, core.NewValidationError("full_name", "the length must be no more than 100")
		}
	}

	if err := c.users.UpdateProfile(ctx, userID, email, fullName); err != nil {
		if errors.Is(err, core.ErrUniqueViolation) {
			return nil, core.ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	user.Email = email
	user.FullName = fullName
	return user, nil
}

func (c *CredentialStore) Deactivate(ctx context.Context, userID int64) error {
	if err := c.users.SetActive(ctx, userID, false); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	c.logger.Info(ctx, "user deactivated", "user_id", userID)
	return nil
}

func (c *CredentialStore) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	return c.users.UpdateLastLogin(ctx, userID, at)
}

func (c *CredentialStore) GetUser(ctx context.Context, userID int64) (*core.User, error) {
	return c.users.GetUserByID(ctx, userID)
}

func (c *CredentialStore) rehash(ctx context.Context, user *core.User, password string) {
	hash, salt, err := c.hasher.Hash(password)
	if err != nil {
		c.logger.Warn(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := c.users.UpdatePassword(ctx, user.ID, hash, salt); err != nil {
		c.logger.Warn(ctx, "password rehash not stored", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash, user.PasswordSalt = hash, salt
	c.logger.Info(ctx, "password hash upgraded", "user_id", user.ID)
}

// burnVerify spends the same work as a real verification so unknown
// usernames cannot be told apart by response time.
func (c *CredentialStore) burnVerify(password string) {
	c.dummyOnce.Do(func() {
		c.dummyHash, c.dummySalt, _ = c.hasher.Hash("not-a-real-password")
	})
	if c.dummyHash != "" {
		_, _ = c.hasher.Verify(password, c.dummyHash, c.dummySalt)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
)

const DefaultActivityLimit = 100

type AuthService struct {
	credentials *CredentialStore
	sessions    *SessionManager
	activity    core.ActivityRecorder
	audit       core.AuditStorage
	logger      logging.Logger
	now         func() time.Time
}

// Ensure AuthService implements AuthHandler
var _ core.AuthHandler = (*AuthService)(nil)

func NewAuthService(credentials *CredentialStore, sessions *SessionManager, activity core.ActivityRecorder, audit core.AuditStorage, logger logging.Logger) *AuthService {
	if logger == nil {
		logger = logging.Nop()
	}
	if activity == nil {
		activity = core.ActivityRecorderFunc(func(context.Context, *int64, core.LogLevel, string, map[string]any) {})
	}
	return &AuthService{
		credentials: credentials,
		sessions:    sessions,
		activity:    activity,
		audit:       audit,
		logger:      logger.With("component", "auth"),
		now:         time.Now,
	}
}

// Register creates an active account. The caller still has to log in.
func (s *AuthService) Register(ctx context.Context, input core.RegisterInput) (*core.User, error) {
	username := strings.TrimSpace(input.Username)

	id, err := s.credentials.CreateUser(ctx, username, input.Email, input.Password, input.FullName)
	if err != nil {
		return nil, err
	}

	user, err := s.credentials.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load new user: %v", core.ErrInternal, err)
	}

	s.activity.Record(ctx, &user.ID, core.LevelInfo, "User registered", map[string]any{"username": user.Username})
	return user, nil
}

// Login verifies credentials and issues a session. Every credential
// problem is reported as core.ErrInvalidCredentials so callers cannot tell
// which part was wrong.
func (s *AuthService) Login(ctx context.Context, input core.LoginInput, client core.ClientInfo) (*core.LoginResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, core.ErrInvalidCredentials
	}

	// Step 1: Verify the password
	user, err := s.credentials.Authenticate(ctx, username, input.Password)
	if err != nil {
		s.logger.Error(ctx, "authentication failed", "error", err)
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}
	if user == nil {
		s.activity.Record(ctx, nil, core.LevelWarning, "Failed login attempt", map[string]any{
			"username":   username,
			"ip_address": client.IPAddress,
		})
		return nil, core.ErrInvalidCredentials
	}

	// Step 2: Record the login
	if err := s.credentials.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn(ctx, "failed to record last login", "user_id", user.ID, "error", err)
	}

	// Step 3: Create a new session
	ttl := s.sessions.Config().TTL(input.RememberMe)
	result, err := s.sessions.Create(ctx, user.ID, client.IPAddress, client.UserAgent, ttl)
	if err != nil {
		s.logger.Error(ctx, "session creation failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}

	s.activity.Record(ctx, &user.ID, core.LevelInfo, "User logged in", map[string]any{
		"ip_address":  client.IPAddress,
		"remember_me": input.RememberMe,
	})

	return &core.LoginResult{
		Token:   result.Token,
		Session: result.Session,
		User:    user.Public(),
	}, nil
}

// Logout revokes the session behind token. It succeeds for unknown,
// expired or already revoked tokens.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	session, lookupErr := s.sessions.Lookup(ctx, token)

	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.logger.Error(ctx, "logout failed", "error", err)
		return fmt.Errorf("%w: %v", core.ErrInternal, err)
	}

	if lookupErr == nil {
		s.activity.Record(ctx, &session.UserID, core.LevelInfo, "User logged out", nil)
	}
	return nil
}

// Validate resolves token to its user. Missing, expired and revoked
// sessions as well as inactive users are all core.ErrUnauthorized.
func (s *AuthService) Validate(ctx context.Context, token string) (*core.SessionData, error) {
	session, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) || errors.Is(err, core.ErrSessionExpired) {
			return nil, core.ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}

	user, err := s.credentials.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}
	if !user.IsActive {
		return nil, core.ErrUnauthorized
	}

	return &core.SessionData{User: user, Session: session}, nil
}

// ChangePassword re-verifies the old password before replacing it.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, input core.ChangePasswordInput) error {
	if input.OldPassword == "" || input.NewPassword == "" {
		return &core.ValidationError{Fields: map[string]string{
			"old_password": "old and new password are required",
			"new_password": "old and new password are required",
		}}
	}

	ok, err := s.credentials.ChangePassword(ctx, userID, input.OldPassword, input.NewPassword)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		if errors.Is(err, core.ErrUserNotFound) {
			return core.ErrUnauthorized
		}
		return fmt.Errorf("%w: %v", core.ErrInternal, err)
	}
	if !ok {
		s.activity.Record(ctx, &userID, core.LevelWarning, "Password change rejected", nil)
		return core.NewValidationError("old_password", "current password is incorrect")
	}

	s.activity.Record(ctx, &userID, core.LevelInfo, "Password changed", nil)
	return nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, input core.ProfileInput) (*core.User, error) {
	user, err := s.credentials.UpdateProfile(ctx, userID, input)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrDuplicateUser):
			return nil, err
		case errors.Is(err, core.ErrUserNotFound):
			return nil, core.ErrUnauthorized
		default:
			return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
		}
	}

	s.activity.Record(ctx, &userID, core.LevelInfo, "Profile updated", nil)
	return user, nil
}

// ListActivity returns the newest audit entries of userID.
func (s *AuthService) ListActivity(ctx context.Context, userID int64, limit int) ([]*core.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = DefaultActivityLimit
	}
	entries, err := s.audit.ListAudit(ctx, &userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}
	return entries, nil
}

// Deactivate disables the account and revokes all of its sessions.
func (s *AuthService) Deactivate(ctx context.Context, userID int64) error {
	if err := s.credentials.Deactivate(ctx, userID); err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return core.ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", core.ErrInternal, err)
	}

	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInternal, err)
	}

	s.activity.Record(ctx, &userID, core.LevelWarning, "User deactivated", map[string]any{"sessions_revoked": n})
	return nil
}

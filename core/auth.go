package core

import "context"

// RegisterInput contains the data needed to register a new user
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginInput contains the credentials for authentication
type LoginInput struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// LoginResult contains the authenticated user and their session
type LoginResult struct {
	Token   string     `json:"session_id"` // The raw token (not the hash)
	Session *Session   `json:"-"`
	User    PublicUser `json:"user"`
}

// ProfileInput carries the editable profile fields. A nil field is left
// unchanged.
type ProfileInput struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
}

// ChangePasswordInput carries a password change request
type ChangePasswordInput struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ClientInfo identifies where a request came from
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// AuthHandler is everything the HTTP layer needs from the auth service.
type AuthHandler interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	Login(ctx context.Context, input LoginInput, client ClientInfo) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	Validate(ctx context.Context, token string) (*SessionData, error)

	ChangePassword(ctx context.Context, userID int64, input ChangePasswordInput) error
	UpdateProfile(ctx context.Context, userID int64, input ProfileInput) (*User, error)
	ListActivity(ctx context.Context, userID int64, limit int) ([]*AuditEntry, error)

	// Deactivate disables an account and revokes all of its sessions
	Deactivate(ctx context.Context, userID int64) error
}

// ActivityRecorder accepts audit entries. Record never blocks on storage
// and never reports failure to the caller.
type ActivityRecorder interface {
	Record(ctx context.Context, userID *int64, level LogLevel, message string, fields map[string]any)
}

// ActivityRecorderFunc adapts a function to ActivityRecorder.
type ActivityRecorderFunc func(ctx context.Context, userID *int64, level LogLevel, message string, fields map[string]any)

func (f ActivityRecorderFunc) Record(ctx context.Context, userID *int64, level LogLevel, message string, fields map[string]any) {
	f(ctx, userID, level, message, fields)
}

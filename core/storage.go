package core

import (
	"context"
	"time"
)

// UserStorage persists user accounts.
//
// CreateUser must enforce username and email uniqueness itself and report a
// collision as *ConstraintError. Callers never check-then-insert.
type UserStorage interface {
	CreateUser(ctx context.Context, u *User) error

	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	UpdateProfile(ctx context.Context, id int64, email, fullName string) error
	UpdatePassword(ctx context.Context, id int64, hash, salt string) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type SessionStorage interface {
	CreateSession(ctx context.Context, s *Session) error

	GetSessionByHash(ctx context.Context, tokenHash string) (*Session, error)

	// DeleteSessionByHash is idempotent: deleting an absent session is not an error
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID int64) (int, error)

	// Cleanup
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)
}

// AuditStorage is append-only.
type AuditStorage interface {
	AppendAudit(ctx context.Context, e *AuditEntry) error

	// ListAudit returns the newest entries first. A nil userID lists everything.
	ListAudit(ctx context.Context, userID *int64, limit int) ([]*AuditEntry, error)
}

// AuthStorage is everything a panel backend persists.
type AuthStorage interface {
	UserStorage
	SessionStorage
	AuditStorage
	DetectionStorage
	SettingsStorage
}

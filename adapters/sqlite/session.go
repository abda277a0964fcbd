package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/snoreguard/panel/core"
)

func (a *Adapter) CreateSession(ctx context.Context, session *core.Session) error {
	q := `INSERT INTO sessions (session_id, user_id, token_hash, ip_address, user_agent, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := a.db.ExecContext(ctx, q, session.ID, session.UserID, session.TokenHash, session.IPAddress,
		session.UserAgent, session.CreatedAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		return translate(err)
	}
	return nil
}

func (a *Adapter) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	q := `SELECT session_id, user_id, token_hash, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at, expires_at FROM sessions WHERE token_hash = ?`

	s := &core.Session{}
	err := a.db.QueryRowContext(ctx, q, tokenHash).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.IPAddress,
		&s.UserAgent, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return s, nil
}

func (a *Adapter) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteUserSessions(ctx context.Context, userID int64) (int, error) {
	return a.deleteCount(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
}

// DeleteExpiredSessions relies on timestamps being stored in UTC, where the
// driver's text format sorts chronologically.
func (a *Adapter) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	return a.deleteCount(ctx, `DELETE FROM sessions WHERE expires_at < ?`, before.UTC())
}

func (a *Adapter) deleteCount(ctx context.Context, q string, args ...any) (int, error) {
	res, err := a.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

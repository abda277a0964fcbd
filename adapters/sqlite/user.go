package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/snoreguard/panel/core"
)

const userColumns = `user_id, username, email, COALESCE(full_name, ''), password_hash, password_salt, created_at, last_login, COALESCE(is_active, 1)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*core.User, error) {
	user := &core.User{}
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.PasswordHash,
		&user.PasswordSalt, &user.CreatedAt, &lastLogin, &user.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		user.LastLogin = &t
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (a *Adapter) CreateUser(ctx context.Context, user *core.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	q := `INSERT INTO users (username, email, full_name, password_hash, password_salt, created_at, is_active) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := a.db.ExecContext(ctx, q, user.Username, user.Email, user.FullName, user.PasswordHash,
		user.PasswordSalt, user.CreatedAt.UTC(), user.IsActive)
	if err != nil {
		return translate(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	user.ID = id
	return nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`
	return scanUser(a.db.QueryRowContext(ctx, q, id))
}

func (a *Adapter) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return scanUser(a.db.QueryRowContext(ctx, q, username))
}

func (a *Adapter) UpdateProfile(ctx context.Context, id int64, email, fullName string) error {
	res, err := a.db.ExecContext(ctx, `UPDATE users SET email = ?, full_name = ? WHERE user_id = ?`, email, fullName, id)
	if err != nil {
		return translate(err)
	}
	return requireRow(res, core.ErrUserNotFound)
}

func (a *Adapter) UpdatePassword(ctx context.Context, id int64, hash, salt string) error {
	res, err := a.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, password_salt = ? WHERE user_id = ?`, hash, salt, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res, core.ErrUserNotFound)
}

func (a *Adapter) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := a.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE user_id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res, core.ErrUserNotFound)
}

func (a *Adapter) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := a.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE user_id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res, core.ErrUserNotFound)
}

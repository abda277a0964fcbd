package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snoreguard/panel/core"
)

const userColumns = `user_id, username, email, COALESCE(full_name, ''), password_hash, password_salt, created_at, last_login, COALESCE(is_active, 1) <> 0`

func activeFlag(active bool) int {
	if active {
		return 1
	}
	return 0
}

func scanUser(row pgx.Row) (*core.User, error) {
	user := &core.User{}
	var lastLogin *time.Time
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.PasswordHash,
		&user.PasswordSalt, &user.CreatedAt, &lastLogin, &user.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if lastLogin != nil {
		t := lastLogin.UTC()
		user.LastLogin = &t
	}
	return user, nil
}

func (a *Adapter) CreateUser(ctx context.Context, user *core.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO users (username, email, full_name, password_hash, password_salt, created_at, is_active) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING user_id`

	var id int64
	err := a.pool.QueryRow(ctx, query, user.Username, user.Email, user.FullName, user.PasswordHash,
		user.PasswordSalt, user.CreatedAt, activeFlag(user.IsActive)).Scan(&id)
	if err != nil {
		return translate(err)
	}

	user.ID = id
	return nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUser(a.pool.QueryRow(ctx, q, id))
}

func (a *Adapter) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(a.pool.QueryRow(ctx, q, username))
}

func (a *Adapter) UpdateProfile(ctx context.Context, id int64, email, fullName string) error {
	tag, err := a.pool.Exec(ctx, `UPDATE users SET email = $1, full_name = $2 WHERE user_id = $3`, email, fullName, id)
	if err != nil {
		return translate(err)
	}
	return requireRow(tag, core.ErrUserNotFound)
}

func (a *Adapter) UpdatePassword(ctx context.Context, id int64, hash, salt string) error {
	tag, err := a.pool.Exec(ctx, `UPDATE users SET password_hash = $1, password_salt = $2 WHERE user_id = $3`, hash, salt, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(tag, core.ErrUserNotFound)
}

func (a *Adapter) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := a.pool.Exec(ctx, `UPDATE users SET last_login = $1 WHERE user_id = $2`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(tag, core.ErrUserNotFound)
}

func (a *Adapter) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := a.pool.Exec(ctx, `UPDATE users SET is_active = $1 WHERE user_id = $2`, activeFlag(active), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(tag, core.ErrUserNotFound)
}

// Package sqlite stores users, sessions and the activity log in a local
// SQLite file, the panel's default database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/snoreguard/panel/adapters/sqlite/migrations"
	"github.com/snoreguard/panel/core"
)

const DefaultPath = "snore_system.db"

type Adapter struct {
	db *sql.DB
}

var _ core.AuthStorage = (*Adapter)(nil)

func New(db *sql.DB) *Adapter {
	return &Adapter{
		db: db,
	}
}

// Open opens (or creates) the database file at path.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	// pragmas are per connection; SQLite has a single writer anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	// journal_mode is not supported for in-memory databases
	_, _ = db.ExecContext(ctx, `PRAGMA journal_mode=WAL`)
	for _, pragma := range []string{`PRAGMA busy_timeout=5000`, `PRAGMA foreign_keys=ON`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// translate maps driver constraint failures onto core errors.
func translate(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return &core.ConstraintError{Constraint: constraintName(se.Error()), Err: err}
	case sqlite3.ErrConstraintForeignKey:
		return core.ErrUserNotFound
	}
	return err
}

// constraintName extracts "users.email" from
// "UNIQUE constraint failed: users.email".
func constraintName(msg string) string {
	if _, name, ok := strings.Cut(msg, "failed: "); ok {
		return name
	}
	return ""
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

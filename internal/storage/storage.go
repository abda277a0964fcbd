// Package storage opens the configured AuthStorage backend.
package storage

import (
	"context"
	"fmt"

	"github.com/snoreguard/panel/adapters/memory"
	"github.com/snoreguard/panel/adapters/pgx"
	"github.com/snoreguard/panel/adapters/sqlite"
	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/config"
)

// Store is an opened backend. Close releases its connections.
type Store struct {
	core.AuthStorage
	Driver string

	close func()
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects to the backend selected by cfg and applies pending
// schema migrations. The memory driver has no schema.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	driver := cfg.Driver()

	switch driver {
	case config.DriverMemory:
		return &Store{AuthStorage: memory.New(), Driver: driver}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{
			AuthStorage: sqlite.New(db),
			Driver:      driver,
			close:       func() { _ = db.Close() },
		}, nil

	case config.DriverPostgres:
		pool, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pgx.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Store{
			AuthStorage: pgx.New(pool),
			Driver:      driver,
			close:       pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, driver)
	}
}

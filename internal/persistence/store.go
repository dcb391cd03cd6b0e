package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/sqlite"
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is an opened ticket store plus the handle used for readiness checks.
type Backend struct {
	Store  *repository.Store
	Health Pinger
	close  func()
}

// Close releases the underlying connections.
func (b *Backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// OpenStore connects the configured store driver and applies its schema.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		logger.Info("using sqlite store", zap.String("path", cfg.SQLite.Path))
		return &Backend{Store: db.Store(), Health: db, close: func() { _ = db.Close() }}, nil

	case config.StoreDriverPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if pg.PoolHandle() == nil {
			return nil, errors.New("POSTGRES_DSN is required for the postgres store")
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return &Backend{Store: repository.NewPostgresStore(pg.PoolHandle()), Health: pg, close: pg.Close}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

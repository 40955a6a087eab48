// Package postgres persists session snapshots in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/duel/internal/config"
)

// ErrSchemaMissing is returned by Open when duel_sessions has not been
// created. Run cmd/migrate first.
var ErrSchemaMissing = errors.New("duel_sessions table missing")

// applicationName tags every connection in pg_stat_activity.
const applicationName = "duel"

// Open connects a pool sized by cfg and returns a repository over it.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: the database answered a ping and holds duel_sessions; the
// caller owns the repository and must Close it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*SessionRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s: %w", cfg.Host, err)
	}

	var present bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass('duel_sessions') IS NOT NULL`).Scan(&present); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checking schema: %w", err)
	}
	if !present {
		pool.Close()
		return nil, ErrSchemaMissing
	}
	return &SessionRepository{db: pool, owned: true}, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// NewPool opens the pgx connection pool and ties its lifetime to the Fx application.
func NewPool(lc fx.Lifecycle, cfg *config.Config, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.MasterDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.Postgres.Pool.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.Postgres.Pool.MaxOpenConns)
	}
	if cfg.Postgres.Pool.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.Postgres.Pool.MaxIdleConns)
	}
	if cfg.Postgres.Pool.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Postgres.Pool.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	log := logger.With().Str("component", "postgres_pool").Logger()
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: ping: %w", err)
			}
			log.Info().Int32("max_conns", poolCfg.MaxConns).Msg("postgres pool ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			log.Info().Msg("postgres pool closed")
			return nil
		},
	})

	return pool, nil
}

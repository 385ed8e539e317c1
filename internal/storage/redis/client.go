package redis

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// NewClient creates the shared go-redis client and closes it when the Fx application stops.
func NewClient(lc fx.Lifecycle, cfg *config.Config, logger *zerolog.Logger) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	log := logger.With().Str("component", "redis_client").Logger()
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: ping %s: %w", cfg.Redis.Addr, err)
			}
			log.Info().Str("addr", cfg.Redis.Addr).Msg("redis client ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

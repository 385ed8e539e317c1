package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ilindan-dev/clinic-notifier/internal/alerting"
	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/consumer"
	deliveryHTTP "github.com/ilindan-dev/clinic-notifier/internal/delivery/http"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/ilindan-dev/clinic-notifier/internal/logger"
	"github.com/ilindan-dev/clinic-notifier/internal/notifiers"
	"github.com/ilindan-dev/clinic-notifier/internal/scheduler"
	"github.com/ilindan-dev/clinic-notifier/internal/service"
	"github.com/ilindan-dev/clinic-notifier/internal/storage/postgres"
	"github.com/ilindan-dev/clinic-notifier/internal/storage/rabbitmq"
	"github.com/ilindan-dev/clinic-notifier/internal/storage/redis"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// CommonModule provides dependencies that are shared between all applications.
var CommonModule = fx.Options(
	fx.Provide(
		// Core components
		config.NewConfig,
		logger.NewLogger,

		// Storage Layer - concrete implementations
		postgres.NewPool,
		redis.NewClient,
		redis.NewNotificationCache,
		postgres.NewNotificationRepository,
		postgres.NewClientRepository,

		// Storage Layer - ports
		func(
			pgRepo *postgres.NotificationRepository,
			cache *redis.NotificationCache,
			cfg *config.Config,
			logger *zerolog.Logger,
		) repo.NotificationStore {
			return redis.NewCachedNotificationStore(pgRepo, cache, logger, cfg.Cache.TTL)
		},
		func(clients *postgres.ClientRepository) repo.ClientDirectory { return clients },
	),
)

// messagingModule provides the RabbitMQ connection, the publisher and the service built on them.
var messagingModule = fx.Options(
	fx.Provide(
		rabbitmq.NewConnection,
		rabbitmq.NewPublisher,
		func(p *rabbitmq.Publisher) repo.DispatchTrigger { return p },
		service.NewNotificationService,
	),
	fx.Invoke(func(p *rabbitmq.Publisher, lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return p.Close()
			},
		})
	}),
)

// deliveryModule provides everything a dispatch sweep needs.
var deliveryModule = fx.Options(
	fx.Provide(
		notifiers.NewRenderer,
		notifiers.NewDispatcher,
		func(d *notifiers.Dispatcher) notifiers.Sender { return d },
		alerting.NewFailureAlerter,
		scheduler.NewScheduler,
	),
)

// APIModule defines the Fx module for the HTTP API application.
var APIModule = fx.Options(
	CommonModule,
	messagingModule,
	fx.Provide(
		// API-specific components
		deliveryHTTP.NewHandlers,
		deliveryHTTP.NewServer,
	),
	fx.Invoke(serve[*deliveryHTTP.Server]),
)

// WorkerModule defines the Fx module for the background worker application:
// the periodic scheduler, the booking event consumer and the metrics endpoint.
var WorkerModule = fx.Options(
	CommonModule,
	messagingModule,
	deliveryModule,
	fx.Provide(
		// Worker-specific components
		consumer.New,
		deliveryHTTP.NewMetricsServer,
	),
	fx.Invoke(serve[*deliveryHTTP.Server]),
	fx.Invoke(func(sched *scheduler.Scheduler, c *consumer.Consumer, lc fx.Lifecycle, logger *zerolog.Logger) {
		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_ = sched.Run(ctx)
				}()
				go func() {
					defer wg.Done()
					c.Start(ctx)
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				done := make(chan struct{})
				go func() {
					wg.Wait()
					close(done)
				}()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					logger.Warn().Msg("worker did not stop in time")
					return stopCtx.Err()
				}
			},
		})
	}),
)

// DispatchModule runs a single sweep and exits. It is meant for operational
// tooling that wants a dispatch without a running worker.
var DispatchModule = fx.Options(
	CommonModule,
	deliveryModule,
	fx.Invoke(func(sched *scheduler.Scheduler, lc fx.Lifecycle, shutdowner fx.Shutdowner, logger *zerolog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
					defer cancel()

					report, err := sched.DispatchNow(ctx)
					exitCode := 0
					if err != nil {
						logger.Error().Err(err).Msg("dispatch failed")
						exitCode = 1
					} else {
						logger.Info().
							Int("due", report.Due).
							Int("sent", report.Sent).
							Int("retried", report.Retried).
							Int("failed", report.Failed).
							Int("skipped", report.Skipped).
							Int("errors", report.Errors).
							Msg("dispatch finished")
					}
					_ = shutdowner.Shutdown(fx.ExitCode(exitCode))
				}()
				return nil
			},
		})
	}),
)

// serve runs an HTTP server for the lifetime of the application.
func serve[S interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}](server S, lc fx.Lifecycle, shutdowner fx.Shutdowner, logger *zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("http server failed")
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

package rabbitmq

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
)

// NewConnection creates and returns a raw amqp.Connection.
// This single connection will be shared across the application (publisher and consumer).
func NewConnection(lc fx.Lifecycle, cfg *config.Config) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: failed to connect: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if conn.IsClosed() {
				return nil
			}
			return conn.Close()
		},
	})
	return conn, nil
}

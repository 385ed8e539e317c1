package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Ensure Publisher implements the repository interface at compile time.
var _ repo.DispatchTrigger = (*Publisher)(nil)

// Constants for our RabbitMQ topology.
const (
	BookingEventsExchange = "booking.events"
	CommandsExchange      = "notifier.commands"

	BookingEventsQueue   = "notifier.booking.events"
	DispatchTriggerQueue = "notifier.dispatch.trigger"

	BookingEventsBinding = "booking.#"
	DispatchRoutingKey   = "dispatch.now"

	Direct = "direct"
	Topic  = "topic"
)

// channel is the part of *amqp.Channel the topology and the publisher use.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends dispatch triggers. It uses the low-level amqp091-go library directly.
type Publisher struct {
	ch     channel
	logger zerolog.Logger
}

// NewPublisher creates a new instance of the Publisher.
// It receives a shared amqp.Connection to create its own channel and declares the topology.
func NewPublisher(conn *amqp.Connection, logger *zerolog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		logger.Error().Err(err).Msg("storage: rabbitMQ: New: Failed to open a channel")
		return nil, fmt.Errorf("storage: rabbitMQ: New: Failed to open a channel: %w", err)
	}
	return newPublisher(ch, logger)
}

func newPublisher(ch channel, logger *zerolog.Logger) (*Publisher, error) {
	p := &Publisher{
		ch:     ch,
		logger: logger.With().Str("component", "rabbitmq_publisher").Logger(),
	}

	if err := SetupTopology(ch); err != nil {
		p.logger.Error().Err(err).Msg("storage: rabbitMQ: New: Failed to setup topology")
		return nil, fmt.Errorf("storage: rabbitMQ: New: Failed to setup topology: %w", err)
	}
	p.logger.Info().Msg("rabbitmq topology setup successful")

	return p, nil
}

// SetupTopology declares all necessary exchanges, queues and bindings. It is idempotent.
func SetupTopology(ch channel) error {
	exchangesToDeclare := []struct {
		name string
		kind string
	}{
		{BookingEventsExchange, Topic},
		{CommandsExchange, Direct},
	}
	for _, exInfo := range exchangesToDeclare {
		if err := ch.ExchangeDeclare(exInfo.name, exInfo.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exInfo.name, err)
		}
	}

	bindings := []struct {
		queue    string
		key      string
		exchange string
	}{
		{BookingEventsQueue, BookingEventsBinding, BookingEventsExchange},
		{DispatchTriggerQueue, DispatchRoutingKey, CommandsExchange},
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// PublishDispatchTrigger asks a worker for an ad-hoc sweep.
func (p *Publisher) PublishDispatchTrigger(ctx context.Context, requestedBy string) error {
	body, err := json.Marshal(model.DispatchRequest{
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}
	if err := p.ch.PublishWithContext(ctx, CommandsExchange, DispatchRoutingKey, false, false, msg); err != nil {
		p.logger.Error().Err(err).Msg("failed to publish dispatch trigger")
		return fmt.Errorf("rabbitmq: publish dispatch trigger: %w", err)
	}
	return nil
}

// Close gracefully shuts down the channel. The connection is managed by Fx.
func (p *Publisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

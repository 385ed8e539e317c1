package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/ilindan-dev/clinic-notifier/internal/scheduler"
	"github.com/ilindan-dev/clinic-notifier/internal/service"
	"github.com/ilindan-dev/clinic-notifier/internal/storage/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// defaultWorkerCount is the default number of worker goroutines in the pool.
const defaultWorkerCount = 5

// BookingHandler reacts to booking lifecycle events.
type BookingHandler interface {
	OnBookingCreated(ctx context.Context, ev model.BookingEvent) error
	OnBookingCancelled(ctx context.Context, ev model.BookingEvent) error
	OnBookingRescheduled(ctx context.Context, ev model.BookingEvent) error
}

// DispatchRunner performs an ad-hoc sweep.
type DispatchRunner interface {
	DispatchNow(ctx context.Context) (scheduler.Report, error)
}

// Consumer listens to the booking events and dispatch trigger queues and
// processes messages using a pool of workers.
type Consumer struct {
	logger      zerolog.Logger
	conn        *amqp.Connection // Raw connection to create channels for each worker.
	bookings    BookingHandler
	dispatcher  DispatchRunner
	workerCount int
}

// New creates a new instance of Consumer.
func New(
	cfg *config.Config,
	logger *zerolog.Logger,
	conn *amqp.Connection,
	svc *service.NotificationService,
	sched *scheduler.Scheduler,
) *Consumer {
	c := newConsumer(logger, svc, sched)
	c.conn = conn
	if cfg.RabbitMQ.WorkerCount > 0 {
		c.workerCount = cfg.RabbitMQ.WorkerCount
	}
	return c
}

func newConsumer(logger *zerolog.Logger, bookings BookingHandler, dispatcher DispatchRunner) *Consumer {
	return &Consumer{
		logger:      logger.With().Str("component", "consumer").Logger(),
		bookings:    bookings,
		dispatcher:  dispatcher,
		workerCount: defaultWorkerCount,
	}
}

// Start launches the worker pool to process messages from the queues.
// This is a blocking method that will run until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info().Int("count", c.workerCount).Msg("Starting worker pool")
	var wg sync.WaitGroup

	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.runWorker(ctx, rabbitmq.BookingEventsQueue, fmt.Sprintf("booking-worker-%d", workerID), c.handleBookingEvent)
		}(i + 1)
	}

	// Sweeps are serialized by the scheduler, one trigger worker is enough.
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runWorker(ctx, rabbitmq.DispatchTriggerQueue, "dispatch-worker", c.handleDispatchTrigger)
	}()

	wg.Wait()
	c.logger.Info().Msg("Consumer stopped")
}

type handlerFunc func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger)

// runWorker contains the main logic for a single worker goroutine.
func (c *Consumer) runWorker(ctx context.Context, queue, tag string, handle handlerFunc) {
	logger := c.logger.With().Str("queue", queue).Str("consumer_tag", tag).Logger()
	logger.Info().Msg("Worker started")

	ch, err := c.conn.Channel()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open channel for worker")
		return
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		logger.Error().Err(err).Msg("Failed to set QoS")
		return
	}

	msgs, err := ch.Consume(
		queue,
		tag,   // A unique consumer tag.
		false, // autoAck: false. We will manually acknowledge messages.
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register a consumer")
		return
	}

	logger.Info().Msg("Worker is waiting for messages")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Worker stopping due to context cancellation")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn().Msg("Message channel closed by RabbitMQ, worker stopping")
				return
			}
			handle(ctx, msg, logger)
		}
	}
}

// handleBookingEvent applies one booking event.
func (c *Consumer) handleBookingEvent(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
	var ev model.BookingEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		logger.Error().Err(err).Str("routing_key", msg.RoutingKey).Msg("Failed to unmarshal message, rejecting")
		_ = msg.Nack(false, false)
		return
	}

	log := logger.With().
		Str("routing_key", msg.RoutingKey).
		Stringer("event_id", ev.EventID).
		Stringer("booking_id", ev.Booking.ID).
		Logger()

	var err error
	switch msg.RoutingKey {
	case model.BookingCreated:
		err = c.bookings.OnBookingCreated(ctx, ev)
	case model.BookingCancelled:
		err = c.bookings.OnBookingCancelled(ctx, ev)
	case model.BookingRescheduled:
		err = c.bookings.OnBookingRescheduled(ctx, ev)
	default:
		log.Debug().Msg("Booking event not relevant for notifications, skipping")
		_ = msg.Ack(false)
		return
	}

	switch {
	case err == nil:
		log.Info().Msg("Booking event processed")
		_ = msg.Ack(false)
	case errors.Is(err, service.ErrInvalidInput):
		log.Error().Err(err).Msg("Invalid booking event, rejecting")
		_ = msg.Nack(false, false)
	default:
		log.Error().Err(err).Msg("Failed to process booking event, requeueing")
		_ = msg.Nack(false, true)
	}
}

// handleDispatchTrigger runs an ad-hoc sweep. The trigger is acknowledged even
// when the sweep fails: the periodic sweep picks up whatever is left.
func (c *Consumer) handleDispatchTrigger(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
	var req model.DispatchRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		logger.Error().Err(err).Msg("Failed to unmarshal dispatch request, rejecting")
		_ = msg.Nack(false, false)
		return
	}

	log := logger.With().Str("requested_by", req.RequestedBy).Logger()
	report, err := c.dispatcher.DispatchNow(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Ad-hoc dispatch failed")
	} else {
		log.Info().Int("due", report.Due).Int("sent", report.Sent).Msg("Ad-hoc dispatch finished")
	}
	_ = msg.Ack(false)
}

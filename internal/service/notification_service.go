package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/rs/zerolog"
)

// ErrInvalidInput is returned when a request or event fails validation.
var ErrInvalidInput = errors.New("invalid input")

// startsAtLayout is how appointment times appear in message templates.
const startsAtLayout = "Mon 02 Jan 2006 15:04 MST"

// bookingTypes are the notifications a booking produces and a cancellation or
// reschedule withdraws. The cancellation notice itself is never withdrawn.
var bookingTypes = []model.Type{
	model.TypeAppointmentConfirmation,
	model.TypeAppointmentReminder,
	model.TypeFollowUp,
}

// CreateInput describes an admin-scheduled notification.
type CreateInput struct {
	ClientID     uuid.UUID         `validate:"required"`
	BookingID    *uuid.UUID        `validate:"omitempty"`
	Type         model.Type        `validate:"required,oneof=promotion birthday_greeting loyalty_reward"`
	Channel      model.Channel     `validate:"required,oneof=whatsapp email sms"`
	ScheduledFor time.Time         `validate:"required"`
	TemplateData map[string]string `validate:"omitempty"`
}

// NotificationService encapsulates the business logic for managing notifications.
// It turns booking events into store rows and serves the operational queries.
type NotificationService struct {
	store     repo.NotificationStore
	trigger   repo.DispatchTrigger
	reminders config.RemindersConfig
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

func NewNotificationService(
	cfg *config.Config,
	store repo.NotificationStore,
	trigger repo.DispatchTrigger,
	logger *zerolog.Logger,
) *NotificationService {
	return &NotificationService{
		store:     store,
		trigger:   trigger,
		reminders: cfg.Reminders,
		validate:  validator.New(),
		logger:    logger.With().Str("layer", "service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnBookingCreated schedules the confirmation, the reminders and the follow-up of a new booking.
func (s *NotificationService) OnBookingCreated(ctx context.Context, ev model.BookingEvent) error {
	if err := s.validateBooking(ev.Booking); err != nil {
		return err
	}

	s.logger.Info().Stringer("booking_id", ev.Booking.ID).Time("starts_at", ev.Booking.StartsAt).Msg("booking created")
	return s.scheduleBooking(ctx, ev)
}

// OnBookingCancelled withdraws the pending notifications of a booking and
// schedules a cancellation notice. Repeating it is harmless.
func (s *NotificationService) OnBookingCancelled(ctx context.Context, ev model.BookingEvent) error {
	if err := s.validateBooking(ev.Booking); err != nil {
		return err
	}
	b := ev.Booking

	ids, err := s.store.CancelForBooking(ctx, b.ID, bookingTypes...)
	if err != nil {
		s.logger.Error().Err(err).Stringer("booking_id", b.ID).Msg("failed to cancel booking notifications")
		return err
	}
	s.logger.Info().Stringer("booking_id", b.ID).Int("cancelled", len(ids)).Msg("booking cancelled")

	notice := model.NewNotification(b.ClientID, &b.ID, model.TypeAppointmentCancellation, s.channelFor(b),
		s.eventTime(ev), bookingTemplateData(b))
	return s.save(ctx, notice)
}

// OnBookingRescheduled withdraws the pending notifications of the old slot and
// schedules a fresh set for the new start time.
func (s *NotificationService) OnBookingRescheduled(ctx context.Context, ev model.BookingEvent) error {
	if err := s.validateBooking(ev.Booking); err != nil {
		return err
	}
	b := ev.Booking

	ids, err := s.store.CancelForBooking(ctx, b.ID, bookingTypes...)
	if err != nil {
		s.logger.Error().Err(err).Stringer("booking_id", b.ID).Msg("failed to cancel notifications of old slot")
		return err
	}
	s.logger.Info().
		Stringer("booking_id", b.ID).
		Time("starts_at", b.StartsAt).
		Int("cancelled", len(ids)).
		Msg("booking rescheduled")

	return s.scheduleBooking(ctx, ev)
}

// CreateNotification schedules a notification that is not tied to a booking event,
// such as a promotion or a birthday greeting.
func (s *NotificationService) CreateNotification(ctx context.Context, in CreateInput) (*model.Notification, error) {
	if err := s.validate.Struct(in); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification input")
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	n := model.NewNotification(in.ClientID, in.BookingID, in.Type, in.Channel, in.ScheduledFor, in.TemplateData)
	created, err := s.store.Save(ctx, n)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to save notification")
		return nil, err
	}
	s.logger.Info().Stringer("id", created.ID).Str("type", string(created.Type)).Msg("notification saved successfully")
	return created, nil
}

// GetNotificationByID retrieves a notification by its ID.
// The store decorator handles the cache-aside logic transparently.
func (s *NotificationService) GetNotificationByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.logger.Error().Err(err).Stringer("id", id).Msg("failed to get notification by ID")
		}
		return nil, err
	}
	return n, nil
}

// ListNotifications returns delivery history for dashboards.
func (s *NotificationService) ListNotifications(ctx context.Context, filter model.Filter) ([]*model.Notification, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *filter.Status)
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, *filter.Type)
	}

	list, err := s.store.List(ctx, filter.Normalize())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list notifications")
		return nil, err
	}
	return list, nil
}

// TriggerDispatch asks a running worker for an immediate sweep.
func (s *NotificationService) TriggerDispatch(ctx context.Context, requestedBy string) error {
	if err := s.trigger.PublishDispatchTrigger(ctx, requestedBy); err != nil {
		s.logger.Error().Err(err).Msg("failed to publish dispatch trigger")
		return fmt.Errorf("failed to trigger dispatch: %w", err)
	}
	s.logger.Info().Str("requested_by", requestedBy).Msg("dispatch trigger published")
	return nil
}

// scheduleBooking creates the confirmation, the reminders still ahead and the follow-up.
func (s *NotificationService) scheduleBooking(ctx context.Context, ev model.BookingEvent) error {
	b := ev.Booking
	channel := s.channelFor(b)
	data := bookingTemplateData(b)
	now := s.now()

	batch := []*model.Notification{
		model.NewNotification(b.ClientID, &b.ID, model.TypeAppointmentConfirmation, channel, s.eventTime(ev), data),
	}
	for _, offset := range s.reminders.Offsets {
		at := b.StartsAt.Add(-offset)
		if !at.After(now) {
			continue
		}
		batch = append(batch, model.NewNotification(b.ClientID, &b.ID, model.TypeAppointmentReminder, channel, at, data))
	}
	if s.reminders.FollowUpAfter > 0 {
		batch = append(batch, model.NewNotification(b.ClientID, &b.ID, model.TypeFollowUp, channel,
			b.StartsAt.Add(s.reminders.FollowUpAfter), data))
	}

	for _, n := range batch {
		if err := s.save(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// save persists n and treats an identical existing row as success.
func (s *NotificationService) save(ctx context.Context, n *model.Notification) error {
	_, err := s.store.Save(ctx, n)
	switch {
	case errors.Is(err, repo.ErrDuplicateRecord):
		s.logger.Debug().Str("type", string(n.Type)).Time("scheduled_for", n.ScheduledFor).Msg("notification already scheduled, ignoring")
		return nil
	case err != nil:
		s.logger.Error().Err(err).Str("type", string(n.Type)).Msg("failed to save notification")
		return err
	}
	s.logger.Debug().Stringer("id", n.ID).Str("type", string(n.Type)).Time("scheduled_for", n.ScheduledFor).Msg("notification scheduled")
	return nil
}

func (s *NotificationService) validateBooking(b model.Booking) error {
	if err := s.validate.Struct(b); err != nil {
		s.logger.Warn().Err(err).Msg("invalid booking")
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *NotificationService) channelFor(b model.Booking) model.Channel {
	if b.Channel != "" {
		return b.Channel
	}
	return model.Channel(s.reminders.DefaultChannel)
}

// eventTime is when the event happened; redeliveries of one event share it,
// so notifications due "now" keep a stable schedule slot.
func (s *NotificationService) eventTime(ev model.BookingEvent) time.Time {
	if ev.OccurredAt.IsZero() {
		return s.now()
	}
	return ev.OccurredAt.UTC()
}

func bookingTemplateData(b model.Booking) map[string]string {
	return map[string]string{
		"booking_id":   b.ID.String(),
		"service":      b.ServiceName,
		"professional": b.Professional,
		"starts_at":    b.StartsAt.UTC().Format(startsAtLayout),
	}
}

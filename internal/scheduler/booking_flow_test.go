package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/ilindan-dev/clinic-notifier/internal/notifiers"
	"github.com/ilindan-dev/clinic-notifier/internal/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newBookingService(t *testing.T, h *harness) *service.NotificationService {
	t.Helper()
	cfg := testConfig()
	cfg.Reminders = config.RemindersConfig{FollowUpAfter: 72 * time.Hour, DefaultChannel: "whatsapp"}
	logger := zerolog.Nop()
	return service.NewNotificationService(cfg, h.store, nil, &logger)
}

func bookingAt(clientID uuid.UUID, occurredAt time.Time) model.BookingEvent {
	return model.BookingEvent{
		EventID:    uuid.New(),
		OccurredAt: occurredAt,
		Booking: model.Booking{
			ID:          uuid.New(),
			ClientID:    clientID,
			StartsAt:    occurredAt.Add(24 * time.Hour),
			ServiceName: "Hydrafacial",
			Channel:     model.ChannelWhatsApp,
		},
	}
}

func TestBooking_CancelDuringTransientSendStopsFurtherAttempts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	svc := newBookingService(t, h)
	client := uuid.New()
	ev := bookingAt(client, t0)

	require.NoError(t, svc.OnBookingCreated(ctx, ev))
	confirmations := h.store.byBooking(ev.Booking.ID, model.TypeAppointmentConfirmation)
	require.Len(t, confirmations, 1)
	id := confirmations[0].ID

	h.contacts.On("GetContact", mock.Anything, client).Return(&amina, nil)
	h.sender.On("Send", mock.Anything, mock.Anything, amina).
		Run(func(mock.Arguments) {
			assert.NoError(t, svc.OnBookingCancelled(ctx, ev))
		}).
		Return("", notifiers.Transient(context.DeadlineExceeded)).Once()
	h.sender.On("Send", mock.Anything, mock.Anything, amina).Return("wamid.notice", nil)

	_, err := h.sched.Sweep(ctx)
	require.NoError(t, err)

	got := h.store.get(id)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, 0, got.RetryCount)

	h.clock.Set(t0.Add(time.Hour))
	_, err = h.sched.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCancelled, h.store.get(id).Status)
	assert.Equal(t, 1, h.store.sends[id])

	notices := h.store.byBooking(ev.Booking.ID, model.TypeAppointmentCancellation)
	require.Len(t, notices, 1)
	assert.Equal(t, model.StatusSent, notices[0].Status)
	h.sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestBooking_CancelDuringSuccessfulSendKeepsDelivery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	svc := newBookingService(t, h)
	client := uuid.New()
	ev := bookingAt(client, t0)

	require.NoError(t, svc.OnBookingCreated(ctx, ev))
	id := h.store.byBooking(ev.Booking.ID, model.TypeAppointmentConfirmation)[0].ID

	h.contacts.On("GetContact", mock.Anything, client).Return(&amina, nil)
	h.sender.On("Send", mock.Anything, mock.Anything, amina).
		Run(func(mock.Arguments) {
			assert.NoError(t, svc.OnBookingCancelled(ctx, ev))
		}).
		Return("wamid.confirm", nil).Once()

	_, err := h.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, h.store.get(id).Status)

	followUps := h.store.byBooking(ev.Booking.ID, model.TypeFollowUp)
	require.Len(t, followUps, 1)
	assert.Equal(t, model.StatusCancelled, followUps[0].Status)
}

func TestBooking_AbandonedSendOfCancelledBookingIsSettled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	client := uuid.New()
	n := h.store.add(pending(client, t0))

	_, err := h.store.Claim(ctx, n.ID, "crashed-worker/1", t0.Add(time.Minute))
	require.NoError(t, err)
	ids, err := h.store.CancelForBooking(ctx, *n.BookingID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{n.ID}, ids)
	assert.Equal(t, model.StatusPending, h.store.get(n.ID).Status)

	h.clock.Set(t0.Add(2 * time.Minute))
	report, err := h.sched.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, Report{}, report)
	assert.Equal(t, model.StatusCancelled, h.store.get(n.ID).Status)
	h.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestBooking_RedeliveryAfterRetryDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	svc := newBookingService(t, h)
	client := uuid.New()
	ev := bookingAt(client, t0)

	require.NoError(t, svc.OnBookingCreated(ctx, ev))

	h.contacts.On("GetContact", mock.Anything, client).Return(&amina, nil)
	h.sender.On("Send", mock.Anything, mock.Anything, amina).
		Return("", notifiers.Transient(context.DeadlineExceeded)).Once()

	_, err := h.sched.Sweep(ctx)
	require.NoError(t, err)

	confirmations := h.store.byBooking(ev.Booking.ID, model.TypeAppointmentConfirmation)
	require.Len(t, confirmations, 1)
	require.Equal(t, 1, confirmations[0].RetryCount)
	require.True(t, confirmations[0].ScheduledFor.After(t0))

	require.NoError(t, svc.OnBookingCreated(ctx, ev))

	assert.Len(t, h.store.byBooking(ev.Booking.ID, model.TypeAppointmentConfirmation), 1)
	assert.Len(t, h.store.byBooking(ev.Booking.ID, model.TypeFollowUp), 1)
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Booking routing keys published by the clinic booking subsystem.
const (
	BookingCreated     = "booking.created"
	BookingCancelled   = "booking.cancelled"
	BookingRescheduled = "booking.rescheduled"
)

// Booking is the part of a clinic appointment the notifier needs.
type Booking struct {
	ID           uuid.UUID `json:"id" validate:"required"`
	ClientID     uuid.UUID `json:"client_id" validate:"required"`
	StartsAt     time.Time `json:"starts_at" validate:"required"`
	ServiceName  string    `json:"service_name"`
	Professional string    `json:"professional"`
	Channel      Channel   `json:"channel" validate:"omitempty,oneof=whatsapp email sms"`
}

// BookingEvent is the message envelope consumed from the booking exchange.
type BookingEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Booking    Booking   `json:"booking"`
}

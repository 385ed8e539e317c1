package model

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies why a notification exists. It is fixed at creation.
type Type string

const (
	TypeAppointmentReminder     Type = "appointment_reminder"
	TypeAppointmentConfirmation Type = "appointment_confirmation"
	TypeAppointmentCancellation Type = "appointment_cancellation"
	TypeFollowUp                Type = "follow_up"
	TypePromotion               Type = "promotion"
	TypeBirthdayGreeting        Type = "birthday_greeting"
	TypeLoyaltyReward           Type = "loyalty_reward"
)

// Valid reports whether t is one of the known notification types.
func (t Type) Valid() bool {
	switch t {
	case TypeAppointmentReminder, TypeAppointmentConfirmation, TypeAppointmentCancellation,
		TypeFollowUp, TypePromotion, TypeBirthdayGreeting, TypeLoyaltyReward:
		return true
	}
	return false
}

// Channel represents the notification delivery channel.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
)

// Valid reports whether c is a supported delivery channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// Status represents the current state of a notification.
type Status string

const (
	StatusPending   Status = "pending"   // Waiting for its scheduled time or for a retry window.
	StatusSent      Status = "sent"      // Delivered to the provider. Terminal.
	StatusFailed    Status = "failed"    // Permanently rejected or out of retries. Terminal.
	StatusCancelled Status = "cancelled" // The triggering booking was cancelled or moved. Terminal.
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Notification is the core business entity of the application: a single
// scheduled outbound message for a clinic client.
// It is technology-agnostic and does not contain any DB or JSON tags.
type Notification struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	BookingID *uuid.UUID // Nil for notifications not tied to an appointment.
	Type      Type
	Channel   Channel
	Status    Status

	TemplateName string
	TemplateData map[string]string

	ScheduledFor time.Time
	SentAt       *time.Time
	ErrorMessage *string
	RetryCount   int
	ExternalID   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewNotification is a factory function for a pending notification.
// The template name defaults to the notification type.
func NewNotification(clientID uuid.UUID, bookingID *uuid.UUID, typ Type, channel Channel, scheduledFor time.Time, data map[string]string) *Notification {
	now := time.Now().UTC()
	if data == nil {
		data = map[string]string{}
	}
	return &Notification{
		ID:           uuid.New(),
		ClientID:     clientID,
		BookingID:    bookingID,
		Type:         typ,
		Channel:      channel,
		Status:       StatusPending,
		TemplateName: string(typ),
		TemplateData: data,
		ScheduledFor: scheduledFor.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Contact holds the delivery addresses of a clinic client.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Filter narrows a notification history query. Zero values mean "any".
type Filter struct {
	ClientID  *uuid.UUID
	BookingID *uuid.UUID
	Status    *Status
	Type      *Type
	Limit     int
	Offset    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Normalize clamps the pagination values of the filter.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

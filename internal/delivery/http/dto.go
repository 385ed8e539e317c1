package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
)

// CreateNotificationRequest defines the structure for a new admin-scheduled notification.
// It uses `json` tags for unmarshalling and `binding` for validation with Gin.
type CreateNotificationRequest struct {
	ClientID     string            `json:"client_id" binding:"required,uuid"`
	BookingID    *string           `json:"booking_id,omitempty" binding:"omitempty,uuid"`
	Type         string            `json:"type" binding:"required"`
	Channel      string            `json:"channel" binding:"required"`
	ScheduledFor time.Time         `json:"scheduled_for" binding:"required"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

// ListNotificationsQuery holds the filters of the history endpoint.
type ListNotificationsQuery struct {
	ClientID  string `form:"client_id" binding:"omitempty,uuid"`
	BookingID string `form:"booking_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,oneof=pending sent failed cancelled"`
	Type      string `form:"type"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

// NotificationResponse defines the structure for a standard notification response.
type NotificationResponse struct {
	ID           uuid.UUID         `json:"id"`
	ClientID     uuid.UUID         `json:"client_id"`
	BookingID    *uuid.UUID        `json:"booking_id,omitempty"`
	Type         string            `json:"type"`
	Channel      string            `json:"channel"`
	Status       string            `json:"status"`
	TemplateName string            `json:"template_name"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	RetryCount   int               `json:"retry_count"`
	ExternalID   *string           `json:"external_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ListNotificationsResponse wraps a page of history.
type ListNotificationsResponse struct {
	Items  []NotificationResponse `json:"items"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// ErrorResponse defines a standard structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// toNotificationResponse is a helper function to map the domain model to the DTO.
func toNotificationResponse(n *model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:           n.ID,
		ClientID:     n.ClientID,
		BookingID:    n.BookingID,
		Type:         string(n.Type),
		Channel:      string(n.Channel),
		Status:       string(n.Status),
		TemplateName: n.TemplateName,
		TemplateData: n.TemplateData,
		ScheduledFor: n.ScheduledFor,
		SentAt:       n.SentAt,
		ErrorMessage: n.ErrorMessage,
		RetryCount:   n.RetryCount,
		ExternalID:   n.ExternalID,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

// toFilter converts validated query parameters into a domain filter.
func (q ListNotificationsQuery) toFilter() model.Filter {
	f := model.Filter{Limit: q.Limit, Offset: q.Offset}
	if q.ClientID != "" {
		id := uuid.MustParse(q.ClientID)
		f.ClientID = &id
	}
	if q.BookingID != "" {
		id := uuid.MustParse(q.BookingID)
		f.BookingID = &id
	}
	if q.Status != "" {
		s := model.Status(q.Status)
		f.Status = &s
	}
	if q.Type != "" {
		t := model.Type(q.Type)
		f.Type = &t
	}
	return f.Normalize()
}

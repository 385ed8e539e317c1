package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/ilindan-dev/clinic-notifier/internal/service"
	"github.com/rs/zerolog"
)

// requestedByHeader names the operator that asked for an ad-hoc dispatch.
const requestedByHeader = "X-Requested-By"

type notificationService interface {
	CreateNotification(ctx context.Context, in service.CreateInput) (*model.Notification, error)
	GetNotificationByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	ListNotifications(ctx context.Context, filter model.Filter) ([]*model.Notification, error)
	TriggerDispatch(ctx context.Context, requestedBy string) error
}

type Handlers struct {
	service notificationService
	logger  zerolog.Logger
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(svc *service.NotificationService, logger *zerolog.Logger) *Handlers {
	return newHandlers(svc, logger)
}

func newHandlers(svc notificationService, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		service: svc,
		logger:  logger.With().Str("layer", "http_handler").Logger(),
	}
}

// RegisterRoutes sets up the routing for the notification API.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/notifications", h.CreateNotification)
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/:id", h.GetNotificationByID)
		api.POST("/dispatch", h.TriggerDispatch)
	}
}

// CreateNotification handles the HTTP request for scheduling a new notification.
func (h *Handlers) CreateNotification(c *gin.Context) {
	var req CreateNotificationRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	in := service.CreateInput{
		ClientID:     uuid.MustParse(req.ClientID),
		Type:         model.Type(req.Type),
		Channel:      model.Channel(req.Channel),
		ScheduledFor: req.ScheduledFor,
		TemplateData: req.TemplateData,
	}
	if req.BookingID != nil {
		id := uuid.MustParse(*req.BookingID)
		in.BookingID = &id
	}

	notification, err := h.service.CreateNotification(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err, "failed to create notification")
		return
	}

	c.JSON(http.StatusCreated, toNotificationResponse(notification))
}

// GetNotificationByID handles the HTTP request to retrieve a notification.
func (h *Handlers) GetNotificationByID(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid notification ID format"})
		return
	}

	notification, err := h.service.GetNotificationByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "failed to retrieve notification")
		return
	}

	c.JSON(http.StatusOK, toNotificationResponse(notification))
}

// ListNotifications handles the HTTP request for delivery history.
func (h *Handlers) ListNotifications(c *gin.Context) {
	var q ListNotificationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	filter := q.toFilter()
	list, err := h.service.ListNotifications(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err, "failed to list notifications")
		return
	}

	resp := ListNotificationsResponse{
		Items:  make([]NotificationResponse, 0, len(list)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for _, n := range list {
		resp.Items = append(resp.Items, toNotificationResponse(n))
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerDispatch asks the worker for an immediate sweep.
func (h *Handlers) TriggerDispatch(c *gin.Context) {
	requestedBy := c.GetHeader(requestedByHeader)
	if requestedBy == "" {
		requestedBy = "admin-api"
	}

	if err := h.service.TriggerDispatch(c.Request.Context(), requestedBy); err != nil {
		h.writeError(c, err, "failed to trigger dispatch")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatch requested"})
}

// writeError maps domain errors to HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, repo.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, repo.ErrDuplicateRecord), errors.Is(err, repo.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg})
	}
}

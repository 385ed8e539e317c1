package notifiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// WhatsAppSender sends text messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	client   *http.Client
	endpoint string
	token    string
	renderer *Renderer
	logger   zerolog.Logger
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// NewWhatsAppSender creates a new instance of WhatsAppSender.
// A nil client falls back to http.DefaultClient; per-send deadlines come from the context.
func NewWhatsAppSender(cfg config.WhatsAppConfig, renderer *Renderer, client *http.Client, logger *zerolog.Logger) *WhatsAppSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WhatsAppSender{
		client:   client,
		endpoint: fmt.Sprintf("%s/%s/messages", strings.TrimRight(cfg.BaseURL, "/"), cfg.PhoneNumberID),
		token:    cfg.AccessToken,
		renderer: renderer,
		logger:   logger.With().Str("component", "whatsapp_sender").Logger(),
	}
}

// Send implements the Sender interface for WhatsApp.
func (s *WhatsAppSender) Send(ctx context.Context, n *model.Notification, to model.Contact) (string, error) {
	if to.Phone == "" {
		return "", Permanentf("client %s has no phone number", n.ClientID)
	}

	msg, err := s.renderer.Render(n, to)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(whatsAppRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(to.Phone, "+"),
		Type:             "text",
		Text:             whatsAppText{Body: msg.Text()},
	})
	if err != nil {
		return "", Permanent(fmt.Errorf("encode whatsapp request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", Permanent(fmt.Errorf("build whatsapp request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Stringer("notification_id", n.ID).Msg("whatsapp request failed")
		return "", Transient(fmt.Errorf("whatsapp request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", Transient(fmt.Errorf("read whatsapp response: %w", err))
	}

	var parsed whatsAppResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode >= http.StatusBadRequest {
		reason := http.StatusText(resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			reason = fmt.Sprintf("%s (code %d)", parsed.Error.Message, parsed.Error.Code)
		}
		err := fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, reason)
		s.logger.Error().Err(err).Stringer("notification_id", n.ID).Msg("failed to send whatsapp message")
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return "", Transient(err)
		}
		return "", Permanent(err)
	}

	// The request was accepted, so a second attempt could deliver the message twice.
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", Permanentf("whatsapp api accepted the message with status %d but returned no message id", resp.StatusCode)
	}

	externalID := parsed.Messages[0].ID
	s.logger.Info().Stringer("notification_id", n.ID).Str("external_id", externalID).Msg("whatsapp message sent successfully")
	return externalID, nil
}

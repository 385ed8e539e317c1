package notifiers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/kavenegar/kavenegar-go"
	"github.com/rs/zerolog"
)

// SmsSender sends notifications as SMS through Kavenegar.
type SmsSender struct {
	deliver  func(phone, text string) (string, error)
	renderer *Renderer
	logger   zerolog.Logger
}

// NewSmsSender creates a new instance of SmsSender.
func NewSmsSender(cfg config.SMSConfig, renderer *Renderer, logger *zerolog.Logger) *SmsSender {
	api := kavenegar.New(cfg.APIKey)
	deliver := func(phone, text string) (string, error) {
		res, err := api.Message.Send(cfg.Sender, []string{phone}, text, nil)
		if err != nil {
			return "", err
		}
		if len(res) == 0 {
			return "", errors.New("no response entries from kavenegar")
		}
		return fmt.Sprintf("%d", res[0].MessageID), nil
	}
	return newSmsSender(deliver, renderer, logger)
}

func newSmsSender(deliver func(phone, text string) (string, error), renderer *Renderer, logger *zerolog.Logger) *SmsSender {
	return &SmsSender{
		deliver:  deliver,
		renderer: renderer,
		logger:   logger.With().Str("component", "sms_sender").Logger(),
	}
}

// Send implements the Sender interface for SMS.
func (s *SmsSender) Send(ctx context.Context, n *model.Notification, to model.Contact) (string, error) {
	if to.Phone == "" {
		return "", Permanentf("client %s has no phone number", n.ClientID)
	}

	msg, err := s.renderer.Render(n, to)
	if err != nil {
		return "", err
	}

	externalID, err := runWithContext(ctx, func() (string, error) {
		return s.deliver(to.Phone, msg.Body)
	})
	if err != nil {
		s.logger.Error().Err(err).Stringer("notification_id", n.ID).Msg("failed to send sms")
		return "", classifyKavenegarError(err)
	}

	s.logger.Info().Stringer("notification_id", n.ID).Str("external_id", externalID).Msg("sms sent successfully")
	return externalID, nil
}

// Kavenegar return statuses that describe a provider-side condition rather than a bad request.
var kavenegarRetryableStatuses = map[int]bool{
	402: true, // operation failed
	409: true, // server unable to respond
	418: true, // insufficient credit
}

func classifyKavenegarError(err error) error {
	var se *SendError
	if errors.As(err, &se) {
		return err
	}
	var apiErr *kavenegar.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("kavenegar API error: %w", err)
		if kavenegarRetryableStatuses[apiErr.Status] || apiErr.Status >= 500 {
			return Transient(wrapped)
		}
		return Permanent(wrapped)
	}
	var httpErr *kavenegar.HTTPError
	if errors.As(err, &httpErr) {
		wrapped := fmt.Errorf("kavenegar HTTP error: %w", err)
		if httpErr.Status >= 400 && httpErr.Status < 500 && httpErr.Status != 429 {
			return Permanent(wrapped)
		}
		return Transient(wrapped)
	}
	return Transient(fmt.Errorf("failed to send SMS: %w", err))
}

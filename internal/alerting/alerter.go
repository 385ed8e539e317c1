package alerting

import (
	"context"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// FailureAlerter tells the clinic staff that a notification could not be delivered.
type FailureAlerter interface {
	NotifyFailure(ctx context.Context, n *model.Notification, reason string) error
}

// NopAlerter drops alerts.
type NopAlerter struct{}

func (NopAlerter) NotifyFailure(context.Context, *model.Notification, string) error { return nil }

// NewFailureAlerter returns a Telegram alerter when a bot token is configured
// and a NopAlerter otherwise.
func NewFailureAlerter(cfg *config.Config, logger *zerolog.Logger) (FailureAlerter, error) {
	if cfg.Alerts.Telegram.BotToken == "" {
		logger.Info().Msg("telegram alerts disabled")
		return NopAlerter{}, nil
	}
	return NewTelegramAlerter(cfg.Alerts.Telegram, logger)
}

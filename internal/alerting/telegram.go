package alerting

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter posts delivery failures to the staff chat via a Telegram bot.
type TelegramAlerter struct {
	bot    botSender
	chatID int64
	logger zerolog.Logger
}

// NewTelegramAlerter creates a new instance of TelegramAlerter.
func NewTelegramAlerter(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	return newTelegramAlerter(bot, cfg.ChatID, logger), nil
}

func newTelegramAlerter(bot botSender, chatID int64, logger *zerolog.Logger) *TelegramAlerter {
	return &TelegramAlerter{
		bot:    bot,
		chatID: chatID,
		logger: logger.With().Str("component", "telegram_alerter").Logger(),
	}
}

// NotifyFailure implements the FailureAlerter interface.
func (a *TelegramAlerter) NotifyFailure(_ context.Context, n *model.Notification, reason string) error {
	booking := "-"
	if n.BookingID != nil {
		booking = n.BookingID.String()
	}
	text := fmt.Sprintf(
		"Notification delivery failed\n\nid: %s\ntype: %s\nchannel: %s\nclient: %s\nbooking: %s\nattempts: %d\nreason: %s",
		n.ID, n.Type, n.Channel, n.ClientID, booking, n.RetryCount+1, reason,
	)

	if _, err := a.bot.Send(tgbotapi.NewMessage(a.chatID, text)); err != nil {
		a.logger.Error().Err(err).Stringer("notification_id", n.ID).Msg("failed to send telegram alert")
		return err
	}

	a.logger.Info().Stringer("notification_id", n.ID).Int64("chat_id", a.chatID).Msg("telegram alert sent")
	return nil
}

package notifiers

import (
	"context"
	"net/http"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// ModeProduction enables the real channel senders.
const ModeProduction = "production"

// Dispatcher is a composite sender that routes notifications to the correct channel-specific sender.
// It implements the Sender interface itself.
type Dispatcher struct {
	senders map[model.Channel]Sender
	logger  zerolog.Logger
}

// NewDispatcher creates a new Dispatcher and initializes channel-specific senders
// based on the application's configuration mode.
func NewDispatcher(cfg *config.Config, renderer *Renderer, logger *zerolog.Logger) *Dispatcher {
	log := logger.With().Str("component", "dispatcher").Logger()
	log.Info().Str("mode", cfg.Notifiers.Mode).Msg("initializing senders")

	// Create the LogSender once to use as a fallback.
	logSender := NewLogSender(renderer, logger)
	senders := map[model.Channel]Sender{
		model.ChannelWhatsApp: logSender,
		model.ChannelEmail:    logSender,
		model.ChannelSMS:      logSender,
	}

	// If in "production" mode, try to override the defaults with real senders.
	if cfg.Notifiers.Mode == ModeProduction {
		wa := cfg.Notifiers.WhatsApp
		if wa.PhoneNumberID != "" && wa.AccessToken != "" {
			senders[model.ChannelWhatsApp] = NewWhatsAppSender(wa, renderer, &http.Client{}, logger)
			log.Info().Msg("whatsapp sender enabled")
		}
		if cfg.Notifiers.Email.Host != "" {
			senders[model.ChannelEmail] = NewEmailSender(cfg.Notifiers.Email, renderer, logger)
			log.Info().Msg("email sender enabled")
		}
		if cfg.Notifiers.SMS.APIKey != "" {
			senders[model.ChannelSMS] = NewSmsSender(cfg.Notifiers.SMS, renderer, logger)
			log.Info().Msg("sms sender enabled")
		}
	}

	return NewDispatcherWith(senders, logger)
}

// NewDispatcherWith builds a Dispatcher over an explicit channel table.
func NewDispatcherWith(senders map[model.Channel]Sender, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		senders: senders,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Send implements the Sender interface. It finds the correct sender for the
// notification's channel and delegates the send operation to it.
func (d *Dispatcher) Send(ctx context.Context, n *model.Notification, to model.Contact) (string, error) {
	sender, ok := d.senders[n.Channel]
	if !ok {
		d.logger.Error().Str("channel", string(n.Channel)).Msg("no sender found for channel")
		return "", Permanentf("sender for channel %s not found", n.Channel)
	}

	return sender.Send(ctx, n, to)
}

package notifiers

import (
	"context"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// LogSender is a mock sender that implements the Sender interface.
// It renders the message and logs it instead of sending it through a real channel.
type LogSender struct {
	renderer *Renderer
	logger   zerolog.Logger
}

// NewLogSender creates a new instance of LogSender.
func NewLogSender(renderer *Renderer, logger *zerolog.Logger) *LogSender {
	return &LogSender{
		renderer: renderer,
		logger:   logger.With().Str("component", "log_sender").Logger(),
	}
}

// Send implements the Sender interface.
func (s *LogSender) Send(_ context.Context, n *model.Notification, to model.Contact) (string, error) {
	msg, err := s.renderer.Render(n, to)
	if err != nil {
		return "", err
	}

	var recipient string
	switch n.Channel {
	case model.ChannelEmail:
		recipient = to.Email
	default:
		recipient = to.Phone
	}

	externalID := "log-" + uuid.NewString()
	s.logger.Info().
		Stringer("notification_id", n.ID).
		Str("channel", string(n.Channel)).
		Str("recipient", recipient).
		Str("subject", msg.Subject).
		Str("external_id", externalID).
		Msg(">>> MOCK SEND: Notification dispatched")

	return externalID, nil
}

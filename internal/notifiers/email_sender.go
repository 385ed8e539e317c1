package notifiers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

type mailDialer interface {
	Dial() (gomail.SendCloser, error)
}

// EmailSender sends notifications via SMTP.
type EmailSender struct {
	dialer   mailDialer
	from     string
	domain   string
	renderer *Renderer
	logger   zerolog.Logger
}

// NewEmailSender creates a new instance of EmailSender.
func NewEmailSender(cfg config.EmailConfig, renderer *Renderer, logger *zerolog.Logger) *EmailSender {
	return newEmailSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, renderer, logger)
}

func newEmailSender(dialer mailDialer, from string, renderer *Renderer, logger *zerolog.Logger) *EmailSender {
	domain := "localhost"
	if addr, err := mail.ParseAddress(from); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at >= 0 {
			domain = addr.Address[at+1:]
		}
	}
	return &EmailSender{
		dialer:   dialer,
		from:     from,
		domain:   domain,
		renderer: renderer,
		logger:   logger.With().Str("component", "email_sender").Logger(),
	}
}

// Send implements the Sender interface for email. The generated Message-ID
// header is returned as the external id.
func (s *EmailSender) Send(ctx context.Context, n *model.Notification, to model.Contact) (string, error) {
	if to.Email == "" {
		return "", Permanentf("client %s has no email address", n.ClientID)
	}
	addr, err := mail.ParseAddress(to.Email)
	if err != nil {
		return "", Permanent(fmt.Errorf("invalid email address %q: %w", to.Email, err))
	}

	msg, err := s.renderer.Render(n, to)
	if err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain)
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", addr.Address, to.Name)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", msg.Body)

	_, err = runWithContext(ctx, func() (string, error) {
		return "", s.deliver(m)
	})
	if err != nil {
		s.logger.Error().Err(err).Stringer("notification_id", n.ID).Msg("failed to send email")
		return "", classifySMTPError(err)
	}

	s.logger.Info().Stringer("notification_id", n.ID).Str("recipient", addr.Address).Msg("email sent successfully")
	return messageID, nil
}

// deliver sends m over a fresh SMTP session. gomail.Send flattens the errors of
// the underlying sender, so the raw SMTP error is captured and returned instead.
func (s *EmailSender) deliver(m *gomail.Message) error {
	sc, err := s.dialer.Dial()
	if err != nil {
		return Transient(fmt.Errorf("smtp dial: %w", err))
	}
	defer sc.Close()

	var smtpErr error
	err = gomail.Send(gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		smtpErr = sc.Send(from, to, msg)
		return smtpErr
	}), m)
	if smtpErr != nil {
		return fmt.Errorf("smtp send: %w", smtpErr)
	}
	return err
}

// classifySMTPError treats 5xx SMTP replies as permanent.
func classifySMTPError(err error) error {
	var se *SendError
	if errors.As(err, &se) {
		return err
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return Permanent(err)
	}
	return Transient(err)
}

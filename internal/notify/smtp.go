// Package notify delivers composed emails over SMTP.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/storefront/api/internal/services"
)

// ErrMissingRecipient is returned when a message has no destination address.
var ErrMissingRecipient = errors.New("notify: recipient required")

// SMTPConfig carries the transport settings for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends messages through a single SMTP relay.
type SMTPMailer struct {
	from    string
	timeout time.Duration
	logger  *zap.Logger
	send    func(*gomail.Message) error
}

var _ services.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer validates cfg and returns a mailer dialing the relay per message.
func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) (*SMTPMailer, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("notify: smtp host is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		return nil, errors.New("notify: sender address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := gomail.NewDialer(host, port, cfg.Username, cfg.Password)
	return &SMTPMailer{
		from:    from,
		timeout: timeout,
		logger:  logger.Named("smtp"),
		send: func(m *gomail.Message) error {
			return dialer.DialAndSend(m)
		},
	}, nil
}

// Send delivers msg. The dial happens on a separate goroutine so the caller's
// deadline is honoured even when the relay stalls.
func (m *SMTPMailer) Send(ctx context.Context, msg services.MailMessage) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return ErrMissingRecipient
	}

	message := m.buildMessage(to, msg)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.send(message)
	}()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Warn("smtp send failed", zap.String("to", to), zap.String("subject", msg.Subject), zap.Error(err))
			return fmt.Errorf("notify: send to %s: %w", to, err)
		}
		m.logger.Debug("smtp message sent", zap.String("to", to), zap.Int("attachments", len(msg.Attachments)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: send to %s: %w", to, ctx.Err())
	}
}

func (m *SMTPMailer) buildMessage(to string, msg services.MailMessage) *gomail.Message {
	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", msg.Subject)

	switch {
	case msg.Text != "" && msg.HTML != "":
		message.SetBody("text/plain", msg.Text)
		message.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		message.SetBody("text/html", msg.HTML)
	default:
		message.SetBody("text/plain", msg.Text)
	}

	for _, attachment := range msg.Attachments {
		content := attachment.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, bytes.NewReader(content))
				return err
			}),
		}
		if attachment.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {attachment.ContentType},
			}))
		}
		message.Attach(attachment.Filename, settings...)
	}
	return message
}

// NopMailer discards messages. It backs deployments without SMTP settings.
type NopMailer struct {
	Logger *zap.Logger
}

var _ services.Mailer = NopMailer{}

func (n NopMailer) Send(_ context.Context, msg services.MailMessage) error {
	if n.Logger != nil {
		n.Logger.Info("email disabled, message not sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}
	return nil
}

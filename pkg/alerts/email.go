package alerts

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Validate validates the email configuration.
func (c EmailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	return nil
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends alert emails to a project's responsible users.
type EmailNotifier struct {
	config EmailConfig
	send   SendFunc
}

// NewEmailNotifier creates a new email notifier.
func NewEmailNotifier(config EmailConfig) (*EmailNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email config: %w", err)
	}
	return &EmailNotifier{config: config, send: smtp.SendMail}, nil
}

// WithSendFunc replaces the SMTP transport.
func (e *EmailNotifier) WithSendFunc(fn SendFunc) *EmailNotifier {
	e.send = fn
	return e
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Channel() model.Channel { return model.ChannelEmail }

// Send mails the rendered content to msg.Address.
func (e *EmailNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Address == "" {
		return &apperrors.DeliveryError{Channel: "email", Err: fmt.Errorf("recipient %s has no email address", msg.RecipientID)}
	}
	if err := ctx.Err(); err != nil {
		return &apperrors.DeliveryError{Channel: "email", Err: err}
	}

	var auth smtp.Auth
	if e.config.Username != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	}
	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))

	if err := e.send(addr, auth, e.config.From, []string{msg.Address}, e.buildMessage(msg)); err != nil {
		return &apperrors.DeliveryError{Channel: "email", Err: err}
	}
	return nil
}

// buildMessage builds a plain-text UTF-8 message.
func (e *EmailNotifier) buildMessage(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + e.config.From + "\r\n")
	b.WriteString("To: " + msg.Address + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", EmailSubject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Content.Title + "\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Content.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

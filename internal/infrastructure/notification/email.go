package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/infrastructure/config"
)

// Message is a single outbound notification
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages over some transport
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// smtpSender delivers messages over plain SMTP
type smtpSender struct {
	cfg *config.SMTPConfig
}

// NewSMTPSender creates a sender backed by the configured SMTP relay
func NewSMTPSender(cfg *config.SMTPConfig) Sender {
	return &smtpSender{cfg: cfg}
}

func (s *smtpSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// logSender records messages instead of delivering them. Used when no SMTP
// relay is configured and in tests.
type logSender struct {
	logger *zap.Logger
}

// NewLogSender creates a sender that only logs
func NewLogSender(logger *zap.Logger) Sender {
	return &logSender{logger: logger}
}

func (s *logSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification suppressed, no smtp relay configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

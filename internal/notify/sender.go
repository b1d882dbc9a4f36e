// Package notify отправляет письма: подтверждение адреса и уведомления о срабатывании правил.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/resend/resend-go/v2"

	"sensor-monitor/internal/metrics"
)

// Message письмо
type Message struct {
	To      string
	Subject string
	HTML    string
	// Kind метка для метрик: verification, alert
	Kind string
}

// Sender отправка писем
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender отправка через Resend API
type ResendSender struct {
	client *resend.Client
	from   string
	logger *slog.Logger
}

// NewResendSender клиент Resend; без ключа Send возвращает ErrNotConfigured
func NewResendSender(apiKey, from string, logger *slog.Logger) *ResendSender {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ResendSender{from: from, logger: logger.With("component", "email")}
	if strings.TrimSpace(apiKey) != "" {
		s.client = resend.NewClient(apiKey)
	}
	return s
}

// Send реализует Sender
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	err := s.send(ctx, msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
		s.logger.Warn("email not sent", "kind", msg.Kind, "error", err)
	}
	metrics.EmailsSent.WithLabelValues(msg.Kind, outcome).Inc()
	return err
}

func (s *ResendSender) send(ctx context.Context, msg Message) error {
	to, err := ValidateAddress(msg.To)
	if err != nil {
		return err
	}
	if s.client == nil {
		return ErrNotConfigured
	}
	_, err = s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", classify(err))
	}
	return nil
}

// ValidateAddress проверяет адрес и возвращает его без имени
func ValidateAddress(addr string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, addr)
	}
	return parsed.Address, nil
}

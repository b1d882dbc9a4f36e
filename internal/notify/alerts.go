package notify

import (
	"context"
	"fmt"
	"html"

	"sensor-monitor/internal/alerting"
	"sensor-monitor/internal/models"
)

// AlertMailer отправляет письмо о срабатывании правила, если уведомления
// включены и адрес подтвержден. Восстановления не отправляются.
type AlertMailer struct {
	sender   Sender
	settings func() models.Settings
	appURL   string
}

// NewAlertMailer settings возвращает актуальные настройки пользователя
func NewAlertMailer(sender Sender, settings func() models.Settings, appURL string) *AlertMailer {
	return &AlertMailer{sender: sender, settings: settings, appURL: appURL}
}

// Notify реализует alerting.Notifier
func (m *AlertMailer) Notify(ctx context.Context, n alerting.Notification) error {
	if n.Kind != alerting.KindTriggered {
		return nil
	}
	cfg := m.settings().Notifications
	if !cfg.Enabled || !cfg.EmailVerified || cfg.Email == "" {
		return nil
	}
	return m.sender.Send(ctx, Message{
		To:      cfg.Email,
		Subject: fmt.Sprintf("[%s] %s", n.Priority, n.Message),
		HTML:    alertHTML(n, m.appURL),
		Kind:    "alert",
	})
}

func alertHTML(n alerting.Notification, appURL string) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #333;">%s</h1>
  <p style="color: #666;">%s</p>
  <p style="color: #666;">Device: %s, priority: %s, at %s</p>
  <p><a href="%s/alerts">Open alerts</a></p>
</div>`,
		html.EscapeString(n.Message),
		html.EscapeString(n.Description),
		html.EscapeString(n.DeviceID),
		html.EscapeString(string(n.Priority)),
		n.At.UTC().Format("2006-01-02 15:04:05 MST"),
		html.EscapeString(appURL),
	)
}

package models

import (
	"encoding/json"
	"fmt"
	"net/mail"

	"sensor-monitor/internal/units"
)

// Theme тема интерфейса
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// DeliveryKind способ доставки данных в дашборд
type DeliveryKind string

const (
	DeliveryLive DeliveryKind = "live"
	DeliveryPoll DeliveryKind = "poll"
)

// DefaultPollSeconds период опроса по умолчанию, 5 минут
const DefaultPollSeconds = 300

// Delivery режим доставки: live или poll с периодом
type Delivery struct {
	Kind          DeliveryKind `json:"kind"`
	PeriodSeconds int          `json:"periodSeconds,omitempty"`
}

// UnmarshalJSON объект доставки заменяется целиком: отсутствующий период равен нулю
func (d *Delivery) UnmarshalJSON(b []byte) error {
	type plain Delivery
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = Delivery(p)
	return nil
}

// Validate период задан только для poll и только положительный
func (d Delivery) Validate() error {
	switch d.Kind {
	case DeliveryLive:
		if d.PeriodSeconds != 0 {
			return &ValidationError{Field: "delivery.periodSeconds", Reason: "must be empty in live mode"}
		}
	case DeliveryPoll:
		if d.PeriodSeconds <= 0 {
			return &ValidationError{Field: "delivery.periodSeconds", Reason: "must be positive in poll mode"}
		}
	default:
		return &ValidationError{Field: "delivery.kind", Reason: fmt.Sprintf("unknown delivery %q", d.Kind)}
	}
	return nil
}

// Notifications настройки уведомлений
type Notifications struct {
	Enabled       bool   `json:"enabled"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	Audio         bool   `json:"audio"`
}

// Settings локальные настройки пользователя
type Settings struct {
	Theme         Theme             `json:"theme"`
	Units         units.Preferences `json:"units"`
	Notifications Notifications     `json:"notifications"`
	Delivery      Delivery          `json:"delivery"`
}

// DefaultSettings настройки при первом запуске
func DefaultSettings() Settings {
	return Settings{
		Theme: ThemeSystem,
		Units: units.DefaultPreferences(),
		Notifications: Notifications{
			Audio: true,
		},
		Delivery: Delivery{Kind: DeliveryPoll, PeriodSeconds: DefaultPollSeconds},
	}
}

// Validate проверяет настройки перед сохранением
func (s Settings) Validate() error {
	switch s.Theme {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		return &ValidationError{Field: "theme", Reason: fmt.Sprintf("unknown theme %q", s.Theme)}
	}
	if err := s.Units.Validate(); err != nil {
		return &ValidationError{Field: "units", Reason: err.Error()}
	}
	if s.Notifications.Email != "" {
		if _, err := mail.ParseAddress(s.Notifications.Email); err != nil {
			return &ValidationError{Field: "notifications.email", Reason: "is not a valid address"}
		}
	}
	if s.Notifications.Enabled && s.Notifications.Email == "" {
		return &ValidationError{Field: "notifications.email", Reason: "is required when notifications are enabled"}
	}
	return s.Delivery.Validate()
}

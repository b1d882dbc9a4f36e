package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/iancoleman/strcase"

	"sensor-monitor/internal/models"
	"sensor-monitor/internal/units"
)

// Kind вид уведомления
type Kind string

const (
	KindTriggered Kind = "triggered"
	KindRecovered Kind = "recovered"
)

// Severity уровень отображения уведомления
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
)

// Notification событие перехода правила
type Notification struct {
	Kind           Kind            `json:"kind"`
	RuleID         string          `json:"ruleId"`
	DeviceID       string          `json:"deviceId"`
	Metric         models.Metric   `json:"metric"`
	Priority       models.Priority `json:"priority"`
	Message        string          `json:"message"`
	Value          float64         `json:"value"`
	FormattedValue string          `json:"formattedValue"`
	Description    string          `json:"description"`
	Severity       Severity        `json:"severity"`
	Duration       time.Duration   `json:"duration"`
	At             time.Time       `json:"at"`
}

// Presentation уровень и длительность показа по приоритету
func Presentation(kind Kind, p models.Priority) (Severity, time.Duration) {
	if kind == KindRecovered {
		return SeveritySuccess, 3 * time.Second
	}
	switch p {
	case models.PriorityHigh:
		return SeverityError, 8 * time.Second
	case models.PriorityMedium:
		return SeverityWarning, 5 * time.Second
	}
	return SeverityInfo, 5 * time.Second
}

// MetricLabel "vibrationMagnitude" -> "Vibration magnitude"
func MetricLabel(m models.Metric) string {
	s := strcase.ToDelimited(string(m), ' ')
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// FormatMetric значение метрики в единицах пользователя
func FormatMetric(m models.Metric, v float64, prefs units.Preferences) string {
	prefs = prefs.WithDefaults()
	switch m {
	case models.MetricTemperature:
		return units.FormatTemperature(v, prefs.Temperature)
	case models.MetricHumidity:
		return units.FormatHumidity(v)
	case models.MetricPressure:
		return units.FormatPressure(v, prefs.Pressure)
	case models.MetricGasLevel:
		return units.FormatGasLevel(v, prefs.GasLevel)
	case models.MetricDistance:
		return units.FormatDistance(v, prefs.Distance)
	case models.MetricVibrationMagnitude:
		return units.FormatVibration(v, prefs.Vibration)
	}
	return units.FormatNumber(v, 1) + m.Unit()
}

func describe(kind Kind, m models.Metric, formatted string) string {
	if kind == KindRecovered {
		return fmt.Sprintf("%s is now within normal range", MetricLabel(m))
	}
	return fmt.Sprintf("%s: %s", MetricLabel(m), formatted)
}

// Notifier получатель уведомлений
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc функция как Notifier
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify реализует Notifier
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Multi рассылает уведомление всем получателям; ошибки объединяются
type Multi []Notifier

// Notify реализует Notifier
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, target := range m {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier пишет уведомления в лог
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify реализует Notifier
func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Severity {
	case SeverityError:
		level = slog.LevelError
	case SeverityWarning:
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, strings.TrimSpace(n.Message),
		"kind", n.Kind,
		"rule_id", n.RuleID,
		"device_id", n.DeviceID,
		"metric", n.Metric,
		"value", n.FormattedValue,
	)
	return nil
}

// Package alerting оценивает пользовательские правила по снимку метрик
// и сообщает о срабатываниях и восстановлениях.
package alerting

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"sensor-monitor/internal/analytics"
	"sensor-monitor/internal/metrics"
	"sensor-monitor/internal/models"
	"sensor-monitor/internal/units"
)

// DefaultEpsilon минимальное изменение значения для повторного срабатывания
const DefaultEpsilon = 0.1

// RuleStore хранилище правил, в которое движок записывает переходы
type RuleStore interface {
	List() []models.Alert
	// SetStatus переход from -> to; models.ErrStatusConflict, если статус уже другой
	SetStatus(ctx context.Context, id string, from, to models.AlertStatus, lastTriggered *time.Time) error
}

// Option настройка движка
type Option func(*Engine)

// WithEpsilon порог значимого изменения
func WithEpsilon(eps float64) Option {
	return func(e *Engine) {
		if eps >= 0 {
			e.epsilon = eps
		}
	}
}

// WithClock источник времени
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger логгер движка
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPreferences единицы, в которых форматируются значения уведомлений
func WithPreferences(prefs func() units.Preferences) Option {
	return func(e *Engine) {
		if prefs != nil {
			e.prefs = prefs
		}
	}
}

// Engine конечный автомат правил. Не безопасен для конкурентного использования:
// вызывается только из цикла монитора.
type Engine struct {
	rules    RuleStore
	notifier Notifier
	epsilon  float64
	last     map[string]float64
	now      func() time.Time
	prefs    func() units.Preferences
	logger   *slog.Logger
}

// NewEngine создает движок; notifier может быть nil
func NewEngine(rules RuleStore, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		rules:    rules,
		notifier: notifier,
		epsilon:  DefaultEpsilon,
		last:     make(map[string]float64),
		now:      time.Now,
		prefs:    units.DefaultPreferences,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "alerting")
	return e
}

// Evaluate прогоняет все правила по снимку и возвращает уведомления
// о переходах в порядке списка правил.
//
//	active    --условие, значимое изменение--> triggered
//	triggered --условие, изменение > eps-----> triggered (повторное уведомление)
//	triggered --условие не выполнено---------> active (восстановление)
//
// Правила inactive не оцениваются, их последнее значение забывается.
// Правило без метрики в снимке пропускается.
func (e *Engine) Evaluate(ctx context.Context, snap analytics.Snapshot) []Notification {
	start := time.Now()
	defer func() {
		metrics.EvaluationLatency.Observe(time.Since(start).Seconds())
	}()

	rules := e.rules.List()
	known := make(map[string]bool, len(rules))
	var out []Notification

	for _, rule := range rules {
		known[rule.ID] = true
		if rule.Status == models.AlertInactive {
			delete(e.last, rule.ID)
			continue
		}
		value, ok := snap.Value(rule.Type)
		if !ok {
			continue
		}

		n, ok, err := e.step(ctx, rule, value, snap)
		if errors.Is(err, models.ErrStatusConflict) {
			// правило изменено пользователем во время оценки: следующий цикл прочитает новый статус
			e.logger.Debug("alert status changed during evaluation", "rule_id", rule.ID, "error", err)
			delete(e.last, rule.ID)
			continue
		}
		if err != nil {
			// переход не сохранен: last не обновляется, следующий цикл повторит попытку
			e.logger.Warn("failed to persist alert transition",
				"rule_id", rule.ID, "metric", rule.Type, "error", err)
			continue
		}
		e.last[rule.ID] = value
		if ok {
			out = append(out, n)
		}
	}

	for id := range e.last {
		if !known[id] {
			delete(e.last, id)
		}
	}

	for _, n := range out {
		metrics.AlertTransitions.WithLabelValues(string(n.Kind), string(n.Metric), string(n.Priority)).Inc()
		e.logger.Info("alert transition",
			"kind", n.Kind, "rule_id", n.RuleID, "metric", n.Metric, "value", n.Value)
		if e.notifier == nil {
			continue
		}
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.logger.Warn("notifier failed", "rule_id", n.RuleID, "error", err)
		}
	}
	return out
}

func (e *Engine) step(ctx context.Context, rule models.Alert, value float64, snap analytics.Snapshot) (Notification, bool, error) {
	if rule.Matches(value) {
		if rule.Status == models.AlertTriggered && !e.significant(rule.ID, value) {
			return Notification{}, false, nil
		}
		at := e.now().UTC()
		if err := e.rules.SetStatus(ctx, rule.ID, rule.Status, models.AlertTriggered, &at); err != nil {
			return Notification{}, false, err
		}
		return e.notification(KindTriggered, rule, value, snap.DeviceID, at), true, nil
	}

	if rule.Status != models.AlertTriggered {
		return Notification{}, false, nil
	}
	if err := e.rules.SetStatus(ctx, rule.ID, models.AlertTriggered, models.AlertActive, nil); err != nil {
		return Notification{}, false, err
	}
	return e.notification(KindRecovered, rule, value, snap.DeviceID, e.now().UTC()), true, nil
}

// significant нет прошлого значения или изменение больше eps
func (e *Engine) significant(id string, value float64) bool {
	last, ok := e.last[id]
	if !ok {
		return true
	}
	return math.Abs(value-last) > e.epsilon
}

func (e *Engine) notification(kind Kind, rule models.Alert, value float64, deviceID string, at time.Time) Notification {
	severity, duration := Presentation(kind, rule.Priority)
	formatted := FormatMetric(rule.Type, value, e.prefs())
	message := rule.Message
	if kind == KindRecovered {
		message = "Alert recovered: " + rule.Message
	}
	return Notification{
		Kind:           kind,
		RuleID:         rule.ID,
		DeviceID:       deviceID,
		Metric:         rule.Type,
		Priority:       rule.Priority,
		Message:        message,
		Value:          value,
		FormattedValue: formatted,
		Description:    describe(kind, rule.Type, formatted),
		Severity:       severity,
		Duration:       duration,
		At:             at,
	}
}

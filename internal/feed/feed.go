// Package feed доставляет снимки показаний из внешнего хранилища в двух режимах:
// live (push от источника) и poll (периодическая полная выборка).
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sensor-monitor/internal/models"
)

// ErrInvalidMode некорректный режим доставки
var ErrInvalidMode = errors.New("invalid delivery mode")

// Collection логическая коллекция хранилища
type Collection int

const (
	// Current текущие показания, один документ на устройство
	Current Collection = iota
	// History исторические показания, только добавление
	History
)

func (c Collection) String() string {
	if c == History {
		return "history"
	}
	return "current"
}

// Query фильтр выборки
type Query struct {
	Collection Collection
	DeviceID   string
	ActiveOnly bool
	// Lookback окно истории: timestamp >= now - Lookback
	Lookback time.Duration
	// Limit 0 без ограничения; для истории сохраняются самые новые
	Limit int
}

// Delivery один снимок от источника
type Delivery struct {
	Readings []models.Reading
	Err      error
}

// Source внешнее хранилище документов
type Source interface {
	// Fetch разовая полная выборка. История возвращается от новых к старым.
	Fetch(ctx context.Context, q Query) ([]models.Reading, error)
	// Watch подписка: полный снимок сразу и после каждого изменения.
	// Канал закрывается при отмене ctx или потере соединения.
	Watch(ctx context.Context, q Query) (<-chan Delivery, error)
}

// Mode режим доставки: Live или Poll
type Mode interface {
	fmt.Stringer
	mode()
}

// Live push-подписка
type Live struct{}

func (Live) mode()          {}
func (Live) String() string { return string(models.DeliveryLive) }

// Poll периодическая выборка; первая выборка сразу при подписке
type Poll struct {
	Period time.Duration
}

func (Poll) mode() {}
func (p Poll) String() string {
	return fmt.Sprintf("%s(%s)", models.DeliveryPoll, p.Period)
}

// ParseMode разбирает режим из конфигурации
func ParseMode(kind string, periodSeconds int) (Mode, error) {
	return ModeFromDelivery(models.Delivery{Kind: models.DeliveryKind(kind), PeriodSeconds: periodSeconds})
}

// ModeFromDelivery переводит настройку пользователя в режим фида
func ModeFromDelivery(d models.Delivery) (Mode, error) {
	switch d.Kind {
	case models.DeliveryLive:
		return Live{}, nil
	case models.DeliveryPoll:
		if d.PeriodSeconds <= 0 {
			return nil, fmt.Errorf("%w: poll period must be positive, got %d", ErrInvalidMode, d.PeriodSeconds)
		}
		return Poll{Period: time.Duration(d.PeriodSeconds) * time.Second}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMode, d.Kind)
}

// DeliveryFromMode обратное преобразование для сохранения в настройках
func DeliveryFromMode(m Mode) models.Delivery {
	if p, ok := m.(Poll); ok {
		return models.Delivery{Kind: models.DeliveryPoll, PeriodSeconds: int(p.Period / time.Second)}
	}
	return models.Delivery{Kind: models.DeliveryLive}
}

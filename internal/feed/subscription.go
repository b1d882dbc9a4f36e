package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sensor-monitor/internal/metrics"
	"sensor-monitor/internal/models"
)

// ErrStreamClosed источник закрыл live-подписку без отмены
var ErrStreamClosed = errors.New("feed stream closed by source")

// Update уведомление о замене снимка
type Update struct {
	Stream   string
	Readings []models.Reading
	Err      error
	Version  uint64
}

// Option настройка подписки
type Option func(*Subscription)

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscription) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithName имя потока для логов и метрик
func WithName(name string) Option {
	return func(s *Subscription) { s.name = name }
}

// WithKind отбрасывает документы другой схемы
func WithKind(k models.Kind) Option {
	return func(s *Subscription) { s.kind = k }
}

// WithBackoff политика восстановления live-подписки
func WithBackoff(b Backoff) Option {
	return func(s *Subscription) { s.backoff = b }
}

// Subscription подписка на коллекцию. Снимок заменяется целиком;
// ошибка источника хранится рядом с последним удачным снимком.
type Subscription struct {
	src     Source
	query   Query
	mode    Mode
	name    string
	kind    models.Kind
	backoff Backoff
	logger  *slog.Logger

	mu       sync.RWMutex
	alive    bool
	snapshot []models.Reading
	err      error
	version  uint64

	updates chan Update
	cancel  context.CancelFunc
	done    chan struct{}
}

// Subscribe запускает доставку. Poll выполняет первую выборку сразу.
func Subscribe(ctx context.Context, src Source, q Query, mode Mode, opts ...Option) (*Subscription, error) {
	if src == nil {
		return nil, errors.New("feed source is nil")
	}
	switch m := mode.(type) {
	case Live:
	case Poll:
		if m.Period <= 0 {
			return nil, fmt.Errorf("%w: poll period must be positive", ErrInvalidMode)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}

	s := &Subscription{
		src:     src,
		query:   q,
		mode:    mode,
		name:    q.Collection.String(),
		logger:  slog.Default(),
		alive:   true,
		updates: make(chan Update, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "feed", "stream", s.name, "mode", mode.String())

	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)

	s.logger.Info("Subscribed")
	return s, nil
}

// Snapshot копия текущего снимка и последняя ошибка
func (s *Subscription) Snapshot() ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snapshot), s.err
}

// Err последняя ошибка источника; nil после удачной доставки
func (s *Subscription) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Version номер последней доставки
func (s *Subscription) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Mode режим подписки
func (s *Subscription) Mode() Mode { return s.mode }

// Query фильтр подписки
func (s *Subscription) Query() Query { return s.query }

// Updates канал замен снимка; хранит только последнюю непрочитанную.
// Закрывается после Unsubscribe.
func (s *Subscription) Updates() <-chan Update { return s.updates }

// Done закрывается, когда фоновая горутина завершилась
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe прекращает доставку немедленно и освобождает соединение.
// Повторный вызов ничего не делает.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	wasAlive := s.alive
	s.alive = false
	s.mu.Unlock()

	if !wasAlive {
		return
	}
	s.cancel()
	s.logger.Info("Unsubscribed")
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.updates)

	switch m := s.mode.(type) {
	case Live:
		s.runLive(ctx)
	case Poll:
		s.runPoll(ctx, m.Period)
	}
}

// runPoll тик, пришедший во время выборки, теряется: Ticker не копит тики
func (s *Subscription) runPoll(ctx context.Context, period time.Duration) {
	s.fetch(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetch(ctx)
		}
	}
}

func (s *Subscription) fetch(ctx context.Context) {
	start := time.Now()
	readings, err := s.src.Fetch(ctx, s.query)
	metrics.FeedFetchLatency.WithLabelValues(s.query.Collection.String()).Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return
	}
	s.publish(readings, err)
}

func (s *Subscription) runLive(ctx context.Context) {
	attempt := 0
	for {
		ch, err := s.src.Watch(ctx, s.query)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.publish(nil, err)
		} else {
			for d := range ch {
				s.publish(d.Readings, d.Err)
				if d.Err == nil {
					attempt = 0
				}
			}
			if ctx.Err() != nil {
				return
			}
			s.publish(nil, ErrStreamClosed)
		}

		attempt++
		s.logger.Warn("Live stream lost, re-watching", "attempt", attempt)
		if !s.backoff.wait(ctx, attempt) {
			return
		}
	}
}

// publish атомарно заменяет снимок. Ошибка сохраняет прежний снимок.
func (s *Subscription) publish(readings []models.Reading, err error) {
	if err == nil {
		readings = s.normalize(readings)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
		s.err = err
		s.logger.Warn("Feed delivery failed", "error", err)
	} else {
		s.snapshot = readings
		s.err = nil
		metrics.FeedSnapshotSize.WithLabelValues(s.name).Set(float64(len(readings)))
	}
	s.version++
	metrics.FeedUpdates.WithLabelValues(s.name, string(DeliveryFromMode(s.mode).Kind), result).Inc()

	u := Update{
		Stream:   s.name,
		Readings: slices.Clone(s.snapshot),
		Err:      s.err,
		Version:  s.version,
	}
	select {
	case s.updates <- u:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- u
	}
}

// normalize отбрасывает документы чужой схемы и сортирует историю по возрастанию
func (s *Subscription) normalize(in []models.Reading) []models.Reading {
	out := make([]models.Reading, 0, len(in))
	rejected := 0
	for _, r := range in {
		if err := r.Validate(s.kind); err != nil {
			rejected++
			s.logger.Debug("Reading rejected", "device_id", r.DeviceID, "error", err)
			continue
		}
		out = append(out, r)
	}
	if rejected > 0 {
		s.logger.Warn("Readings rejected at feed boundary", "count", rejected)
	}

	if s.query.Collection == History {
		slices.SortStableFunc(out, func(a, b models.Reading) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}
	return out
}

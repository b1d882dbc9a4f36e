// Package monitor корень приложения: владеет подписками на показания,
// движком правил и производными метриками. Все изменения состояния
// выполняются в одной горутине цикла событий.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sensor-monitor/internal/alerting"
	"sensor-monitor/internal/analytics"
	"sensor-monitor/internal/feed"
	"sensor-monitor/internal/metrics"
	"sensor-monitor/internal/models"
)

// ErrNotRunning цикл монитора не запущен или уже остановлен
var ErrNotRunning = errors.New("monitor is not running")

// RecentNotifications сколько последних уведомлений хранится в состоянии
const RecentNotifications = 20

// Config параметры монитора
type Config struct {
	Kind          models.Kind
	PrimaryDevice string
	ActiveOnly    bool
	Lookback      time.Duration
	HistoryLimit  int
	Calibration   analytics.Calibration
	Backoff       feed.Backoff
}

// State снимок состояния для отображения
type State struct {
	Mode          string                  `json:"mode"`
	Current       []models.Reading        `json:"-"`
	History       []models.Reading        `json:"-"`
	Primary       *models.Reading         `json:"-"`
	Snapshot      *analytics.Snapshot     `json:"snapshot,omitempty"`
	Report        analytics.Report        `json:"report"`
	LiveError     string                  `json:"liveError,omitempty"`
	HistoryError  string                  `json:"historyError,omitempty"`
	Notifications []alerting.Notification `json:"notifications"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

func (s State) clone() State {
	s.Current = slices.Clone(s.Current)
	s.History = slices.Clone(s.History)
	s.Notifications = slices.Clone(s.Notifications)
	if s.Primary != nil {
		p := *s.Primary
		s.Primary = &p
	}
	if s.Snapshot != nil {
		snap := *s.Snapshot
		snap.Values = make(map[models.Metric]float64, len(s.Snapshot.Values))
		for k, v := range s.Snapshot.Values {
			snap.Values[k] = v
		}
		s.Snapshot = &snap
	}
	return s
}

type command struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Monitor цикл событий приложения
type Monitor struct {
	src    feed.Source
	engine *alerting.Engine
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	cmds    chan command
	running chan struct{}
	stopped chan struct{}

	// принадлежат горутине цикла
	live    *feed.Subscription
	history *feed.Subscription
	liveC   <-chan feed.Update
	histC   <-chan feed.Update

	mu    sync.RWMutex
	state State

	subsMu sync.Mutex
	nextID int
	subs   map[int]func(State)
}

// New создает монитор; Run запускает цикл
func New(src feed.Source, engine *alerting.Engine, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Calibration == (analytics.Calibration{}) {
		cfg.Calibration = analytics.DefaultCalibration()
	}
	return &Monitor{
		src:     src,
		engine:  engine,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With("component", "monitor"),
		cmds:    make(chan command),
		running: make(chan struct{}),
		stopped: make(chan struct{}),
		subs:    make(map[int]func(State)),
	}
}

// Run подписывается на текущие показания и историю и обрабатывает
// обновления до отмены ctx. Возвращает ошибку, если подписка не удалась.
// Вызывается один раз.
func (m *Monitor) Run(ctx context.Context, mode feed.Mode) error {
	defer close(m.stopped)
	if err := m.subscribe(ctx, mode); err != nil {
		return err
	}
	defer m.unsubscribe()
	close(m.running)
	m.logger.Info("Monitor started", "mode", mode.String(), "primary_device", m.cfg.PrimaryDevice)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor stopped")
			return nil

		case u, ok := <-m.liveC:
			if !ok {
				m.liveC = nil
				continue
			}
			m.onLive(ctx, u)

		case u, ok := <-m.histC:
			if !ok {
				m.histC = nil
				continue
			}
			m.onHistory(u)

		case cmd := <-m.cmds:
			cmd.done <- cmd.fn(ctx)
		}
	}
}

// SetMode переподписывает оба потока в новом режиме. При ошибке
// остаются прежние подписки.
func (m *Monitor) SetMode(ctx context.Context, mode feed.Mode) error {
	return m.do(ctx, func(runCtx context.Context) error {
		if m.live != nil && m.live.Mode() == mode {
			return nil
		}
		live, history, err := m.open(runCtx, mode)
		if err != nil {
			return err
		}
		m.unsubscribe()
		m.install(live, history, mode)
		m.logger.Info("Delivery mode changed", "mode", mode.String())
		return nil
	})
}

func (m *Monitor) do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-m.stopped:
		return ErrNotRunning
	default:
	}
	select {
	case <-m.running:
	default:
		return ErrNotRunning
	}

	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case m.cmds <- cmd:
	case <-m.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) subscribe(ctx context.Context, mode feed.Mode) error {
	live, history, err := m.open(ctx, mode)
	if err != nil {
		return err
	}
	m.install(live, history, mode)
	return nil
}

func (m *Monitor) open(ctx context.Context, mode feed.Mode) (*feed.Subscription, *feed.Subscription, error) {
	liveQ := feed.Query{Collection: feed.Current, ActiveOnly: m.cfg.ActiveOnly}
	live, err := feed.Subscribe(ctx, m.src, liveQ, mode,
		feed.WithName("current"), feed.WithKind(m.cfg.Kind),
		feed.WithBackoff(m.cfg.Backoff), feed.WithLogger(m.logger))
	if err != nil {
		return nil, nil, err
	}

	histQ := feed.Query{
		Collection: feed.History,
		DeviceID:   m.cfg.PrimaryDevice,
		ActiveOnly: m.cfg.ActiveOnly,
		Lookback:   m.cfg.Lookback,
		Limit:      m.cfg.HistoryLimit,
	}
	history, err := feed.Subscribe(ctx, m.src, histQ, mode,
		feed.WithName("history"), feed.WithKind(m.cfg.Kind),
		feed.WithBackoff(m.cfg.Backoff), feed.WithLogger(m.logger))
	if err != nil {
		live.Unsubscribe()
		return nil, nil, err
	}
	return live, history, nil
}

func (m *Monitor) install(live, history *feed.Subscription, mode feed.Mode) {
	m.live, m.history = live, history
	m.liveC, m.histC = live.Updates(), history.Updates()
	m.update(func(s *State) { s.Mode = mode.String() })
}

func (m *Monitor) unsubscribe() {
	if m.live != nil {
		m.live.Unsubscribe()
	}
	if m.history != nil {
		m.history.Unsubscribe()
	}
	m.live, m.history = nil, nil
	m.liveC, m.histC = nil, nil
}

// onLive новая копия текущих показаний: выбор основного устройства,
// производные метрики и прогон правил
func (m *Monitor) onLive(ctx context.Context, u feed.Update) {
	if u.Err != nil {
		m.update(func(s *State) { s.LiveError = u.Err.Error() })
		return
	}

	primary, ok := m.primary(u.Readings)
	var snap *analytics.Snapshot
	var fired []alerting.Notification
	if ok {
		derived := analytics.Derive(primary, m.cfg.Calibration)
		snap = &derived
		for metric, v := range derived.Values {
			metrics.DerivedMetric.WithLabelValues(derived.DeviceID, string(metric)).Set(v)
		}
		if m.engine != nil {
			fired = m.engine.Evaluate(ctx, derived)
		}
	}

	m.update(func(s *State) {
		s.Current = u.Readings
		s.LiveError = ""
		s.Snapshot = snap
		s.Primary = nil
		if ok {
			s.Primary = &primary
		}
		if len(fired) > 0 {
			s.Notifications = append(s.Notifications, fired...)
			if over := len(s.Notifications) - RecentNotifications; over > 0 {
				s.Notifications = slices.Delete(s.Notifications, 0, over)
			}
		}
	})
}

func (m *Monitor) onHistory(u feed.Update) {
	if u.Err != nil {
		m.update(func(s *State) { s.HistoryError = u.Err.Error() })
		return
	}
	rep := analytics.BuildReport(u.Readings, m.cfg.Calibration)
	m.update(func(s *State) {
		s.History = u.Readings
		s.HistoryError = ""
		s.Report = rep
	})
}

// primary показание настроенного устройства или первое в снимке
func (m *Monitor) primary(readings []models.Reading) (models.Reading, bool) {
	if m.cfg.PrimaryDevice != "" {
		i := slices.IndexFunc(readings, func(r models.Reading) bool { return r.DeviceID == m.cfg.PrimaryDevice })
		if i < 0 {
			return models.Reading{}, false
		}
		return readings[i], true
	}
	if len(readings) == 0 {
		return models.Reading{}, false
	}
	return readings[0], true
}

func (m *Monitor) update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	m.state.UpdatedAt = m.now().UTC()
	out := m.state.clone()
	m.mu.Unlock()

	m.subsMu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()
	for _, fn := range fns {
		fn(out)
	}
}

// State копия текущего состояния
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe уведомления об изменении состояния; вызываются из цикла монитора
func (m *Monitor) Subscribe(fn func(State)) (cancel func()) {
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subsMu.Unlock()
	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"sensor-monitor/internal/metrics"
	"sensor-monitor/internal/models"
)

// ErrAlertNotFound правило с таким id отсутствует
var ErrAlertNotFound = errors.New("alert not found")

type alertsDocument struct {
	State struct {
		Alerts []models.Alert `json:"alerts"`
	} `json:"state"`
	Version int `json:"version"`
}

// Alerts список правил с синхронной записью в sqlite
type Alerts struct {
	db     *DB
	mu     sync.Mutex
	items  []models.Alert
	subs   observers[[]models.Alert]
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// OpenAlerts загружает сохраненные правила; поврежденные данные дают пустой список
func OpenAlerts(ctx context.Context, db *DB, opts ...Option) (*Alerts, error) {
	o := options{now: time.Now, newID: uuid.NewString, logger: db.logger}
	for _, opt := range opts {
		opt(&o)
	}
	a := &Alerts{db: db, now: o.now, newID: o.newID, logger: o.logger.With("store", "alerts")}

	raw, ok, err := db.get(ctx, AlertsKey)
	if err != nil {
		return nil, err
	}
	if ok {
		var doc alertsDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			a.logger.Warn("stored alerts are corrupt, starting empty", "error", err)
		} else {
			a.items = sanitize(doc.State.Alerts, a.logger)
		}
	}
	a.observe(a.items)
	a.logger.Info("alerts loaded", "count", len(a.items))
	return a, nil
}

// sanitize отбрасывает правила, нарушающие инварианты
func sanitize(in []models.Alert, logger *slog.Logger) []models.Alert {
	out := make([]models.Alert, 0, len(in))
	for _, a := range in {
		if a.ID == "" || a.Validate() != nil {
			logger.Warn("dropping invalid stored alert", "id", a.ID)
			continue
		}
		switch a.Status {
		case models.AlertActive, models.AlertInactive, models.AlertTriggered:
		default:
			a.Status = models.AlertActive
		}
		out = append(out, a)
	}
	return out
}

// List копия списка в порядке создания
func (a *Alerts) List() []models.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneAlerts(a.items)
}

// Get правило по id
func (a *Alerts) Get(id string) (models.Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.index(id)
	if i < 0 {
		return models.Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	return cloneAlert(a.items[i]), nil
}

// Create добавляет правило в статусе active
func (a *Alerts) Create(ctx context.Context, in models.CreateAlertInput) (models.Alert, error) {
	if err := in.Validate(); err != nil {
		return models.Alert{}, err
	}
	now := normalize(a.now())
	alert := models.Alert{
		ID:        a.newID(),
		Type:      in.Type,
		Operator:  in.Operator,
		Threshold: in.Threshold,
		Message:   in.Message,
		Priority:  in.Priority,
		Status:    models.AlertActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.ThresholdHigh != nil {
		v := *in.ThresholdHigh
		alert.ThresholdHigh = &v
	}

	err := a.mutate(ctx, func(items []models.Alert) ([]models.Alert, error) {
		return append(items, alert), nil
	})
	if err != nil {
		return models.Alert{}, err
	}
	return cloneAlert(alert), nil
}

// Update накладывает частичное изменение и обновляет updatedAt
func (a *Alerts) Update(ctx context.Context, id string, patch models.AlertPatch) (models.Alert, error) {
	if err := patch.Validate(); err != nil {
		return models.Alert{}, err
	}
	var updated models.Alert
	err := a.mutate(ctx, func(items []models.Alert) ([]models.Alert, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}
		next := patch.Apply(items[i])
		if err := next.Validate(); err != nil {
			return nil, err
		}
		next.UpdatedAt = normalize(a.now())
		items[i] = next
		updated = next
		return items, nil
	})
	if err != nil {
		return models.Alert{}, err
	}
	return cloneAlert(updated), nil
}

// Delete удаляет правило
func (a *Alerts) Delete(ctx context.Context, id string) error {
	return a.mutate(ctx, func(items []models.Alert) ([]models.Alert, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}
		return slices.Delete(items, i, i+1), nil
	})
}

// Toggle выключает включенное правило и включает выключенное.
// Сработавшее правило выключается, lastTriggered сохраняется.
func (a *Alerts) Toggle(ctx context.Context, id string) (models.Alert, error) {
	var updated models.Alert
	err := a.mutate(ctx, func(items []models.Alert) ([]models.Alert, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}
		if items[i].Status == models.AlertInactive {
			items[i].Status = models.AlertActive
		} else {
			items[i].Status = models.AlertInactive
		}
		items[i].UpdatedAt = normalize(a.now())
		updated = items[i]
		return items, nil
	})
	if err != nil {
		return models.Alert{}, err
	}
	return cloneAlert(updated), nil
}

// SetStatus переход from -> to, выполняемый движком правил. Если сохраненный
// статус уже не from (например, правило выключено), возвращает
// models.ErrStatusConflict. updatedAt не меняется: это не пользовательское изменение.
func (a *Alerts) SetStatus(ctx context.Context, id string, from, to models.AlertStatus, lastTriggered *time.Time) error {
	return a.mutate(ctx, func(items []models.Alert) ([]models.Alert, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}
		if items[i].Status != from || items[i].Status == models.AlertInactive {
			return nil, fmt.Errorf("%w: %s is %s", models.ErrStatusConflict, id, items[i].Status)
		}
		items[i].Status = to
		if lastTriggered != nil {
			t := normalize(*lastTriggered)
			items[i].LastTriggered = &t
		}
		return items, nil
	})
}

// OnChange подписка на изменения списка; возвращает отписку
func (a *Alerts) OnChange(fn func([]models.Alert)) (cancel func()) {
	return a.subs.add(fn)
}

// mutate применяет изменение к копии, сохраняет и только затем фиксирует в памяти
func (a *Alerts) mutate(ctx context.Context, fn func([]models.Alert) ([]models.Alert, error)) error {
	a.mu.Lock()
	next, err := fn(cloneAlerts(a.items))
	if err != nil {
		a.mu.Unlock()
		return err
	}

	var doc alertsDocument
	doc.State.Alerts = next
	if doc.State.Alerts == nil {
		doc.State.Alerts = []models.Alert{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("encode alerts: %w", err)
	}
	if err := a.db.put(ctx, AlertsKey, raw); err != nil {
		a.mu.Unlock()
		return err
	}
	a.items = next
	snapshot := cloneAlerts(next)
	a.mu.Unlock()

	a.observe(snapshot)
	a.subs.notify(snapshot)
	return nil
}

func (a *Alerts) observe(items []models.Alert) {
	counts := map[models.AlertStatus]int{
		models.AlertActive:    0,
		models.AlertInactive:  0,
		models.AlertTriggered: 0,
	}
	for _, it := range items {
		counts[it.Status]++
	}
	for status, n := range counts {
		metrics.AlertRules.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (a *Alerts) index(id string) int {
	return indexOf(a.items, id)
}

func indexOf(items []models.Alert, id string) int {
	return slices.IndexFunc(items, func(a models.Alert) bool { return a.ID == id })
}

func cloneAlerts(in []models.Alert) []models.Alert {
	out := make([]models.Alert, len(in))
	for i, a := range in {
		out[i] = cloneAlert(a)
	}
	return out
}

func cloneAlert(a models.Alert) models.Alert {
	if a.ThresholdHigh != nil {
		v := *a.ThresholdHigh
		a.ThresholdHigh = &v
	}
	if a.LastTriggered != nil {
		t := *a.LastTriggered
		a.LastTriggered = &t
	}
	return a
}

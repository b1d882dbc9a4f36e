package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-monitor/internal/models"
	"sensor-monitor/internal/store"
	"sensor-monitor/internal/units"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func openDB(t *testing.T, path string) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
}

func openAlerts(t *testing.T, db *store.DB) *store.Alerts {
	t.Helper()
	a, err := store.OpenAlerts(context.Background(), db,
		store.WithClock(func() time.Time { return now }),
		store.WithIDs(sequentialIDs()),
	)
	require.NoError(t, err)
	return a
}

func input() models.CreateAlertInput {
	return models.CreateAlertInput{
		Type:      models.MetricAnomalyScore,
		Operator:  models.OperatorAbove,
		Threshold: 0.5,
		Message:   "Anomaly score high",
		Priority:  models.PriorityHigh,
	}
}

func TestAlertsCreateAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	db := openDB(t, path)
	alerts := openAlerts(t, db)

	created, err := alerts.Create(ctx, input())
	require.NoError(t, err)
	assert.Equal(t, "alert-1", created.ID)
	assert.Equal(t, models.AlertActive, created.Status)
	assert.Equal(t, now, created.CreatedAt)
	assert.Equal(t, now, created.UpdatedAt)

	at := now.Add(time.Minute)
	require.NoError(t, alerts.SetStatus(ctx, created.ID, models.AlertActive, models.AlertTriggered, &at))
	require.NoError(t, db.Close())

	reopened := openAlerts(t, openDB(t, path))
	list := reopened.List()
	require.Len(t, list, 1)
	assert.Equal(t, models.AlertTriggered, list[0].Status)
	require.NotNil(t, list[0].LastTriggered)
	assert.Equal(t, at, *list[0].LastTriggered)
	assert.Equal(t, created.CreatedAt, list[0].CreatedAt)
}

func TestAlertsCreateRejectsInvalidInput(t *testing.T) {
	alerts := openAlerts(t, openDB(t, filepath.Join(t.TempDir(), "state.db")))

	in := input()
	in.Operator = models.OperatorBetween
	_, err := alerts.Create(context.Background(), in)
	require.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Empty(t, alerts.List())
}

func TestAlertsUpdateDeleteUnknown(t *testing.T) {
	ctx := context.Background()
	alerts := openAlerts(t, openDB(t, filepath.Join(t.TempDir(), "state.db")))

	msg := "x"
	_, err := alerts.Update(ctx, "missing", models.AlertPatch{Message: &msg})
	require.ErrorIs(t, err, store.ErrAlertNotFound)
	require.ErrorIs(t, alerts.Delete(ctx, "missing"), store.ErrAlertNotFound)
	_, err = alerts.Toggle(ctx, "missing")
	require.ErrorIs(t, err, store.ErrAlertNotFound)
	_, err = alerts.Get("missing")
	require.ErrorIs(t, err, store.ErrAlertNotFound)
}

func TestAlertsUpdateValidatesMergedRule(t *testing.T) {
	ctx := context.Background()
	alerts := openAlerts(t, openDB(t, filepath.Join(t.TempDir(), "state.db")))
	created, err := alerts.Create(ctx, input())
	require.NoError(t, err)

	between := models.OperatorBetween
	_, err = alerts.Update(ctx, created.ID, models.AlertPatch{Operator: &between})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	high := 0.9
	updated, err := alerts.Update(ctx, created.ID, models.AlertPatch{Operator: &between, ThresholdHigh: &high})
	require.NoError(t, err)
	assert.Equal(t, models.OperatorBetween, updated.Operator)

	got, err := alerts.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestAlertsToggle(t *testing.T) {
	ctx := context.Background()
	alerts := openAlerts(t, openDB(t, filepath.Join(t.TempDir(), "state.db")))
	created, err := alerts.Create(ctx, input())
	require.NoError(t, err)

	off, err := alerts.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertInactive, off.Status)

	on, err := alerts.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertActive, on.Status)

	at := now
	require.NoError(t, alerts.SetStatus(ctx, created.ID, models.AlertActive, models.AlertTriggered, &at))
	off, err = alerts.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertInactive, off.Status)
	require.NotNil(t, off.LastTriggered, "trigger history is kept")
}

func TestAlertsSetStatusRejectsStaleTransition(t *testing.T) {
	ctx := context.Background()
	alerts := openAlerts(t, openDB(t, filepath.Join(t.TempDir(), "state.db")))
	created, err := alerts.Create(ctx, input())
	require.NoError(t, err)

	_, err = alerts.Toggle(ctx, created.ID)
	require.NoError(t, err)

	at := now
	err = alerts.SetStatus(ctx, created.ID, models.AlertActive, models.AlertTriggered, &at)
	require.ErrorIs(t, err, models.ErrStatusConflict)
	err = alerts.SetStatus(ctx, created.ID, models.AlertInactive, models.AlertTriggered, &at)
	require.ErrorIs(t, err, models.ErrStatusConflict)

	got, err := alerts.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertInactive, got.Status)
	assert.Nil(t, got.LastTriggered)
}

func TestAlertsUpdateCannotTrigger(t *testing.T) {
	ctx := context.Background()
	alerts := openAlerts(t, openDB(t, filepath.Join(t.TempDir(), "state.db")))
	created, err := alerts.Create(ctx, input())
	require.NoError(t, err)

	inactive, active, triggered := models.AlertInactive, models.AlertActive, models.AlertTriggered

	_, err = alerts.Update(ctx, created.ID, models.AlertPatch{Status: &triggered})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	updated, err := alerts.Update(ctx, created.ID, models.AlertPatch{Status: &inactive})
	require.NoError(t, err)
	assert.Equal(t, models.AlertInactive, updated.Status)

	_, err = alerts.Update(ctx, created.ID, models.AlertPatch{Status: &triggered})
	require.ErrorIs(t, err, models.ErrInvalidInput)
	got, err := alerts.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertInactive, got.Status)

	updated, err = alerts.Update(ctx, created.ID, models.AlertPatch{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, models.AlertActive, updated.Status)

	at := now
	require.NoError(t, alerts.SetStatus(ctx, created.ID, models.AlertActive, models.AlertTriggered, &at))
	updated, err = alerts.Update(ctx, created.ID, models.AlertPatch{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, models.AlertTriggered, updated.Status, "enabling keeps the trigger")
	assert.Equal(t, at, *updated.LastTriggered)
}

func TestAlertsOnChange(t *testing.T) {
	ctx := context.Background()
	alerts := openAlerts(t, openDB(t, filepath.Join(t.TempDir(), "state.db")))

	var seen [][]models.Alert
	cancel := alerts.OnChange(func(list []models.Alert) { seen = append(seen, list) })

	created, err := alerts.Create(ctx, input())
	require.NoError(t, err)
	require.NoError(t, alerts.Delete(ctx, created.ID))
	cancel()
	_, err = alerts.Create(ctx, input())
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Len(t, seen[0], 1)
	assert.Empty(t, seen[1])
}

func TestAlertsListIsACopy(t *testing.T) {
	ctx := context.Background()
	alerts := openAlerts(t, openDB(t, filepath.Join(t.TempDir(), "state.db")))
	_, err := alerts.Create(ctx, input())
	require.NoError(t, err)

	list := alerts.List()
	list[0].Message = "changed"
	assert.Equal(t, "Anomaly score high", alerts.List()[0].Message)
}

func TestCorruptStateFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	db := openDB(t, path)

	alerts := openAlerts(t, db)
	_, err := alerts.Create(ctx, input())
	require.NoError(t, err)
	settings, err := store.OpenSettings(ctx, db)
	require.NoError(t, err)
	_, err = settings.Update(ctx, func(s *models.Settings) { s.Theme = models.ThemeDark })
	require.NoError(t, err)

	require.NoError(t, store.Corrupt(ctx, db, store.AlertsKey))
	require.NoError(t, store.Corrupt(ctx, db, store.SettingsKey))

	reloaded := openAlerts(t, db)
	assert.Empty(t, reloaded.List())

	reloadedSettings, err := store.OpenSettings(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), reloadedSettings.Get())
}

func TestSettingsUpdateAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	db := openDB(t, path)

	settings, err := store.OpenSettings(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), settings.Get())

	var notified models.Settings
	settings.OnChange(func(s models.Settings) { notified = s })

	updated, err := settings.Update(ctx, func(s *models.Settings) {
		s.Units.Temperature = units.Fahrenheit
		s.Delivery = models.Delivery{Kind: models.DeliveryLive}
	})
	require.NoError(t, err)
	assert.Equal(t, updated, notified)

	_, err = settings.Update(ctx, func(s *models.Settings) {
		s.Delivery = models.Delivery{Kind: models.DeliveryPoll}
	})
	require.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, updated, settings.Get())

	require.NoError(t, db.Close())
	reloaded, err := store.OpenSettings(ctx, openDB(t, path))
	require.NoError(t, err)
	assert.Equal(t, units.Fahrenheit, reloaded.Get().Units.Temperature)
	assert.Equal(t, models.DeliveryLive, reloaded.Get().Delivery.Kind)
}

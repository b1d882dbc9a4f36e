package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sensor-monitor/internal/auth"
	"sensor-monitor/internal/cache"
	"sensor-monitor/internal/handlers"
	"sensor-monitor/internal/models"
	"sensor-monitor/internal/monitor"
	"sensor-monitor/internal/notify"
	"sensor-monitor/internal/store"
	"sensor-monitor/internal/units"
	"sensor-monitor/internal/websocket"
)

const (
	userEmail = "ops@example.com"
	password  = "correct horse"
	apiKey    = "device-key"
	appURL    = "http://app.test"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type env struct {
	router   http.Handler
	readings *cache.Store
	db       *store.DB
	alerts   *store.Alerts
	settings *store.Settings
	verifier *notify.Verifier
	sender   *mockSender
	cookie   *http.Cookie
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	readings := cache.NewStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 48*time.Hour, nil)
	readings.SetClock(func() time.Time { return now })
	t.Cleanup(func() { _ = readings.Close() })

	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	alerts, err := store.OpenAlerts(ctx, db)
	require.NoError(t, err)
	settings, err := store.OpenSettings(ctx, db)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	manager, err := auth.NewManager(auth.Config{
		Secret:  "test-secret",
		Users:   []auth.User{{Email: userEmail, PasswordHash: string(hash)}},
		APIKeys: []string{apiKey},
	}, nil)
	require.NoError(t, err)

	sender := &mockSender{}
	verifier := notify.NewVerifier(sender, []byte("verify-secret"), appURL, 0)

	h := handlers.NewHandler(handlers.Deps{
		Readings:   readings,
		DB:         db,
		Alerts:     alerts,
		Settings:   settings,
		Auth:       manager,
		Monitor:    monitor.New(readings, nil, monitor.Config{Kind: models.KindEnvironmental}, nil),
		Verifier:   verifier,
		Hub:        websocket.NewHub(nil, nil),
		Kind:       models.KindEnvironmental,
		ActiveOnly: true,
		AppURL:     appURL,
	})

	e := &env{router: h.Routes(), readings: readings, db: db, alerts: alerts, settings: settings, verifier: verifier, sender: sender}
	e.cookie = e.login(t)
	return e
}

func (e *env) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/login", `{"email":"`+userEmail+`","password":"`+password+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func (e *env) do(t *testing.T, method, path, body string, cookie *http.Cookie, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) api(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, e.cookie)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func reading(device string, ago time.Duration, temp float64) string {
	return `{"deviceId":"` + device + `","timestamp":"` + now.Add(-ago).Format(time.RFC3339) +
		`","status":"active","temperature":` + jsonNumber(temp) +
		`,"humidity":45,"pressure":1012,"gasLevel":410,"distance":30}`
}

func jsonNumber(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestRouteGates(t *testing.T) {
	e := setup(t)

	rec := e.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))

	rec = e.do(t, http.MethodGet, "/api/alerts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/", "", e.cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), userEmail)

	rec = e.do(t, http.MethodGet, auth.LoginPath, "", e.cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = e.do(t, http.MethodGet, auth.LoginPath+"?error=Nope", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nope")
}

func TestLogin(t *testing.T) {
	e := setup(t)

	rec := e.do(t, http.MethodPost, "/api/login", `{"email":"`+userEmail+`","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Failed to log in. Please check your credentials.", decodeBody[map[string]string](t, rec)["error"])

	form := url.Values{"email": {userEmail}, "password": {password}}.Encode()
	rec = e.do(t, http.MethodPost, "/api/login", form, nil, "Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = e.api(t, http.MethodPost, "/api/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestSubmitAndReadCurrent(t *testing.T) {
	e := setup(t)

	rec := e.do(t, http.MethodPost, "/api/readings", reading("env-1", 0, 21.5), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/readings", reading("env-1", 0, 21.5), nil, "X-API-Key", "nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/readings", reading("env-1", 0, 21.5), nil, "X-API-Key", apiKey)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "env-1", decodeBody[map[string]string](t, rec)["deviceId"])

	motor := `{"deviceId":"motor-1","timestamp":"` + now.Format(time.RFC3339) + `","accX":0.1,"accY":0.2,"accZ":9.8,"anomalyScore":0.1}`
	rec = e.do(t, http.MethodPost, "/api/readings", motor, nil, "X-API-Key", apiKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/readings", `{"deviceId":`, nil, "X-API-Key", apiKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.api(t, http.MethodGet, "/api/readings/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Readings []map[string]any    `json:"readings"`
		Display  []map[string]string `json:"display"`
	}](t, rec)
	require.Len(t, body.Readings, 1)
	assert.Equal(t, "env-1", body.Readings[0]["deviceId"])
	assert.Equal(t, 21.5, body.Readings[0]["temperature"])
	require.Len(t, body.Display, 1)
	assert.Equal(t, "21.5°C", body.Display[0]["temperature"])
}

func TestReadingHistory(t *testing.T) {
	e := setup(t)
	for _, ago := range []time.Duration{30 * time.Minute, 10 * time.Minute, 20 * time.Minute, 3 * time.Hour} {
		rec := e.do(t, http.MethodPost, "/api/readings", reading("env-1", ago, 20), nil, "X-API-Key", apiKey)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := e.api(t, http.MethodGet, "/api/readings/history?range=1&device=env-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Range struct {
			Hours int `json:"hours"`
		} `json:"range"`
		Total  int `json:"total"`
		Points int `json:"points"`
		Rows   []struct {
			Time   time.Time           `json:"time"`
			Values map[string]*float64 `json:"values"`
		} `json:"rows"`
	}](t, rec)

	assert.Equal(t, 1, body.Range.Hours)
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Rows, 3)
	assert.True(t, body.Rows[0].Time.Before(body.Rows[1].Time))
	assert.True(t, body.Rows[1].Time.Before(body.Rows[2].Time))
	require.NotNil(t, body.Rows[0].Values["temperature"])

	rec = e.api(t, http.MethodGet, "/api/readings/history?range=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertsCRUD(t *testing.T) {
	e := setup(t)

	rec := e.api(t, http.MethodPost, "/api/alerts", `{"type":"temperature","operator":"above","threshold":30,"message":"Too hot","priority":"high"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[models.Alert](t, rec)
	assert.Equal(t, models.AlertActive, created.Status)
	require.NotEmpty(t, created.ID)

	rec = e.api(t, http.MethodPost, "/api/alerts", `{"type":"temperature","operator":"above","threshold":30,"message":"","priority":"high"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.api(t, http.MethodPut, "/api/alerts/"+created.ID, `{"priority":"urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.api(t, http.MethodPut, "/api/alerts/missing", `{"threshold":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.api(t, http.MethodPut, "/api/alerts/"+created.ID, `{"threshold":35}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 35.0, decodeBody[models.Alert](t, rec).Threshold)

	rec = e.api(t, http.MethodPost, "/api/alerts/"+created.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AlertInactive, decodeBody[models.Alert](t, rec).Status)

	rec = e.api(t, http.MethodPut, "/api/alerts/"+created.ID, `{"status":"triggered","lastTriggered":"2024-05-01T12:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got, err := e.alerts.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertInactive, got.Status)
	assert.Nil(t, got.LastTriggered)

	rec = e.api(t, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]models.Alert](t, rec)["alerts"], 1)

	rec = e.api(t, http.MethodDelete, "/api/alerts/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.api(t, http.MethodDelete, "/api/alerts/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSettings(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rec := e.api(t, http.MethodPut, "/api/settings", `{"delivery":{"kind":"poll","periodSeconds":60},"notifications":{"email":"a@example.com","emailVerified":true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decodeBody[models.Settings](t, rec)
	assert.Equal(t, 60, saved.Delivery.PeriodSeconds)
	assert.False(t, saved.Notifications.EmailVerified)
	assert.Equal(t, models.ThemeSystem, saved.Theme)

	remote, err := e.readings.GetRemoteSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, remote.UpdateIntervalSeconds)

	rec = e.api(t, http.MethodPut, "/api/settings", `{"theme":"neon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ThemeSystem, e.settings.Get().Theme)

	rec = e.api(t, http.MethodPut, "/api/settings", `{"delivery":{"kind":"live","periodSeconds":0}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DeliveryLive, e.settings.Get().Delivery.Kind)

	rec = e.api(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@example.com", decodeBody[models.Settings](t, rec).Notifications.Email)
}

func TestUpdateSettingsSwitchesToLiveWithoutPeriod(t *testing.T) {
	e := setup(t)
	require.Equal(t, models.DeliveryPoll, e.settings.Get().Delivery.Kind)

	rec := e.api(t, http.MethodPut, "/api/settings", `{"units":{"temperature":"fahrenheit"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.api(t, http.MethodPut, "/api/settings", `{"delivery":{"kind":"live"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeBody[models.Settings](t, rec)
	assert.Equal(t, models.Delivery{Kind: models.DeliveryLive}, saved.Delivery)
	assert.Equal(t, units.Fahrenheit, saved.Units.Temperature)

	rec = e.api(t, http.MethodPut, "/api/settings", `{"delivery":{"kind":"poll"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.DeliveryLive, e.settings.Get().Delivery.Kind)
}

func TestEmailVerification(t *testing.T) {
	e := setup(t)

	e.sender.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.To == userEmail && strings.Contains(m.HTML, appURL+"/api/verify-email?token=")
	})).Return(nil).Once()

	rec := e.api(t, http.MethodPost, "/api/notifications/verify", `{"email":"`+userEmail+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	e.sender.AssertExpectations(t)

	rec = e.api(t, http.MethodPost, "/api/notifications/verify", `{"email":"not-an-address"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please enter a valid email address.", decodeBody[map[string]string](t, rec)["error"])

	token, err := e.verifier.Token(userEmail)
	require.NoError(t, err)
	rec = e.do(t, http.MethodGet, "/api/verify-email?token="+url.QueryEscape(token), "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, appURL+"/settings?verified=true", rec.Header().Get("Location"))
	n := e.settings.Get().Notifications
	assert.Equal(t, userEmail, n.Email)
	assert.True(t, n.EmailVerified)

	rec = e.do(t, http.MethodGet, "/api/verify-email?token=garbage", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/settings?error=")
}

func TestClearData(t *testing.T) {
	e := setup(t)
	rec := e.do(t, http.MethodPost, "/api/readings", reading("env-1", 0, 20), nil, "X-API-Key", apiKey)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.api(t, http.MethodPost, "/api/data/clear", `{"collections":["bogus"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.api(t, http.MethodPost, "/api/data/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, decodeBody[map[string]any](t, rec)["deleted"])

	rec = e.api(t, http.MethodGet, "/api/readings/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"readings":[]`)
}

func TestAnalyticsAndStats(t *testing.T) {
	e := setup(t)
	for _, ago := range []time.Duration{2 * time.Minute, time.Minute} {
		rec := e.do(t, http.MethodPost, "/api/readings", reading("env-1", ago, 20), nil, "X-API-Key", apiKey)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := e.api(t, http.MethodGet, "/api/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[map[string]any](t, rec), "report")

	rec = e.api(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[struct {
		Report struct {
			Readings    int `json:"readings"`
			Environment struct {
				AvgTemperature float64 `json:"avgTemperature"`
				ActiveDevices  int     `json:"activeDevices"`
			} `json:"environment"`
		} `json:"report"`
		TotalStored int `json:"totalStored"`
	}](t, rec)
	assert.Equal(t, 2, stats.Report.Readings)
	assert.Equal(t, 20.0, stats.Report.Environment.AvgTemperature)
	assert.Equal(t, 1, stats.Report.Environment.ActiveDevices)
	assert.Equal(t, 2, stats.TotalStored)
}

func TestHealthStatsAndPrometheus(t *testing.T) {
	e := setup(t)

	rec := e.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody[map[string]any](t, rec)["status"])

	rec = e.do(t, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[map[string]any](t, rec), "redis")

	rec = e.do(t, http.MethodGet, "/prometheus", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	require.NoError(t, e.db.Close())
	rec = e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody[map[string]any](t, rec)["status"])
}

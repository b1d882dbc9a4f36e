// Package handlers HTTP-поверхность монитора: API дашборда, прием показаний
// от устройств, страницы и служебные эндпоинты
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sensor-monitor/internal/analytics"
	"sensor-monitor/internal/auth"
	"sensor-monitor/internal/cache"
	"sensor-monitor/internal/decimate"
	"sensor-monitor/internal/feed"
	"sensor-monitor/internal/metrics"
	"sensor-monitor/internal/models"
	"sensor-monitor/internal/monitor"
	"sensor-monitor/internal/notify"
	"sensor-monitor/internal/store"
	"sensor-monitor/internal/websocket"
)

// maxBody ограничение размера тела запроса
const maxBody = 1 << 20

// Deps зависимости обработчиков
type Deps struct {
	Readings *cache.Store
	DB       *store.DB
	Alerts   *store.Alerts
	Settings *store.Settings
	Auth     *auth.Manager
	Monitor  *monitor.Monitor
	Verifier *notify.Verifier
	Hub      *websocket.Hub

	Kind         models.Kind
	ActiveOnly   bool
	Ranges       decimate.Ranges
	QualityAware bool
	Calibration  analytics.Calibration
	AppURL       string
	Production   bool
	Logger       *slog.Logger
}

// Handler обработчик HTTP запросов
type Handler struct {
	Deps
	now func() time.Time
}

// NewHandler создает новый обработчик
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "http")
	if len(deps.Ranges) == 0 {
		deps.Ranges = decimate.DefaultRanges()
	}
	if deps.Calibration == (analytics.Calibration{}) {
		deps.Calibration = analytics.DefaultCalibration()
	}
	return &Handler{Deps: deps, now: time.Now}
}

// instrument считает запросы и их длительность по шаблону маршрута
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration.Seconds())
		metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		h.Logger.Debug("request",
			"method", r.Method,
			"endpoint", endpoint,
			"status", status,
			"duration", duration,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode разбирает JSON тело; пустое тело допустимо если allowEmpty
func decode(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return &models.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return nil
}

// fail переводит ошибку домена в HTTP статус
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, feed.ErrInvalidMode),
		errors.Is(err, cache.ErrBadDocument),
		errors.Is(err, models.ErrSchemaMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

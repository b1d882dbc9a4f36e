package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Проверяем Redis и локальную базу
	redisOK := h.Readings.Ping(ctx) == nil
	storeOK := h.DB.Ping(ctx) == nil

	status := "healthy"
	httpStatus := http.StatusOK

	if !redisOK || !storeOK {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"redis":     redisOK,
		"store":     storeOK,
		"timestamp": h.now(),
	})
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	st := h.Monitor.State()
	remote, err := h.Readings.GetRemoteSettings(r.Context())
	if err != nil {
		h.Logger.Warn("failed to read remote settings", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitor": map[string]interface{}{
			"mode":          st.Mode,
			"updated_at":    st.UpdatedAt,
			"current":       len(st.Current),
			"history":       len(st.History),
			"notifications": len(st.Notifications),
			"live_error":    st.LiveError,
			"history_error": st.HistoryError,
		},
		"alerts":          len(h.Alerts.List()),
		"redis":           h.Readings.GetStats(),
		"remote_settings": remote,
		"timestamp":       h.now(),
	})
}

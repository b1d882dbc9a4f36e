package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"sensor-monitor/internal/analytics"
	"sensor-monitor/internal/cache"
	"sensor-monitor/internal/decimate"
	"sensor-monitor/internal/feed"
	"sensor-monitor/internal/models"
	"sensor-monitor/internal/monitor"
)

// statsWindow сколько последних показаний усредняет /api/stats
const statsWindow = 100

// SubmitReading обрабатывает POST /api/readings от устройства
func (h *Handler) SubmitReading(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad request")
		return
	}
	reading, err := cache.DecodeReading(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.Kind != "" {
		if err := reading.Validate(h.Kind); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if err := h.Readings.StoreReading(r.Context(), reading); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"deviceId": reading.DeviceID,
	})
}

// CurrentReadings обрабатывает GET /api/readings/current
func (h *Handler) CurrentReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := h.Readings.Fetch(r.Context(), feed.Query{Collection: feed.Current, ActiveOnly: h.ActiveOnly})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	readings = h.ofKind(readings)
	docs, err := documents(readings)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// подписи для карточек: значения в единицах пользователя, отказ как "Error"
	prefs := h.Settings.Get().Units
	display := make([]map[string]string, len(readings))
	for i, reading := range readings {
		labels := make(map[string]string)
		for _, ch := range reading.Kind().Channels() {
			labels[string(ch)] = decimate.DisplayValue(reading, ch, prefs)
		}
		display[i] = labels
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": docs, "display": display})
}

type historyResponse struct {
	Range    decimate.Range      `json:"range"`
	DeviceID string              `json:"deviceId,omitempty"`
	Total    int                 `json:"total"`
	Points   int                 `json:"points"`
	Rows     []decimate.ChartRow `json:"rows"`
}

// ReadingHistory обрабатывает GET /api/readings/history?range=&device=:
// прореженные строки графика в единицах пользователя
func (h *Handler) ReadingHistory(w http.ResponseWriter, r *http.Request) {
	hours := decimate.DefaultRangeHours
	if raw := r.URL.Query().Get("range"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid range %q", raw))
			return
		}
		hours = v
	}
	rng := h.Ranges.Lookup(hours)

	device := r.URL.Query().Get("device")
	if device == "" && h.Monitor != nil {
		if p := h.Monitor.State().Primary; p != nil {
			device = p.DeviceID
		}
	}

	readings, err := h.Readings.Fetch(r.Context(), feed.Query{
		Collection: feed.History,
		DeviceID:   device,
		ActiveOnly: h.ActiveOnly,
		Lookback:   rng.Lookback(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	readings = h.ofKind(readings)
	slices.Reverse(readings)

	kept := rng.Apply(readings, h.QualityAware)
	writeJSON(w, http.StatusOK, historyResponse{
		Range:    rng,
		DeviceID: device,
		Total:    len(readings),
		Points:   len(kept),
		Rows:     decimate.ChartPoints(kept, h.Settings.Get().Units),
	})
}

type analyticsResponse struct {
	monitor.State
	Primary json.RawMessage `json:"primary,omitempty"`
}

// GetAnalytics обрабатывает GET /api/analytics: снимок и сводка монитора
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	st := h.Monitor.State()
	resp := analyticsResponse{State: st}
	if st.Primary != nil {
		doc, err := cache.EncodeReading(*st.Primary)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Primary = doc
	}
	writeJSON(w, http.StatusOK, resp)
}

// SensorStats обрабатывает GET /api/stats: сводка по последним активным показаниям
func (h *Handler) SensorStats(w http.ResponseWriter, r *http.Request) {
	readings, err := h.Readings.Fetch(r.Context(), feed.Query{
		Collection: feed.History,
		ActiveOnly: true,
		Limit:      statsWindow,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	readings = h.ofKind(readings)
	slices.Reverse(readings)

	resp := map[string]any{"report": analytics.BuildReport(readings, h.Calibration)}
	if h.Kind != "" {
		count, err := h.Readings.GetCounter(r.Context(), h.Kind)
		if err != nil {
			h.Logger.Warn("failed to read counter", "kind", h.Kind, "error", err)
		}
		resp["totalStored"] = count
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearData обрабатывает POST /api/data/clear
func (h *Handler) ClearData(w http.ResponseWriter, r *http.Request) {
	var req cache.ClearRequest
	if err := decode(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	for _, c := range req.Collections {
		if c != cache.CollectionHistory && c != cache.CollectionRealtime {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown collection %q", c))
			return
		}
	}

	deleted, err := h.Readings.ClearData(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.Info("Data cleared", "device_id", req.DeviceID, "collections", req.Collections, "deleted", deleted)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

// ofKind отбрасывает показания чужой схемы
func (h *Handler) ofKind(readings []models.Reading) []models.Reading {
	if h.Kind == "" {
		return readings
	}
	return slices.DeleteFunc(readings, func(r models.Reading) bool { return r.Kind() != h.Kind })
}

func documents(readings []models.Reading) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(readings))
	for _, r := range readings {
		doc, err := cache.EncodeReading(r)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"sensor-monitor/internal/models"
)

// ListAlerts обрабатывает GET /api/alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alerts": h.Alerts.List()})
}

// CreateAlert обрабатывает POST /api/alerts
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var in models.CreateAlertInput
	if err := decode(r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	alert, err := h.Alerts.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

// UpdateAlert обрабатывает PUT /api/alerts/{id}
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	var patch models.AlertPatch
	if err := decode(r, &patch, false); err != nil {
		h.fail(w, r, err)
		return
	}
	alert, err := h.Alerts.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// DeleteAlert обрабатывает DELETE /api/alerts/{id}
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.Alerts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleAlert обрабатывает POST /api/alerts/{id}/toggle
func (h *Handler) ToggleAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.Alerts.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"sensor-monitor/internal/models"
	"sensor-monitor/internal/notify"
)

// GetSettings обрабатывает GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings.Get())
}

// UpdateSettings обрабатывает PUT /api/settings. Поля, которых нет в теле,
// сохраняют текущие значения. Подтверждение адреса клиент изменить не может.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	prev := h.Settings.Get()
	next := prev
	if err := decode(r, &next, false); err != nil {
		h.fail(w, r, err)
		return
	}
	next.Notifications.EmailVerified = prev.Notifications.EmailVerified &&
		next.Notifications.Email == prev.Notifications.Email

	saved, err := h.Settings.Update(r.Context(), func(s *models.Settings) { *s = next })
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if saved.Delivery.Kind == models.DeliveryPoll && saved.Delivery != prev.Delivery {
		if err := h.Readings.SaveRemoteSettings(r.Context(), saved.Delivery.PeriodSeconds); err != nil {
			h.Logger.Warn("failed to save remote settings", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, saved)
}

type verifyRequest struct {
	Email string `json:"email"`
}

// SendVerification обрабатывает POST /api/notifications/verify
func (h *Handler) SendVerification(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Email == "" {
		req.Email = h.Settings.Get().Notifications.Email
	}

	if err := h.Verifier.SendVerification(r.Context(), req.Email); err != nil {
		h.Logger.Warn("verification email failed", "error", err)
		writeError(w, verifyStatus(err), notify.UserMessage(err, h.Production))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Verification email sent successfully",
	})
}

func verifyStatus(err error) int {
	switch {
	case errors.Is(err, notify.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, notify.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, notify.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// VerifyEmail обрабатывает GET /api/verify-email по ссылке из письма
// и возвращает пользователя на страницу настроек
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	back := func(query string) {
		http.Redirect(w, r, h.AppURL+"/settings?"+query, http.StatusFound)
	}

	addr, err := h.Verifier.Confirm(r.URL.Query().Get("token"))
	if err != nil {
		h.Logger.Info("email verification rejected", "error", err)
		back("error=" + url.QueryEscape(notify.UserMessage(err, h.Production)))
		return
	}

	_, err = h.Settings.Update(r.Context(), func(s *models.Settings) {
		s.Notifications.Email = addr
		s.Notifications.EmailVerified = true
	})
	if err != nil {
		h.Logger.Error("failed to store verified email", "error", err)
		back("error=" + url.QueryEscape("Failed to verify email"))
		return
	}
	h.Logger.Info("Email verified", "email", addr)
	back("verified=true")
}

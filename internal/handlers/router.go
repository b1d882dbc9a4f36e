package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensor-monitor/internal/auth"
)

// Routes собирает маршрутизатор
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	// служебные
	r.Get("/health", h.HealthCheck)
	r.Get("/stats", h.GetStats)
	r.Handle("/prometheus", promhttp.Handler())

	// страницы
	r.With(h.Auth.Pages).Get("/", h.Dashboard)
	r.With(h.Auth.LoginPage).Get(auth.LoginPath, h.LoginForm)
	r.With(h.Auth.API).Get("/ws", h.Hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Get("/verify-email", h.VerifyEmail)
		r.With(h.Auth.APIKey).Post("/readings", h.SubmitReading)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.API)

			r.Post("/logout", h.Logout)

			r.Get("/readings/current", h.CurrentReadings)
			r.Get("/readings/history", h.ReadingHistory)
			r.Get("/analytics", h.GetAnalytics)
			r.Get("/stats", h.SensorStats)
			r.Post("/data/clear", h.ClearData)

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", h.ListAlerts)
				r.Post("/", h.CreateAlert)
				r.Put("/{id}", h.UpdateAlert)
				r.Delete("/{id}", h.DeleteAlert)
				r.Post("/{id}/toggle", h.ToggleAlert)
			})

			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Post("/notifications/verify", h.SendVerification)
		})
	})
	return r
}

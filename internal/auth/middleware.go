package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// CookieName cookie сессии
const CookieName = "auth-session"

// LoginPath страница входа
const LoginPath = "/login"

type ctxKey struct{}

// SessionFrom сессия из контекста запроса
func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

// SetCookie записывает токен сессии
func (m *Manager) SetCookie(w http.ResponseWriter, token string, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(s.ExpiresAt.Sub(m.now()).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie удаляет cookie сессии
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// session сессия из cookie; ошибка если cookie нет или токен недействителен
func (m *Manager) session(r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ErrInvalidSession
	}
	return m.Parse(c.Value)
}

// Pages защищает страницы: без сессии редирект на /login
func (m *Manager) Pages(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.session(r)
		if err != nil {
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
	})
}

// LoginPage страница входа с действующей сессией уводит на главную
func (m *Manager) LoginPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.session(r); err == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// API защищает API: без сессии 401
func (m *Manager) API(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.session(r)
		if err != nil {
			unauthorized(w, UserMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
	})
}

// APIKey проверяет X-API-Key устройства
func (m *Manager) APIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			unauthorized(w, "API key required")
			return
		}
		if !m.ValidAPIKey(key) {
			unauthorized(w, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

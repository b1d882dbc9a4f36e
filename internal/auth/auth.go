// Package auth вход по email и паролю, сессия в cookie и защита маршрутов
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"sensor-monitor/internal/metrics"
)

// Ошибки границы авторизации
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidSession     = errors.New("invalid session")
	ErrNotConfigured      = errors.New("auth is not configured")
)

// DefaultSessionTTL срок жизни сессии
const DefaultSessionTTL = 7 * 24 * time.Hour

// Config настройки авторизации
type Config struct {
	Secret       string        `mapstructure:"session_secret"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
	Users        []User        `mapstructure:"users"`
	APIKeys      []string      `mapstructure:"api_keys"`
}

// User учетная запись
type User struct {
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"password_hash"`
}

// Session текущая сессия пользователя
type Session struct {
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims JWT-claims сессии
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager проверяет пароли и выпускает токены сессии
type Manager struct {
	cfg    Config
	secret []byte
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	next int
	subs map[int]func(*Session)
}

// NewManager секрет обязателен
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("%w: session secret is empty", ErrNotConfigured)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		now:    time.Now,
		logger: logger.With("component", "auth"),
		subs:   make(map[int]func(*Session)),
	}, nil
}

// SetClock подменяет источник времени
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SignIn проверяет пароль и выпускает токен сессии
func (m *Manager) SignIn(_ context.Context, email, password string) (*Session, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		metrics.AuthAttempts.WithLabelValues("rejected").Inc()
		return nil, "", ErrInvalidCredentials
	}

	var hash string
	for _, u := range m.cfg.Users {
		if strings.EqualFold(u.Email, email) {
			hash = u.PasswordHash
			break
		}
	}
	if hash == "" {
		metrics.AuthAttempts.WithLabelValues("rejected").Inc()
		m.logger.Info("sign-in rejected", "reason", "unknown user")
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		metrics.AuthAttempts.WithLabelValues("rejected").Inc()
		m.logger.Info("sign-in rejected", "reason", "password mismatch")
		return nil, "", ErrInvalidCredentials
	}

	now := m.now()
	session := &Session{Email: email, IssuedAt: now.UTC(), ExpiresAt: now.Add(m.cfg.SessionTTL).UTC()}
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    "sensor-monitor",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, "", fmt.Errorf("sign session: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("accepted").Inc()
	m.logger.Info("signed in", "email", email)
	m.publish(session)
	return session, token, nil
}

// SignOut завершает сессию; токен без состояния просто перестает отправляться клиентом
func (m *Manager) SignOut(_ context.Context, s *Session) {
	if s != nil {
		m.logger.Info("signed out", "email", s.Email)
	}
	m.publish(nil)
}

// Parse проверяет токен сессии
func (m *Manager) Parse(token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrSessionExpired
	case err != nil:
		return nil, errors.Join(ErrInvalidSession, err)
	}
	return &Session{
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// ValidAPIKey ключ устройства для записи показаний
func (m *Manager) ValidAPIKey(key string) bool {
	if key == "" {
		return false
	}
	for _, valid := range m.cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

// Subscribe наблюдение за входом и выходом; nil означает выход
func (m *Manager) Subscribe(fn func(*Session)) (cancel func()) {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) publish(s *Session) {
	m.mu.Lock()
	fns := make([]func(*Session), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// HashPassword bcrypt-хеш пароля для конфигурации
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// UserMessage текст ошибки входа для пользователя
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Failed to log in. Please check your credentials."
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrInvalidSession):
		return "Please log in to continue."
	}
	return "An unexpected error occurred. Please try again later."
}

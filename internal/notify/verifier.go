package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	verifyPurpose = "email-verify"
	// DefaultTokenTTL срок действия ссылки подтверждения
	DefaultTokenTTL = 24 * time.Hour
)

type verifyClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Verifier отправляет ссылку подтверждения адреса и проверяет ее
type Verifier struct {
	sender Sender
	secret []byte
	appURL string
	ttl    time.Duration
	now    func() time.Time
}

// NewVerifier appURL база ссылки, secret ключ подписи токена
func NewVerifier(sender Sender, secret []byte, appURL string, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Verifier{
		sender: sender,
		secret: secret,
		appURL: strings.TrimRight(appURL, "/"),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock подменяет источник времени
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Token подписанный токен подтверждения адреса
func (v *Verifier) Token(email string) (string, error) {
	addr, err := ValidateAddress(email)
	if err != nil {
		return "", err
	}
	now := v.now()
	claims := verifyClaims{
		Purpose: verifyPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Link ссылка подтверждения для адреса
func (v *Verifier) Link(email string) (string, error) {
	token, err := v.Token(email)
	if err != nil {
		return "", err
	}
	return v.appURL + "/api/verify-email?token=" + url.QueryEscape(token), nil
}

// SendVerification отправляет письмо со ссылкой подтверждения
func (v *Verifier) SendVerification(ctx context.Context, email string) error {
	link, err := v.Link(email)
	if err != nil {
		return err
	}
	addr, _ := ValidateAddress(email)
	return v.sender.Send(ctx, Message{
		To:      addr,
		Subject: "Verify your email for IoT Project notifications",
		HTML:    verificationHTML(link),
		Kind:    "verification",
	})
}

// Confirm проверяет токен и возвращает подтвержденный адрес
func (v *Verifier) Confirm(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	var claims verifyClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if claims.Purpose != verifyPurpose || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func verificationHTML(link string) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #333; text-align: center;">Verify your email</h1>
  <p style="color: #666; line-height: 1.5;">Click the button below to verify your email address for IoT Project notifications:</p>
  <div style="text-align: center; margin: 24px 0;">
    <a href="%s" style="background-color: #0070f3; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">Verify Email</a>
  </div>
  <p style="color: #666; font-size: 0.9em; text-align: center;">If you didn't request this verification, you can safely ignore this email.</p>
</div>`, html.EscapeString(link))
}

package notify

import (
	"errors"
	"strings"
)

// Закрытый набор ошибок почтовой границы
var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrNotConfigured     = errors.New("email service is not configured")
	ErrDomainNotVerified = errors.New("sender domain is not verified")
	ErrTestMode          = errors.New("provider is in test mode")
	ErrRateLimited       = errors.New("email rate limit exceeded")
	ErrSendFailed        = errors.New("email send failed")
	ErrInvalidToken      = errors.New("invalid verification token")
)

// classify переводит ответ провайдера в ошибку из набора
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "domain is not verified"):
		return errors.Join(ErrDomainNotVerified, err)
	case strings.Contains(msg, "can only send testing emails to"):
		return errors.Join(ErrTestMode, err)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return errors.Join(ErrRateLimited, err)
	}
	return errors.Join(ErrSendFailed, err)
}

const (
	msgUnavailable = "Unable to send verification email. Please try again later."
	msgUnexpected  = "An unexpected error occurred. Please try again later."
)

// UserMessage текст ошибки для пользователя. В production детали
// настройки провайдера не раскрываются.
func UserMessage(err error, production bool) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrNotConfigured):
		return "Email service is not properly configured"
	case errors.Is(err, ErrDomainNotVerified):
		if production {
			return msgUnavailable
		}
		return "Domain not verified. Please verify your domain in Resend dashboard."
	case errors.Is(err, ErrTestMode):
		if production {
			return msgUnavailable
		}
		return "In test mode, you can only send emails to verified domains."
	case errors.Is(err, ErrRateLimited):
		return "Too many attempts. Please wait a few minutes and try again."
	case errors.Is(err, ErrInvalidToken):
		return "Invalid verification link"
	case errors.Is(err, ErrSendFailed):
		return msgUnavailable
	}
	return msgUnexpected
}

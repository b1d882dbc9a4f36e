package notify_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sensor-monitor/internal/alerting"
	"sensor-monitor/internal/models"
	"sensor-monitor/internal/notify"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err        error
		production bool
		want       string
	}{
		{notify.ErrInvalidEmail, false, "Please enter a valid email address."},
		{notify.ErrNotConfigured, true, "Email service is not properly configured"},
		{notify.ErrDomainNotVerified, false, "Domain not verified. Please verify your domain in Resend dashboard."},
		{notify.ErrDomainNotVerified, true, "Unable to send verification email. Please try again later."},
		{notify.ErrTestMode, false, "In test mode, you can only send emails to verified domains."},
		{notify.ErrTestMode, true, "Unable to send verification email. Please try again later."},
		{notify.ErrRateLimited, true, "Too many attempts. Please wait a few minutes and try again."},
		{notify.ErrSendFailed, false, "Unable to send verification email. Please try again later."},
		{errors.New("boom"), false, "An unexpected error occurred. Please try again later."},
		{nil, false, ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, notify.UserMessage(tc.err, tc.production), "%v", tc.err)
	}
}

func TestResendSenderWithoutKey(t *testing.T) {
	s := notify.NewResendSender("", "onboarding@resend.dev", nil)

	err := s.Send(context.Background(), notify.Message{To: "not an address", Kind: "verification"})
	require.ErrorIs(t, err, notify.ErrInvalidEmail)

	err = s.Send(context.Background(), notify.Message{To: "ops@example.com", Kind: "verification"})
	require.ErrorIs(t, err, notify.ErrNotConfigured)
}

func TestVerifierRoundTrip(t *testing.T) {
	sender := &mockSender{}
	var sent notify.Message
	sender.On("Send", mock.Anything, mock.AnythingOfType("notify.Message")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(notify.Message) }).
		Return(nil).Once()

	v := notify.NewVerifier(sender, []byte("secret"), "https://app.example.com/", time.Hour)
	require.NoError(t, v.SendVerification(context.Background(), "Ops <ops@example.com>"))
	sender.AssertExpectations(t)

	assert.Equal(t, "ops@example.com", sent.To)
	assert.Equal(t, "verification", sent.Kind)
	require.Contains(t, sent.HTML, "https://app.example.com/api/verify-email?token=")

	link, err := v.Link("ops@example.com")
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)

	email, err := v.Confirm(u.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", email)
}

func TestVerifierRejectsBadTokens(t *testing.T) {
	v := notify.NewVerifier(&mockSender{}, []byte("secret"), "https://app.example.com", time.Hour)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v.SetClock(func() time.Time { return start })

	token, err := v.Token("ops@example.com")
	require.NoError(t, err)

	_, err = v.Confirm("")
	require.ErrorIs(t, err, notify.ErrInvalidToken)

	other := notify.NewVerifier(&mockSender{}, []byte("other"), "", time.Hour)
	other.SetClock(func() time.Time { return start })
	_, err = other.Confirm(token)
	require.ErrorIs(t, err, notify.ErrInvalidToken)

	v.SetClock(func() time.Time { return start.Add(2 * time.Hour) })
	_, err = v.Confirm(token)
	require.ErrorIs(t, err, notify.ErrInvalidToken)

	_, err = v.Token("nope")
	require.ErrorIs(t, err, notify.ErrInvalidEmail)
}

func TestAlertMailerSendsOnlyVerifiedTriggers(t *testing.T) {
	settings := models.DefaultSettings()
	sender := &mockSender{}
	mailer := notify.NewAlertMailer(sender, func() models.Settings { return settings }, "https://app.example.com")
	n := alerting.Notification{
		Kind:        alerting.KindTriggered,
		Message:     "Motor hot",
		Description: "Anomaly score: 0.9",
		Priority:    models.PriorityHigh,
	}
	ctx := context.Background()

	require.NoError(t, mailer.Notify(ctx, n))

	settings.Notifications = models.Notifications{Enabled: true, Email: "ops@example.com"}
	require.NoError(t, mailer.Notify(ctx, n))

	settings.Notifications.EmailVerified = true
	sender.On("Send", ctx, mock.MatchedBy(func(m notify.Message) bool {
		return m.To == "ops@example.com" && m.Kind == "alert" && strings.Contains(m.Subject, "Motor hot")
	})).Return(nil).Once()
	require.NoError(t, mailer.Notify(ctx, n))

	recovered := n
	recovered.Kind = alerting.KindRecovered
	require.NoError(t, mailer.Notify(ctx, recovered))

	sender.AssertExpectations(t)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

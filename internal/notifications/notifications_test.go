package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fuelsight/internal/config"
)

func emailConfig() config.EmailConfig {
	return config.EmailConfig{
		SMTPHost: "mail.example.com",
		SMTPPort: 587,
		From:     "fuelsight@example.com",
		To:       []string{"ops@example.com"},
	}
}

func TestEmailNotConfigured(t *testing.T) {
	m := NewEmailManager(config.EmailConfig{})
	assert.False(t, m.Configured())
	assert.Error(t, m.SendEmail(context.Background(), "s", "b"))
}

func TestEmailSend(t *testing.T) {
	m := NewEmailManager(emailConfig())

	var gotAddr string
	var gotMsg []byte
	m.sendFn = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		return nil
	}

	require.NoError(t, m.SendEmail(context.Background(), "Fleet daily report", "body text"))
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: Fleet daily report\r\n")
	assert.Contains(t, string(gotMsg), "To: ops@example.com\r\n")
	assert.Contains(t, string(gotMsg), "\r\n\r\nbody text\r\n")
}

func TestEmailRetriesTransientFailure(t *testing.T) {
	m := NewEmailManager(emailConfig())
	m.retryDelay = time.Millisecond

	attempts := 0
	m.sendFn = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		attempts++
		if attempts < 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	require.NoError(t, m.SendEmail(context.Background(), "s", "b"))
	assert.Equal(t, 2, attempts)
}

func TestEmailGivesUpAfterRetries(t *testing.T) {
	m := NewEmailManager(emailConfig())
	m.retryDelay = time.Millisecond

	attempts := 0
	m.sendFn = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		attempts++
		return errors.New("550 rejected")
	}

	err := m.SendEmail(context.Background(), "s", "b")
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "one initial attempt plus two retries")
	assert.Contains(t, err.Error(), "550 rejected")
}

func TestEmailHonorsContextBetweenRetries(t *testing.T) {
	m := NewEmailManager(emailConfig())
	m.retryDelay = time.Minute

	m.sendFn = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.SendEmail(ctx, "s", "b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSMSNotConfigured(t *testing.T) {
	m := NewSMSManager(config.SMSConfig{})
	assert.False(t, m.Configured())
	assert.Error(t, m.SendSMS(context.Background(), "hi"))
}

func TestSMSSend(t *testing.T) {
	var gotAuth, gotBody, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewSMSManager(config.SMSConfig{
		APIURL:   srv.URL,
		APIToken: "token-1",
		To:       []string{"+15550001111"},
	})

	require.NoError(t, m.SendSMS(context.Background(), "T-1: Coolant critical"))
	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"to":["+15550001111"],"message":"T-1: Coolant critical"}`, gotBody)
}

func TestSMSGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewSMSManager(config.SMSConfig{APIURL: srv.URL, To: []string{"+15550001111"}})
	err := m.SendSMS(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

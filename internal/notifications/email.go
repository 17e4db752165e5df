// Package notifications implements the SMTP and SMS transports used by the
// alert dispatcher and the daily report tool.
package notifications

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/config"
)

// EmailManager sends plain-text email over SMTP with a bounded retry.
type EmailManager struct {
	cfg        config.EmailConfig
	maxRetries int
	retryDelay time.Duration

	// sendFn is swapped in tests.
	sendFn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailManager creates a manager from the environment-derived config.
func NewEmailManager(cfg config.EmailConfig) *EmailManager {
	return &EmailManager{
		cfg:        cfg,
		maxRetries: 2,
		retryDelay: 3 * time.Second,
		sendFn:     smtp.SendMail,
	}
}

// Configured reports whether the transport has enough settings to send.
func (m *EmailManager) Configured() bool {
	return m.cfg.SMTPHost != "" && len(m.cfg.To) > 0 && m.cfg.From != ""
}

// SendEmail delivers one message, retrying transient failures.
func (m *EmailManager) SendEmail(ctx context.Context, subject, body string) error {
	if !m.Configured() {
		return fmt.Errorf("email transport not configured")
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	msg := buildMessage(m.cfg.From, m.cfg.To, subject, body)

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = m.sendFn(addr, auth, m.cfg.From, m.cfg.To, msg); lastErr == nil {
			log.Info().
				Str("smtp", addr).
				Strs("to", m.cfg.To).
				Str("subject", subject).
				Msg("Email sent")
			return nil
		}
		log.Warn().Err(lastErr).Str("smtp", addr).Int("attempt", attempt+1).Msg("Email send failed")
	}
	return fmt.Errorf("send email after %d attempts: %w", m.maxRetries+1, lastErr)
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/config"
)

// SMSManager posts critical alerts to the configured SMS gateway API.
type SMSManager struct {
	cfg    config.SMSConfig
	client *http.Client
}

// NewSMSManager creates a manager from the environment-derived config.
func NewSMSManager(cfg config.SMSConfig) *SMSManager {
	return &SMSManager{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether the gateway settings are present.
func (m *SMSManager) Configured() bool {
	return m.cfg.APIURL != "" && len(m.cfg.To) > 0
}

type smsPayload struct {
	To      []string `json:"to"`
	Message string   `json:"message"`
}

// SendSMS delivers one message to every configured recipient.
func (m *SMSManager) SendSMS(ctx context.Context, message string) error {
	if !m.Configured() {
		return fmt.Errorf("sms transport not configured")
	}

	body, err := json.Marshal(smsPayload{To: m.cfg.To, Message: message})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("post sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}

	log.Info().Int("recipients", len(m.cfg.To)).Msg("SMS sent")
	return nil
}

// Package alerts decides which alerts reach operators and over which channel.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

// Alert is one dispatchable condition on a truck.
type Alert struct {
	ID        string          `json:"id"`
	TruckID   string          `json:"truck_id"`
	Type      string          `json:"type"` // e.g. battery_voltage, coolant_temp, offline
	Severity  models.Severity `json:"severity"`
	Message   string          `json:"message"`
	Value     float64         `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
	// Resolved marks a recovery notice: never dispatched, clears the
	// cooldown entry so the next escalation goes out immediately.
	Resolved bool `json:"resolved"`
}

// EmailSender delivers HIGH and CRITICAL alerts.
type EmailSender interface {
	SendEmail(ctx context.Context, subject, body string) error
}

// SMSSender delivers CRITICAL alerts.
type SMSSender interface {
	SendSMS(ctx context.Context, message string) error
}

// Dispatcher applies cooldown and channel-selection rules before handing
// alerts to the transports. Transport failures never block the pipeline and
// leave the cooldown untouched so the next cycle retries.
type Dispatcher struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	cooldown time.Duration
	deadline time.Duration

	email EmailSender
	sms   SMSSender
	// inApp receives every dispatched alert for the dashboard feed.
	inApp func(Alert)

	now func() time.Time
}

// NewDispatcher creates a dispatcher. email, sms and inApp may be nil when a
// channel is unconfigured.
func NewDispatcher(cfg config.AlertConfig, deadline time.Duration, email EmailSender, sms SMSSender, inApp func(Alert)) *Dispatcher {
	return &Dispatcher{
		lastSent: make(map[string]time.Time),
		cooldown: time.Duration(cfg.CooldownMinutes) * time.Minute,
		deadline: deadline,
		email:    email,
		sms:      sms,
		inApp:    inApp,
		now:      time.Now,
	}
}

func cooldownKey(truckID, alertType string) string {
	return truckID + "|" + alertType
}

// Dispatch applies the rules for one alert and returns whether anything was
// sent.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) bool {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	key := cooldownKey(alert.TruckID, alert.Type)

	if alert.Resolved {
		// Recovery is never announced, but the next escalation must not be
		// swallowed by a stale cooldown entry.
		d.mu.Lock()
		delete(d.lastSent, key)
		d.mu.Unlock()
		return false
	}

	critical := alert.Severity == models.SeverityCritical

	d.mu.Lock()
	if !critical {
		if last, ok := d.lastSent[key]; ok && d.now().Sub(last) < d.cooldown {
			d.mu.Unlock()
			log.Debug().
				Str("truckID", alert.TruckID).
				Str("type", alert.Type).
				Dur("cooldown", d.cooldown).
				Msg("Alert suppressed by cooldown")
			return false
		}
	}
	d.mu.Unlock()

	delivered := d.deliver(ctx, alert)
	if !delivered {
		// Leave lastSent untouched so a retry can occur next cycle.
		return false
	}

	d.mu.Lock()
	d.lastSent[key] = d.now()
	d.mu.Unlock()
	return true
}

// deliver fans out to the channels selected by severity. In-app delivery
// always counts as success; transport failures only log.
func (d *Dispatcher) deliver(ctx context.Context, alert Alert) bool {
	if d.inApp != nil {
		d.inApp(alert)
	}

	subject := fmt.Sprintf("[%s] %s %s", alert.Severity, alert.TruckID, alert.Type)
	transportOK := true

	switch alert.Severity {
	case models.SeverityCritical:
		if d.sms != nil {
			if err := d.send(ctx, func(c context.Context) error {
				return d.sms.SendSMS(c, fmt.Sprintf("%s: %s", alert.TruckID, alert.Message))
			}); err != nil {
				log.Warn().Err(err).Str("truckID", alert.TruckID).Msg("SMS dispatch failed")
				transportOK = false
			}
		}
		fallthrough
	case models.SeverityHigh:
		if d.email != nil {
			if err := d.send(ctx, func(c context.Context) error {
				return d.email.SendEmail(c, subject, alert.Message)
			}); err != nil {
				log.Warn().Err(err).Str("truckID", alert.TruckID).Msg("Email dispatch failed")
				transportOK = false
			}
		}
	default:
		// MEDIUM/LOW are in-app only.
	}

	return transportOK
}

func (d *Dispatcher) send(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()
	return fn(ctx)
}

// SeverityFor maps an action item priority to an alert severity.
func SeverityFor(priority models.Priority) (models.Severity, bool) {
	switch priority {
	case models.PriorityCritical:
		return models.SeverityCritical, true
	case models.PriorityHigh:
		return models.SeverityHigh, true
	case models.PriorityMedium:
		return models.SeverityMedium, true
	case models.PriorityLow:
		return models.SeverityLow, true
	default:
		return "", false
	}
}

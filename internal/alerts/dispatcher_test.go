package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) SendEmail(ctx context.Context, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, subject)
	return nil
}

type fakeSMS struct {
	sent []string
}

func (f *fakeSMS) SendSMS(ctx context.Context, message string) error {
	f.sent = append(f.sent, message)
	return nil
}

func newTestDispatcher(email EmailSender, sms SMSSender, inApp func(Alert)) (*Dispatcher, *time.Time) {
	cfg := config.Default().Alerts
	d := NewDispatcher(cfg, time.Second, email, sms, inApp)

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }
	return d, &clock
}

func mediumAlert(truckID string) Alert {
	return Alert{
		TruckID:  truckID,
		Type:     "battery_voltage",
		Severity: models.SeverityMedium,
		Message:  "Battery voltage low",
	}
}

func TestCooldownSuppressesRepeats(t *testing.T) {
	var inApp []Alert
	d, clock := newTestDispatcher(nil, nil, func(a Alert) { inApp = append(inApp, a) })
	ctx := context.Background()

	assert.True(t, d.Dispatch(ctx, mediumAlert("T-1")))

	// Half way through the cooldown: suppressed.
	*clock = clock.Add(30 * time.Minute)
	assert.False(t, d.Dispatch(ctx, mediumAlert("T-1")))

	// Past the cooldown: dispatched again.
	*clock = clock.Add(31 * time.Minute)
	assert.True(t, d.Dispatch(ctx, mediumAlert("T-1")))

	assert.Len(t, inApp, 2)
}

func TestCooldownIsPerTruckAndType(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil, nil)
	ctx := context.Background()

	assert.True(t, d.Dispatch(ctx, mediumAlert("T-1")))
	assert.True(t, d.Dispatch(ctx, mediumAlert("T-2")), "other truck has its own cooldown")

	other := mediumAlert("T-1")
	other.Type = "coolant_temp"
	assert.True(t, d.Dispatch(ctx, other), "other type has its own cooldown")
}

func TestCriticalBypassesCooldown(t *testing.T) {
	sms := &fakeSMS{}
	email := &fakeEmail{}
	d, _ := newTestDispatcher(email, sms, nil)
	ctx := context.Background()

	alert := Alert{
		TruckID:  "T-1",
		Type:     "coolant_temp",
		Severity: models.SeverityCritical,
		Message:  "Coolant critical",
	}

	assert.True(t, d.Dispatch(ctx, alert))
	assert.True(t, d.Dispatch(ctx, alert), "critical alerts are never suppressed")

	// CRITICAL goes to SMS and email both.
	assert.Len(t, sms.sent, 2)
	assert.Len(t, email.sent, 2)
}

func TestHighGoesToEmailOnly(t *testing.T) {
	sms := &fakeSMS{}
	email := &fakeEmail{}
	d, _ := newTestDispatcher(email, sms, nil)

	alert := Alert{TruckID: "T-1", Type: "oil_pressure", Severity: models.SeverityHigh}
	require.True(t, d.Dispatch(context.Background(), alert))

	assert.Empty(t, sms.sent)
	assert.Len(t, email.sent, 1)
}

func TestMediumIsInAppOnly(t *testing.T) {
	sms := &fakeSMS{}
	email := &fakeEmail{}
	var inApp []Alert
	d, _ := newTestDispatcher(email, sms, func(a Alert) { inApp = append(inApp, a) })

	require.True(t, d.Dispatch(context.Background(), mediumAlert("T-1")))
	assert.Empty(t, sms.sent)
	assert.Empty(t, email.sent)
	assert.Len(t, inApp, 1)
}

func TestTransportFailureLeavesCooldownOpen(t *testing.T) {
	email := &fakeEmail{err: errors.New("smtp down")}
	d, _ := newTestDispatcher(email, nil, nil)
	ctx := context.Background()

	alert := Alert{TruckID: "T-1", Type: "oil_pressure", Severity: models.SeverityHigh}
	assert.False(t, d.Dispatch(ctx, alert))

	// The failed attempt must not start a cooldown; the retry goes out.
	email.err = nil
	assert.True(t, d.Dispatch(ctx, alert))
}

func TestResolvedClearsCooldown(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil, nil)
	ctx := context.Background()

	require.True(t, d.Dispatch(ctx, mediumAlert("T-1")))

	resolved := mediumAlert("T-1")
	resolved.Resolved = true
	assert.False(t, d.Dispatch(ctx, resolved), "recovery is never announced")

	// The next escalation goes out immediately despite the recent dispatch.
	assert.True(t, d.Dispatch(ctx, mediumAlert("T-1")))
}

func TestSeverityFor(t *testing.T) {
	sev, ok := SeverityFor(models.PriorityCritical)
	require.True(t, ok)
	assert.Equal(t, models.SeverityCritical, sev)

	sev, ok = SeverityFor(models.PriorityHigh)
	require.True(t, ok)
	assert.Equal(t, models.SeverityHigh, sev)

	_, ok = SeverityFor(models.PriorityNone)
	assert.False(t, ok)
}

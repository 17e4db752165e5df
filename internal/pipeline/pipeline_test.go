package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fuelsight/internal/actions"
	"github.com/fleetops/fuelsight/internal/alerts"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

func newTestPipeline() *Pipeline {
	return New(config.Default(), nil, nil)
}

func sampleAt(truckID string, ts time.Time) models.TelemetrySample {
	return models.TelemetrySample{TruckID: truckID, Timestamp: ts}
}

func TestProcessStatusTransitions(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	moving := sampleAt("T-1", base)
	moving.SpeedMPH = models.Float64(55)
	moving.EngineRPM = models.Float64(1400)
	p.Process(ctx, moving)

	detail, ok := p.Truck("T-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusMoving, detail.Truck.Status)

	// One stationary low-RPM sample is not enough to call the truck stopped.
	parked := sampleAt("T-1", base.Add(time.Minute))
	parked.SpeedMPH = models.Float64(0)
	parked.EngineRPM = models.Float64(80)
	p.Process(ctx, parked)

	detail, _ = p.Truck("T-1")
	assert.Equal(t, models.StatusMoving, detail.Truck.Status)

	parked.Timestamp = base.Add(2 * time.Minute)
	p.Process(ctx, parked)

	detail, _ = p.Truck("T-1")
	assert.Equal(t, models.StatusStopped, detail.Truck.Status)
}

func TestProcessIdlingTruckStaysStopped(t *testing.T) {
	p := newTestPipeline()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Stationary with the engine turning at idle RPM.
	s := sampleAt("T-2", base)
	s.SpeedMPH = models.Float64(0)
	s.EngineRPM = models.Float64(700)
	s.AmbientTempF = models.Float64(70)
	p.Process(context.Background(), s)

	detail, ok := p.Truck("T-2")
	require.True(t, ok)
	assert.Equal(t, models.StatusStopped, detail.Truck.Status)

	// 700 RPM at 70F: (0.3 + 0.7*0.2) * 1.0.
	assert.Equal(t, models.IdleRPMEstimate, detail.Idle.Method)
	assert.InDelta(t, 0.44, detail.Idle.GPH, 1e-9)
	assert.Equal(t, models.IdleModeNormal, detail.Idle.Mode)
}

func TestProcessDropsLateSamples(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	first := sampleAt("T-3", base)
	first.FuelPercent = models.Float64(60)
	p.Process(ctx, first)

	replay := sampleAt("T-3", base)
	replay.FuelPercent = models.Float64(10)
	p.Process(ctx, replay)

	stale := sampleAt("T-3", base.Add(-time.Minute))
	stale.FuelPercent = models.Float64(5)
	p.Process(ctx, stale)

	detail, ok := p.Truck("T-3")
	require.True(t, ok)
	require.NotNil(t, detail.LastSample)
	require.NotNil(t, detail.LastSample.FuelPercent)
	assert.Equal(t, 60.0, *detail.LastSample.FuelPercent, "late samples must not replace the last reading")

	snap := p.Snapshot(ctx, base)
	require.Len(t, snap.Trucks, 1)
	assert.Equal(t, int64(2), snap.Trucks[0].LateDropped)
}

func TestProcessIdleValidationFlagsMismatch(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	first := sampleAt("T-4", base)
	first.SpeedMPH = models.Float64(0)
	first.EngineRPM = models.Float64(700)
	p.Process(ctx, first)

	// Twelve hours later the truck has supposedly idled the whole window,
	// but the lifetime ECU counters say 25% idle.
	second := sampleAt("T-4", base.Add(12*time.Hour))
	second.SpeedMPH = models.Float64(0)
	second.EngineRPM = models.Float64(700)
	second.EngineHours = models.Float64(1000)
	second.IdleHours = models.Float64(250)
	p.Process(ctx, second)

	issues := p.IdleValidations(true)
	require.Len(t, issues, 1)
	assert.Equal(t, "T-4", issues[0].TruckID)
	assert.False(t, issues[0].IsValid)
	assert.True(t, issues[0].NeedsInvestigation)
	assert.InDelta(t, 300, issues[0].DeviationPct, 1e-6)

	detail, _ := p.Truck("T-4")
	require.NotNil(t, detail.IdleValidation)
	assert.True(t, hasComponent(detail.Items, "efficiency"))
}

func TestProcessOverheatingPatternRaisesStopOrder(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s := sampleAt("T-7", base.Add(time.Duration(i)*time.Minute))
		s.SpeedMPH = models.Float64(0)
		s.EngineRPM = models.Float64(700)
		s.CoolantTempF = models.Float64(245)
		s.OilTempF = models.Float64(255)
		s.TransTempF = models.Float64(228)
		p.Process(ctx, s)
	}

	detail, ok := p.Truck("T-7")
	require.True(t, ok)

	var overheating *models.CorrelationEvent
	for i := range detail.Correlations {
		if detail.Correlations[i].Pattern == "overheating_syndrome" {
			overheating = &detail.Correlations[i]
		}
	}
	require.NotNil(t, overheating, "three corroborating readings must activate the pattern")
	assert.InDelta(t, 0.9, overheating.Confidence, 1e-9)
	assert.Len(t, overheating.MatchedSensors, 3)

	var stop *models.ActionItem
	for i := range detail.Items {
		item := &detail.Items[i]
		for _, src := range item.Sources {
			if src == actions.SourceFailureCorrelation {
				stop = item
			}
		}
	}
	require.NotNil(t, stop)
	assert.Equal(t, "cooling_system", stop.Component)
	assert.Equal(t, models.PriorityCritical, stop.Priority)
	assert.Equal(t, models.ActionStopImmediately, stop.ActionType)
}

func TestProcessOverheatingDispatchesSingleAlert(t *testing.T) {
	counts := make(map[string]int)
	inApp := func(a alerts.Alert) { counts[a.Type]++ }
	cfg := config.Default()
	p := New(cfg, nil, alerts.NewDispatcher(cfg.Alerts, time.Second, nil, nil, inApp))

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s := sampleAt("T-11", base.Add(time.Duration(i)*time.Minute))
		s.SpeedMPH = models.Float64(0)
		s.EngineRPM = models.Float64(700)
		s.CoolantTempF = models.Float64(245)
		s.OilTempF = models.Float64(255)
		s.TransTempF = models.Float64(228)
		p.Process(ctx, s)
	}

	// The coolant threshold and the overheating pattern both flag the cooling
	// system on the third sample; operators must see one merged alert.
	assert.Equal(t, 1, counts["cooling_system"])

	detail, ok := p.Truck("T-11")
	require.True(t, ok)
	seen := make(map[string]int)
	for _, item := range detail.Items {
		seen[item.Component]++
	}
	assert.Equal(t, 1, seen["cooling_system"], "per-truck items are deduplicated per component")
}

func TestRunRecordsFleetTrendPeriodically(t *testing.T) {
	p := newTestPipeline()
	p.tickEvery = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(p.FleetHistory(time.Time{})) > 0
	}, time.Second, 5*time.Millisecond, "the ticker must record trend points without any HTTP client")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSnapshotAppliesMaintenancePenalty(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p.Process(ctx, sampleAt("T-12", now.Add(-time.Hour)))
	p.RecordMaintenance(ctx, "T-12", now.AddDate(0, 0, -90))

	snap := p.Snapshot(ctx, now)
	require.Len(t, snap.Risks, 1)
	rs := snap.Risks[0]
	assert.InDelta(t, 90, rs.DaysSinceMaintenance, 1e-9)
	// Sixty overdue days at half a point each, capped at 25.
	assert.InDelta(t, 25, rs.RiskScore, 1e-9)
	assert.Contains(t, rs.ContributingFactors, "90 days since last maintenance")
}

func TestSweepMarksSilentTrucksOffline(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	p.Process(ctx, sampleAt("T-9", base))
	p.Process(ctx, sampleAt("T-10", base.Add(2*time.Hour)))

	// Four hours of silence for T-9, two for T-10; the cutoff is three.
	now := base.Add(4 * time.Hour)
	p.Sweep(ctx, now)

	silent, _ := p.Truck("T-9")
	assert.Equal(t, models.StatusOffline, silent.Truck.Status)
	fresh, _ := p.Truck("T-10")
	assert.NotEqual(t, models.StatusOffline, fresh.Truck.Status)

	snap := p.Snapshot(ctx, now)
	found := false
	for _, item := range snap.Actions {
		if item.TruckID == "T-9" && item.Component == "gps" {
			found = true
		}
	}
	assert.True(t, found, "offline trucks surface as an action item")

	// The next sample brings the truck back to its last known state.
	p.Process(ctx, sampleAt("T-9", now.Add(time.Hour)))
	back, _ := p.Truck("T-9")
	assert.Equal(t, models.StatusStopped, back.Truck.Status)
}

func TestSnapshotAggregatesHealthyFleet(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"T-B", "T-A"} {
		s := sampleAt(id, now.Add(-time.Hour))
		s.SpeedMPH = models.Float64(55)
		s.FuelPercent = models.Float64(80)
		s.CoolantTempF = models.Float64(185)
		p.Process(ctx, s)
	}

	snap := p.Snapshot(ctx, now)

	require.Len(t, snap.Trucks, 2)
	assert.Equal(t, "T-A", snap.Trucks[0].Truck.ID, "trucks are sorted by ID")
	assert.Equal(t, "T-B", snap.Trucks[1].Truck.ID)
	assert.True(t, snap.Trucks[0].ActiveToday)

	assert.Empty(t, snap.Actions)
	assert.Equal(t, 2, snap.Fleet.TotalTrucks)
	assert.Equal(t, 2, snap.Fleet.ActiveTrucks)
	assert.Equal(t, 100.0, snap.Fleet.Score)
	assert.Equal(t, "Excelente", snap.Fleet.Status)

	// No gateway wired: the store reports as degraded.
	assert.False(t, snap.DataQuality.StoreHealthy)
	assert.Contains(t, snap.DataQuality.DegradedSystems, "store")
}

func TestReloadKeepsLearnedState(t *testing.T) {
	p := newTestPipeline()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	s := sampleAt("T-1", base)
	s.FuelPercent = models.Float64(60)
	p.Process(context.Background(), s)

	before := p.tracker.Baseline("T-1", models.SensorFuelPercent)
	require.Positive(t, before.Count)

	next := config.Default()
	next.Refuel.DefaultMinPct = 10
	p.Reload(next)

	assert.Same(t, next, p.config())
	after := p.tracker.Baseline("T-1", models.SensorFuelPercent)
	assert.Equal(t, before.Count, after.Count, "baselines survive reloads")
}

func TestIngestRoutesByTruck(t *testing.T) {
	p := newTestPipeline()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Malformed samples never reach a shard.
	p.Ingest(models.TelemetrySample{})
	p.Ingest(models.TelemetrySample{TruckID: "T-1"})

	p.Ingest(sampleAt("T-1", base))

	shard := p.shards[shardFor("T-1", len(p.shards))]
	select {
	case got := <-shard:
		assert.Equal(t, "T-1", got.TruckID)
	default:
		t.Fatal("expected the sample on the truck's shard")
	}
	for _, ch := range p.shards {
		assert.Empty(t, ch)
	}
}

func TestShardForIsStableAndBounded(t *testing.T) {
	first := shardFor("T-42", 8)
	assert.Equal(t, first, shardFor("T-42", 8))
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 8)
}

func hasComponent(items []models.ActionItem, component string) bool {
	for _, item := range items {
		if item.Component == component {
			return true
		}
	}
	return false
}

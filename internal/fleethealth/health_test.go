package fleethealth

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(config.Default().Fleet)
}

func TestComputeEmptyFleet(t *testing.T) {
	a := newTestAggregator()

	snap := a.Compute(nil, nil, 0, 0, time.Now())
	assert.Equal(t, 100.0, snap.Score)
	assert.Equal(t, "Sin datos", snap.Status)
	assert.Equal(t, models.FleetStable, snap.Trend)
}

func TestComputeHealthyFleet(t *testing.T) {
	a := newTestAggregator()

	snap := a.Compute(nil, nil, 12, 10, time.Now())
	assert.Equal(t, 100.0, snap.Score)
	assert.Equal(t, "Excelente", snap.Status)
	assert.Equal(t, 12, snap.TotalTrucks)
	assert.Equal(t, 10, snap.ActiveTrucks)
}

func TestComputeUrgencyPenalties(t *testing.T) {
	a := newTestAggregator()

	items := []models.ActionItem{
		{TruckID: "T-1", Component: "transmission", Priority: models.PriorityCritical},
		{TruckID: "T-2", Component: "brakes", Priority: models.PriorityHigh},
		{TruckID: "T-3", Component: "sensors", Priority: models.PriorityMedium},
		{TruckID: "T-4", Component: "gps", Priority: models.PriorityLow},
	}

	snap := a.Compute(items, nil, 20, 20, time.Now())
	// 100 - 4 - 2 - 0.5 - 0.1, no systemic pattern (each component on 1 of 20).
	assert.InDelta(t, 93.4, snap.Score, 1e-9)
	assert.Equal(t, "Excelente", snap.Status)
	assert.Equal(t, models.UrgencySummary{Critical: 1, High: 1, Medium: 1, Low: 1}, snap.Urgency)
}

func TestComputeSystemicPenalty(t *testing.T) {
	a := newTestAggregator()

	// Ten of ten trucks with a HIGH transmission item: systemic failure.
	var items []models.ActionItem
	for i := 0; i < 10; i++ {
		items = append(items, models.ActionItem{
			TruckID:   fmt.Sprintf("T-%d", i),
			Component: "transmission",
			Priority:  models.PriorityHigh,
		})
	}

	snap := a.Compute(items, nil, 10, 10, time.Now())
	// 100 - 2*10 (urgency) - 20*1.0 (every truck affected) = 60.
	assert.InDelta(t, 60.0, snap.Score, 1e-9)
	assert.Less(t, snap.Score, 75.0)
	assert.Equal(t, "Atención Requerida", snap.Status)
}

func TestComputeMaintenancePenalty(t *testing.T) {
	a := newTestAggregator()

	risks := []models.TruckRiskScore{
		{TruckID: "T-1", DaysSinceMaintenance: 60}, // 30 over, 3.0 points
		{TruckID: "T-2", DaysSinceMaintenance: 10}, // in grace
	}

	snap := a.Compute(nil, risks, 2, 2, time.Now())
	assert.InDelta(t, 100.0-(30*0.1)/2.0, snap.Score, 1e-9)
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "Excelente", statusLabel(90))
	assert.Equal(t, "Bueno", statusLabel(75))
	assert.Equal(t, "Atención Requerida", statusLabel(60))
	assert.Equal(t, "Alerta", statusLabel(40))
	assert.Equal(t, "Crítico", statusLabel(39.9))
}

func TestTrendDetection(t *testing.T) {
	a := newTestAggregator()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	manyHigh := func(n int) []models.ActionItem {
		var items []models.ActionItem
		for i := 0; i < n; i++ {
			items = append(items, models.ActionItem{
				TruckID:   fmt.Sprintf("T-%d", i),
				Component: "sensors",
				Priority:  models.PriorityHigh,
			})
		}
		return items
	}

	// First half unhealthy, second half clean: improving.
	var snap models.FleetHealthSnapshot
	for i := 0; i < 5; i++ {
		snap = a.Compute(manyHigh(10), nil, 40, 40, base.Add(time.Duration(i)*time.Hour))
	}
	for i := 5; i < 10; i++ {
		snap = a.Compute(nil, nil, 40, 40, base.Add(time.Duration(i)*time.Hour))
	}
	assert.Equal(t, models.FleetImproving, snap.Trend)
}

func TestTrendStableWithinDeadBand(t *testing.T) {
	a := newTestAggregator()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var snap models.FleetHealthSnapshot
	for i := 0; i < 10; i++ {
		snap = a.Compute(nil, nil, 10, 10, base.Add(time.Duration(i)*time.Hour))
	}
	assert.Equal(t, models.FleetStable, snap.Trend)
}

func TestHistoryAndSince(t *testing.T) {
	a := newTestAggregator()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		a.Compute(nil, nil, 5, 5, base.Add(time.Duration(i)*time.Hour))
	}

	assert.Len(t, a.History(0), 6)
	assert.Len(t, a.History(3), 3)

	since := a.Since(base.Add(3 * time.Hour))
	require.Len(t, since, 2)
	assert.Equal(t, base.Add(4*time.Hour), since[0].Timestamp)

	latest, ok := a.Latest()
	require.True(t, ok)
	assert.Equal(t, base.Add(5*time.Hour), latest.Timestamp)
}

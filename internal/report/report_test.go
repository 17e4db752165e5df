package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
	"github.com/fleetops/fuelsight/internal/store"
)

func testGateway(t *testing.T) *store.Gateway {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	g, err := store.NewGatewayWithClients(db, nil, config.Default().Store)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestBuildEmptyDay(t *testing.T) {
	b := NewBuilder(testGateway(t))

	summary, err := b.Build(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	assert.Equal(t, "2025-06-01", summary.Date)
	assert.Equal(t, 100.0, summary.HealthScore)
	assert.Equal(t, "Sin datos", summary.HealthStatus)
	assert.Equal(t, models.FleetStable, summary.Trend)
	assert.Empty(t, summary.Refuels)
	assert.Zero(t, summary.TotalRefuelGal)
}

func TestBuildAggregatesDay(t *testing.T) {
	g := testGateway(t)
	b := NewBuilder(g)
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Two health points inside the day; the report keeps the latest.
	require.NoError(t, g.SaveFleetHealth(ctx, models.FleetHealthSnapshot{
		Timestamp: day.Add(6 * time.Hour), Score: 90, Status: "Excelente",
		Trend: models.FleetStable, TotalTrucks: 10, ActiveTrucks: 9,
	}))
	require.NoError(t, g.SaveFleetHealth(ctx, models.FleetHealthSnapshot{
		Timestamp: day.Add(18 * time.Hour), Score: 85, Status: "Bueno",
		Trend: models.FleetDeclining, TotalTrucks: 10, ActiveTrucks: 10,
		Urgency: models.UrgencySummary{High: 2},
	}))

	// Two refuels inside the day, one the morning after.
	for _, ev := range []models.RefuelEvent{
		{ID: "r1", TruckID: "T-1", Timestamp: day.Add(8 * time.Hour), GallonsAdded: 40, Method: models.RefuelPctJump},
		{ID: "r2", TruckID: "T-2", Timestamp: day.Add(14 * time.Hour), GallonsAdded: 50, Method: models.RefuelECUCounter},
		{ID: "r3", TruckID: "T-1", Timestamp: day.Add(26 * time.Hour), GallonsAdded: 60, Method: models.RefuelPctJump},
	} {
		require.NoError(t, g.SaveRefuelEvent(ctx, ev))
	}

	// Fuel level drops 80 liters over the day.
	for _, m := range []struct {
		ts     time.Time
		liters float64
	}{
		{day.Add(1 * time.Hour), 500},
		{day.Add(12 * time.Hour), 460},
		{day.Add(20 * time.Hour), 420},
	} {
		require.NoError(t, g.SaveFuelMetric(ctx, models.TelemetrySample{
			TruckID:    "T-1",
			Timestamp:  m.ts,
			Status:     models.StatusMoving,
			FuelLiters: models.Float64(m.liters),
		}, nil))
	}

	// Risk history: T-1 is scored twice, the report takes the latest per truck.
	require.NoError(t, g.SaveRiskScore(ctx, models.TruckRiskScore{
		TruckID: "T-1", RiskScore: 40, RiskLevel: models.RiskMedium, ComputedAt: day.Add(6 * time.Hour),
	}))
	require.NoError(t, g.SaveRiskScore(ctx, models.TruckRiskScore{
		TruckID: "T-1", RiskScore: 70, RiskLevel: models.RiskHigh, ComputedAt: day.Add(18 * time.Hour),
	}))
	require.NoError(t, g.SaveRiskScore(ctx, models.TruckRiskScore{
		TruckID: "T-2", RiskScore: 20, RiskLevel: models.RiskLow, ComputedAt: day.Add(12 * time.Hour),
	}))

	summary, err := b.Build(ctx, day, nil)
	require.NoError(t, err)

	assert.Equal(t, 85.0, summary.HealthScore)
	assert.Equal(t, "Bueno", summary.HealthStatus)
	assert.Equal(t, models.FleetDeclining, summary.Trend)
	assert.Equal(t, 2, summary.Urgency.High)
	assert.Equal(t, 10, summary.TotalTrucks)

	require.Len(t, summary.Refuels, 2, "next-day refuel is excluded")
	assert.InDelta(t, 90.0, summary.TotalRefuelGal, 1e-9)

	// 80 liters burned from levels plus the 90 gallons that went in.
	assert.InDelta(t, 80.0/3.78541+90.0, summary.NetFuelUsedGal, 1e-6)

	require.Len(t, summary.RiskScores, 2)
	assert.Equal(t, "T-1", summary.RiskScores[0].TruckID)
	assert.Equal(t, 70.0, summary.RiskScores[0].RiskScore)
	assert.Equal(t, "T-2", summary.RiskScores[1].TruckID)
}

func TestBuildCapsTopActions(t *testing.T) {
	b := NewBuilder(testGateway(t))

	var items []models.ActionItem
	for i := 0; i < 15; i++ {
		items = append(items, models.ActionItem{TruckID: "T-1", Component: "sensors", Priority: models.PriorityLow})
	}

	summary, err := b.Build(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), items)
	require.NoError(t, err)
	assert.Len(t, summary.TopActions, 10)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	summary := models.FleetDailySummary{
		Date:        "2025-06-01",
		HealthScore: 85,
		HealthStatus: "Bueno",
	}

	path, err := WriteFile(dir, summary)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "daily_report_2025-06-01.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got models.FleetDailySummary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, summary.Date, got.Date)
	assert.Equal(t, summary.HealthScore, got.HealthScore)

	// Rewriting the same day replaces the file in place.
	summary.HealthScore = 90
	_, err = WriteFile(dir, summary)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 90.0, got.HealthScore)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp files")
}

func TestRenderEmail(t *testing.T) {
	days := 2.0
	summary := models.FleetDailySummary{
		Date:         "2025-06-01",
		HealthScore:  72,
		HealthStatus: "Bueno",
		Trend:        models.FleetDeclining,
		TotalTrucks:  10,
		ActiveTrucks: 9,
		Urgency:      models.UrgencySummary{Critical: 1, High: 2},
		TotalRefuelGal: 90,
		Refuels:      []models.RefuelEvent{{ID: "r1"}},
		TopActions: []models.ActionItem{{
			TruckID: "T-1", Component: "transmission", Priority: models.PriorityCritical,
			Title: "Transmission overheating", DaysToCritical: &days,
		}},
		RiskScores: []models.TruckRiskScore{
			{TruckID: "T-1", RiskScore: 70, RiskLevel: models.RiskHigh},
		},
		Insights: []string{"1 camión requiere atención inmediata"},
	}

	subject, body := RenderEmail(summary)
	assert.Contains(t, subject, "2025-06-01")
	assert.Contains(t, subject, "Bueno")
	assert.Contains(t, subject, "72")

	assert.Contains(t, body, "Health: 72/100 (Bueno), trend declining")
	assert.Contains(t, body, "Trucks: 9 active of 10")
	assert.Contains(t, body, "1 critical, 2 high")
	assert.Contains(t, body, "Top actions:")
	assert.Contains(t, body, "[CRITICAL] T-1 transmission — Transmission overheating")
	assert.Contains(t, body, "Highest-risk trucks:")
	assert.Contains(t, body, "T-1: 70 (high)")
	assert.Contains(t, body, "1 camión requiere atención inmediata")
}

package fleethealth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fuelsight/internal/models"
)

func TestInsightsEmptyFleet(t *testing.T) {
	assert.Equal(t, []string{"Flota en excelente estado."}, Insights(nil))
}

func TestInsightsCriticalTrucksAreNamed(t *testing.T) {
	items := []models.ActionItem{
		{TruckID: "T-9", Component: "cooling_system", Priority: models.PriorityCritical},
		{TruckID: "T-2", Component: "brakes", Priority: models.PriorityCritical},
	}

	insights := Insights(items)
	require.NotEmpty(t, insights)
	assert.Contains(t, insights[0], "2 camiones requieren atención inmediata")
	assert.Contains(t, insights[0], "T-2", "trucks are listed in sorted order")
}

func TestInsightsImminentTransmission(t *testing.T) {
	days := 3.0
	items := []models.ActionItem{
		{
			TruckID: "T-1", Component: "transmission", Priority: models.PriorityHigh,
			DaysToCritical: &days, CostDisplay: "$8,000 - $15,000",
		},
	}

	joined := strings.Join(Insights(items), "\n")
	assert.Contains(t, joined, "Falla de transmisión inminente en T-1")
	assert.Contains(t, joined, "$8,000 - $15,000")
	assert.Contains(t, joined, "Advertencia de escalación")
}

func TestInsightsSystemicPattern(t *testing.T) {
	var items []models.ActionItem
	for _, id := range []string{"T-1", "T-2", "T-3"} {
		items = append(items, models.ActionItem{
			TruckID: id, Component: "battery", Priority: models.PriorityMedium,
		})
	}

	joined := strings.Join(Insights(items), "\n")
	assert.Contains(t, joined, "Patrón sistémico: 3 camiones con problemas de battery")
}

func TestInsightsDEFDepletion(t *testing.T) {
	items := []models.ActionItem{
		{TruckID: "T-5", Component: "def_system", Priority: models.PriorityCritical},
	}

	joined := strings.Join(Insights(items), "\n")
	assert.Contains(t, joined, "Nivel DEF crítico en T-5")
	assert.Contains(t, joined, "derate")
}

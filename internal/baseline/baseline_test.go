package baseline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fuelsight/internal/models"
)

func observeSeries(t *Tracker, truckID, sensor string, start time.Time, values ...float64) {
	for i, v := range values {
		t.Observe(truckID, sensor, start.Add(time.Duration(i)*time.Minute), v)
	}
}

func TestBaselineRunningStatistics(t *testing.T) {
	tr := NewTracker(50)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	observeSeries(tr, "T-1", models.SensorCoolantTemp, start, 190, 195, 200, 205, 210)

	bl := tr.Baseline("T-1", models.SensorCoolantTemp)
	assert.InDelta(t, 200.0, bl.Mean, 1e-9)
	// Sample std dev of {190..210 step 5} is sqrt(62.5).
	assert.InDelta(t, 7.9057, bl.StdDev, 1e-3)
	assert.Equal(t, int64(5), bl.Count)
	assert.Equal(t, start.Add(4*time.Minute), bl.LastUpdate)
}

func TestBaselineUnknownPairIsZero(t *testing.T) {
	tr := NewTracker(50)
	bl := tr.Baseline("T-404", models.SensorOilTemp)

	assert.Equal(t, "T-404", bl.TruckID)
	assert.Zero(t, bl.Mean)
	assert.Zero(t, bl.Count)
}

func TestRestoreContinuesStatistics(t *testing.T) {
	tr := NewTracker(50)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	observeSeries(tr, "T-1", models.SensorOilPressure, start, 40, 42, 44, 46)
	persisted := tr.Baseline("T-1", models.SensorOilPressure)

	fresh := NewTracker(50)
	fresh.Restore(persisted)

	restored := fresh.Baseline("T-1", models.SensorOilPressure)
	assert.InDelta(t, persisted.Mean, restored.Mean, 1e-9)
	assert.InDelta(t, persisted.StdDev, restored.StdDev, 1e-6)
	assert.Equal(t, persisted.Count, restored.Count)

	// New observations keep the accumulators coherent.
	fresh.Observe("T-1", models.SensorOilPressure, start.Add(time.Hour), 48)
	after := fresh.Baseline("T-1", models.SensorOilPressure)
	assert.Equal(t, int64(5), after.Count)
	assert.InDelta(t, 44.0, after.Mean, 1e-9)
}

func TestRestoreIgnoresEmptyBaseline(t *testing.T) {
	tr := NewTracker(50)
	tr.Restore(models.SensorBaseline{TruckID: "T-1", Sensor: models.SensorOilTemp})

	bl := tr.Baseline("T-1", models.SensorOilTemp)
	assert.Zero(t, bl.Count)
}

func TestWindowEvictsOldestBeyondCapacity(t *testing.T) {
	tr := NewTracker(3)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	observeSeries(tr, "T-1", models.SensorTransTemp, start, 1, 2, 3, 4, 5)

	window := tr.Window("T-1", models.SensorTransTemp)
	require.Len(t, window, 3)
	assert.Equal(t, 3.0, window[0].Value)
	assert.Equal(t, 5.0, window[2].Value)
}

func TestRecentReturnsNewestOldestFirst(t *testing.T) {
	tr := NewTracker(50)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	observeSeries(tr, "T-1", models.SensorDEFLevel, start, 80, 70, 60, 50)

	recent := tr.Recent("T-1", models.SensorDEFLevel, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, 60.0, recent[0].Value)
	assert.Equal(t, 50.0, recent[1].Value)

	assert.Nil(t, tr.Recent("T-2", models.SensorDEFLevel, 2))
}

func TestHasPersistentCriticalReading(t *testing.T) {
	tr := NewTracker(50)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Two readings are not enough for a three-reading gate.
	observeSeries(tr, "T-1", models.SensorCoolantTemp, start, 245, 246)
	ok, n := tr.HasPersistentCriticalReading("T-1", models.SensorCoolantTemp, 240, true, 3)
	assert.False(t, ok)
	assert.Equal(t, 2, n)

	tr.Observe("T-1", models.SensorCoolantTemp, start.Add(2*time.Minute), 247)
	ok, n = tr.HasPersistentCriticalReading("T-1", models.SensorCoolantTemp, 240, true, 3)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	// One reading back at normal breaks persistence.
	tr.Observe("T-1", models.SensorCoolantTemp, start.Add(3*time.Minute), 200)
	ok, _ = tr.HasPersistentCriticalReading("T-1", models.SensorCoolantTemp, 240, true, 3)
	assert.False(t, ok)
}

func TestHasPersistentCriticalReadingBelow(t *testing.T) {
	tr := NewTracker(50)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	observeSeries(tr, "T-1", models.SensorOilPressure, start, 14, 13, 12)

	ok, _ := tr.HasPersistentCriticalReading("T-1", models.SensorOilPressure, 15, false, 3)
	assert.True(t, ok)

	ok, _ = tr.HasPersistentCriticalReading("T-1", models.SensorOilPressure, 10, false, 3)
	assert.False(t, ok)
}

func TestTrucks(t *testing.T) {
	tr := NewTracker(50)
	now := time.Now()
	tr.Observe("T-1", models.SensorCoolantTemp, now, 200)
	tr.Observe("T-2", models.SensorCoolantTemp, now, 205)

	assert.ElementsMatch(t, []string{"T-1", "T-2"}, tr.Trucks())
}

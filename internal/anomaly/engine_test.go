package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fuelsight/internal/baseline"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

func newTestEngine() (*Engine, *baseline.Tracker) {
	cfg := config.Default()
	tracker := baseline.NewTracker(cfg.Sensors.WindowSize)
	return NewEngine(cfg.Detection, cfg.Sensors.PersistenceReadings, tracker), tracker
}

// feed observes the value on the tracker and runs it through the engine, the
// same order the pipeline uses.
func feed(e *Engine, tr *baseline.Tracker, truckID, sensor string, ts time.Time, value float64) []models.Anomaly {
	tr.Observe(truckID, sensor, ts, value)
	events, _ := e.Update(truckID, sensor, ts, value)
	return events
}

func TestSupervised(t *testing.T) {
	e, _ := newTestEngine()
	assert.True(t, e.Supervised(models.SensorCoolantTemp))
	assert.True(t, e.Supervised(models.SensorBatteryVoltage))
	assert.False(t, e.Supervised(models.SensorGPSQuality))
}

func TestFirstSampleSeedsWithoutEvents(t *testing.T) {
	e, tr := newTestEngine()
	ts := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	events := feed(e, tr, "T-1", models.SensorCoolantTemp, ts, 195)
	assert.Empty(t, events)

	st, ok := e.State("T-1", models.SensorCoolantTemp)
	require.True(t, ok)
	assert.Equal(t, 195.0, st.EWMA)
	assert.Equal(t, int64(1), st.Samples)
}

func TestStableSeriesStaysQuiet(t *testing.T) {
	e, tr := newTestEngine()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	values := []float64{195, 196, 194, 195, 197, 195, 194, 196, 195, 195}
	for i, v := range values {
		events := feed(e, tr, "T-1", models.SensorCoolantTemp, base.Add(time.Duration(i)*time.Minute), v)
		assert.Empty(t, events, "sample %d", i)
	}

	st, _ := e.State("T-1", models.SensorCoolantTemp)
	assert.InDelta(t, 195, st.EWMA, 2)
	assert.GreaterOrEqual(t, st.CUSUMPos, 0.0)
	assert.GreaterOrEqual(t, st.CUSUMNeg, 0.0)
}

func TestCUSUMDetectsSustainedShift(t *testing.T) {
	e, tr := newTestEngine()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Long stable run to learn the mean.
	i := 0
	for ; i < 20; i++ {
		feed(e, tr, "T-1", models.SensorOilPressure, base.Add(time.Duration(i)*time.Minute), 40)
	}

	// Sustained downward shift accumulates in the negative CUSUM arm.
	var fired bool
	for ; i < 40 && !fired; i++ {
		events := feed(e, tr, "T-1", models.SensorOilPressure, base.Add(time.Duration(i)*time.Minute), 36)
		for _, ev := range events {
			if ev.Type == models.AnomalyCUSUM {
				fired = true
				assert.Equal(t, models.SeverityHigh, ev.Severity)
				assert.Equal(t, "T-1", ev.TruckID)
			}
		}
	}
	assert.True(t, fired, "sustained shift never tripped CUSUM")

	// Alarm resets the accumulator.
	st, _ := e.State("T-1", models.SensorOilPressure)
	assert.Less(t, st.CUSUMNeg, 5.0)
}

func TestEWMADriftGateHonorsMultiplier(t *testing.T) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	run := func(multiplier float64) []models.Anomaly {
		cfg := config.Default()
		cfg.Detection.EWMADriftMultiplier = multiplier
		tr := baseline.NewTracker(cfg.Sensors.WindowSize)
		e := NewEngine(cfg.Detection, cfg.Sensors.PersistenceReadings, tr)

		var events []models.Anomaly
		for i, v := range []float64{100, 102, 98, 102, 98, 104} {
			events = feed(e, tr, "T-1", models.SensorCoolantTemp, base.Add(time.Duration(i)*time.Minute), v)
		}
		return events
	}

	hasEWMA := func(events []models.Anomaly) bool {
		for _, ev := range events {
			if ev.Type == models.AnomalyEWMA {
				return true
			}
		}
		return false
	}

	assert.True(t, hasEWMA(run(1)), "a tight gate must flag the jump")
	assert.False(t, hasEWMA(run(6)), "the default gate tolerates the same jump")
}

func TestThresholdAlertRequiresPersistence(t *testing.T) {
	e, tr := newTestEngine()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Warm up around normal.
	i := 0
	for ; i < 5; i++ {
		feed(e, tr, "T-1", models.SensorCoolantTemp, base.Add(time.Duration(i)*time.Minute), 195)
	}

	// First two critical readings are gated.
	countThreshold := func(events []models.Anomaly) int {
		n := 0
		for _, ev := range events {
			if ev.Type == models.AnomalyThreshold {
				n++
			}
		}
		return n
	}

	ev1 := feed(e, tr, "T-1", models.SensorCoolantTemp, base.Add(time.Duration(i)*time.Minute), 245)
	i++
	ev2 := feed(e, tr, "T-1", models.SensorCoolantTemp, base.Add(time.Duration(i)*time.Minute), 246)
	i++
	assert.Zero(t, countThreshold(ev1))
	assert.Zero(t, countThreshold(ev2))

	// Third consecutive critical reading fires.
	ev3 := feed(e, tr, "T-1", models.SensorCoolantTemp, base.Add(time.Duration(i)*time.Minute), 247)
	require.Equal(t, 1, countThreshold(ev3))
	for _, ev := range ev3 {
		if ev.Type == models.AnomalyThreshold {
			assert.Equal(t, models.SeverityCritical, ev.Severity)
			assert.Equal(t, 240.0, ev.Threshold)
		}
	}
}

func TestThresholdAlertLowerIsWorse(t *testing.T) {
	e, tr := newTestEngine()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	var got []models.Anomaly
	for i, v := range []float64{11.6, 11.5, 11.4} {
		got = feed(e, tr, "T-1", models.SensorBatteryVoltage, base.Add(time.Duration(i)*time.Minute), v)
	}

	var found bool
	for _, ev := range got {
		if ev.Type == models.AnomalyThreshold {
			found = true
			assert.Equal(t, models.SeverityCritical, ev.Severity)
		}
	}
	assert.True(t, found)
}

func TestRestoreClampsCorruptCUSUM(t *testing.T) {
	e, _ := newTestEngine()

	e.Restore(models.AlgorithmState{
		TruckID:  "T-1",
		Sensor:   models.SensorOilTemp,
		CUSUMPos: -7,
		CUSUMNeg: -3,
		Samples:  10,
	})

	st, ok := e.State("T-1", models.SensorOilTemp)
	require.True(t, ok)
	assert.Zero(t, st.CUSUMPos)
	assert.Zero(t, st.CUSUMNeg)
	assert.Equal(t, int64(10), st.Samples)
}

func TestRestoreRoundTrip(t *testing.T) {
	e, tr := newTestEngine()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		feed(e, tr, "T-1", models.SensorTransTemp, base.Add(time.Duration(i)*time.Minute), 180+float64(i))
	}
	persisted, ok := e.State("T-1", models.SensorTransTemp)
	require.True(t, ok)

	fresh, _ := newTestEngine()
	fresh.Restore(persisted)
	restored, ok := fresh.State("T-1", models.SensorTransTemp)
	require.True(t, ok)
	assert.Equal(t, persisted.EWMA, restored.EWMA)
	assert.Equal(t, persisted.Samples, restored.Samples)
}

func TestSlopePerDay(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Exactly +2 units per day.
	var points []baseline.Point
	for i := 0; i < 5; i++ {
		points = append(points, baseline.Point{
			Timestamp: base.Add(time.Duration(i) * 12 * time.Hour),
			Value:     100 + float64(i),
		})
	}
	assert.InDelta(t, 2.0, SlopePerDay(points), 1e-9)

	assert.Zero(t, SlopePerDay(nil))
	assert.Zero(t, SlopePerDay(points[:1]))

	// All points at the same instant cannot define a slope.
	same := []baseline.Point{
		{Timestamp: base, Value: 1},
		{Timestamp: base, Value: 2},
	}
	assert.Zero(t, SlopePerDay(same))
}

func TestTrendClassification(t *testing.T) {
	e, tr := newTestEngine()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Transmission temp climbing 5 degrees per sample over hours: clear uptrend.
	for i := 0; i < 6; i++ {
		feed(e, tr, "T-1", models.SensorTransTemp, base.Add(time.Duration(i)*time.Hour), 180+float64(i*5))
	}

	st, _ := e.State("T-1", models.SensorTransTemp)
	assert.Equal(t, models.TrendUp, st.Trend)
	assert.Greater(t, st.TrendSlopeDay, 0.0)
}

package refuel

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

const testTankL = 757.0

func fuelSample(truckID string, ts time.Time, pct float64) *models.TelemetrySample {
	return &models.TelemetrySample{
		TruckID:     truckID,
		Timestamp:   ts,
		Status:      models.StatusStopped,
		FuelPercent: models.Float64(pct),
	}
}

func newTestDetector() (*Detector, *Learner) {
	learner := NewLearner(config.Default().Refuel, nil)
	return NewDetector(learner), learner
}

func TestDetectIgnoresSmallIncrease(t *testing.T) {
	d, _ := newTestDetector()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	prev := fuelSample("T-1", base, 40)
	cur := fuelSample("T-1", base.Add(10*time.Minute), 44) // below default 8%

	_, ok := d.Detect(prev, cur, testTankL)
	assert.False(t, ok)
}

func TestDetectIgnoresDecrease(t *testing.T) {
	d, _ := newTestDetector()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, ok := d.Detect(fuelSample("T-1", base, 60), fuelSample("T-1", base.Add(time.Minute), 40), testTankL)
	assert.False(t, ok)
}

func TestDetectPercentJump(t *testing.T) {
	d, _ := newTestDetector()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	prev := fuelSample("T-1", base, 30)
	cur := fuelSample("T-1", base.Add(15*time.Minute), 80)

	event, ok := d.Detect(prev, cur, testTankL)
	require.True(t, ok)
	assert.Equal(t, models.RefuelPctJump, event.Method)
	assert.Equal(t, 30.0, event.PctBefore)
	assert.Equal(t, 80.0, event.PctAfter)
	// 50% of a 757 L tank, in gallons.
	assert.InDelta(t, 0.5*testTankL/3.78541, event.GallonsAdded, 1e-6)
	assert.NotEmpty(t, event.ID)
	// Large jump while stopped: top of the unconfirmed confidence band.
	assert.InDelta(t, 0.9, event.Confidence, 1e-9)
}

func TestDetectPrefersLiterDelta(t *testing.T) {
	d, _ := newTestDetector()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	prev := fuelSample("T-1", base, 30)
	prev.FuelLiters = models.Float64(227)
	cur := fuelSample("T-1", base.Add(15*time.Minute), 80)
	cur.FuelLiters = models.Float64(605.6)

	event, ok := d.Detect(prev, cur, testTankL)
	require.True(t, ok)
	assert.InDelta(t, (605.6-227)/3.78541, event.GallonsAdded, 1e-6)
}

func TestDetectECUCounterConfirmation(t *testing.T) {
	d, _ := newTestDetector()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	prev := fuelSample("T-1", base, 30)
	prev.Extra = map[string]float64{"total_fuel_added": 500}
	cur := fuelSample("T-1", base.Add(15*time.Minute), 80)
	expectedGal := 0.5 * testTankL / 3.78541
	cur.Extra = map[string]float64{"total_fuel_added": 500 + expectedGal}

	event, ok := d.Detect(prev, cur, testTankL)
	require.True(t, ok)
	assert.Equal(t, models.RefuelECUCounter, event.Method)
	assert.Equal(t, 1.0, event.Confidence)
}

func TestDetectMovingTruckLowersConfidence(t *testing.T) {
	d, _ := newTestDetector()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	prev := fuelSample("T-1", base, 30)
	cur := fuelSample("T-1", base.Add(time.Minute), 40) // 10%: above min but below 2x
	cur.Status = models.StatusMoving

	event, ok := d.Detect(prev, cur, testTankL)
	require.True(t, ok)
	assert.InDelta(t, 0.7, event.Confidence, 1e-9)
}

func TestAdaptiveThresholdLearning(t *testing.T) {
	d, learner := newTestDetector()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Confirmed refuels with a 10th percentile of 9.7%.
	jumps := []float64{13, 9.5, 11, 10, 12}
	pct := 20.0
	for i, jump := range jumps {
		ts := base.Add(time.Duration(i) * 24 * time.Hour)
		prev := fuelSample("T-1", ts, pct)
		cur := fuelSample("T-1", ts.Add(10*time.Minute), pct+jump)
		_, ok := d.Detect(prev, cur, testTankL)
		require.True(t, ok)
	}

	th := learner.Thresholds("T-1")
	assert.Equal(t, 5, th.ConfirmedRefuels)
	// Blend of default 8% and learned p10 9.7% at learning rate 0.2.
	assert.InDelta(t, 8.34, th.MinPct, 1e-6)
	assert.GreaterOrEqual(t, th.MinPct, 8.0)
	assert.LessOrEqual(t, th.MinPct, 25.0)
	assert.GreaterOrEqual(t, th.MinGal, 3.0)
}

func TestThresholdsDefaultBeforeLearning(t *testing.T) {
	_, learner := newTestDetector()

	th := learner.Thresholds("T-unseen")
	assert.Equal(t, 8.0, th.MinPct)
	assert.Equal(t, 3.0, th.MinGal)
	assert.Zero(t, th.ConfirmedRefuels)
}

func TestThresholdVarianceScaling(t *testing.T) {
	learner := NewLearner(config.Default().Refuel, nil)
	// A noisy fuel sender doubles the variance factor input.
	learner.SensorStdDev = func(string) float64 { return 3.0 }
	d := NewDetector(learner)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * 24 * time.Hour)
		prev := fuelSample("T-1", ts, 20)
		cur := fuelSample("T-1", ts.Add(10*time.Minute), 32)
		_, ok := d.Detect(prev, cur, testTankL)
		require.True(t, ok)
	}

	th := learner.Thresholds("T-1")
	assert.Equal(t, 3.0, th.SensorVariance)
	// Variance factor 1 + 0.5*(3-1) clamps at 2.0; the blended threshold
	// doubles: (0.8*8 + 0.2*12) * 2.
	assert.InDelta(t, 17.6, th.MinPct, 1e-6)
	assert.LessOrEqual(t, th.MinPct, 25.0)
}

type captureCheckpoint struct {
	thresholds []models.AdaptiveThreshold
}

func (c *captureCheckpoint) CheckpointThreshold(th models.AdaptiveThreshold) {
	c.thresholds = append(c.thresholds, th)
}

func TestLearnerCheckpointsAfterRecompute(t *testing.T) {
	checkpoint := &captureCheckpoint{}
	learner := NewLearner(config.Default().Refuel, checkpoint)
	d := NewDetector(learner)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * 24 * time.Hour)
		_, ok := d.Detect(fuelSample("T-1", ts, 20), fuelSample("T-1", ts.Add(time.Minute), 35), testTankL)
		require.True(t, ok)
	}

	// Only recomputations past min_confirmed checkpoint.
	require.Len(t, checkpoint.thresholds, 1)
	assert.Equal(t, "T-1", checkpoint.thresholds[0].TruckID)
	assert.Equal(t, 3, checkpoint.thresholds[0].ConfirmedRefuels)
}

func TestLearnerRestore(t *testing.T) {
	learner := NewLearner(config.Default().Refuel, nil)
	learner.Restore(models.AdaptiveThreshold{
		TruckID:          "T-1",
		MinPct:           11.5,
		MinGal:           6,
		ConfirmedRefuels: 12,
	})

	th := learner.Thresholds("T-1")
	assert.Equal(t, 11.5, th.MinPct)
	assert.Equal(t, 12, th.ConfirmedRefuels)
}

func TestThresholdFallbackFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.json")
	in := []models.AdaptiveThreshold{
		{TruckID: "T-1", MinPct: 9.1, MinGal: 4.2, ConfirmedRefuels: 7},
		{TruckID: "T-2", MinPct: 8.0, MinGal: 3.0},
	}

	require.NoError(t, SaveThresholds(path, in))
	out, err := LoadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadThresholdsMissingFile(t *testing.T) {
	out, err := LoadThresholds(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestWindowGallons(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	events := []models.RefuelEvent{
		{TruckID: "T-1", Timestamp: base.Add(-time.Hour), GallonsAdded: 50},
		{TruckID: "T-1", Timestamp: base.Add(2 * time.Hour), GallonsAdded: 80},
		{TruckID: "T-2", Timestamp: base.Add(25 * time.Hour), GallonsAdded: 60},
	}

	total := WindowGallons(events, base, base.Add(24*time.Hour))
	assert.InDelta(t, 80.0, total, 1e-9)
}

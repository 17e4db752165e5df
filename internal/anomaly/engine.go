// Package anomaly runs the persistent EWMA/CUSUM streaming detectors and the
// per-sensor trend estimator.
package anomaly

import (
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fleetops/fuelsight/internal/baseline"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

// Engine maintains AlgorithmState per (truck, sensor) and emits anomaly
// events per sample. State survives restarts via the persistence gateway.
type Engine struct {
	mu      sync.Mutex
	cfg     config.DetectionConfig
	persist int // consecutive readings required for threshold alerts
	tracker *baseline.Tracker
	states  map[string]map[string]*models.AlgorithmState // truckID -> sensor -> state
}

// NewEngine creates the streaming engine on top of the baseline tracker.
func NewEngine(cfg config.DetectionConfig, persistenceReadings int, tracker *baseline.Tracker) *Engine {
	if persistenceReadings < 1 {
		persistenceReadings = 3
	}
	if cfg.EWMADriftMultiplier <= 0 {
		cfg.EWMADriftMultiplier = 6
	}
	return &Engine{
		cfg:     cfg,
		persist: persistenceReadings,
		tracker: tracker,
		states:  make(map[string]map[string]*models.AlgorithmState),
	}
}

// Supervised reports whether the sensor is under streaming supervision.
func (e *Engine) Supervised(sensor string) bool {
	for _, s := range e.cfg.Sensors {
		if s == sensor {
			return true
		}
	}
	return false
}

// Restore seeds a persisted state. CUSUM accumulators are re-clamped so a
// corrupt row cannot violate the non-negativity invariant.
func (e *Engine) Restore(st models.AlgorithmState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st.CUSUMPos = math.Max(0, st.CUSUMPos)
	st.CUSUMNeg = math.Max(0, st.CUSUMNeg)
	copied := st
	e.state(st.TruckID, st.Sensor, &copied)
}

func (e *Engine) state(truckID, sensor string, seed *models.AlgorithmState) *models.AlgorithmState {
	byTruck, ok := e.states[truckID]
	if !ok {
		byTruck = make(map[string]*models.AlgorithmState)
		e.states[truckID] = byTruck
	}
	st, ok := byTruck[sensor]
	if !ok {
		if seed != nil {
			st = seed
		} else {
			st = &models.AlgorithmState{TruckID: truckID, Sensor: sensor, Trend: models.TrendStable}
		}
		byTruck[sensor] = st
	} else if seed != nil {
		*st = *seed
	}
	return st
}

// State returns a copy of the current state for a pair, with ok=false when
// the pair has never been observed.
func (e *Engine) State(truckID, sensor string) (models.AlgorithmState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if byTruck, ok := e.states[truckID]; ok {
		if st, ok := byTruck[sensor]; ok {
			return *st, true
		}
	}
	return models.AlgorithmState{}, false
}

// Update runs one sample value through the detectors for (truckID, sensor)
// and returns any emitted events plus the updated state for checkpointing.
func (e *Engine) Update(truckID, sensor string, ts time.Time, value float64) ([]models.Anomaly, models.AlgorithmState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state(truckID, sensor, nil)
	bl := e.tracker.Baseline(truckID, sensor)

	var events []models.Anomaly

	// EWMA with exponentially smoothed residual variance.
	alpha := e.cfg.EWMAAlpha
	if st.Samples == 0 {
		st.EWMA = value
		st.EWMAVariance = 0
	} else {
		residual := value - st.EWMA
		st.EWMA = alpha*value + (1-alpha)*st.EWMA
		st.EWMAVariance = alpha*residual*residual + (1-alpha)*st.EWMAVariance
	}

	ewmaSigma := math.Sqrt(st.EWMAVariance)
	zScore := 0.0
	if bl.StdDev > 0 {
		zScore = (value - bl.Mean) / bl.StdDev
	}

	if st.Samples > 0 && ewmaSigma > 0 {
		drift := math.Abs(value - st.EWMA)
		if drift > e.cfg.CUSUMDrift*ewmaSigma*e.cfg.EWMADriftMultiplier {
			events = append(events, e.event(truckID, sensor, ts, models.AnomalyEWMA,
				ewmaSeverity(drift/ewmaSigma), value, st, e.cfg.CUSUMDrift*ewmaSigma, zScore))
		}
	}

	// CUSUM two-sided around the learned target. The baseline mean stands in
	// for a configured target until one is learned.
	target := bl.Mean
	k := e.cfg.CUSUMDrift
	st.CUSUMPos = math.Max(0, st.CUSUMPos+(value-target)-k)
	st.CUSUMNeg = math.Max(0, st.CUSUMNeg-(value-target)-k)

	if st.CUSUMPos > e.cfg.CUSUMLimit {
		events = append(events, e.event(truckID, sensor, ts, models.AnomalyCUSUM,
			models.SeverityHigh, value, st, e.cfg.CUSUMLimit, zScore))
		st.CUSUMPos = 0
	}
	if st.CUSUMNeg > e.cfg.CUSUMLimit {
		events = append(events, e.event(truckID, sensor, ts, models.AnomalyCUSUM,
			models.SeverityHigh, value, st, e.cfg.CUSUMLimit, zScore))
		st.CUSUMNeg = 0
	}

	// Static warning/critical thresholds, gated on persistence so one noisy
	// reading never raises an alert.
	if th, ok := e.cfg.Thresholds[sensor]; ok {
		if event, fired := e.thresholdEvent(truckID, sensor, ts, value, th, st, zScore); fired {
			events = append(events, event)
		}
	}

	st.Samples++
	st.TrendSlopeDay, st.Trend = e.trend(truckID, sensor, bl)
	st.UpdatedAt = ts

	return events, *st
}

func (e *Engine) thresholdEvent(truckID, sensor string, ts time.Time, value float64, th config.FailureThreshold, st *models.AlgorithmState, zScore float64) (models.Anomaly, bool) {
	var crossed bool
	var level float64
	severity := models.SeverityHigh

	if th.HigherIsWorse {
		if value >= th.Critical {
			crossed, level, severity = true, th.Critical, models.SeverityCritical
		} else if value >= th.Warning {
			crossed, level = true, th.Warning
		}
	} else {
		if value <= th.Critical {
			crossed, level, severity = true, th.Critical, models.SeverityCritical
		} else if value <= th.Warning {
			crossed, level = true, th.Warning
		}
	}
	if !crossed {
		return models.Anomaly{}, false
	}

	persistent, _ := e.tracker.HasPersistentCriticalReading(truckID, sensor, level, th.HigherIsWorse, e.persist)
	if !persistent {
		return models.Anomaly{}, false
	}

	ev := e.event(truckID, sensor, ts, models.AnomalyThreshold, severity, value, st, level, zScore)
	return ev, true
}

func (e *Engine) event(truckID, sensor string, ts time.Time, kind models.AnomalyType, severity models.Severity, value float64, st *models.AlgorithmState, threshold, zScore float64) models.Anomaly {
	cusum := st.CUSUMPos
	if st.CUSUMNeg > cusum {
		cusum = st.CUSUMNeg
	}
	return models.Anomaly{
		ID:          ulid.Make().String(),
		TruckID:     truckID,
		Sensor:      sensor,
		Timestamp:   ts,
		Type:        kind,
		Severity:    severity,
		SensorValue: value,
		EWMAValue:   st.EWMA,
		CUSUMValue:  cusum,
		Threshold:   threshold,
		ZScore:      zScore,
	}
}

func ewmaSeverity(sigmas float64) models.Severity {
	switch {
	case sigmas >= 8:
		return models.SeverityHigh
	case sigmas >= 5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// trend fits a least-squares slope over the buffered window and projects it
// per day using the window's real-time span.
func (e *Engine) trend(truckID, sensor string, bl models.SensorBaseline) (float64, models.TrendDirection) {
	points := e.tracker.Window(truckID, sensor)
	if len(points) < 3 {
		return 0, models.TrendStable
	}

	slopePerDay := SlopePerDay(points)

	// A slope below 0.5% of the running mean per day is noise.
	band := math.Abs(bl.Mean) * 0.005
	if band == 0 {
		band = 1e-9
	}
	switch {
	case slopePerDay > band:
		return slopePerDay, models.TrendUp
	case slopePerDay < -band:
		return slopePerDay, models.TrendDown
	default:
		return slopePerDay, models.TrendStable
	}
}

// SlopePerDay computes the least-squares slope of the points in units per day.
func SlopePerDay(points []baseline.Point) float64 {
	n := float64(len(points))
	if n < 2 {
		return 0
	}

	origin := points[0].Timestamp
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := p.Timestamp.Sub(origin).Hours() / 24
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

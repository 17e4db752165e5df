// Package idle derives idle fuel consumption from telemetry samples.
package idle

import (
	"math"
	"time"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

const litersPerGallon = 3.78541

// Estimator derives (idle GPH, method, mode) from a sample and its
// predecessor. Methods are tried in a fixed priority order; the first
// applicable rule wins.
type Estimator struct {
	cfg config.IdleConfig
}

// NewEstimator creates an estimator with the given tuning.
func NewEstimator(cfg config.IdleConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate produces the idle reading for cur. prev may be nil on the first
// sample for a truck. prevGPH is the previous reading's GPH, used for EMA
// smoothing of sensor fuel-rate values; pass 0 when unknown.
func (e *Estimator) Estimate(prev, cur *models.TelemetrySample, prevGPH float64) models.IdleReading {
	reading := models.IdleReading{
		TruckID:   cur.TruckID,
		Timestamp: cur.Timestamp,
		Method:    models.IdleNotIdle,
		Mode:      models.IdleModeEngineOff,
	}

	// Idle only exists while stopped.
	if cur.Status != models.StatusStopped {
		return reading
	}

	tempFactor, tempKnown := temperatureFactor(cur.AmbientTempF)

	// 1. ECU idle-fuel counter delta.
	if gph, ok := e.fromECUCounter(prev, cur); ok {
		reading.GPH = gph
		reading.Method = models.IdleECUCounter
		reading.Mode = modeFromGPH(gph)
		return reading
	}

	// 2. Engine off: RPM explicitly zero and no usable fuel-rate signal.
	if cur.EngineRPM != nil && *cur.EngineRPM == 0 && !validFuelRate(cur.FuelRateLPH) {
		reading.GPH = 0
		reading.Method = models.IdleEngineOff
		reading.Mode = models.IdleModeEngineOff
		return reading
	}

	// 3. Direct fuel-rate sensor, smoothed against the previous estimate.
	if validFuelRate(cur.FuelRateLPH) {
		gph := *cur.FuelRateLPH / litersPerGallon
		if prevGPH > 0 {
			alpha := e.cfg.SmoothingAlpha
			gph = alpha*gph + (1-alpha)*prevGPH
		}
		reading.GPH = gph
		reading.Method = models.IdleSensorFuelRate
		reading.Mode = modeFromGPH(gph)
		return reading
	}

	// 4. Fuel-level delta over a long enough window.
	if gph, ok := fromLevelDelta(prev, cur); ok {
		reading.GPH = gph
		reading.Method = models.IdleCalculatedDelta
		reading.Mode = modeFromGPH(gph)
		return reading
	}

	// 5. RPM-based estimate, temperature adjusted.
	if cur.EngineRPM != nil && *cur.EngineRPM > 0 {
		gph := (0.3 + (*cur.EngineRPM/1000)*0.2) * tempFactor
		reading.GPH = gph
		reading.Method = models.IdleRPMEstimate
		reading.Mode = modeFromGPH(gph)
		reading.TempAdjusted = tempKnown
		return reading
	}

	// 6. Flat consensus fallback, temperature adjusted.
	gph := e.cfg.FallbackGPH * tempFactor
	reading.GPH = gph
	reading.Method = models.IdleFallbackConsensus
	reading.Mode = modeFromGPH(gph)
	reading.TempAdjusted = tempKnown
	return reading
}

// fromECUCounter computes GPH from the cumulative idle-fuel counter. Valid
// only for small positive deltas over a sane time window.
func (e *Estimator) fromECUCounter(prev, cur *models.TelemetrySample) (float64, bool) {
	if prev == nil || prev.TotalIdleFuel == nil || cur.TotalIdleFuel == nil {
		return 0, false
	}
	dt := cur.Timestamp.Sub(prev.Timestamp)
	if dt < 36*time.Second {
		return 0, false
	}
	deltaGal := *cur.TotalIdleFuel - *prev.TotalIdleFuel
	if deltaGal <= 0 || deltaGal >= 5 {
		return 0, false
	}
	gph := deltaGal / dt.Hours()
	if gph < 0.1 || gph > 5.0 {
		return 0, false
	}
	return gph, true
}

func fromLevelDelta(prev, cur *models.TelemetrySample) (float64, bool) {
	if prev == nil || prev.FuelLiters == nil || cur.FuelLiters == nil {
		return 0, false
	}
	dt := cur.Timestamp.Sub(prev.Timestamp)
	if dt < 12*time.Minute {
		return 0, false
	}
	consumedL := *prev.FuelLiters - *cur.FuelLiters
	if consumedL <= 0 {
		return 0, false
	}
	lph := consumedL / dt.Hours()
	if lph < 0.5 || lph > 10.0 {
		return 0, false
	}
	return lph / litersPerGallon, true
}

func validFuelRate(lph *float64) bool {
	return lph != nil && *lph >= 1.5 && *lph <= 12.0
}

// temperatureFactor scales fallback/RPM estimates: cold weather forces high
// idle, hot weather forces AC load.
func temperatureFactor(tempF *float64) (float64, bool) {
	if tempF == nil {
		return 1.0, false
	}
	t := *tempF
	switch {
	case t < 32:
		return 1.5, true
	case t < 60:
		return 1.25, true
	case t <= 75:
		return 1.0, true
	case t < 95:
		return 1.3, true
	default:
		return 1.5, true
	}
}

func modeFromGPH(gph float64) models.IdleMode {
	switch {
	case gph <= 0:
		return models.IdleModeEngineOff
	case gph <= 1.2:
		return models.IdleModeNormal
	case gph <= 2.5:
		return models.IdleModeReefer
	default:
		return models.IdleModeHeavy
	}
}

// Validate compares the calculated daily idle hours against the ratio implied
// by the cumulative ECU counters. Deviations beyond the configured percentage
// flag the truck for investigation.
func (e *Estimator) Validate(truckID string, calculatedHoursDay float64, engineHours, idleHours *float64, windowDays float64) models.IdleValidationResult {
	res := models.IdleValidationResult{
		TruckID:            truckID,
		IsValid:            true,
		CalculatedHoursDay: calculatedHoursDay,
		Confidence:         models.ConfidenceHigh,
	}
	if engineHours == nil || idleHours == nil || windowDays <= 0 {
		res.Confidence = models.ConfidenceLow
		return res
	}

	// Clearly unphysical counters cannot be trusted.
	if *idleHours < 0 || *idleHours > 100000 || *engineHours <= 0 || *engineHours > 200000 {
		res.Confidence = models.ConfidenceLow
		return res
	}

	ratio := *idleHours / *engineHours
	// ECU counters are lifetime totals; project the ratio onto a 24h day of
	// observed engine time.
	engineHoursDay := *engineHours / windowDays
	if engineHoursDay > 24 {
		engineHoursDay = 24
	}
	res.ECUHoursDay = ratio * engineHoursDay

	if res.ECUHoursDay <= 0 {
		res.Confidence = models.ConfidenceLow
		return res
	}

	res.DeviationPct = (calculatedHoursDay - res.ECUHoursDay) / res.ECUHoursDay * 100
	if math.Abs(res.DeviationPct) > e.cfg.ValidationDeviationPct {
		res.IsValid = false
		res.NeedsInvestigation = true
		res.Confidence = models.ConfidenceMedium
	}
	return res
}

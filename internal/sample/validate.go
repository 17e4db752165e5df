// Package sample validates incoming telemetry before the pipeline consumes it.
package sample

import (
	"math"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

// Validator nulls out-of-range or non-finite sensor readings. A sample is
// never rejected wholesale; only individual fields are dropped.
type Validator struct {
	ranges map[string]config.SensorRange
}

// NewValidator builds a validator from the configured per-sensor ranges.
func NewValidator(cfg config.SensorConfig) *Validator {
	return &Validator{ranges: cfg.ValidRanges}
}

// Sanitize nulls invalid fields in place and returns the names of the
// sensors that were dropped.
func (v *Validator) Sanitize(s *models.TelemetrySample) []string {
	var dropped []string

	check := func(name string, field **float64) {
		if *field == nil {
			return
		}
		val := **field
		if math.IsNaN(val) || math.IsInf(val, 0) {
			*field = nil
			dropped = append(dropped, name)
			return
		}
		if r, ok := v.ranges[name]; ok && (val < r.Min || val > r.Max) {
			*field = nil
			dropped = append(dropped, name)
		}
	}

	check(models.SensorFuelPercent, &s.FuelPercent)
	check(models.SensorFuelLiters, &s.FuelLiters)
	check(models.SensorOilPressure, &s.OilPressurePSI)
	check(models.SensorCoolantTemp, &s.CoolantTempF)
	check(models.SensorOilTemp, &s.OilTempF)
	check(models.SensorTransTemp, &s.TransTempF)
	check(models.SensorDEFLevel, &s.DEFLevelPct)
	check(models.SensorBatteryVoltage, &s.BatteryVoltage)
	check(models.SensorAmbientTemp, &s.AmbientTempF)
	check(models.SensorEngineRPM, &s.EngineRPM)
	check(models.SensorFuelRate, &s.FuelRateLPH)
	check(models.SensorGPSQuality, &s.GPSQuality)

	// Cumulative counters and odometer have no configured range but must be
	// finite and non-negative.
	checkCounter := func(name string, field **float64) {
		if *field == nil {
			return
		}
		val := **field
		if math.IsNaN(val) || math.IsInf(val, 0) || val < 0 {
			*field = nil
			dropped = append(dropped, name)
		}
	}
	checkCounter("odometer", &s.OdometerMiles)
	checkCounter("engine_hours", &s.EngineHours)
	checkCounter("idle_hours", &s.IdleHours)
	checkCounter("total_idle_fuel", &s.TotalIdleFuel)
	checkCounter("speed", &s.SpeedMPH)

	for name, val := range s.Extra {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			delete(s.Extra, name)
			dropped = append(dropped, name)
		}
	}

	return dropped
}

// HasFuelReading reports whether the sample carries at least one fuel level
// field, which is the only hard requirement on a sample.
func HasFuelReading(s *models.TelemetrySample) bool {
	return s.FuelPercent != nil || s.FuelLiters != nil
}

// Package predict extrapolates sensor trends to warning/critical thresholds.
package predict

import (
	"fmt"

	"github.com/fleetops/fuelsight/internal/anomaly"
	"github.com/fleetops/fuelsight/internal/baseline"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

// Trend direction labels for predictions.
const (
	TrendDegrading = "DEGRADING"
	TrendStable    = "STABLE"
	TrendImproving = "IMPROVING"
)

// Predictor projects a sensor's linear trend onto its failure thresholds.
type Predictor struct {
	cfg config.PredictionConfig
}

// NewPredictor creates a predictor with the configured bounds.
func NewPredictor(cfg config.PredictionConfig) *Predictor {
	return &Predictor{cfg: cfg}
}

// Predict extrapolates the sensor history against th. Returns ok=false when
// the history is too short to fit a trend.
func (p *Predictor) Predict(sensor string, history []baseline.Point, th config.FailureThreshold) (models.FailurePrediction, bool) {
	if len(history) < p.cfg.MinHistory {
		return models.FailurePrediction{}, false
	}

	current := history[len(history)-1].Value
	slope := anomaly.SlopePerDay(history)

	pred := models.FailurePrediction{
		Sensor:            sensor,
		Current:           current,
		WarningThreshold:  th.Warning,
		CriticalThreshold: th.Critical,
		TrendSlopePerDay:  slope,
		TrendDirection:    direction(slope, th.HigherIsWorse),
		Urgency:           models.PriorityNone,
	}

	if pred.TrendDirection != TrendDegrading {
		pred.Recommendation = "No action required; trend is not degrading"
		return pred, true
	}

	pred.DaysToWarning = p.daysTo(current, th.Warning, slope, th.HigherIsWorse)
	pred.DaysToCritical = p.daysTo(current, th.Critical, slope, th.HigherIsWorse)

	switch {
	case pred.DaysToCritical != nil && *pred.DaysToCritical < 7:
		pred.Urgency = models.PriorityCritical
		pred.Recommendation = fmt.Sprintf("Schedule service now: %s reaches critical in %.1f days", sensor, *pred.DaysToCritical)
	case pred.DaysToWarning != nil && *pred.DaysToWarning < 7:
		pred.Urgency = models.PriorityHigh
		pred.Recommendation = fmt.Sprintf("Inspect soon: %s reaches warning level in %.1f days", sensor, *pred.DaysToWarning)
	case (pred.DaysToCritical != nil && *pred.DaysToCritical < 30) ||
		(pred.DaysToWarning != nil && *pred.DaysToWarning < 30):
		pred.Urgency = models.PriorityMedium
		pred.Recommendation = fmt.Sprintf("Plan maintenance this month for %s", sensor)
	default:
		pred.Recommendation = fmt.Sprintf("Monitor %s trend", sensor)
	}

	return pred, true
}

// daysTo returns the clamped days until the value crosses the threshold, or
// nil when the slope never reaches it.
func (p *Predictor) daysTo(current, threshold, slope float64, higherIsWorse bool) *float64 {
	// Already past the threshold.
	if (higherIsWorse && current >= threshold) || (!higherIsWorse && current <= threshold) {
		d := p.cfg.MinDays
		return &d
	}

	const minSlope = 1e-9
	if higherIsWorse {
		if slope < minSlope {
			return nil
		}
	} else {
		if slope > -minSlope {
			return nil
		}
	}

	days := (threshold - current) / slope
	if days < p.cfg.MinDays {
		days = p.cfg.MinDays
	}
	if days > p.cfg.MaxDays {
		days = p.cfg.MaxDays
	}
	return &days
}

func direction(slope float64, higherIsWorse bool) string {
	const minSlope = 1e-9
	switch {
	case slope > minSlope && higherIsWorse, slope < -minSlope && !higherIsWorse:
		return TrendDegrading
	case slope > minSlope || slope < -minSlope:
		return TrendImproving
	default:
		return TrendStable
	}
}

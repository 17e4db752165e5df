// Package risk aggregates a truck's action items into a 0-100 risk score.
package risk

import (
	"fmt"
	"time"

	"github.com/fleetops/fuelsight/internal/actions"
	"github.com/fleetops/fuelsight/internal/models"
)

// normalization divides the weighted item sum so that a handful of serious
// items saturates the scale without a single item pinning it.
const normalization = 2.5

// maintenanceGraceDays is how long after service no penalty accrues.
const (
	maintenanceGraceDays   = 30
	maintenancePenaltyRate = 0.5
	maintenancePenaltyCap  = 25
)

// Scorer computes per-truck risk from the deduplicated action list.
type Scorer struct{}

// NewScorer creates a risk scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score aggregates the items for one truck. daysSinceMaintenance may be 0
// when the maintenance history is unknown.
func (s *Scorer) Score(truckID string, items []models.ActionItem, daysSinceMaintenance float64, now time.Time) models.TruckRiskScore {
	score := models.TruckRiskScore{
		TruckID:              truckID,
		DaysSinceMaintenance: daysSinceMaintenance,
		ComputedAt:           now,
	}

	var sum float64
	var minDays *float64
	for _, item := range items {
		if item.TruckID != truckID {
			continue
		}
		score.ActiveIssuesCount++

		categoryWeight := actions.CriticalityOf(item.Component) / 3.0
		sum += item.PriorityScore * categoryWeight * confidenceWeight(item.Confidence)

		if item.DaysToCritical != nil && (minDays == nil || *item.DaysToCritical < *minDays) {
			d := *item.DaysToCritical
			minDays = &d
		}
		if item.Priority == models.PriorityCritical || item.Priority == models.PriorityHigh {
			score.ContributingFactors = append(score.ContributingFactors,
				fmt.Sprintf("%s: %s", item.Priority, item.Title))
		}
	}

	risk := sum / normalization

	if daysSinceMaintenance > maintenanceGraceDays {
		penalty := (daysSinceMaintenance - maintenanceGraceDays) * maintenancePenaltyRate
		if penalty > maintenancePenaltyCap {
			penalty = maintenancePenaltyCap
		}
		risk += penalty
		score.ContributingFactors = append(score.ContributingFactors,
			fmt.Sprintf("%.0f days since last maintenance", daysSinceMaintenance))
	}

	if risk > 100 {
		risk = 100
	}
	if risk < 0 {
		risk = 0
	}

	score.RiskScore = risk
	score.RiskLevel = levelFromScore(risk)
	score.PredictedFailureDays = minDays
	return score
}

func confidenceWeight(c models.Confidence) float64 {
	switch c {
	case models.ConfidenceHigh:
		return 1.0
	case models.ConfidenceMedium:
		return 0.8
	default:
		return 0.6
	}
}

func levelFromScore(score float64) models.RiskLevel {
	switch {
	case score >= 80:
		return models.RiskCritical
	case score >= 60:
		return models.RiskHigh
	case score >= 30:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

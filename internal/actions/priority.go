package actions

import (
	"math"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

// Prioritizer computes the weighted priority score and derives the priority
// label and action type.
type Prioritizer struct {
	cfg config.PriorityConfig
}

// NewPrioritizer creates a prioritizer with the configured weights.
func NewPrioritizer(cfg config.PriorityConfig) *Prioritizer {
	return &Prioritizer{cfg: cfg}
}

// Score fills in PriorityScore, Priority and ActionType on the item. The
// score blends up to four sub-signals; absent signals drop out and the
// remaining weights renormalize. With no signals at all the item defaults to
// a MEDIUM 50.
func (p *Prioritizer) Score(item *models.ActionItem) {
	type signal struct {
		weight float64
		value  float64
	}
	var signals []signal

	if item.DaysToCritical != nil {
		signals = append(signals, signal{p.cfg.DaysWeight, daysUrgency(*item.DaysToCritical, p.cfg.DaysDecay)})
	}
	if item.AnomalyScore != nil {
		signals = append(signals, signal{p.cfg.AnomalyWeight, normalizeAnomalyScore(*item.AnomalyScore)})
	}
	if item.Component != "" {
		crit := componentFor(NormalizeComponent(item.Component)).Criticality
		signals = append(signals, signal{p.cfg.CriticalityWeight, 100 * crit / maxCriticality})
	}
	if item.Cost != nil {
		signals = append(signals, signal{p.cfg.CostWeight, costScore(item.Cost)})
	}

	score := 50.0
	if len(signals) > 0 {
		var weightSum, blended float64
		for _, s := range signals {
			weightSum += s.weight
			blended += s.weight * s.value
		}
		if weightSum > 0 {
			score = blended / weightSum
		}
	}
	score = clampScore(score)

	item.PriorityScore = score
	item.Priority = PriorityFromScore(score)
	item.ActionType = actionTypeFor(item.Priority, item.DaysToCritical)
}

// daysUrgency decays exponentially with days remaining: days<=0 scores 100,
// and the floor keeps far-out predictions visible.
func daysUrgency(days, decay float64) float64 {
	if days <= 0 {
		return 100
	}
	score := 100 * math.Exp(-decay*days)
	if score < 5 {
		score = 5
	}
	return score
}

// normalizeAnomalyScore accepts both 0-1 and 0-100 detector outputs.
func normalizeAnomalyScore(raw float64) float64 {
	if raw <= 1.0 {
		raw *= 100
	}
	return clampScore(raw)
}

// PriorityFromScore maps a 0-100 score to its label.
func PriorityFromScore(score float64) models.Priority {
	switch {
	case score >= 85:
		return models.PriorityCritical
	case score >= 65:
		return models.PriorityHigh
	case score >= 40:
		return models.PriorityMedium
	case score >= 20:
		return models.PriorityLow
	default:
		return models.PriorityNone
	}
}

// actionTypeFor derives the operator response from priority and urgency.
func actionTypeFor(priority models.Priority, daysToCritical *float64) models.ActionType {
	switch priority {
	case models.PriorityCritical:
		if daysToCritical != nil && *daysToCritical > 1 {
			return models.ActionScheduleThisWeek
		}
		return models.ActionStopImmediately
	case models.PriorityHigh:
		return models.ActionScheduleThisWeek
	case models.PriorityMedium:
		return models.ActionScheduleThisMonth
	case models.PriorityLow:
		return models.ActionMonitor
	default:
		return models.ActionNone
	}
}

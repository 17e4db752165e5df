// Package fleethealth computes the fleet-wide health score, its trend
// history and the operator-facing insights.
package fleethealth

import (
	"fmt"
	"sort"
	"time"

	"github.com/fleetops/fuelsight/internal/buffer"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

// Base penalty weights per urgency bucket.
const (
	penaltyCritical = 4.0
	penaltyHigh     = 2.0
	penaltyMedium   = 0.5
	penaltyLow      = 0.1
)

// systemicPenaltyScale converts the affected-truck fraction into score
// points. Fleet-wide problems hurt more than one truck with many issues.
const systemicPenaltyScale = 20.0

// Aggregator owns the health computation and the bounded trend ring.
type Aggregator struct {
	cfg  config.FleetConfig
	ring *buffer.Ring[models.FleetHealthSnapshot]
}

// NewAggregator creates an aggregator with a bounded history ring.
func NewAggregator(cfg config.FleetConfig) *Aggregator {
	size := cfg.HistorySize
	if size < 1 || size > 1000 {
		size = 1000
	}
	return &Aggregator{
		cfg:  cfg,
		ring: buffer.NewRing[models.FleetHealthSnapshot](size),
	}
}

// Compute builds a snapshot from the deduplicated action list and the
// per-truck risk scores, records it in the ring, and returns it.
func (a *Aggregator) Compute(items []models.ActionItem, risks []models.TruckRiskScore, totalTrucks, activeTrucks int, now time.Time) models.FleetHealthSnapshot {
	snapshot := models.FleetHealthSnapshot{
		Timestamp:    now,
		TotalTrucks:  totalTrucks,
		ActiveTrucks: activeTrucks,
		Urgency:      summarize(items),
	}

	if totalTrucks == 0 {
		snapshot.Score = 100
		snapshot.Status = "Sin datos"
		snapshot.Trend = models.FleetStable
		snapshot.Description = "Sin camiones observados"
		a.ring.Push(snapshot)
		return snapshot
	}

	score := 100.0
	score -= penaltyCritical*float64(snapshot.Urgency.Critical) +
		penaltyHigh*float64(snapshot.Urgency.High) +
		penaltyMedium*float64(snapshot.Urgency.Medium) +
		penaltyLow*float64(snapshot.Urgency.Low)

	score -= a.systemicPenalty(items, totalTrucks)
	score -= maintenancePenalty(risks, totalTrucks)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	snapshot.Score = score
	snapshot.Status = statusLabel(score)
	snapshot.Trend = a.calculateTrend()
	snapshot.Description = fmt.Sprintf("%d camiones activos de %d, %d acciones pendientes",
		activeTrucks, totalTrucks, len(items))

	a.ring.Push(snapshot)
	return snapshot
}

// systemicPenalty punishes the same component failing across the fleet.
func (a *Aggregator) systemicPenalty(items []models.ActionItem, totalTrucks int) float64 {
	trucksByComponent := make(map[string]map[string]bool)
	for _, item := range items {
		if item.TruckID == models.FleetTruckID {
			continue
		}
		if item.Priority != models.PriorityCritical && item.Priority != models.PriorityHigh {
			continue
		}
		set, ok := trucksByComponent[item.Component]
		if !ok {
			set = make(map[string]bool)
			trucksByComponent[item.Component] = set
		}
		set[item.TruckID] = true
	}

	var penalty float64
	for _, trucks := range trucksByComponent {
		fraction := float64(len(trucks)) / float64(totalTrucks)
		if fraction > a.cfg.SystemicIssuePct {
			penalty += systemicPenaltyScale * fraction
		}
	}
	return penalty
}

func maintenancePenalty(risks []models.TruckRiskScore, totalTrucks int) float64 {
	if totalTrucks == 0 {
		return 0
	}
	var sum float64
	for _, r := range risks {
		if r.DaysSinceMaintenance > 30 {
			over := r.DaysSinceMaintenance - 30
			if over > 50 {
				over = 50
			}
			sum += over * 0.1
		}
	}
	return sum / float64(totalTrucks)
}

func summarize(items []models.ActionItem) models.UrgencySummary {
	var u models.UrgencySummary
	for _, item := range items {
		switch item.Priority {
		case models.PriorityCritical:
			u.Critical++
		case models.PriorityHigh:
			u.High++
		case models.PriorityMedium:
			u.Medium++
		case models.PriorityLow:
			u.Low++
		}
	}
	return u
}

func statusLabel(score float64) string {
	switch {
	case score >= 90:
		return "Excelente"
	case score >= 75:
		return "Bueno"
	case score >= 60:
		return "Atención Requerida"
	case score >= 40:
		return "Alerta"
	default:
		return "Crítico"
	}
}

// calculateTrend compares the mean of the first half of the recent window
// against the second half, with a ±3% dead band.
func (a *Aggregator) calculateTrend() models.FleetTrend {
	window := a.cfg.TrendWindow
	if window < 4 {
		window = 10
	}
	recent := a.ring.Last(window)
	if len(recent) < 4 {
		return models.FleetStable
	}

	half := len(recent) / 2
	firstMean := meanScore(recent[:half])
	secondMean := meanScore(recent[half:])

	if firstMean == 0 {
		return models.FleetStable
	}
	change := (secondMean - firstMean) / firstMean
	switch {
	case change > 0.03:
		return models.FleetImproving
	case change < -0.03:
		return models.FleetDeclining
	default:
		return models.FleetStable
	}
}

func meanScore(snapshots []models.FleetHealthSnapshot) float64 {
	if len(snapshots) == 0 {
		return 0
	}
	var sum float64
	for _, s := range snapshots {
		sum += s.Score
	}
	return sum / float64(len(snapshots))
}

// History returns up to limit most recent snapshots, oldest first.
func (a *Aggregator) History(limit int) []models.FleetHealthSnapshot {
	if limit <= 0 {
		return a.ring.Snapshot()
	}
	return a.ring.Last(limit)
}

// Since returns the snapshots recorded after cutoff, oldest first.
func (a *Aggregator) Since(cutoff time.Time) []models.FleetHealthSnapshot {
	all := a.ring.Snapshot()
	idx := sort.Search(len(all), func(i int) bool {
		return all[i].Timestamp.After(cutoff)
	})
	return all[idx:]
}

// Latest returns the most recent snapshot, or false when none exists.
func (a *Aggregator) Latest() (models.FleetHealthSnapshot, bool) {
	return a.ring.Newest()
}

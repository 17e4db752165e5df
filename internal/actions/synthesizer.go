// Package actions turns detector signals into prioritized action items.
package actions

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetops/fuelsight/internal/models"
)

// Synthesizer normalizes signals from every detector into ActionItem records.
type Synthesizer struct {
	prioritizer *Prioritizer
}

// NewSynthesizer creates a synthesizer that scores items as it creates them.
func NewSynthesizer(prioritizer *Prioritizer) *Synthesizer {
	return &Synthesizer{prioritizer: prioritizer}
}

// newItem fills in the component-derived fields shared by every synthesis
// path and scores the item.
func (s *Synthesizer) newItem(truckID, rawComponent, source, title, description string, ts time.Time) models.ActionItem {
	component := NormalizeComponent(rawComponent)
	info := componentFor(component)

	item := models.ActionItem{
		ID:          NewActionID(ts),
		TruckID:     truckID,
		Component:   component,
		Category:    info.Category,
		Icon:        info.Icon,
		Title:       title,
		Description: description,
		ActionSteps: append([]string(nil), info.Steps...),
		Sources:     []string{source},
		Confidence:  models.Confidence(confidenceFromSource(source)),
		CreatedAt:   ts,
	}
	if info.CostMax > 0 {
		item.Cost = &models.CostRange{
			Min: info.CostMin,
			Max: info.CostMax,
			Avg: (info.CostMin + info.CostMax) / 2,
		}
		item.CostDisplay = RenderCost(item.Cost)
	}
	return item
}

// FromAnomaly converts a streaming detector event.
func (s *Synthesizer) FromAnomaly(a models.Anomaly) models.ActionItem {
	source := SourceRealTimePredictive
	if a.Type == models.AnomalyEWMA || a.Type == models.AnomalyCUSUM {
		source = SourceMLAnomaly
	}

	item := s.newItem(a.TruckID, a.Sensor, source,
		fmt.Sprintf("%s anomaly on %s", a.Type, a.Sensor),
		fmt.Sprintf("%s reading %.1f deviates from baseline (threshold %.1f)", a.Sensor, a.SensorValue, a.Threshold),
		a.Timestamp)

	score := severityScore(a.Severity)
	item.AnomalyScore = &score
	item.CurrentValue = fmt.Sprintf("%.1f", a.SensorValue)
	item.Threshold = fmt.Sprintf("%.1f", a.Threshold)

	s.prioritizer.Score(&item)
	return item
}

// FromPrediction converts a days-to-failure extrapolation.
func (s *Synthesizer) FromPrediction(truckID string, p models.FailurePrediction, ts time.Time) models.ActionItem {
	item := s.newItem(truckID, p.Sensor, SourcePMEngine,
		fmt.Sprintf("%s trending toward failure", p.Sensor),
		p.Recommendation, ts)

	if p.DaysToCritical != nil {
		d := *p.DaysToCritical
		item.DaysToCritical = &d
	}
	item.CurrentValue = fmt.Sprintf("%.1f", p.Current)
	item.Threshold = fmt.Sprintf("%.1f", p.CriticalThreshold)
	item.Trend = fmt.Sprintf("%+.2f/day", p.TrendSlopePerDay)

	s.prioritizer.Score(&item)
	return item
}

// FromCorrelation converts a matched failure pattern. The pattern's
// confidence drives the anomaly sub-signal.
func (s *Synthesizer) FromCorrelation(ev models.CorrelationEvent) models.ActionItem {
	title := fmt.Sprintf("Failure pattern: %s", strings.ReplaceAll(ev.Pattern, "_", " "))
	if ev.TruckID == models.FleetTruckID {
		title = fmt.Sprintf("Fleet pattern: %s", strings.ReplaceAll(ev.Pattern, "_", " "))
	}

	item := s.newItem(ev.TruckID, ev.PredictedComponent, SourceFailureCorrelation,
		title, ev.RecommendedAction, ev.Timestamp)

	score := ev.Confidence // 0-1, normalized by the prioritizer
	item.AnomalyScore = &score

	// A corroborated multi-sensor failure is urgent by construction.
	if ev.Confidence >= 0.8 {
		days := 0.5
		item.DaysToCritical = &days
	}

	s.prioritizer.Score(&item)
	return item
}

// FromDTC converts an active diagnostic trouble code.
func (s *Synthesizer) FromDTC(truckID, code string, ts time.Time) models.ActionItem {
	item := s.newItem(truckID, componentForDTC(code), SourceDTCAnalysis,
		fmt.Sprintf("Active DTC %s", code),
		fmt.Sprintf("ECU reports fault code %s", code), ts)

	score := 60.0
	item.AnomalyScore = &score

	s.prioritizer.Score(&item)
	return item
}

// FromIdleValidation converts a failed idle cross-check.
func (s *Synthesizer) FromIdleValidation(v models.IdleValidationResult, ts time.Time) models.ActionItem {
	item := s.newItem(v.TruckID, "efficiency", SourceSensorHealth,
		"Idle accounting mismatch",
		fmt.Sprintf("Calculated idle %.1f h/day disagrees with ECU counters (%.1f h/day, %.0f%% deviation)",
			v.CalculatedHoursDay, v.ECUHoursDay, v.DeviationPct), ts)

	score := 45.0
	item.AnomalyScore = &score
	item.CurrentValue = fmt.Sprintf("%.1f h/day", v.CalculatedHoursDay)

	s.prioritizer.Score(&item)
	return item
}

// FromOfflineTruck flags a truck that stopped reporting.
func (s *Synthesizer) FromOfflineTruck(truckID string, lastSeen time.Time, now time.Time) models.ActionItem {
	hours := now.Sub(lastSeen).Hours()
	item := s.newItem(truckID, "gps", SourceSensorHealth,
		"Truck offline",
		fmt.Sprintf("No telemetry received for %.1f hours", hours), now)

	score := 50.0
	if hours >= 12 {
		score = 70
	}
	item.AnomalyScore = &score

	s.prioritizer.Score(&item)
	return item
}

// FromSensorHealth converts a generic sensor-health finding (low voltage,
// poor GPS quality, erratic fuel sender).
func (s *Synthesizer) FromSensorHealth(truckID, rawComponent, title, description string, anomalyScore float64, ts time.Time) models.ActionItem {
	item := s.newItem(truckID, rawComponent, SourceSensorHealth, title, description, ts)
	item.AnomalyScore = &anomalyScore
	s.prioritizer.Score(&item)
	return item
}

// severityScore maps detector severity to the 0-100 anomaly sub-signal.
func severityScore(sev models.Severity) float64 {
	switch sev {
	case models.SeverityCritical:
		return 95
	case models.SeverityHigh:
		return 80
	case models.SeverityMedium:
		return 60
	default:
		return 40
	}
}

// componentForDTC maps the SAE code prefix to a component family. P0xx/P2xx
// powertrain codes dominate heavy-truck faults.
func componentForDTC(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(c, "P07"), strings.HasPrefix(c, "P08"), strings.HasPrefix(c, "P09"):
		return "transmission"
	case strings.HasPrefix(c, "P020"), strings.HasPrefix(c, "P00"):
		return "fuel"
	case strings.HasPrefix(c, "P01"):
		return "fuel"
	case strings.HasPrefix(c, "P02"):
		return "turbo"
	case strings.HasPrefix(c, "P20"), strings.HasPrefix(c, "P204"):
		return "def"
	case strings.HasPrefix(c, "U"):
		return "electrical"
	case strings.HasPrefix(c, "B"):
		return "electrical"
	case strings.HasPrefix(c, "C"):
		return "brakes"
	default:
		return "sensors"
	}
}

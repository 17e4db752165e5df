// Package correlation matches configured multi-sensor failure patterns
// against the buffered sensor windows.
package correlation

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/baseline"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

// Engine evaluates failure patterns for single trucks and across the fleet.
type Engine struct {
	cfg     config.CorrelationConfig
	tracker *baseline.Tracker
}

// NewEngine creates a correlation engine over the baseline tracker.
func NewEngine(cfg config.CorrelationConfig, tracker *baseline.Tracker) *Engine {
	return &Engine{cfg: cfg, tracker: tracker}
}

// Evaluate checks every configured pattern for one truck within the current
// inspection window. The primary predicate must hold; correlated sensors veto
// only when they are observed and contradict the pattern.
func (e *Engine) Evaluate(truckID string, now time.Time) []models.CorrelationEvent {
	var events []models.CorrelationEvent

	for _, pattern := range e.cfg.Patterns {
		event, ok := e.evaluatePattern(truckID, pattern, now)
		if ok {
			events = append(events, event)
		}
	}
	return events
}

func (e *Engine) evaluatePattern(truckID string, pattern models.FailurePattern, now time.Time) (models.CorrelationEvent, bool) {
	if !e.predicateHolds(truckID, pattern.Primary) {
		return models.CorrelationEvent{}, false
	}

	matched := []string{pattern.Primary.Sensor}
	for _, pred := range pattern.Correlated {
		recent := e.tracker.Recent(truckID, pred.Sensor, minReadings(pred))
		if len(recent) == 0 {
			// Sensor not observed; it neither corroborates nor vetoes.
			continue
		}
		if !e.predicateHolds(truckID, pred) {
			return models.CorrelationEvent{}, false
		}
		matched = append(matched, pred.Sensor)
	}

	// Confidence scales with how many of the pattern's sensors corroborated.
	fraction := float64(len(matched)) / float64(1+len(pattern.Correlated))
	event := models.CorrelationEvent{
		TruckID:            truckID,
		Pattern:            pattern.Name,
		Timestamp:          now,
		PredictedComponent: pattern.PredictedComponent,
		RecommendedAction:  pattern.RecommendedAction,
		Confidence:         pattern.Confidence * fraction,
		MatchedSensors:     matched,
	}

	log.Warn().
		Str("truckID", truckID).
		Str("pattern", pattern.Name).
		Strs("sensors", matched).
		Float64("confidence", event.Confidence).
		Msg("Failure pattern matched")

	return event, true
}

func (e *Engine) predicateHolds(truckID string, pred models.SensorPredicate) bool {
	ok, _ := e.tracker.HasPersistentCriticalReading(truckID, pred.Sensor, pred.Threshold, pred.Above, minReadings(pred))
	return ok
}

func minReadings(pred models.SensorPredicate) int {
	if pred.MinReadings < 1 {
		return 3
	}
	return pred.MinReadings
}

// EvaluateFleet surfaces fleet-wide patterns: when enough trucks share the
// same predicted component, one FLEET-scoped event is emitted per component.
func (e *Engine) EvaluateFleet(perTruck map[string][]models.CorrelationEvent, totalTrucks int, now time.Time) []models.CorrelationEvent {
	if totalTrucks == 0 {
		return nil
	}

	type componentAgg struct {
		trucks     map[string]bool
		action     string
		confidence float64
		pattern    string
	}
	byComponent := make(map[string]*componentAgg)

	for truckID, events := range perTruck {
		for _, ev := range events {
			agg, ok := byComponent[ev.PredictedComponent]
			if !ok {
				agg = &componentAgg{trucks: make(map[string]bool)}
				byComponent[ev.PredictedComponent] = agg
			}
			agg.trucks[truckID] = true
			agg.action = ev.RecommendedAction
			agg.pattern = ev.Pattern
			if ev.Confidence > agg.confidence {
				agg.confidence = ev.Confidence
			}
		}
	}

	var fleet []models.CorrelationEvent
	for component, agg := range byComponent {
		count := len(agg.trucks)
		if count < e.cfg.MinTrucksForPattern {
			continue
		}
		if float64(count)/float64(totalTrucks) < e.cfg.FleetWideIssuePct {
			continue
		}
		fleet = append(fleet, models.CorrelationEvent{
			TruckID:            models.FleetTruckID,
			Pattern:            agg.pattern,
			Timestamp:          now,
			PredictedComponent: component,
			RecommendedAction:  agg.action,
			Confidence:         agg.confidence,
		})
	}
	return fleet
}

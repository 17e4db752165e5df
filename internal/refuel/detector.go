// Package refuel detects refuel events and learns per-truck detection
// thresholds from confirmed history.
package refuel

import (
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fleetops/fuelsight/internal/models"
)

// totalFuelAddedSensor is the optional cumulative "fuel added" ECU counter.
// Not every fleet exposes it; when present it confirms a refuel exactly.
const totalFuelAddedSensor = "total_fuel_added"

// Detector declares refuels from fuel-percentage jumps, confirmed by the ECU
// counter when one exists.
type Detector struct {
	learner *Learner
}

// NewDetector creates a detector backed by the given threshold learner.
func NewDetector(learner *Learner) *Detector {
	return &Detector{learner: learner}
}

// Detect inspects the transition prev→cur and returns a refuel event when the
// rise clears the truck's learned (or default) thresholds. tankCapacityL is
// used to convert the percentage jump to gallons when no liter reading exists.
func (d *Detector) Detect(prev, cur *models.TelemetrySample, tankCapacityL float64) (*models.RefuelEvent, bool) {
	if prev == nil || prev.FuelPercent == nil || cur.FuelPercent == nil {
		return nil, false
	}

	increasePct := *cur.FuelPercent - *prev.FuelPercent
	if increasePct <= 0 {
		return nil, false
	}

	increaseGal := gallonsAdded(prev, cur, increasePct, tankCapacityL)

	th := d.learner.Thresholds(cur.TruckID)
	if increasePct < th.MinPct || increaseGal < th.MinGal {
		return nil, false
	}

	event := &models.RefuelEvent{
		ID:           ulid.Make().String(),
		TruckID:      cur.TruckID,
		Timestamp:    cur.Timestamp,
		PctBefore:    *prev.FuelPercent,
		PctAfter:     *cur.FuelPercent,
		GallonsAdded: increaseGal,
		Method:       models.RefuelPctJump,
		Confidence:   pctJumpConfidence(increasePct, th.MinPct, cur.Status),
	}

	// A cumulative fuel-added counter advancing by the same magnitude in the
	// same window confirms the refuel outright.
	if counterConfirms(prev, cur, increaseGal) {
		event.Method = models.RefuelECUCounter
		event.Confidence = 1.0
	}

	d.learner.Observe(cur.TruckID, increasePct, increaseGal, event.Confidence, cur.Timestamp)
	return event, true
}

func gallonsAdded(prev, cur *models.TelemetrySample, increasePct, tankCapacityL float64) float64 {
	if prev.FuelLiters != nil && cur.FuelLiters != nil {
		deltaL := *cur.FuelLiters - *prev.FuelLiters
		if deltaL > 0 {
			return deltaL / litersPerGallon
		}
	}
	return (increasePct / 100) * tankCapacityL / litersPerGallon
}

func counterConfirms(prev, cur *models.TelemetrySample, increaseGal float64) bool {
	prevCounter, okPrev := prev.Sensor(totalFuelAddedSensor)
	curCounter, okCur := cur.Sensor(totalFuelAddedSensor)
	if !okPrev || !okCur {
		return false
	}
	advance := curCounter - prevCounter
	if advance <= 0 {
		return false
	}
	// Same magnitude within 15% tolerance.
	return math.Abs(advance-increaseGal) <= 0.15*increaseGal
}

// pctJumpConfidence grades an unconfirmed percentage jump between 0.7 and
// 0.9: larger jumps and a stopped truck both raise confidence.
func pctJumpConfidence(increasePct, minPct float64, status models.TruckStatus) float64 {
	confidence := 0.7
	if increasePct >= 2*minPct {
		confidence += 0.1
	}
	if status == models.StatusStopped {
		confidence += 0.1
	}
	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}

const litersPerGallon = 3.78541

// WindowGallons sums refuel gallons inside [from, to); fleet-daily rollups add
// these back into net fuel used.
func WindowGallons(events []models.RefuelEvent, from, to time.Time) float64 {
	var total float64
	for _, e := range events {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			total += e.GallonsAdded
		}
	}
	return total
}

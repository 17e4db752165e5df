package pipeline

import (
	"sync"
	"time"

	"github.com/fleetops/fuelsight/internal/models"
)

// defaultTankCapacityL is assumed until a per-truck capacity is configured.
// 200 US gallons is the common dual-tank Class 8 setup.
const defaultTankCapacityL = 757.0

// truckState is the per-truck mutable state. Writes happen only on the
// truck's shard; the snapshot path takes the mutex for reads.
type truckState struct {
	mu sync.Mutex

	truck models.Truck
	last  *models.TelemetrySample

	lastIdle      models.IdleReading
	stoppedStreak int

	// Idle accounting window for the ECU cross-check.
	windowStart time.Time
	idleHours   float64

	items          []models.ActionItem
	correlations   []models.CorrelationEvent
	idleValidation *models.IdleValidationResult

	lateDropped int64
}

func (p *Pipeline) truckLocked(truckID string) *truckState {
	st, ok := p.trucks[truckID]
	if !ok {
		st = &truckState{
			truck: models.Truck{
				ID:            truckID,
				TankCapacityL: defaultTankCapacityL,
				Status:        models.StatusStopped,
			},
		}
		p.trucks[truckID] = st
	}
	return st
}

func (p *Pipeline) truck(truckID string) *truckState {
	p.trucksMu.RLock()
	st, ok := p.trucks[truckID]
	p.trucksMu.RUnlock()
	if ok {
		return st
	}
	p.trucksMu.Lock()
	defer p.trucksMu.Unlock()
	return p.truckLocked(truckID)
}

// applyStatus advances the truck status state machine for one sample.
// Requires st.mu held.
//
//	MOVING  -> STOPPED  speed == 0 and RPM <= 100 for 2 consecutive samples
//	STOPPED -> MOVING   speed > 0 for 1 sample
//	OFFLINE -> previous state on the first new sample
func (st *truckState) applyStatus(s *models.TelemetrySample) models.TruckStatus {
	status := st.truck.Status
	if status == models.StatusOffline {
		// Back online: resume from the last known state.
		status = st.lastKnownStatus()
	}

	switch {
	case s.SpeedMPH != nil && *s.SpeedMPH > 0:
		status = models.StatusMoving
		st.stoppedStreak = 0
	case s.SpeedMPH != nil && *s.SpeedMPH == 0 && rpmAtOrBelow(s.EngineRPM, 100):
		st.stoppedStreak++
		if st.stoppedStreak >= 2 {
			status = models.StatusStopped
		}
	case s.SpeedMPH != nil && *s.SpeedMPH == 0:
		// Stationary with the engine turning: already-stopped trucks stay
		// stopped (idling); moving trucks wait for the RPM drop.
		if status == models.StatusStopped {
			st.stoppedStreak++
		} else {
			st.stoppedStreak = 0
		}
	default:
		// No speed reading: trust the status the adapter supplied, if any.
		if s.Status != "" {
			status = s.Status
		}
		st.stoppedStreak = 0
	}

	st.truck.Status = status
	return status
}

func (st *truckState) lastKnownStatus() models.TruckStatus {
	if st.last != nil && st.last.Status != "" {
		return st.last.Status
	}
	return models.StatusStopped
}

func rpmAtOrBelow(rpm *float64, limit float64) bool {
	return rpm != nil && *rpm <= limit
}

// ActiveToday reports whether the truck sent at least one sample today (UTC).
func (st *truckState) activeToday(now time.Time) bool {
	if st.last == nil {
		return false
	}
	y1, m1, d1 := st.truck.LastSeen.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

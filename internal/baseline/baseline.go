// Package baseline maintains per (truck, sensor) recent-value buffers and
// running statistics used by the anomaly detectors.
package baseline

import (
	"math"
	"sync"
	"time"

	"github.com/fleetops/fuelsight/internal/buffer"
	"github.com/fleetops/fuelsight/internal/models"
)

// Point is one buffered sensor observation.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// welford carries the running mean/variance accumulators.
type welford struct {
	count int64
	mean  float64
	m2    float64
}

func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)
}

func (w *welford) stdDev() float64 {
	if w.count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count-1))
}

type sensorState struct {
	ring  *buffer.Ring[Point]
	stats welford
	last  time.Time
}

// Tracker owns the buffers and baselines for every (truck, sensor) pair.
// Each truck's entries are written by a single pipeline shard; the tracker is
// still safe for concurrent use because cross-truck reads happen on the
// aggregation path.
type Tracker struct {
	mu         sync.RWMutex
	windowSize int
	sensors    map[string]map[string]*sensorState // truckID -> sensor -> state
}

// NewTracker creates a tracker whose ring buffers hold windowSize values.
func NewTracker(windowSize int) *Tracker {
	if windowSize < 3 {
		windowSize = 50
	}
	return &Tracker{
		windowSize: windowSize,
		sensors:    make(map[string]map[string]*sensorState),
	}
}

// Observe records one valid sensor value.
func (t *Tracker) Observe(truckID, sensor string, ts time.Time, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(truckID, sensor)
	st.ring.Push(Point{Timestamp: ts, Value: value})
	st.stats.add(value)
	st.last = ts
}

func (t *Tracker) state(truckID, sensor string) *sensorState {
	byTruck, ok := t.sensors[truckID]
	if !ok {
		byTruck = make(map[string]*sensorState)
		t.sensors[truckID] = byTruck
	}
	st, ok := byTruck[sensor]
	if !ok {
		st = &sensorState{ring: buffer.NewRing[Point](t.windowSize)}
		byTruck[sensor] = st
	}
	return st
}

// Baseline returns the current running statistics for a (truck, sensor) pair.
// The zero baseline is returned for unknown pairs.
func (t *Tracker) Baseline(truckID, sensor string) models.SensorBaseline {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bl := models.SensorBaseline{TruckID: truckID, Sensor: sensor}
	if byTruck, ok := t.sensors[truckID]; ok {
		if st, ok := byTruck[sensor]; ok {
			bl.Mean = st.stats.mean
			bl.StdDev = st.stats.stdDev()
			bl.Count = st.stats.count
			bl.LastUpdate = st.last
		}
	}
	return bl
}

// Restore seeds the running statistics from a persisted baseline. Buffered
// points are not restored; the ring refills from live samples.
func (t *Tracker) Restore(bl models.SensorBaseline) {
	if bl.Count < 1 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(bl.TruckID, bl.Sensor)
	st.stats.count = bl.Count
	st.stats.mean = bl.Mean
	// Reconstruct m2 from the persisted sample standard deviation.
	if bl.Count > 1 {
		st.stats.m2 = bl.StdDev * bl.StdDev * float64(bl.Count-1)
	}
	st.last = bl.LastUpdate
}

// Recent returns up to n most recent buffered points, oldest first.
func (t *Tracker) Recent(truckID, sensor string, n int) []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if byTruck, ok := t.sensors[truckID]; ok {
		if st, ok := byTruck[sensor]; ok {
			return st.ring.Last(n)
		}
	}
	return nil
}

// Window returns the full buffered window, oldest first.
func (t *Tracker) Window(truckID, sensor string) []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if byTruck, ok := t.sensors[truckID]; ok {
		if st, ok := byTruck[sensor]; ok {
			return st.ring.Snapshot()
		}
	}
	return nil
}

// HasPersistentCriticalReading reports whether the last minReadings buffered
// values all exceed threshold (above=true) or all sit below it (above=false).
// The gate suppresses single-sample noise before any alert is raised.
// The returned count is the number of readings inspected.
func (t *Tracker) HasPersistentCriticalReading(truckID, sensor string, threshold float64, above bool, minReadings int) (bool, int) {
	if minReadings < 1 {
		minReadings = 3
	}
	recent := t.Recent(truckID, sensor, minReadings)
	if len(recent) < minReadings {
		return false, len(recent)
	}
	for _, p := range recent {
		if above && p.Value <= threshold {
			return false, len(recent)
		}
		if !above && p.Value >= threshold {
			return false, len(recent)
		}
	}
	return true, len(recent)
}

// Trucks returns the IDs of every truck with at least one tracked sensor.
func (t *Tracker) Trucks() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.sensors))
	for id := range t.sensors {
		out = append(out, id)
	}
	return out
}

package refuel

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/buffer"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
)

// confirmedRefuel is one learning observation.
type confirmedRefuel struct {
	IncreasePct float64   `json:"increase_pct"`
	IncreaseGal float64   `json:"increase_gal"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

type truckLearner struct {
	history   *buffer.Ring[confirmedRefuel]
	threshold models.AdaptiveThreshold
}

// Checkpointer persists a learned threshold after each recomputation.
type Checkpointer interface {
	CheckpointThreshold(th models.AdaptiveThreshold)
}

// Learner keeps the last N confirmed refuels per truck and recomputes the
// detection thresholds from their 10th percentile, blended with the defaults
// and scaled by sensor variance.
type Learner struct {
	mu     sync.Mutex
	cfg    config.RefuelConfig
	trucks map[string]*truckLearner

	// SensorStdDev reports the running fuel-percent standard deviation for a
	// truck; wired to the baseline tracker. Nil means variance is unknown.
	SensorStdDev func(truckID string) float64

	checkpoint Checkpointer
}

// NewLearner creates a learner with the given tuning.
func NewLearner(cfg config.RefuelConfig, checkpoint Checkpointer) *Learner {
	return &Learner{
		cfg:        cfg,
		trucks:     make(map[string]*truckLearner),
		checkpoint: checkpoint,
	}
}

// Thresholds returns the current thresholds for a truck, falling back to the
// configured defaults before any learning has happened.
func (l *Learner) Thresholds(truckID string) models.AdaptiveThreshold {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tl, ok := l.trucks[truckID]; ok && tl.threshold.ConfirmedRefuels > 0 {
		return tl.threshold
	}
	return l.defaultThreshold(truckID)
}

func (l *Learner) defaultThreshold(truckID string) models.AdaptiveThreshold {
	return models.AdaptiveThreshold{
		TruckID: truckID,
		MinPct:  l.cfg.DefaultMinPct,
		MinGal:  l.cfg.DefaultMinGal,
	}
}

// Restore seeds a truck's learned state from persistence.
func (l *Learner) Restore(th models.AdaptiveThreshold) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tl := l.truck(th.TruckID)
	tl.threshold = th
}

func (l *Learner) truck(truckID string) *truckLearner {
	tl, ok := l.trucks[truckID]
	if !ok {
		tl = &truckLearner{
			history:   buffer.NewRing[confirmedRefuel](l.cfg.HistorySize),
			threshold: l.defaultThreshold(truckID),
		}
		l.trucks[truckID] = tl
	}
	return tl
}

// Observe records a confirmed refuel and recomputes the thresholds once
// enough history has accumulated.
func (l *Learner) Observe(truckID string, increasePct, increaseGal, confidence float64, ts time.Time) {
	l.mu.Lock()

	tl := l.truck(truckID)
	tl.history.Push(confirmedRefuel{
		IncreasePct: increasePct,
		IncreaseGal: increaseGal,
		Confidence:  confidence,
		Timestamp:   ts,
	})
	confirmed := tl.history.Len()
	tl.threshold.ConfirmedRefuels = confirmed

	if confirmed < l.cfg.MinConfirmed {
		l.mu.Unlock()
		return
	}

	history := tl.history.Snapshot()
	sigma := 1.0
	if l.SensorStdDev != nil {
		if s := l.SensorStdDev(truckID); s > 0 {
			sigma = s
		}
	}

	pcts := make([]float64, len(history))
	gals := make([]float64, len(history))
	for i, h := range history {
		pcts[i] = h.IncreasePct
		gals[i] = h.IncreaseGal
	}

	// 10th percentile is robust against partial top-ups and sensor spikes.
	p10Pct := percentile(pcts, 0.10)
	p10Gal := percentile(gals, 0.10)

	lr := l.cfg.LearningRate
	varianceFactor := clamp(1+0.5*(sigma-1), 0.5, 2.0)

	minPct := ((1-lr)*l.cfg.DefaultMinPct + lr*p10Pct) * varianceFactor
	minGal := ((1-lr)*l.cfg.DefaultMinGal + lr*p10Gal) * varianceFactor

	tl.threshold.MinPct = clamp(minPct, l.cfg.FloorPct, l.cfg.CeilingPct)
	tl.threshold.MinGal = clamp(minGal, l.cfg.FloorGal, l.cfg.CeilingGal)
	tl.threshold.SensorVariance = sigma
	tl.threshold.UpdatedAt = ts

	snapshot := tl.threshold
	l.mu.Unlock()

	log.Debug().
		Str("truckID", truckID).
		Float64("minPct", snapshot.MinPct).
		Float64("minGal", snapshot.MinGal).
		Int("confirmed", snapshot.ConfirmedRefuels).
		Msg("Adaptive refuel thresholds updated")

	if l.checkpoint != nil {
		l.checkpoint.CheckpointThreshold(snapshot)
	}
}

// All returns the learned thresholds for every truck with history.
func (l *Learner) All() []models.AdaptiveThreshold {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.AdaptiveThreshold, 0, len(l.trucks))
	for _, tl := range l.trucks {
		out = append(out, tl.threshold)
	}
	return out
}

// percentile interpolates the p-th percentile (0..1) of values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

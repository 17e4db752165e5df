// Package pipeline orchestrates the per-sample analytics flow: validation,
// baselines, idle estimation, refuel detection, anomaly detection, prediction,
// correlation, action synthesis, risk and fleet aggregation, alert dispatch
// and persistence.
package pipeline

import (
	"context"
	"hash/fnv"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fleetops/fuelsight/internal/actions"
	"github.com/fleetops/fuelsight/internal/alerts"
	"github.com/fleetops/fuelsight/internal/anomaly"
	"github.com/fleetops/fuelsight/internal/baseline"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/correlation"
	"github.com/fleetops/fuelsight/internal/fleethealth"
	"github.com/fleetops/fuelsight/internal/idle"
	"github.com/fleetops/fuelsight/internal/models"
	"github.com/fleetops/fuelsight/internal/predict"
	"github.com/fleetops/fuelsight/internal/refuel"
	"github.com/fleetops/fuelsight/internal/risk"
	"github.com/fleetops/fuelsight/internal/sample"
	"github.com/fleetops/fuelsight/internal/store"
	"github.com/fleetops/fuelsight/internal/telemetry"
)

// Pipeline owns the analytics components and the truck-sharded worker pool.
// Samples for one truck always land on the same shard, which preserves
// per-truck ordering; trucks on different shards run in parallel.
type Pipeline struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	// Stateless stages, rebuilt on hot reload.
	validator   *sample.Validator
	estimator   *idle.Estimator
	predictor   *predict.Predictor
	correlator  *correlation.Engine
	prioritizer *actions.Prioritizer
	synth       *actions.Synthesizer

	// Stateful stages, survive reloads.
	tracker *baseline.Tracker
	learner *refuel.Learner
	refuels *refuel.Detector
	engine  *anomaly.Engine
	scorer  *risk.Scorer
	fleet   *fleethealth.Aggregator

	dispatcher *alerts.Dispatcher
	gateway    *store.Gateway

	trucksMu sync.RWMutex
	trucks   map[string]*truckState

	shards  []chan models.TelemetrySample
	started time.Time

	now       func() time.Time
	tickEvery time.Duration
}

// New wires the pipeline. dispatcher may be nil when no alert channel is
// configured.
func New(cfg *config.Config, gateway *store.Gateway, dispatcher *alerts.Dispatcher) *Pipeline {
	tracker := baseline.NewTracker(cfg.Sensors.WindowSize)

	var checkpoint refuel.Checkpointer
	if gateway != nil {
		checkpoint = gateway
	}
	learner := refuel.NewLearner(cfg.Refuel, checkpoint)
	learner.SensorStdDev = func(truckID string) float64 {
		return tracker.Baseline(truckID, models.SensorFuelPercent).StdDev
	}

	p := &Pipeline{
		cfg:        cfg,
		tracker:    tracker,
		learner:    learner,
		refuels:    refuel.NewDetector(learner),
		engine:     anomaly.NewEngine(cfg.Detection, cfg.Sensors.PersistenceReadings, tracker),
		scorer:     risk.NewScorer(),
		fleet:      fleethealth.NewAggregator(cfg.Fleet),
		dispatcher: dispatcher,
		gateway:    gateway,
		trucks:     make(map[string]*truckState),
		started:    time.Now(),
		now:        time.Now,
		tickEvery:  time.Minute,
	}
	p.rebuildStateless(cfg)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p.shards = make([]chan models.TelemetrySample, workers)
	for i := range p.shards {
		p.shards[i] = make(chan models.TelemetrySample, 256)
	}
	return p
}

func (p *Pipeline) rebuildStateless(cfg *config.Config) {
	p.validator = sample.NewValidator(cfg.Sensors)
	p.estimator = idle.NewEstimator(cfg.Idle)
	p.predictor = predict.NewPredictor(cfg.Prediction)
	p.correlator = correlation.NewEngine(cfg.Correlation, p.tracker)
	p.prioritizer = actions.NewPrioritizer(cfg.Priority)
	p.synth = actions.NewSynthesizer(p.prioritizer)
}

// Reload swaps in a new configuration. Stateful components keep their learned
// state; only the tunable stages are rebuilt.
func (p *Pipeline) Reload(cfg *config.Config) {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()

	p.cfg = cfg
	p.rebuildStateless(cfg)
	log.Info().Msg("Pipeline configuration reloaded")
}

func (p *Pipeline) config() *config.Config {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()
	return p.cfg
}

// Restore seeds learned state from the store, falling back to the on-disk
// threshold mirror when the store is unavailable.
func (p *Pipeline) Restore(ctx context.Context) {
	if p.gateway == nil {
		return
	}

	if baselines, err := p.gateway.AllBaselines(ctx); err != nil {
		log.Warn().Err(err).Msg("Baseline restore failed")
	} else {
		for _, bl := range baselines {
			p.tracker.Restore(bl)
		}
		log.Info().Int("count", len(baselines)).Msg("Sensor baselines restored")
	}

	if states, err := p.gateway.AllAlgorithmStates(ctx); err != nil {
		log.Warn().Err(err).Msg("Algorithm state restore failed")
	} else {
		for _, st := range states {
			p.engine.Restore(st)
		}
		log.Info().Int("count", len(states)).Msg("Detector states restored")
	}

	ths, err := p.gateway.AllThresholds(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Threshold restore from store failed, trying fallback file")
		ths, err = refuel.LoadThresholds(p.config().Refuel.FallbackFile)
		if err != nil {
			log.Warn().Err(err).Msg("Threshold fallback file unreadable")
		}
	}
	for _, th := range ths {
		p.learner.Restore(th)
	}
	if len(ths) > 0 {
		log.Info().Int("count", len(ths)).Msg("Adaptive refuel thresholds restored")
	}

	if mpgs, err := p.gateway.MPGBaselines(ctx); err == nil {
		p.trucksMu.Lock()
		for id, mpg := range mpgs {
			st := p.truckLocked(id)
			m := mpg
			st.truck.MPGBaseline = &m
		}
		p.trucksMu.Unlock()
	}

	if dates, err := p.gateway.MaintenanceDates(ctx); err == nil {
		p.trucksMu.Lock()
		for id, at := range dates {
			st := p.truckLocked(id)
			t := at
			st.truck.LastMaintenance = &t
		}
		p.trucksMu.Unlock()
	}
}

// RecordMaintenance notes a completed service on a truck. The maintenance
// component of the truck's risk score restarts from this date.
func (p *Pipeline) RecordMaintenance(ctx context.Context, truckID string, servicedAt time.Time) {
	st := p.truck(truckID)
	st.mu.Lock()
	t := servicedAt
	st.truck.LastMaintenance = &t
	st.mu.Unlock()

	if p.gateway == nil {
		return
	}
	if err := p.gateway.SaveMaintenanceDate(ctx, truckID, servicedAt); err != nil {
		telemetry.StoreErrors.Inc()
		log.Warn().Err(err).Str("truckID", truckID).Msg("Maintenance date write failed")
	}
}

// Ingest routes one raw sample to its truck's shard. Blocks only when the
// shard queue is full.
func (p *Pipeline) Ingest(s models.TelemetrySample) {
	if s.TruckID == "" || s.Timestamp.IsZero() {
		log.Warn().Str("truckID", s.TruckID).Msg("Malformed sample dropped")
		return
	}
	p.shards[shardFor(s.TruckID, len(p.shards))] <- s
}

func shardFor(truckID string, shards int) int {
	h := fnv.New32a()
	h.Write([]byte(truckID))
	return int(h.Sum32()) % shards
}

// Run drives the shard workers and the periodic sweep and snapshot until ctx
// is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, ch := range p.shards {
		ch := ch
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case s := <-ch:
					p.Process(ctx, s)
				}
			}
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(p.tickEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				now := p.now()
				p.Sweep(ctx, now)
				// Keeps the trend ring and the persisted aggregates current
				// on deployments where no dashboard client polls.
				p.Snapshot(ctx, now)
			}
		}
	})

	log.Info().Int("shards", len(p.shards)).Msg("Pipeline started")
	return g.Wait()
}

// Uptime reports how long the pipeline has been running.
func (p *Pipeline) Uptime() time.Duration {
	return time.Since(p.started)
}

// Thresholds returns the learned refuel thresholds for every truck, for the
// on-disk fallback mirror written at shutdown.
func (p *Pipeline) Thresholds() []models.AdaptiveThreshold {
	return p.learner.All()
}

package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/alerts"
	"github.com/fleetops/fuelsight/internal/models"
	"github.com/fleetops/fuelsight/internal/telemetry"
)

// Process runs one sample through the full per-truck flow. Called from the
// truck's shard worker, or directly in tests.
func (p *Pipeline) Process(ctx context.Context, s models.TelemetrySample) {
	start := time.Now()
	defer func() {
		telemetry.PipelineCycleSeconds.Observe(time.Since(start).Seconds())
	}()

	cfg := p.config()
	st := p.truck(s.TruckID)

	st.mu.Lock()

	// Per-truck timestamps must advance; replays and out-of-order deliveries
	// are dropped and counted.
	if st.last != nil && !s.Timestamp.After(st.last.Timestamp) {
		st.lateDropped++
		st.mu.Unlock()
		telemetry.SamplesLate.Inc()
		log.Debug().
			Str("truckID", s.TruckID).
			Time("timestamp", s.Timestamp).
			Msg("Late sample dropped")
		return
	}

	dropped := p.validator.Sanitize(&s)
	if len(dropped) > 0 {
		telemetry.FieldsNulled.Add(float64(len(dropped)))
		log.Debug().Str("truckID", s.TruckID).Strs("fields", dropped).Msg("Out-of-range fields nulled")
	}

	status := st.applyStatus(&s)
	s.Status = status

	prev := st.last
	prevGPH := st.lastIdle.GPH

	// Idle estimate before the sample becomes the new "last".
	reading := p.estimator.Estimate(prev, &s, prevGPH)
	st.lastIdle = reading
	if status == models.StatusStopped && prev != nil {
		st.idleHours += s.Timestamp.Sub(prev.Timestamp).Hours()
	}
	if st.windowStart.IsZero() {
		st.windowStart = s.Timestamp
	}

	// Refuel detection on the fuel-level transition.
	var refuelEvent *models.RefuelEvent
	if ev, ok := p.refuels.Detect(prev, &s, st.truck.TankCapacityL); ok {
		refuelEvent = ev
		telemetry.RefuelsDetected.WithLabelValues(string(ev.Method)).Inc()
		log.Info().
			Str("truckID", ev.TruckID).
			Float64("gallons", ev.GallonsAdded).
			Float64("confidence", ev.Confidence).
			Str("method", string(ev.Method)).
			Msg("Refuel detected")
	}

	// Feed baselines and the streaming detectors.
	var anomalies []models.Anomaly
	var checkpoints []models.AlgorithmState
	for _, sensor := range observedSensors {
		value, ok := s.Sensor(sensor)
		if !ok {
			continue
		}
		p.tracker.Observe(s.TruckID, sensor, s.Timestamp, value)
		if !p.engine.Supervised(sensor) {
			continue
		}
		events, state := p.engine.Update(s.TruckID, sensor, s.Timestamp, value)
		anomalies = append(anomalies, events...)
		checkpoints = append(checkpoints, state)
	}

	items := make([]models.ActionItem, 0, len(anomalies))
	for _, a := range anomalies {
		telemetry.AnomaliesDetected.WithLabelValues(string(a.Type)).Inc()
		items = append(items, p.synth.FromAnomaly(a))
	}

	// Days-to-failure extrapolation for every thresholded sensor.
	for sensor, th := range cfg.Detection.Thresholds {
		history := p.tracker.Window(s.TruckID, sensor)
		pred, ok := p.predictor.Predict(sensor, history, th)
		if !ok || pred.Urgency == models.PriorityNone {
			continue
		}
		items = append(items, p.synth.FromPrediction(s.TruckID, pred, s.Timestamp))
	}

	// Multi-sensor failure patterns.
	correlations := p.correlator.Evaluate(s.TruckID, s.Timestamp)
	for _, ev := range correlations {
		telemetry.AnomaliesDetected.WithLabelValues(string(models.AnomalyCorrelation)).Inc()
		items = append(items, p.synth.FromCorrelation(ev))
	}

	// Diagnostic trouble codes.
	for _, code := range s.ActiveDTCs {
		items = append(items, p.synth.FromDTC(s.TruckID, code, s.Timestamp))
	}

	// GPS receiver degradation.
	if item, ok := p.gpsHealthItem(&s); ok {
		items = append(items, item)
	}

	// Idle accounting cross-check against the cumulative ECU counters.
	validation := p.validateIdle(st, &s, cfg.Idle.ValidationDeviationPct)
	if validation != nil {
		st.idleValidation = validation
		if validation.NeedsInvestigation {
			items = append(items, p.synth.FromIdleValidation(*validation, s.Timestamp))
		}
	}

	// One component can trip several detectors in the same cycle; merge those
	// before the items become visible or alertable.
	items = p.prioritizer.Deduplicate(items)

	st.last = &s
	st.truck.LastSeen = s.Timestamp
	st.truck.LastSampleTime = s.Timestamp
	st.items = items
	st.correlations = correlations
	truckID := st.truck.ID
	st.mu.Unlock()

	telemetry.SamplesProcessed.Inc()

	p.persistSample(ctx, s, reading, refuelEvent, anomalies, correlations, checkpoints, validation)
	p.dispatchAlerts(ctx, truckID, items)
}

// observedSensors is the fixed set fed into baselines. Fuel percent drives the
// refuel variance factor; the rest are detector inputs.
var observedSensors = []string{
	models.SensorFuelPercent,
	models.SensorOilPressure,
	models.SensorCoolantTemp,
	models.SensorOilTemp,
	models.SensorTransTemp,
	models.SensorDEFLevel,
	models.SensorBatteryVoltage,
	models.SensorEngineRPM,
	models.SensorGPSQuality,
}

// gpsQualityFloor is the quality score below which the receiver is flagged.
const gpsQualityFloor = 30.0

func (p *Pipeline) gpsHealthItem(s *models.TelemetrySample) (models.ActionItem, bool) {
	if s.GPSQuality == nil || *s.GPSQuality >= gpsQualityFloor {
		return models.ActionItem{}, false
	}
	persistent, _ := p.tracker.HasPersistentCriticalReading(
		s.TruckID, models.SensorGPSQuality, gpsQualityFloor, false, p.config().Sensors.PersistenceReadings)
	if !persistent {
		return models.ActionItem{}, false
	}
	item := p.synth.FromSensorHealth(s.TruckID, "gps",
		"GPS signal degraded",
		"GPS quality persistently below acceptable floor; check antenna and wiring",
		40, s.Timestamp)
	return item, true
}

// validateIdle runs the ECU cross-check once the observation window is long
// enough to be meaningful. Requires st.mu held.
func (p *Pipeline) validateIdle(st *truckState, s *models.TelemetrySample, _ float64) *models.IdleValidationResult {
	if s.EngineHours == nil || s.IdleHours == nil {
		return nil
	}
	windowDays := s.Timestamp.Sub(st.windowStart).Hours() / 24
	if windowDays <= 0 {
		return nil
	}
	calculated := st.idleHours / windowDays
	res := p.estimator.Validate(s.TruckID, calculated, s.EngineHours, s.IdleHours, windowDays)
	return &res
}

// persistSample writes everything the sample produced. All writes are
// best-effort; failures log inside the gateway and surface via data_quality.
func (p *Pipeline) persistSample(ctx context.Context, s models.TelemetrySample, reading models.IdleReading,
	refuelEvent *models.RefuelEvent, anomalies []models.Anomaly, correlations []models.CorrelationEvent,
	checkpoints []models.AlgorithmState, validation *models.IdleValidationResult) {

	if p.gateway == nil {
		return
	}

	if err := p.gateway.SaveFuelMetric(ctx, s, &reading); err != nil {
		telemetry.StoreErrors.Inc()
		log.Warn().Err(err).Str("truckID", s.TruckID).Msg("Fuel metric write failed")
	}
	if refuelEvent != nil {
		if err := p.gateway.SaveRefuelEvent(ctx, *refuelEvent); err != nil {
			telemetry.StoreErrors.Inc()
			log.Warn().Err(err).Str("truckID", s.TruckID).Msg("Refuel event write failed")
		}
	}
	for _, a := range anomalies {
		if err := p.gateway.SaveAnomaly(ctx, a); err != nil {
			telemetry.StoreErrors.Inc()
			log.Warn().Err(err).Str("truckID", a.TruckID).Msg("Anomaly write failed")
		}
	}
	for _, ev := range correlations {
		if err := p.gateway.SaveCorrelationEvent(ctx, ev); err != nil {
			telemetry.StoreErrors.Inc()
			log.Warn().Err(err).Str("truckID", ev.TruckID).Msg("Correlation event write failed")
		}
	}
	for _, cp := range checkpoints {
		if err := p.gateway.SaveAlgorithmState(ctx, cp); err != nil {
			telemetry.StoreErrors.Inc()
			log.Warn().Err(err).Str("truckID", cp.TruckID).Msg("Algorithm state checkpoint failed")
		}
		bl := p.tracker.Baseline(cp.TruckID, cp.Sensor)
		if bl.Count > 0 {
			if err := p.gateway.SaveBaseline(ctx, bl); err != nil {
				telemetry.StoreErrors.Inc()
			}
		}
	}
	if err := p.gateway.SaveDTCEvents(ctx, s.TruckID, s.Timestamp, s.ActiveDTCs); err != nil {
		telemetry.StoreErrors.Inc()
		log.Warn().Err(err).Str("truckID", s.TruckID).Msg("DTC write failed")
	}
	if validation != nil {
		if err := p.gateway.SaveIdleValidation(ctx, s.Timestamp, *validation); err != nil {
			telemetry.StoreErrors.Inc()
		}
	}
}

// dispatchAlerts forwards HIGH and CRITICAL items to the alert channels.
func (p *Pipeline) dispatchAlerts(ctx context.Context, truckID string, items []models.ActionItem) {
	if p.dispatcher == nil {
		return
	}
	for _, item := range items {
		severity, ok := alerts.SeverityFor(item.Priority)
		if !ok || (severity != models.SeverityCritical && severity != models.SeverityHigh) {
			continue
		}
		sent := p.dispatcher.Dispatch(ctx, alerts.Alert{
			TruckID:   truckID,
			Type:      item.Component,
			Severity:  severity,
			Message:   item.Title + ": " + item.Description,
			Timestamp: item.CreatedAt,
		})
		if sent {
			telemetry.AlertsSent.Inc()
		} else {
			telemetry.AlertsSuppressed.Inc()
		}
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/models"
)

// SaveFuelMetric appends one validated sample plus its idle estimate.
func (g *Gateway) SaveFuelMetric(ctx context.Context, s models.TelemetrySample, idle *models.IdleReading) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	var idleGPH sql.NullFloat64
	var idleMethod, idleMode sql.NullString
	if idle != nil {
		idleGPH = sql.NullFloat64{Float64: idle.GPH, Valid: true}
		idleMethod = sql.NullString{String: string(idle.Method), Valid: true}
		idleMode = sql.NullString{String: string(idle.Mode), Valid: true}
	}

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO fuel_metrics
			(truck_id, timestamp, status, fuel_percent, fuel_liters,
			 odometer_miles, battery_voltage, gps_quality,
			 idle_gph, idle_method, idle_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TruckID, s.Timestamp.Unix(), string(s.Status),
		nullable(s.FuelPercent), nullable(s.FuelLiters),
		nullable(s.OdometerMiles), nullable(s.BatteryVoltage), nullable(s.GPSQuality),
		idleGPH, idleMethod, idleMode)
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save fuel metric: %w", err)
	}
	return nil
}

// SaveRefuelEvent records one detected refuel. Idempotent on
// (truck_id, timestamp).
func (g *Gateway) SaveRefuelEvent(ctx context.Context, ev models.RefuelEvent) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO refuel_events
			(truck_id, timestamp, event_id, pct_before, pct_after,
			 gallons_added, confidence, method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.TruckID, ev.Timestamp.Unix(), ev.ID, ev.PctBefore, ev.PctAfter,
		ev.GallonsAdded, ev.Confidence, string(ev.Method))
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save refuel event: %w", err)
	}
	return nil
}

// RefuelsBetween returns refuels in [from, to), newest first.
func (g *Gateway) RefuelsBetween(ctx context.Context, from, to time.Time) ([]models.RefuelEvent, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT truck_id, timestamp, event_id, pct_before, pct_after,
		       gallons_added, confidence, method
		FROM refuel_events
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp DESC`,
		from.Unix(), to.Unix())
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("query refuels: %w", err)
	}
	defer rows.Close()

	var events []models.RefuelEvent
	for rows.Next() {
		var ev models.RefuelEvent
		var ts int64
		var method string
		if err := rows.Scan(&ev.TruckID, &ts, &ev.ID, &ev.PctBefore, &ev.PctAfter,
			&ev.GallonsAdded, &ev.Confidence, &method); err != nil {
			return nil, fmt.Errorf("scan refuel: %w", err)
		}
		ev.Timestamp = time.Unix(ts, 0).UTC()
		ev.Method = models.RefuelMethod(method)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveAlgorithmState upserts one (truck, sensor) detector state and mirrors
// it in the cache.
func (g *Gateway) SaveAlgorithmState(ctx context.Context, st models.AlgorithmState) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO cc_algorithm_state
			(truck_id, sensor, ewma, ewma_variance, cusum_pos, cusum_neg,
			 samples, trend, trend_slope_day, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.TruckID, st.Sensor, st.EWMA, st.EWMAVariance, st.CUSUMPos, st.CUSUMNeg,
		st.Samples, string(st.Trend), st.TrendSlopeDay, st.UpdatedAt.Unix())
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save algorithm state: %w", err)
	}

	g.cacheSet(ctx, algStateKey(st.TruckID, st.Sensor), st)
	return nil
}

// AlgorithmState loads one (truck, sensor) state, cache first.
func (g *Gateway) AlgorithmState(ctx context.Context, truckID, sensor string) (models.AlgorithmState, bool, error) {
	var st models.AlgorithmState
	if g.cacheGet(ctx, algStateKey(truckID, sensor), &st) {
		return st, true, nil
	}

	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	var trend string
	var updated int64
	err := g.db.QueryRowContext(sctx, `
		SELECT ewma, ewma_variance, cusum_pos, cusum_neg, samples, trend, trend_slope_day, updated_at
		FROM cc_algorithm_state WHERE truck_id = ? AND sensor = ?`,
		truckID, sensor).Scan(&st.EWMA, &st.EWMAVariance, &st.CUSUMPos, &st.CUSUMNeg,
		&st.Samples, &trend, &st.TrendSlopeDay, &updated)
	if err == sql.ErrNoRows {
		return models.AlgorithmState{}, false, nil
	}
	g.noteStore(err)
	if err != nil {
		return models.AlgorithmState{}, false, fmt.Errorf("load algorithm state: %w", err)
	}
	st.TruckID = truckID
	st.Sensor = sensor
	st.Trend = models.TrendDirection(trend)
	st.UpdatedAt = time.Unix(updated, 0).UTC()

	g.cacheSet(ctx, algStateKey(truckID, sensor), st)
	return st, true, nil
}

// AllAlgorithmStates loads every persisted detector state; used once at startup.
func (g *Gateway) AllAlgorithmStates(ctx context.Context) ([]models.AlgorithmState, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT truck_id, sensor, ewma, ewma_variance, cusum_pos, cusum_neg,
		       samples, trend, trend_slope_day, updated_at
		FROM cc_algorithm_state`)
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("load algorithm states: %w", err)
	}
	defer rows.Close()

	var states []models.AlgorithmState
	for rows.Next() {
		var st models.AlgorithmState
		var trend string
		var updated int64
		if err := rows.Scan(&st.TruckID, &st.Sensor, &st.EWMA, &st.EWMAVariance,
			&st.CUSUMPos, &st.CUSUMNeg, &st.Samples, &trend, &st.TrendSlopeDay, &updated); err != nil {
			return nil, fmt.Errorf("scan algorithm state: %w", err)
		}
		st.Trend = models.TrendDirection(trend)
		st.UpdatedAt = time.Unix(updated, 0).UTC()
		states = append(states, st)
	}
	return states, rows.Err()
}

// SaveBaseline upserts one (truck, sensor) running statistic.
func (g *Gateway) SaveBaseline(ctx context.Context, b models.SensorBaseline) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO sensor_baselines
			(truck_id, sensor, mean, std_dev, count, last_update)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.TruckID, b.Sensor, b.Mean, b.StdDev, b.Count, b.LastUpdate.Unix())
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}

// AllBaselines loads every persisted baseline; used once at startup.
func (g *Gateway) AllBaselines(ctx context.Context) ([]models.SensorBaseline, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT truck_id, sensor, mean, std_dev, count, last_update
		FROM sensor_baselines`)
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("load baselines: %w", err)
	}
	defer rows.Close()

	var baselines []models.SensorBaseline
	for rows.Next() {
		var b models.SensorBaseline
		var updated int64
		if err := rows.Scan(&b.TruckID, &b.Sensor, &b.Mean, &b.StdDev, &b.Count, &updated); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		b.LastUpdate = time.Unix(updated, 0).UTC()
		baselines = append(baselines, b)
	}
	return baselines, rows.Err()
}

// CheckpointThreshold persists a learned refuel threshold. It satisfies the
// learner's checkpoint hook, so failures only log.
func (g *Gateway) CheckpointThreshold(th models.AdaptiveThreshold) {
	sctx, cancel := g.storeCtx(context.Background())
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO adaptive_refuel_thresholds
			(truck_id, min_pct, min_gal, sensor_variance, confirmed_refuels, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		th.TruckID, th.MinPct, th.MinGal, th.SensorVariance, th.ConfirmedRefuels, th.UpdatedAt.Unix())
	g.noteStore(err)
	if err != nil {
		log.Warn().Err(err).Str("truckID", th.TruckID).Msg("Threshold checkpoint failed")
		return
	}
	g.cacheSet(context.Background(), thresholdKey(th.TruckID), th)
}

// AllThresholds loads every learned refuel threshold; used once at startup.
func (g *Gateway) AllThresholds(ctx context.Context) ([]models.AdaptiveThreshold, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT truck_id, min_pct, min_gal, sensor_variance, confirmed_refuels, updated_at
		FROM adaptive_refuel_thresholds`)
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	defer rows.Close()

	var ths []models.AdaptiveThreshold
	for rows.Next() {
		var th models.AdaptiveThreshold
		var updated int64
		if err := rows.Scan(&th.TruckID, &th.MinPct, &th.MinGal, &th.SensorVariance,
			&th.ConfirmedRefuels, &updated); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		th.UpdatedAt = time.Unix(updated, 0).UTC()
		ths = append(ths, th)
	}
	return ths, rows.Err()
}

// SaveAnomaly appends one detector event and bumps the per-day counter.
func (g *Gateway) SaveAnomaly(ctx context.Context, a models.Anomaly) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO anomaly_detections
			(truck_id, timestamp, kind, sensor, event_id, severity,
			 sensor_value, ewma_value, cusum_value, threshold, z_score, pattern)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TruckID, a.Timestamp.Unix(), string(a.Type), a.Sensor, a.ID, string(a.Severity),
		a.SensorValue, a.EWMAValue, a.CUSUMValue, a.Threshold, a.ZScore, a.Pattern)
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save anomaly: %w", err)
	}

	day := a.Timestamp.UTC().Format("2006-01-02")
	_, err = g.db.ExecContext(sctx, `
		INSERT INTO cc_anomaly_history (truck_id, date, anomaly_count)
		VALUES (?, ?, 1)
		ON CONFLICT(truck_id, date) DO UPDATE SET anomaly_count = anomaly_count + 1`,
		a.TruckID, day)
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("bump anomaly history: %w", err)
	}
	return nil
}

// AnomaliesSince returns a truck's detector events newer than the cutoff,
// newest first.
func (g *Gateway) AnomaliesSince(ctx context.Context, truckID string, since time.Time) ([]models.Anomaly, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT truck_id, timestamp, kind, sensor, event_id, severity,
		       sensor_value, ewma_value, cusum_value, threshold, z_score, pattern
		FROM anomaly_detections
		WHERE truck_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC`,
		truckID, since.Unix())
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		var ts int64
		var kind, severity string
		if err := rows.Scan(&a.TruckID, &ts, &kind, &a.Sensor, &a.ID, &severity,
			&a.SensorValue, &a.EWMAValue, &a.CUSUMValue, &a.Threshold, &a.ZScore, &a.Pattern); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		a.Timestamp = time.Unix(ts, 0).UTC()
		a.Type = models.AnomalyType(kind)
		a.Severity = models.Severity(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveCorrelationEvent records one activated failure pattern.
func (g *Gateway) SaveCorrelationEvent(ctx context.Context, ev models.CorrelationEvent) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO cc_correlation_events
			(truck_id, timestamp, pattern, predicted_component,
			 recommended_action, confidence, matched_sensors)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.TruckID, ev.Timestamp.Unix(), ev.Pattern, ev.PredictedComponent,
		ev.RecommendedAction, ev.Confidence, strings.Join(ev.MatchedSensors, ","))
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save correlation event: %w", err)
	}
	return nil
}

// SaveDTCEvents records the active diagnostic trouble codes seen on a sample.
func (g *Gateway) SaveDTCEvents(ctx context.Context, truckID string, ts time.Time, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	for _, code := range codes {
		_, err := g.db.ExecContext(sctx, `
			INSERT OR IGNORE INTO dtc_events (truck_id, timestamp, code)
			VALUES (?, ?, ?)`,
			truckID, ts.Unix(), code)
		g.noteStore(err)
		if err != nil {
			return fmt.Errorf("save dtc event: %w", err)
		}
	}
	return nil
}

// SaveIdleValidation logs one idle cross-check outcome.
func (g *Gateway) SaveIdleValidation(ctx context.Context, ts time.Time, r models.IdleValidationResult) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO idle_validation_log
			(truck_id, timestamp, is_valid, needs_investigation,
			 calculated_hours_day, ecu_hours_day, deviation_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.TruckID, ts.Unix(), boolInt(r.IsValid), boolInt(r.NeedsInvestigation),
		r.CalculatedHoursDay, r.ECUHoursDay, r.DeviationPct)
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save idle validation: %w", err)
	}
	return nil
}

// SaveRiskScore appends one computed truck risk point.
func (g *Gateway) SaveRiskScore(ctx context.Context, rs models.TruckRiskScore) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO cc_risk_history
			(truck_id, timestamp, risk_score, risk_level, active_issues, predicted_failure_days)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rs.TruckID, rs.ComputedAt.Unix(), rs.RiskScore, string(rs.RiskLevel),
		rs.ActiveIssuesCount, nullable(rs.PredictedFailureDays))
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save risk score: %w", err)
	}
	return nil
}

// SaveFleetHealth appends one fleet health snapshot.
func (g *Gateway) SaveFleetHealth(ctx context.Context, snap models.FleetHealthSnapshot) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO cc_fleet_health
			(timestamp, score, status, trend, critical_count, high_count,
			 medium_count, low_count, total_trucks, active_trucks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Timestamp.Unix(), snap.Score, snap.Status, string(snap.Trend),
		snap.Urgency.Critical, snap.Urgency.High, snap.Urgency.Medium, snap.Urgency.Low,
		snap.TotalTrucks, snap.ActiveTrucks)
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save fleet health: %w", err)
	}
	return nil
}

// FleetHealthSince returns snapshots newer than the cutoff, oldest first.
func (g *Gateway) FleetHealthSince(ctx context.Context, since time.Time) ([]models.FleetHealthSnapshot, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT timestamp, score, status, trend, critical_count, high_count,
		       medium_count, low_count, total_trucks, active_trucks
		FROM cc_fleet_health
		WHERE timestamp >= ?
		ORDER BY timestamp ASC`,
		since.Unix())
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("query fleet health: %w", err)
	}
	defer rows.Close()

	var snaps []models.FleetHealthSnapshot
	for rows.Next() {
		var snap models.FleetHealthSnapshot
		var ts int64
		var trend string
		if err := rows.Scan(&ts, &snap.Score, &snap.Status, &trend,
			&snap.Urgency.Critical, &snap.Urgency.High, &snap.Urgency.Medium, &snap.Urgency.Low,
			&snap.TotalTrucks, &snap.ActiveTrucks); err != nil {
			return nil, fmt.Errorf("scan fleet health: %w", err)
		}
		snap.Timestamp = time.Unix(ts, 0).UTC()
		snap.Trend = models.FleetTrend(trend)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// VoltagePoint is one battery voltage reading for the history endpoint.
type VoltagePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Voltage   float64   `json:"voltage"`
}

// VoltageHistory returns a truck's battery voltage readings since the cutoff,
// oldest first.
func (g *Gateway) VoltageHistory(ctx context.Context, truckID string, since time.Time) ([]VoltagePoint, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT timestamp, battery_voltage
		FROM fuel_metrics
		WHERE truck_id = ? AND timestamp >= ? AND battery_voltage IS NOT NULL
		ORDER BY timestamp ASC`,
		truckID, since.Unix())
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("query voltage history: %w", err)
	}
	defer rows.Close()

	var points []VoltagePoint
	for rows.Next() {
		var ts int64
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, fmt.Errorf("scan voltage point: %w", err)
		}
		points = append(points, VoltagePoint{Timestamp: time.Unix(ts, 0).UTC(), Voltage: v})
	}
	return points, rows.Err()
}

// SaveMPGBaseline upserts a truck's learned fuel-economy baseline.
func (g *Gateway) SaveMPGBaseline(ctx context.Context, truckID string, mpg float64) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO mpg_baselines (truck_id, mpg, updated_at)
		VALUES (?, ?, ?)`,
		truckID, mpg, time.Now().Unix())
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save mpg baseline: %w", err)
	}
	return nil
}

// MPGBaselines loads every learned fuel-economy baseline.
func (g *Gateway) MPGBaselines(ctx context.Context) (map[string]float64, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `SELECT truck_id, mpg FROM mpg_baselines`)
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("load mpg baselines: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var mpg float64
		if err := rows.Scan(&id, &mpg); err != nil {
			return nil, fmt.Errorf("scan mpg baseline: %w", err)
		}
		out[id] = mpg
	}
	return out, rows.Err()
}

// SaveMaintenanceDate upserts a truck's most recent service date.
func (g *Gateway) SaveMaintenanceDate(ctx context.Context, truckID string, servicedAt time.Time) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO maintenance_log (truck_id, serviced_at)
		VALUES (?, ?)`,
		truckID, servicedAt.Unix())
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save maintenance date: %w", err)
	}
	return nil
}

// MaintenanceDates loads the last recorded service date per truck.
func (g *Gateway) MaintenanceDates(ctx context.Context) (map[string]time.Time, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `SELECT truck_id, serviced_at FROM maintenance_log`)
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("load maintenance dates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at int64
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan maintenance date: %w", err)
		}
		out[id] = time.Unix(at, 0).UTC()
	}
	return out, rows.Err()
}

// SaveConfigOverride stores one dotted-key configuration override.
func (g *Gateway) SaveConfigOverride(ctx context.Context, key, value string) error {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	_, err := g.db.ExecContext(sctx, `
		INSERT OR REPLACE INTO command_center_config (key, value) VALUES (?, ?)`,
		key, value)
	g.noteStore(err)
	if err != nil {
		return fmt.Errorf("save config override: %w", err)
	}
	return nil
}

// ConfigOverrides loads all stored configuration overrides.
func (g *Gateway) ConfigOverrides(ctx context.Context) (map[string]string, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `SELECT key, value FROM command_center_config`)
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("load config overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan config override: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// LatestRiskScores returns the newest risk row per truck inside [from, to).
func (g *Gateway) LatestRiskScores(ctx context.Context, from, to time.Time) ([]models.TruckRiskScore, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT r.truck_id, r.timestamp, r.risk_score, r.risk_level, r.active_issues, r.predicted_failure_days
		FROM cc_risk_history r
		JOIN (
			SELECT truck_id, MAX(timestamp) AS ts
			FROM cc_risk_history
			WHERE timestamp >= ? AND timestamp < ?
			GROUP BY truck_id
		) latest ON latest.truck_id = r.truck_id AND latest.ts = r.timestamp
		ORDER BY r.risk_score DESC`,
		from.Unix(), to.Unix())
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("query risk scores: %w", err)
	}
	defer rows.Close()

	var scores []models.TruckRiskScore
	for rows.Next() {
		var rs models.TruckRiskScore
		var ts int64
		var level string
		var days sql.NullFloat64
		if err := rows.Scan(&rs.TruckID, &ts, &rs.RiskScore, &level, &rs.ActiveIssuesCount, &days); err != nil {
			return nil, fmt.Errorf("scan risk score: %w", err)
		}
		rs.ComputedAt = time.Unix(ts, 0).UTC()
		rs.RiskLevel = models.RiskLevel(level)
		if days.Valid {
			d := days.Float64
			rs.PredictedFailureDays = &d
		}
		scores = append(scores, rs)
	}
	return scores, rows.Err()
}

// FuelSpan is the first and last fuel reading for one truck inside a window.
type FuelSpan struct {
	FirstLiters float64 `json:"first_liters"`
	LastLiters  float64 `json:"last_liters"`
}

// FuelSpans returns per-truck fuel level endpoints in [from, to); used by the
// daily report to compute net fuel burned.
func (g *Gateway) FuelSpans(ctx context.Context, from, to time.Time) (map[string]FuelSpan, error) {
	sctx, cancel := g.storeCtx(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(sctx, `
		SELECT truck_id, fuel_liters
		FROM fuel_metrics
		WHERE timestamp >= ? AND timestamp < ? AND fuel_liters IS NOT NULL
		ORDER BY truck_id, timestamp ASC`,
		from.Unix(), to.Unix())
	g.noteStore(err)
	if err != nil {
		return nil, fmt.Errorf("query fuel spans: %w", err)
	}
	defer rows.Close()

	spans := make(map[string]FuelSpan)
	for rows.Next() {
		var id string
		var liters float64
		if err := rows.Scan(&id, &liters); err != nil {
			return nil, fmt.Errorf("scan fuel span: %w", err)
		}
		span, seen := spans[id]
		if !seen {
			span.FirstLiters = liters
		}
		span.LastLiters = liters
		spans[id] = span
	}
	return spans, rows.Err()
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

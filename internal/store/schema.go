package store

// initSchema creates the durable tables. Natural keys make every write
// idempotent: event tables key on (truck_id, timestamp, kind), state tables
// on (truck_id, sensor).
func (g *Gateway) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fuel_metrics (
		truck_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		fuel_percent REAL,
		fuel_liters REAL,
		odometer_miles REAL,
		battery_voltage REAL,
		gps_quality REAL,
		idle_gph REAL,
		idle_method TEXT,
		idle_mode TEXT,
		PRIMARY KEY (truck_id, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_fuel_metrics_time ON fuel_metrics(timestamp);

	CREATE TABLE IF NOT EXISTS refuel_events (
		truck_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		event_id TEXT NOT NULL,
		pct_before REAL NOT NULL,
		pct_after REAL NOT NULL,
		gallons_added REAL NOT NULL,
		confidence REAL NOT NULL,
		method TEXT NOT NULL,
		PRIMARY KEY (truck_id, timestamp)
	);

	CREATE TABLE IF NOT EXISTS mpg_baselines (
		truck_id TEXT PRIMARY KEY,
		mpg REAL NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS maintenance_log (
		truck_id TEXT PRIMARY KEY,
		serviced_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS driver_scores (
		truck_id TEXT NOT NULL,
		date TEXT NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (truck_id, date)
	);

	CREATE TABLE IF NOT EXISTS anomaly_detections (
		truck_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		kind TEXT NOT NULL,
		sensor TEXT NOT NULL,
		event_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		sensor_value REAL NOT NULL,
		ewma_value REAL NOT NULL,
		cusum_value REAL NOT NULL,
		threshold REAL NOT NULL,
		z_score REAL NOT NULL,
		pattern TEXT,
		PRIMARY KEY (truck_id, timestamp, kind, sensor)
	);
	CREATE INDEX IF NOT EXISTS idx_anomaly_truck ON anomaly_detections(truck_id, timestamp);

	CREATE TABLE IF NOT EXISTS cc_anomaly_history (
		truck_id TEXT NOT NULL,
		date TEXT NOT NULL,
		anomaly_count INTEGER NOT NULL,
		PRIMARY KEY (truck_id, date)
	);

	CREATE TABLE IF NOT EXISTS cc_risk_history (
		truck_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		risk_score REAL NOT NULL,
		risk_level TEXT NOT NULL,
		active_issues INTEGER NOT NULL,
		predicted_failure_days REAL,
		PRIMARY KEY (truck_id, timestamp)
	);

	CREATE TABLE IF NOT EXISTS cc_algorithm_state (
		truck_id TEXT NOT NULL,
		sensor TEXT NOT NULL,
		ewma REAL NOT NULL,
		ewma_variance REAL NOT NULL,
		cusum_pos REAL NOT NULL,
		cusum_neg REAL NOT NULL,
		samples INTEGER NOT NULL,
		trend TEXT NOT NULL,
		trend_slope_day REAL NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (truck_id, sensor)
	);

	CREATE TABLE IF NOT EXISTS sensor_baselines (
		truck_id TEXT NOT NULL,
		sensor TEXT NOT NULL,
		mean REAL NOT NULL,
		std_dev REAL NOT NULL,
		count INTEGER NOT NULL,
		last_update INTEGER NOT NULL,
		PRIMARY KEY (truck_id, sensor)
	);

	CREATE TABLE IF NOT EXISTS adaptive_refuel_thresholds (
		truck_id TEXT PRIMARY KEY,
		min_pct REAL NOT NULL,
		min_gal REAL NOT NULL,
		sensor_variance REAL NOT NULL,
		confirmed_refuels INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cc_correlation_events (
		truck_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		pattern TEXT NOT NULL,
		predicted_component TEXT NOT NULL,
		recommended_action TEXT NOT NULL,
		confidence REAL NOT NULL,
		matched_sensors TEXT NOT NULL,
		PRIMARY KEY (truck_id, timestamp, pattern)
	);

	CREATE TABLE IF NOT EXISTS dtc_events (
		truck_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		code TEXT NOT NULL,
		PRIMARY KEY (truck_id, timestamp, code)
	);

	CREATE TABLE IF NOT EXISTS idle_validation_log (
		truck_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		is_valid INTEGER NOT NULL,
		needs_investigation INTEGER NOT NULL,
		calculated_hours_day REAL NOT NULL,
		ecu_hours_day REAL NOT NULL,
		deviation_pct REAL NOT NULL,
		PRIMARY KEY (truck_id, timestamp)
	);

	CREATE TABLE IF NOT EXISTS cc_fleet_health (
		timestamp INTEGER PRIMARY KEY,
		score REAL NOT NULL,
		status TEXT NOT NULL,
		trend TEXT NOT NULL,
		critical_count INTEGER NOT NULL,
		high_count INTEGER NOT NULL,
		medium_count INTEGER NOT NULL,
		low_count INTEGER NOT NULL,
		total_trucks INTEGER NOT NULL,
		active_trucks INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS command_center_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := g.db.Exec(schema)
	return err
}

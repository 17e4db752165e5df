// Package config loads and owns the runtime configuration. A Config is
// immutable after construction; hot reload builds a new Config and swaps the
// reference atomically.
package config

import (
	"time"

	"github.com/fleetops/fuelsight/internal/models"
)

// SensorRange is the valid physical range for one sensor. Readings outside
// the range are nulled on the sample, never rejected wholesale.
type SensorRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig mirrors logging.Config for the YAML file.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// SensorConfig groups per-sensor validation and windowing settings.
type SensorConfig struct {
	ValidRanges map[string]SensorRange `yaml:"valid_ranges"`
	// WindowSize is the per (truck, sensor) ring buffer capacity.
	WindowSize int `yaml:"window_size"`
	// PersistenceReadings is how many consecutive buffered readings must
	// agree before a threshold alert is raised.
	PersistenceReadings int `yaml:"persistence_readings"`
}

// IdleConfig tunes the idle-consumption estimator.
type IdleConfig struct {
	// FallbackGPH is the flat consensus estimate when nothing better applies.
	FallbackGPH float64 `yaml:"fallback_gph"`
	// SmoothingAlpha is the EMA factor applied to sensor fuel-rate readings.
	SmoothingAlpha float64 `yaml:"smoothing_alpha"`
	// ValidationDeviationPct flags calculated-vs-ECU idle deviations above
	// this percentage for investigation.
	ValidationDeviationPct float64 `yaml:"validation_deviation_pct"`
}

// RefuelConfig tunes refuel detection and the adaptive threshold learner.
type RefuelConfig struct {
	DefaultMinPct float64 `yaml:"default_min_pct"`
	DefaultMinGal float64 `yaml:"default_min_gal"`
	FloorPct      float64 `yaml:"floor_pct"`
	FloorGal      float64 `yaml:"floor_gal"`
	CeilingPct    float64 `yaml:"ceiling_pct"`
	CeilingGal    float64 `yaml:"ceiling_gal"`
	LearningRate  float64 `yaml:"learning_rate"`
	MinConfirmed  int     `yaml:"min_confirmed"`
	HistorySize   int     `yaml:"history_size"`
	// FallbackFile mirrors learned thresholds on disk for store outages.
	FallbackFile string `yaml:"fallback_file"`
}

// DetectionConfig tunes the EWMA/CUSUM engine.
type DetectionConfig struct {
	EWMAAlpha  float64 `yaml:"ewma_alpha"`
	CUSUMDrift float64 `yaml:"cusum_drift"`
	CUSUMLimit float64 `yaml:"cusum_limit"`
	// EWMADriftMultiplier widens the EWMA drift gate beyond the CUSUM slack
	// so the two detectors do not double-fire on every small shift.
	EWMADriftMultiplier float64 `yaml:"ewma_drift_multiplier"`
	// Sensors lists which sensors are under streaming supervision.
	Sensors []string `yaml:"sensors"`
	// Thresholds holds warning/critical levels per supervised sensor.
	Thresholds map[string]FailureThreshold `yaml:"thresholds"`
}

// FailureThreshold is the warning/critical pair for days-to-failure
// extrapolation. HigherIsWorse selects the degradation direction.
type FailureThreshold struct {
	Warning       float64 `yaml:"warning"`
	Critical      float64 `yaml:"critical"`
	HigherIsWorse bool    `yaml:"higher_is_worse"`
}

// PredictionConfig bounds days-to-failure extrapolation.
type PredictionConfig struct {
	MinDays    float64 `yaml:"min_days"`
	MaxDays    float64 `yaml:"max_days"`
	MinHistory int     `yaml:"min_history"`
}

// CorrelationConfig drives the failure-correlation engine.
type CorrelationConfig struct {
	Patterns            []models.FailurePattern `yaml:"patterns"`
	FleetWideIssuePct   float64                 `yaml:"fleet_wide_issue_pct"`
	MinTrucksForPattern int                     `yaml:"min_trucks_for_pattern"`
}

// PriorityConfig holds the weights for the priority-score blend.
type PriorityConfig struct {
	DaysWeight        float64 `yaml:"days_weight"`
	AnomalyWeight     float64 `yaml:"anomaly_weight"`
	CriticalityWeight float64 `yaml:"criticality_weight"`
	CostWeight        float64 `yaml:"cost_weight"`
	DaysDecay         float64 `yaml:"days_decay"`
}

// FleetConfig tunes fleet health scoring.
type FleetConfig struct {
	SystemicIssuePct float64 `yaml:"systemic_issue_pct"`
	TrendWindow      int     `yaml:"trend_window"`
	HistorySize      int     `yaml:"history_size"`
}

// AlertConfig tunes the dispatcher.
type AlertConfig struct {
	CooldownMinutes     int     `yaml:"cooldown_minutes"`
	OfflineWarningHours float64 `yaml:"offline_warning_hours"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	DBPath         string        `yaml:"db_path"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisDB        int           `yaml:"redis_db"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheDeadline  time.Duration `yaml:"cache_deadline"`
	StoreDeadline  time.Duration `yaml:"store_deadline"`
	ReportDir      string        `yaml:"report_dir"`
	SnapshotTTL    time.Duration `yaml:"snapshot_ttl"`
	TransportDeadline time.Duration `yaml:"transport_deadline"`
}

// EmailConfig is populated from the environment, not the YAML file.
type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
}

// SMSConfig is populated from the environment, not the YAML file.
type SMSConfig struct {
	APIURL   string
	APIToken string
	To       []string
}

// Config is the full runtime configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Sensors     SensorConfig      `yaml:"sensors"`
	Idle        IdleConfig        `yaml:"idle"`
	Refuel      RefuelConfig      `yaml:"refuel"`
	Detection   DetectionConfig   `yaml:"detection"`
	Prediction  PredictionConfig  `yaml:"prediction"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Priority    PriorityConfig    `yaml:"priority"`
	Fleet       FleetConfig       `yaml:"fleet"`
	Alerts      AlertConfig       `yaml:"alerts"`
	Store       StoreConfig       `yaml:"store"`
	Workers     int               `yaml:"workers"`

	Email EmailConfig `yaml:"-"`
	SMS   SMSConfig   `yaml:"-"`
}

// Default returns the hard-coded configuration every component falls back to
// when the file or an override is invalid.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 7660},
		Logging: LoggingConfig{Format: "auto", Level: "info"},
		Sensors: SensorConfig{
			ValidRanges: map[string]SensorRange{
				models.SensorOilPressure:    {Min: 0, Max: 150},
				models.SensorCoolantTemp:    {Min: -40, Max: 260},
				models.SensorOilTemp:        {Min: -40, Max: 300},
				models.SensorTransTemp:      {Min: -40, Max: 300},
				models.SensorFuelPercent:    {Min: 0, Max: 100},
				models.SensorFuelLiters:     {Min: 0, Max: 2000},
				models.SensorDEFLevel:       {Min: 0, Max: 100},
				models.SensorBatteryVoltage: {Min: 0, Max: 36},
				models.SensorAmbientTemp:    {Min: -60, Max: 140},
				models.SensorEngineRPM:      {Min: 0, Max: 5000},
				models.SensorFuelRate:       {Min: 0, Max: 120},
				models.SensorGPSQuality:     {Min: 0, Max: 100},
			},
			WindowSize:          50,
			PersistenceReadings: 3,
		},
		Idle: IdleConfig{
			FallbackGPH:            0.8,
			SmoothingAlpha:         0.3,
			ValidationDeviationPct: 15,
		},
		Refuel: RefuelConfig{
			DefaultMinPct: 8,
			DefaultMinGal: 3,
			FloorPct:      8,
			FloorGal:      3,
			CeilingPct:    25,
			CeilingGal:    30,
			LearningRate:  0.2,
			MinConfirmed:  3,
			HistorySize:   50,
			FallbackFile:  "adaptive_refuel_thresholds.json",
		},
		Detection: DetectionConfig{
			EWMAAlpha:           0.3,
			CUSUMDrift:          0.5,
			CUSUMLimit:          5.0,
			EWMADriftMultiplier: 6,
			Sensors: []string{
				models.SensorOilPressure,
				models.SensorCoolantTemp,
				models.SensorOilTemp,
				models.SensorTransTemp,
				models.SensorDEFLevel,
				models.SensorBatteryVoltage,
			},
			Thresholds: map[string]FailureThreshold{
				models.SensorCoolantTemp:    {Warning: 225, Critical: 240, HigherIsWorse: true},
				models.SensorOilTemp:        {Warning: 240, Critical: 260, HigherIsWorse: true},
				models.SensorTransTemp:      {Warning: 215, Critical: 235, HigherIsWorse: true},
				models.SensorOilPressure:    {Warning: 25, Critical: 15, HigherIsWorse: false},
				models.SensorDEFLevel:       {Warning: 15, Critical: 5, HigherIsWorse: false},
				models.SensorBatteryVoltage: {Warning: 12.2, Critical: 11.8, HigherIsWorse: false},
			},
		},
		Prediction: PredictionConfig{MinDays: 0.5, MaxDays: 365, MinHistory: 3},
		Correlation: CorrelationConfig{
			Patterns:            DefaultFailurePatterns(),
			FleetWideIssuePct:   0.3,
			MinTrucksForPattern: 2,
		},
		Priority: PriorityConfig{
			DaysWeight:        0.45,
			AnomalyWeight:     0.20,
			CriticalityWeight: 0.25,
			CostWeight:        0.10,
			DaysDecay:         0.04,
		},
		Fleet: FleetConfig{
			SystemicIssuePct: 0.3,
			TrendWindow:      10,
			HistorySize:      1000,
		},
		Alerts: AlertConfig{
			CooldownMinutes:     60,
			OfflineWarningHours: 3,
		},
		Store: StoreConfig{
			DBPath:            "data/fuelsight.db",
			RedisAddr:         "localhost:6379",
			CacheTTL:          5 * time.Minute,
			CacheDeadline:     2 * time.Second,
			StoreDeadline:     5 * time.Second,
			TransportDeadline: 10 * time.Second,
			SnapshotTTL:       30 * time.Second,
			ReportDir:         "data/reports",
		},
		Workers: 0, // 0 means GOMAXPROCS
	}
}

// DefaultFailurePatterns returns the built-in multi-sensor failure signatures.
func DefaultFailurePatterns() []models.FailurePattern {
	return []models.FailurePattern{
		{
			Name:               "overheating_syndrome",
			Primary:            models.SensorPredicate{Sensor: models.SensorCoolantTemp, Threshold: 235, Above: true, MinReadings: 3},
			Correlated: []models.SensorPredicate{
				{Sensor: models.SensorOilTemp, Threshold: 250, Above: true, MinReadings: 3},
				{Sensor: models.SensorTransTemp, Threshold: 225, Above: true, MinReadings: 3},
			},
			PredictedComponent: "cooling_system",
			RecommendedAction:  "Stop the truck and inspect coolant level, radiator and fan clutch",
			Confidence:         0.9,
		},
		{
			Name:               "oil_starvation",
			Primary:            models.SensorPredicate{Sensor: models.SensorOilPressure, Threshold: 18, Above: false, MinReadings: 3},
			Correlated: []models.SensorPredicate{
				{Sensor: models.SensorOilTemp, Threshold: 245, Above: true, MinReadings: 3},
			},
			PredictedComponent: "oil_system",
			RecommendedAction:  "Check oil level and pressure sensor before next dispatch",
			Confidence:         0.85,
		},
		{
			Name:               "charging_system_failure",
			Primary:            models.SensorPredicate{Sensor: models.SensorBatteryVoltage, Threshold: 12.0, Above: false, MinReadings: 3},
			Correlated: []models.SensorPredicate{
				{Sensor: models.SensorEngineRPM, Threshold: 500, Above: true, MinReadings: 3},
			},
			PredictedComponent: "electrical",
			RecommendedAction:  "Test alternator output and battery condition",
			Confidence:         0.8,
		},
		{
			Name:               "transmission_overheat",
			Primary:            models.SensorPredicate{Sensor: models.SensorTransTemp, Threshold: 230, Above: true, MinReadings: 3},
			Correlated: []models.SensorPredicate{
				{Sensor: models.SensorCoolantTemp, Threshold: 220, Above: true, MinReadings: 2},
			},
			PredictedComponent: "transmission",
			RecommendedAction:  "Check transmission fluid level and cooler lines",
			Confidence:         0.85,
		},
	}
}

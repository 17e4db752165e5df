// Package models defines the shared domain types for the fuel-analytics core.
package models

import (
	"time"
)

// TruckStatus is the operational state of a truck.
type TruckStatus string

const (
	StatusMoving  TruckStatus = "MOVING"
	StatusStopped TruckStatus = "STOPPED"
	StatusOffline TruckStatus = "OFFLINE"
)

// Truck is the per-truck operational record. Created on first observation,
// never destroyed by the core.
type Truck struct {
	ID              string      `json:"truck_id"`
	TankCapacityL   float64     `json:"tank_capacity_l"`
	MPGBaseline     *float64    `json:"mpg_baseline,omitempty"`
	LastMaintenance *time.Time  `json:"last_maintenance,omitempty"`
	Status          TruckStatus `json:"status"`
	LastSeen        time.Time   `json:"last_seen"`
	LastSampleTime  time.Time   `json:"last_sample_time"`
}

// TelemetrySample is one validated observation for one truck at one UTC instant.
// Optional sensors are nil when absent or out of range.
type TelemetrySample struct {
	TruckID   string      `json:"truck_id"`
	Timestamp time.Time   `json:"timestamp"`
	Status    TruckStatus `json:"status"`

	SpeedMPH  *float64 `json:"speed_mph,omitempty"`
	EngineRPM *float64 `json:"engine_rpm,omitempty"`

	FuelPercent *float64 `json:"fuel_percent,omitempty"`
	FuelLiters  *float64 `json:"fuel_liters,omitempty"`

	OdometerMiles *float64 `json:"odometer_miles,omitempty"`
	FuelRateLPH   *float64 `json:"fuel_rate_lph,omitempty"`

	// Cumulative ECU counters, monotonic non-decreasing.
	EngineHours   *float64 `json:"engine_hours,omitempty"`
	IdleHours     *float64 `json:"idle_hours,omitempty"`
	TotalIdleFuel *float64 `json:"total_idle_fuel,omitempty"` // gallons

	OilPressurePSI *float64 `json:"oil_pressure_psi,omitempty"`
	CoolantTempF   *float64 `json:"coolant_temp_f,omitempty"`
	OilTempF       *float64 `json:"oil_temp_f,omitempty"`
	TransTempF     *float64 `json:"trans_temp_f,omitempty"`
	DEFLevelPct    *float64 `json:"def_level_pct,omitempty"`

	AmbientTempF   *float64 `json:"ambient_temp_f,omitempty"`
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`

	GPSQuality     *float64 `json:"gps_quality,omitempty"`
	SatelliteCount *int     `json:"satellite_count,omitempty"`

	ActiveDTCs []string `json:"active_dtcs,omitempty"`

	// Readings for sensors outside the fixed field set. Parsed but never
	// drives control flow.
	Extra map[string]float64 `json:"extra,omitempty"`
}

// Sensor returns the named sensor reading, or false when absent.
func (s *TelemetrySample) Sensor(name string) (float64, bool) {
	var p *float64
	switch name {
	case SensorFuelPercent:
		p = s.FuelPercent
	case SensorFuelLiters:
		p = s.FuelLiters
	case SensorOilPressure:
		p = s.OilPressurePSI
	case SensorCoolantTemp:
		p = s.CoolantTempF
	case SensorOilTemp:
		p = s.OilTempF
	case SensorTransTemp:
		p = s.TransTempF
	case SensorDEFLevel:
		p = s.DEFLevelPct
	case SensorBatteryVoltage:
		p = s.BatteryVoltage
	case SensorAmbientTemp:
		p = s.AmbientTempF
	case SensorEngineRPM:
		p = s.EngineRPM
	case SensorFuelRate:
		p = s.FuelRateLPH
	case SensorGPSQuality:
		p = s.GPSQuality
	default:
		if s.Extra != nil {
			v, ok := s.Extra[name]
			return v, ok
		}
		return 0, false
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Canonical sensor names used across detectors, baselines and persistence.
const (
	SensorFuelPercent    = "fuel_percent"
	SensorFuelLiters     = "fuel_liters"
	SensorOilPressure    = "oil_pressure"
	SensorCoolantTemp    = "coolant_temp"
	SensorOilTemp        = "oil_temp"
	SensorTransTemp      = "trans_temp"
	SensorDEFLevel       = "def_level"
	SensorBatteryVoltage = "battery_voltage"
	SensorAmbientTemp    = "ambient_temp"
	SensorEngineRPM      = "engine_rpm"
	SensorFuelRate       = "fuel_rate"
	SensorGPSQuality     = "gps_quality"
)

// SensorBaseline is the per (truck, sensor) running statistic maintained by
// Welford's algorithm.
type SensorBaseline struct {
	TruckID    string    `json:"truck_id"`
	Sensor     string    `json:"sensor"`
	Mean       float64   `json:"mean"`
	StdDev     float64   `json:"std_dev"`
	Count      int64     `json:"count"`
	LastUpdate time.Time `json:"last_update"`
}

// TrendDirection classifies a sensor's recent movement.
type TrendDirection string

const (
	TrendUp     TrendDirection = "UP"
	TrendDown   TrendDirection = "DOWN"
	TrendStable TrendDirection = "STABLE"
)

// AlgorithmState is the per (truck, sensor) streaming detector state.
// Persisted so restarts resume cleanly.
type AlgorithmState struct {
	TruckID       string         `json:"truck_id"`
	Sensor        string         `json:"sensor"`
	EWMA          float64        `json:"ewma"`
	EWMAVariance  float64        `json:"ewma_variance"`
	CUSUMPos      float64        `json:"cusum_pos"`
	CUSUMNeg      float64        `json:"cusum_neg"`
	Samples       int64          `json:"samples"`
	Trend         TrendDirection `json:"trend"`
	TrendSlopeDay float64        `json:"trend_slope_per_day"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AdaptiveThreshold holds the learned refuel-detection thresholds for one truck.
type AdaptiveThreshold struct {
	TruckID          string    `json:"truck_id"`
	MinPct           float64   `json:"min_pct"`
	MinGal           float64   `json:"min_gal"`
	SensorVariance   float64   `json:"sensor_variance"`
	ConfirmedRefuels int       `json:"confirmed_refuels"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RefuelMethod identifies how a refuel was detected.
type RefuelMethod string

const (
	RefuelPctJump    RefuelMethod = "PCT_JUMP"
	RefuelECUCounter RefuelMethod = "ECU_COUNTER"
	RefuelManual     RefuelMethod = "MANUAL"
)

// RefuelEvent is a detected refuel. Written once, immutable.
type RefuelEvent struct {
	ID           string       `json:"id"`
	TruckID      string       `json:"truck_id"`
	Timestamp    time.Time    `json:"timestamp"`
	PctBefore    float64      `json:"pct_before"`
	PctAfter     float64      `json:"pct_after"`
	GallonsAdded float64      `json:"gallons_added"`
	Confidence   float64      `json:"confidence"`
	Method       RefuelMethod `json:"method"`
}

// IdleMethod identifies which estimation rule produced an idle reading.
type IdleMethod string

const (
	IdleNotIdle           IdleMethod = "NOT_IDLE"
	IdleEngineOff         IdleMethod = "ENGINE_OFF"
	IdleECUCounter        IdleMethod = "ECU_IDLE_COUNTER"
	IdleSensorFuelRate    IdleMethod = "SENSOR_FUEL_RATE"
	IdleCalculatedDelta   IdleMethod = "CALCULATED_DELTA"
	IdleRPMEstimate       IdleMethod = "RPM_ESTIMATE"
	IdleFallbackConsensus IdleMethod = "FALLBACK_CONSENSUS"
)

// IdleMode classifies idle intensity from GPH.
type IdleMode string

const (
	IdleModeEngineOff IdleMode = "ENGINE_OFF"
	IdleModeNormal    IdleMode = "NORMAL"
	IdleModeReefer    IdleMode = "REEFER"
	IdleModeHeavy     IdleMode = "HEAVY"
)

// IdleReading is the per-sample idle estimate.
type IdleReading struct {
	TruckID      string     `json:"truck_id"`
	Timestamp    time.Time  `json:"timestamp"`
	GPH          float64    `json:"gph"`
	Method       IdleMethod `json:"method"`
	Mode         IdleMode   `json:"mode"`
	TempAdjusted bool       `json:"temp_adjusted"`
}

// IdleValidationResult compares calculated idle against cumulative ECU counters.
type IdleValidationResult struct {
	TruckID            string     `json:"truck_id"`
	IsValid            bool       `json:"is_valid"`
	NeedsInvestigation bool       `json:"needs_investigation"`
	CalculatedHoursDay float64    `json:"calculated_hours_per_day"`
	ECUHoursDay        float64    `json:"ecu_hours_per_day"`
	DeviationPct       float64    `json:"deviation_pct"`
	Confidence         Confidence `json:"confidence"`
}

// AnomalyType identifies which detector produced an anomaly.
type AnomalyType string

const (
	AnomalyThreshold   AnomalyType = "THRESHOLD"
	AnomalyEWMA        AnomalyType = "EWMA"
	AnomalyCUSUM       AnomalyType = "CUSUM"
	AnomalyCorrelation AnomalyType = "CORRELATION"
)

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Anomaly is one detector event, appended to the anomaly log.
type Anomaly struct {
	ID          string      `json:"id"`
	TruckID     string      `json:"truck_id"`
	Sensor      string      `json:"sensor"`
	Timestamp   time.Time   `json:"timestamp"`
	Type        AnomalyType `json:"type"`
	Severity    Severity    `json:"severity"`
	SensorValue float64     `json:"sensor_value"`
	EWMAValue   float64     `json:"ewma_value"`
	CUSUMValue  float64     `json:"cusum_value"`
	Threshold   float64     `json:"threshold"`
	ZScore      float64     `json:"z_score"`
	Pattern     string      `json:"pattern,omitempty"` // set for CORRELATION events
}

// Priority labels an action item.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityNone     Priority = "NONE"
)

// Confidence grades how much the producer trusts a signal.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// ActionType is the recommended operator response.
type ActionType string

const (
	ActionStopImmediately   ActionType = "STOP_IMMEDIATELY"
	ActionInspect           ActionType = "INSPECT"
	ActionScheduleToday     ActionType = "SCHEDULE_TODAY"
	ActionScheduleThisWeek  ActionType = "SCHEDULE_THIS_WEEK"
	ActionScheduleThisMonth ActionType = "SCHEDULE_THIS_MONTH"
	ActionMonitor           ActionType = "MONITOR"
	ActionNone              ActionType = "NO_ACTION"
)

// FleetTruckID marks items that describe a fleet-wide pattern rather than a
// single truck.
const FleetTruckID = "FLEET"

// CostRange is the parsed form of a cost-if-ignored estimate. The display
// string is rendered only at the edge.
type CostRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// ActionItem is a prioritizable recommendation. Never mutated after emission.
type ActionItem struct {
	ID             string     `json:"id"`
	TruckID        string     `json:"truck_id"`
	Priority       Priority   `json:"priority"`
	PriorityScore  float64    `json:"priority_score"`
	Category       string     `json:"category"`
	Component      string     `json:"component"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DaysToCritical *float64   `json:"days_to_critical,omitempty"`
	Cost           *CostRange `json:"cost_if_ignored,omitempty"`
	CostDisplay    string     `json:"cost_display,omitempty"`
	CurrentValue   string     `json:"current_value,omitempty"`
	Trend          string     `json:"trend,omitempty"`
	Threshold      string     `json:"threshold,omitempty"`
	Confidence     Confidence `json:"confidence"`
	ActionType     ActionType `json:"action_type"`
	ActionSteps    []string   `json:"action_steps,omitempty"`
	Icon           string     `json:"icon,omitempty"`
	Sources        []string   `json:"sources"`
	AnomalyScore   *float64   `json:"anomaly_score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Clone returns a deep copy of the item so it can be safely shared.
func (a *ActionItem) Clone() *ActionItem {
	if a == nil {
		return nil
	}
	clone := *a
	if a.DaysToCritical != nil {
		d := *a.DaysToCritical
		clone.DaysToCritical = &d
	}
	if a.Cost != nil {
		c := *a.Cost
		clone.Cost = &c
	}
	if a.AnomalyScore != nil {
		s := *a.AnomalyScore
		clone.AnomalyScore = &s
	}
	if len(a.ActionSteps) > 0 {
		clone.ActionSteps = append([]string(nil), a.ActionSteps...)
	}
	if len(a.Sources) > 0 {
		clone.Sources = append([]string(nil), a.Sources...)
	}
	return &clone
}

// RiskLevel labels an aggregated truck risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// TruckRiskScore aggregates a truck's action items into a 0-100 risk.
type TruckRiskScore struct {
	TruckID              string    `json:"truck_id"`
	RiskScore            float64   `json:"risk_score"`
	RiskLevel            RiskLevel `json:"risk_level"`
	ContributingFactors  []string  `json:"contributing_factors"`
	DaysSinceMaintenance float64   `json:"days_since_last_maintenance"`
	ActiveIssuesCount    int       `json:"active_issues_count"`
	PredictedFailureDays *float64  `json:"predicted_failure_days,omitempty"`
	ComputedAt           time.Time `json:"computed_at"`
}

// UrgencySummary counts action items by priority.
type UrgencySummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// FleetTrend labels the direction of the fleet health history.
type FleetTrend string

const (
	FleetImproving FleetTrend = "improving"
	FleetStable    FleetTrend = "stable"
	FleetDeclining FleetTrend = "declining"
)

// FleetHealthSnapshot is one point in the fleet health history ring.
type FleetHealthSnapshot struct {
	Timestamp    time.Time      `json:"timestamp"`
	Score        float64        `json:"score"`
	Status       string         `json:"status"`
	Trend        FleetTrend     `json:"trend"`
	Description  string         `json:"description"`
	Urgency      UrgencySummary `json:"urgency_summary"`
	TotalTrucks  int            `json:"total_trucks"`
	ActiveTrucks int            `json:"active_trucks"`
}

// SensorPredicate is one activation rule inside a failure pattern.
type SensorPredicate struct {
	Sensor      string  `yaml:"sensor" json:"sensor"`
	Threshold   float64 `yaml:"threshold" json:"threshold"`
	Above       bool    `yaml:"above" json:"above"`
	MinReadings int     `yaml:"min_readings" json:"min_readings"`
}

// FailurePattern is a configured multi-sensor failure signature.
type FailurePattern struct {
	Name               string            `yaml:"name" json:"name"`
	Primary            SensorPredicate   `yaml:"primary" json:"primary"`
	Correlated         []SensorPredicate `yaml:"correlated" json:"correlated"`
	PredictedComponent string            `yaml:"predicted_component" json:"predicted_component"`
	RecommendedAction  string            `yaml:"recommended_action" json:"recommended_action"`
	Confidence         float64           `yaml:"confidence" json:"confidence"`
}

// CorrelationEvent is an activated failure pattern for one truck.
type CorrelationEvent struct {
	TruckID            string    `json:"truck_id"`
	Pattern            string    `json:"pattern"`
	Timestamp          time.Time `json:"timestamp"`
	PredictedComponent string    `json:"predicted_component"`
	RecommendedAction  string    `json:"recommended_action"`
	Confidence         float64   `json:"confidence"`
	MatchedSensors     []string  `json:"matched_sensors"`
}

// FailurePrediction is the days-to-failure extrapolation for one sensor.
type FailurePrediction struct {
	Sensor            string   `json:"sensor"`
	Current           float64  `json:"current"`
	WarningThreshold  float64  `json:"warning_threshold"`
	CriticalThreshold float64  `json:"critical_threshold"`
	TrendSlopePerDay  float64  `json:"trend_slope_per_day"`
	TrendDirection    string   `json:"trend_direction"` // DEGRADING, STABLE, IMPROVING
	DaysToWarning     *float64 `json:"days_to_warning,omitempty"`
	DaysToCritical    *float64 `json:"days_to_critical,omitempty"`
	Urgency           Priority `json:"urgency"`
	Recommendation    string   `json:"recommendation"`
}

// DataQuality enumerates which sub-systems were healthy on the last cycle.
type DataQuality struct {
	StoreHealthy      bool     `json:"store_healthy"`
	CacheHealthy      bool     `json:"cache_healthy"`
	TransportsHealthy bool     `json:"transports_healthy"`
	DegradedSystems   []string `json:"degraded_systems,omitempty"`
}

// FleetDailySummary is the aggregated output consumed by the daily report tool.
type FleetDailySummary struct {
	Date           string           `json:"date"`
	HealthScore    float64          `json:"health_score"`
	HealthStatus   string           `json:"health_status"`
	Trend          FleetTrend       `json:"trend"`
	TotalTrucks    int              `json:"total_trucks"`
	ActiveTrucks   int              `json:"active_trucks"`
	Urgency        UrgencySummary   `json:"urgency_summary"`
	TopActions     []ActionItem     `json:"top_actions"`
	RiskScores     []TruckRiskScore `json:"risk_scores"`
	Refuels        []RefuelEvent    `json:"refuels"`
	TotalRefuelGal float64          `json:"total_refuel_gallons"`
	NetFuelUsedGal float64         `json:"net_fuel_used_gallons"`
	Insights       []string         `json:"insights"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// Float64 returns a pointer to v. Convenience for optional sample fields.
func Float64(v float64) *float64 { return &v }

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Load builds a Config from defaults, the optional YAML file at path, and
// environment overrides, in that order. A missing or unparseable file falls
// back to defaults rather than failing; the error is logged once.
func Load(path string) *Config {
	cfg := Default()

	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Config file invalid, using defaults")
			cfg = Default()
		}
	}

	applyEnv(cfg)
	cfg.normalize()
	return cfg
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("No config file, using defaults")
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv loads .env if present and reads the transport credentials plus a
// handful of operational overrides from the environment.
func applyEnv(cfg *Config) {
	// Best effort; a missing .env is normal in production.
	_ = godotenv.Load()

	cfg.Email.SMTPHost = os.Getenv("SMTP_HOST")
	if port, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = port
	}
	cfg.Email.Username = os.Getenv("SMTP_USER")
	cfg.Email.Password = os.Getenv("SMTP_PASSWORD")
	cfg.Email.From = os.Getenv("REPORT_FROM_EMAIL")
	cfg.Email.To = splitList(os.Getenv("REPORT_TO_EMAILS"))

	cfg.SMS.APIURL = os.Getenv("SMS_API_URL")
	cfg.SMS.APIToken = os.Getenv("SMS_API_TOKEN")
	cfg.SMS.To = splitList(os.Getenv("SMS_TO_NUMBERS"))

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Store.RedisAddr = addr
	}
	if path := os.Getenv("FUELSIGHT_DB_PATH"); path != "" {
		cfg.Store.DBPath = path
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if port, err := strconv.Atoi(os.Getenv("FUELSIGHT_PORT")); err == nil && port > 0 {
		cfg.Server.Port = port
	}
}

// ApplyTableOverrides layers `command_center_config` rows over the file
// configuration. Table beats file; unparseable values keep the file value.
func (c *Config) ApplyTableOverrides(rows map[string]string) {
	for key, raw := range rows {
		if err := c.applyOverride(key, raw); err != nil {
			log.Error().Err(err).Str("key", key).Str("value", raw).
				Msg("Invalid config override, keeping file value")
		}
	}
	c.normalize()
}

func (c *Config) applyOverride(key, raw string) error {
	parseF := func() (float64, error) { return strconv.ParseFloat(strings.TrimSpace(raw), 64) }
	parseI := func() (int, error) { return strconv.Atoi(strings.TrimSpace(raw)) }

	switch key {
	case "refuel.default_min_pct":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Refuel.DefaultMinPct = v
	case "refuel.default_min_gal":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Refuel.DefaultMinGal = v
	case "refuel.learning_rate":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Refuel.LearningRate = v
	case "detection.ewma_alpha":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Detection.EWMAAlpha = v
	case "detection.cusum_limit":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Detection.CUSUMLimit = v
	case "detection.cusum_drift":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Detection.CUSUMDrift = v
	case "detection.ewma_drift_multiplier":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Detection.EWMADriftMultiplier = v
	case "alerts.cooldown_minutes":
		v, err := parseI()
		if err != nil {
			return err
		}
		c.Alerts.CooldownMinutes = v
	case "alerts.offline_warning_hours":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Alerts.OfflineWarningHours = v
	case "fleet.systemic_issue_pct":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Fleet.SystemicIssuePct = v
	case "correlation.fleet_wide_issue_pct":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Correlation.FleetWideIssuePct = v
	case "sensors.persistence_readings":
		v, err := parseI()
		if err != nil {
			return err
		}
		c.Sensors.PersistenceReadings = v
	case "idle.fallback_gph":
		v, err := parseF()
		if err != nil {
			return err
		}
		c.Idle.FallbackGPH = v
	default:
		return fmt.Errorf("unknown override key %q", key)
	}
	return nil
}

// normalize clamps values that would otherwise break invariants downstream.
func (c *Config) normalize() {
	if c.Detection.EWMAAlpha <= 0 || c.Detection.EWMAAlpha >= 1 {
		c.Detection.EWMAAlpha = 0.3
	}
	if c.Detection.EWMADriftMultiplier <= 0 {
		c.Detection.EWMADriftMultiplier = 6
	}
	if c.Refuel.LearningRate < 0 || c.Refuel.LearningRate > 1 {
		c.Refuel.LearningRate = 0.2
	}
	if c.Refuel.HistorySize < 1 {
		c.Refuel.HistorySize = 50
	}
	if c.Sensors.WindowSize < 3 {
		c.Sensors.WindowSize = 50
	}
	if c.Sensors.PersistenceReadings < 1 {
		c.Sensors.PersistenceReadings = 3
	}
	if c.Fleet.HistorySize < 1 || c.Fleet.HistorySize > 1000 {
		c.Fleet.HistorySize = 1000
	}
	if c.Prediction.MinDays <= 0 {
		c.Prediction.MinDays = 0.5
	}
	if c.Prediction.MaxDays < c.Prediction.MinDays {
		c.Prediction.MaxDays = 365
	}
	sum := c.Priority.DaysWeight + c.Priority.AnomalyWeight + c.Priority.CriticalityWeight + c.Priority.CostWeight
	if sum <= 0 {
		def := Default().Priority
		c.Priority = def
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

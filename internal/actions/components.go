package actions

import (
	"strings"
)

// componentInfo is the static knowledge attached to a canonical component.
type componentInfo struct {
	Category    string
	Icon        string
	Criticality float64 // 0.8 (GPS) .. 3.0 (transmission)
	CostMin     float64
	CostMax     float64
	Steps       []string
}

// componentTable maps canonical component names to their metadata.
var componentTable = map[string]componentInfo{
	"transmission": {
		Category:    "transmission",
		Icon:        "⚙️",
		Criticality: 3.0,
		CostMin:     8000, CostMax: 15000,
		Steps: []string{
			"Check transmission fluid level and color",
			"Scan for transmission DTCs",
			"Schedule transmission service",
		},
	},
	"oil_system": {
		Category:    "engine",
		Icon:        "🛢️",
		Criticality: 2.8,
		CostMin:     5000, CostMax: 20000,
		Steps: []string{
			"Verify oil level and pressure at idle",
			"Inspect for leaks under the engine",
			"Replace oil filter if pressure is marginal",
		},
	},
	"cooling_system": {
		Category:    "engine",
		Icon:        "🌡️",
		Criticality: 2.5,
		CostMin:     3000, CostMax: 12000,
		Steps: []string{
			"Stop and let the engine cool",
			"Check coolant level and fan clutch",
			"Pressure-test the cooling system",
		},
	},
	"def_system": {
		Category:    "DEF",
		Icon:        "💧",
		Criticality: 2.2,
		CostMin:     500, CostMax: 4000,
		Steps: []string{
			"Refill DEF tank",
			"Check DEF quality and dosing unit",
			"Clear derate codes after refill",
		},
	},
	"turbo": {
		Category:    "turbo",
		Icon:        "🌀",
		Criticality: 2.4,
		CostMin:     2500, CostMax: 8000,
		Steps: []string{
			"Listen for turbo whine at load",
			"Inspect boost lines for leaks",
			"Check intake for oil residue",
		},
	},
	"brakes": {
		Category:    "brakes",
		Icon:        "🛑",
		Criticality: 2.6,
		CostMin:     1500, CostMax: 6000,
		Steps: []string{
			"Inspect pads, drums and air lines",
			"Test brake response before dispatch",
		},
	},
	"electrical": {
		Category:    "electrical",
		Icon:        "🔋",
		Criticality: 2.0,
		CostMin:     500, CostMax: 2500,
		Steps: []string{
			"Test battery voltage with engine off",
			"Measure alternator output at idle",
			"Inspect grounds and cable corrosion",
		},
	},
	"fuel_system": {
		Category:    "fuel",
		Icon:        "⛽",
		Criticality: 1.8,
		CostMin:     800, CostMax: 5000,
		Steps: []string{
			"Review refuel history for irregularities",
			"Inspect fuel lines and filter",
		},
	},
	"sensors": {
		Category:    "sensor",
		Icon:        "📡",
		Criticality: 1.0,
		CostMin:     200, CostMax: 1200,
		Steps: []string{
			"Cross-check the reading against a gauge",
			"Replace the sensor if readings stay erratic",
		},
	},
	"gps": {
		Category:    "GPS",
		Icon:        "🛰️",
		Criticality: 0.8,
		CostMin:     150, CostMax: 800,
		Steps: []string{
			"Check antenna mount and cabling",
			"Power-cycle the telematics unit",
		},
	},
	"efficiency": {
		Category:    "efficiency",
		Icon:        "📉",
		Criticality: 1.2,
		CostMin:     300, CostMax: 2000,
		Steps: []string{
			"Review idle time and route profile",
			"Coach the driver on idle reduction",
		},
	},
	"driver": {
		Category:    "driver",
		Icon:        "🧑‍✈️",
		Criticality: 1.0,
		CostMin:     0, CostMax: 0,
		Steps: []string{
			"Review recent driving events with the driver",
		},
	},
}

// maxCriticality is the table ceiling used to scale criticality to 0-100.
const maxCriticality = 3.0

// normalizeAliases maps raw component spellings from detectors, DTC
// descriptions and configuration to canonical names.
var normalizeAliases = map[string]string{
	"trans":             "transmission",
	"trans_temp":        "transmission",
	"transmission":      "transmission",
	"gearbox":           "transmission",
	"oil":               "oil_system",
	"oil_pressure":      "oil_system",
	"oil_temp":          "oil_system",
	"oil system":        "oil_system",
	"engine_oil":        "oil_system",
	"coolant":           "cooling_system",
	"coolant_temp":      "cooling_system",
	"cooling":           "cooling_system",
	"cooling system":    "cooling_system",
	"radiator":          "cooling_system",
	"def":               "def_system",
	"def_level":         "def_system",
	"def system":        "def_system",
	"turbo":             "turbo",
	"turbocharger":      "turbo",
	"boost":             "turbo",
	"brake":             "brakes",
	"brakes":            "brakes",
	"battery":           "electrical",
	"battery_voltage":   "electrical",
	"alternator":        "electrical",
	"electrical":        "electrical",
	"charging":          "electrical",
	"fuel":              "fuel_system",
	"fuel_percent":      "fuel_system",
	"fuel_system":       "fuel_system",
	"fuel system":       "fuel_system",
	"sensor":            "sensors",
	"sensors":           "sensors",
	"gps":               "gps",
	"gps_quality":       "gps",
	"satellite":         "gps",
	"idle":              "efficiency",
	"efficiency":        "efficiency",
	"driver":            "driver",
}

// NormalizeComponent canonicalizes a raw component name. Unknown names fall
// back to "sensors" so every item lands in a real category.
func NormalizeComponent(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := normalizeAliases[key]; ok {
		return canonical
	}
	if _, ok := componentTable[key]; ok {
		return key
	}
	for alias, canonical := range normalizeAliases {
		if strings.Contains(key, alias) {
			return canonical
		}
	}
	return "sensors"
}

// componentFor returns the metadata for a canonical component, falling back
// to the sensors entry.
func componentFor(canonical string) componentInfo {
	if info, ok := componentTable[canonical]; ok {
		return info
	}
	return componentTable["sensors"]
}

// CriticalityOf exposes the 0.8-3.0 criticality for risk aggregation.
func CriticalityOf(component string) float64 {
	return componentFor(NormalizeComponent(component)).Criticality
}

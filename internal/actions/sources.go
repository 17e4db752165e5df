package actions

// Detector source names. Used for tie-breaks and display.
const (
	SourceRealTimePredictive = "Real-Time Predictive"
	SourcePMEngine           = "Predictive Maintenance Engine"
	SourceFailureCorrelation = "Failure Correlation"
	SourceSensorHealth       = "Sensor Health"
	SourceMLAnomaly          = "ML Anomaly Detection"
	SourceDTCAnalysis        = "DTC Analysis"
	SourceDriverScoring      = "Driver Scoring"
	SourceUnknown            = "Unknown"
)

// sourceWeights ranks detectors by trust. Higher weight wins ties when
// picking the primary item in a merge.
var sourceWeights = map[string]int{
	SourceRealTimePredictive: 90,
	SourcePMEngine:           80,
	SourceFailureCorrelation: 75,
	SourceSensorHealth:       60,
	SourceMLAnomaly:          55,
	SourceDTCAnalysis:        50,
	SourceDriverScoring:      35,
}

const defaultSourceWeight = 25

// SourceWeight returns the hierarchy weight for a source name.
func SourceWeight(source string) int {
	if w, ok := sourceWeights[source]; ok {
		return w
	}
	return defaultSourceWeight
}

// BestSource returns the strongest source in the list, or "Unknown" for an
// empty list.
func BestSource(sources []string) string {
	if len(sources) == 0 {
		return SourceUnknown
	}
	best := sources[0]
	bestWeight := SourceWeight(best)
	for _, s := range sources[1:] {
		if w := SourceWeight(s); w > bestWeight {
			best, bestWeight = s, w
		}
	}
	return best
}

// strongestWeight is the weight of the strongest source on an item.
func strongestWeight(sources []string) int {
	if len(sources) == 0 {
		return defaultSourceWeight
	}
	best := 0
	for _, s := range sources {
		if w := SourceWeight(s); w > best {
			best = w
		}
	}
	return best
}

// confidenceFromSource grades item confidence by the producing detector's
// hierarchy weight.
func confidenceFromSource(source string) string {
	w := SourceWeight(source)
	switch {
	case w >= 75:
		return "HIGH"
	case w >= 50:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

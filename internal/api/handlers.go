package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fleetops/fuelsight/internal/models"
)

// handleDashboard serves the full snapshot, preferring the cached rendering
// unless bypass_cache is set.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}

	bypass, _ := strconv.ParseBool(r.URL.Query().Get("bypass_cache"))
	if !bypass && s.gateway != nil {
		if body, ok := s.gateway.CachedSnapshot(r.Context()); ok {
			var snapshot pipelineSnapshotJSON
			if err := json.Unmarshal(body, &snapshot); err == nil {
				writeData(w, json.RawMessage(body), true)
				return
			}
		}
	}

	snapshot := s.pipeline.Snapshot(r.Context(), s.now())
	body, err := json.Marshal(snapshot)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.gateway != nil {
		s.gateway.CacheSnapshot(r.Context(), body)
	}
	writeData(w, json.RawMessage(body), false)
}

// pipelineSnapshotJSON only validates that a cached body still parses.
type pipelineSnapshotJSON struct {
	GeneratedAt time.Time `json:"generated_at"`
}

// handleActions serves the deduplicated action list with optional filters.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	priority := strings.ToUpper(q.Get("priority"))
	category := q.Get("category")
	truckID := q.Get("truck_id")
	limit, _ := strconv.Atoi(q.Get("limit"))

	snapshot := s.pipeline.Snapshot(r.Context(), s.now())

	filtered := make([]models.ActionItem, 0, len(snapshot.Actions))
	for _, item := range snapshot.Actions {
		if priority != "" && string(item.Priority) != priority {
			continue
		}
		if category != "" && item.Category != category {
			continue
		}
		if truckID != "" && item.TruckID != truckID {
			continue
		}
		filtered = append(filtered, item)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}

	writeData(w, map[string]any{
		"actions": filtered,
		"total":   len(filtered),
	}, false)
}

// handleTruck serves the per-truck detail view and the maintenance log.
func (s *Server) handleTruck(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/command-center/truck/")
	if truckID, ok := strings.CutSuffix(rest, "/maintenance"); ok {
		s.handleMaintenance(w, r, truckID)
		return
	}

	if !methodGuard(w, r, http.MethodGet) {
		return
	}

	truckID := rest
	if truckID == "" || strings.Contains(truckID, "/") {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "truck not found"})
		return
	}

	detail, ok := s.pipeline.Truck(truckID)
	if !ok {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "truck not found"})
		return
	}
	writeData(w, detail, false)
}

// handleMaintenance records a completed service on the truck. The risk
// scorer's maintenance penalty restarts from this date.
func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request, truckID string) {
	if !methodGuard(w, r, http.MethodPost) {
		return
	}
	if truckID == "" || strings.Contains(truckID, "/") {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "truck not found"})
		return
	}

	var body struct {
		ServicedAt time.Time `json:"serviced_at"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "malformed body: " + err.Error()})
			return
		}
	}
	servicedAt := body.ServicedAt
	if servicedAt.IsZero() {
		servicedAt = s.now()
	}

	s.pipeline.RecordMaintenance(r.Context(), truckID, servicedAt)
	writeData(w, map[string]any{"truck_id": truckID, "serviced_at": servicedAt}, false)
}

// handleInsights serves the textual insights plus the current health point.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}

	snapshot := s.pipeline.Snapshot(r.Context(), s.now())
	writeData(w, map[string]any{
		"insights":     snapshot.Insights,
		"fleet_health": snapshot.Fleet,
	}, false)
}

// handleTrends serves the health ring for the requested window.
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}

	hours := parseHours(r.URL.Query().Get("hours"), 24)
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	history := s.pipeline.FleetHistory(since)

	writeData(w, map[string]any{
		"hours":  hours,
		"points": history,
	}, false)
}

// handleTrendsRecord forces a trend snapshot now.
func (s *Server) handleTrendsRecord(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodPost) {
		return
	}
	point := s.pipeline.RecordTrendPoint(r.Context())
	writeData(w, point, false)
}

// handleHealth is the liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}

	data := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": s.pipeline.Uptime().Seconds(),
	}
	if s.gateway != nil {
		data["data_quality"] = s.gateway.Health()
	}
	writeData(w, data, false)
}

// handleSensorHealth serves the fleet-wide sensor counters.
func (s *Server) handleSensorHealth(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}
	writeData(w, s.pipeline.SensorHealth(), false)
}

// handleIdleValidation serves the idle cross-check results.
func (s *Server) handleIdleValidation(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	onlyIssues, _ := strconv.ParseBool(q.Get("only_issues"))
	truckID := q.Get("truck_id")

	results := s.pipeline.IdleValidations(onlyIssues)
	if truckID != "" {
		filtered := results[:0]
		for _, res := range results {
			if res.TruckID == truckID {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	writeData(w, map[string]any{"validations": results}, false)
}

// handleVoltageHistory serves one truck's battery voltage series.
func (s *Server) handleVoltageHistory(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}

	truckID := strings.TrimPrefix(r.URL.Path, "/sensor-health/voltage-history/")
	if truckID == "" || strings.Contains(truckID, "/") {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "truck not found"})
		return
	}

	hours := parseHours(r.URL.Query().Get("hours"), 24)
	since := s.now().Add(-time.Duration(hours) * time.Hour)

	if s.gateway == nil {
		writeData(w, map[string]any{"truck_id": truckID, "points": nil}, false)
		return
	}
	points, err := s.gateway.VoltageHistory(r.Context(), truckID, since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, map[string]any{"truck_id": truckID, "points": points}, false)
}

// handleGPSQuality serves the latest per-truck GPS quality readings.
func (s *Server) handleGPSQuality(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodGet) {
		return
	}
	writeData(w, map[string]any{"trucks": s.pipeline.GPSQuality()}, false)
}

// handleIngest accepts one telemetry sample from the ingestion adapter and
// queues it on the truck's shard.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !methodGuard(w, r, http.MethodPost) {
		return
	}

	var sample models.TelemetrySample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "malformed sample: " + err.Error()})
		return
	}
	if sample.TruckID == "" || sample.Timestamp.IsZero() {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "truck_id and timestamp are required"})
		return
	}

	s.pipeline.Ingest(sample)
	writeJSON(w, http.StatusAccepted, envelope{Success: true})
}

// parseHours clamps the hours query parameter to [1, 168].
func parseHours(raw string, fallback int) int {
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 1 {
		hours = fallback
	}
	if hours > 168 {
		hours = 168
	}
	return hours
}

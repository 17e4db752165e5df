// Package api serves the command-center and sensor-health HTTP surface.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/pipeline"
	"github.com/fleetops/fuelsight/internal/store"
	"github.com/fleetops/fuelsight/internal/telemetry"
)

// Server exposes the pipeline's aggregated views over HTTP.
type Server struct {
	pipeline *pipeline.Pipeline
	gateway  *store.Gateway
	version  string

	now func() time.Time
}

// NewServer creates the HTTP surface over a running pipeline. gateway may be
// nil in tests; cached reads then always miss.
func NewServer(p *pipeline.Pipeline, gateway *store.Gateway, version string) *Server {
	return &Server{
		pipeline: p,
		gateway:  gateway,
		version:  version,
		now:      time.Now,
	}
}

// Router builds the mux with every endpoint registered.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/command-center/dashboard", s.handleDashboard)
	mux.HandleFunc("/command-center/actions", s.handleActions)
	mux.HandleFunc("/command-center/truck/", s.handleTruck)
	mux.HandleFunc("/command-center/insights", s.handleInsights)
	mux.HandleFunc("/command-center/trends", s.handleTrends)
	mux.HandleFunc("/command-center/trends/record", s.handleTrendsRecord)
	mux.HandleFunc("/command-center/health", s.handleHealth)

	mux.HandleFunc("/sensor-health/summary", s.handleSensorHealth)
	mux.HandleFunc("/sensor-health/idle-validation", s.handleIdleValidation)
	mux.HandleFunc("/sensor-health/voltage-history/", s.handleVoltageHistory)
	mux.HandleFunc("/sensor-health/gps-quality", s.handleGPSQuality)

	mux.HandleFunc("/ingest/telemetry", s.handleIngest)

	mux.Handle("/metrics", telemetry.Handler())

	return mux
}

// envelope is the uniform response wrapper.
type envelope struct {
	Success bool   `json:"success"`
	Cached  bool   `json:"cached,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Response encode failed")
	}
}

func writeData(w http.ResponseWriter, data any, cached bool) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Cached: cached, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: err.Error()})
}

func methodGuard(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Success: false, Error: "method not allowed"})
		return false
	}
	return true
}

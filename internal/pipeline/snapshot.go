package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/alerts"
	"github.com/fleetops/fuelsight/internal/fleethealth"
	"github.com/fleetops/fuelsight/internal/models"
	"github.com/fleetops/fuelsight/internal/telemetry"
)

// TruckSummary is the per-truck slice of the dashboard snapshot.
type TruckSummary struct {
	Truck       models.Truck          `json:"truck"`
	Idle        models.IdleReading    `json:"idle"`
	Risk        models.TruckRiskScore `json:"risk"`
	ActiveToday bool                  `json:"active_today"`
	LateDropped int64                 `json:"late_samples_dropped"`
}

// DashboardSnapshot is the full aggregated view served by the dashboard
// endpoint and consumed by the daily report tool.
type DashboardSnapshot struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Fleet       models.FleetHealthSnapshot `json:"fleet_health"`
	Actions     []models.ActionItem        `json:"actions"`
	Risks       []models.TruckRiskScore    `json:"risk_scores"`
	Insights    []string                   `json:"insights"`
	Trucks      []TruckSummary             `json:"trucks"`
	DataQuality models.DataQuality         `json:"data_quality"`
	UptimeSec   float64                    `json:"uptime_seconds"`
}

// Snapshot aggregates the current per-truck state into one dashboard view,
// records the fleet health point, and checkpoints the aggregates.
func (p *Pipeline) Snapshot(ctx context.Context, now time.Time) DashboardSnapshot {
	p.trucksMu.RLock()
	truckIDs := make([]string, 0, len(p.trucks))
	for id := range p.trucks {
		truckIDs = append(truckIDs, id)
	}
	p.trucksMu.RUnlock()
	sort.Strings(truckIDs)

	var all []models.ActionItem
	perTruckCorrelations := make(map[string][]models.CorrelationEvent)
	maintenanceDays := make(map[string]float64, len(truckIDs))
	activeTrucks := 0

	for _, id := range truckIDs {
		st := p.truck(id)
		st.mu.Lock()
		for _, item := range st.items {
			all = append(all, *item.Clone())
		}
		if len(st.correlations) > 0 {
			perTruckCorrelations[id] = append([]models.CorrelationEvent(nil), st.correlations...)
		}
		if st.truck.Status == models.StatusOffline {
			all = append(all, p.synth.FromOfflineTruck(id, st.truck.LastSeen, now))
		}
		if lm := st.truck.LastMaintenance; lm != nil {
			maintenanceDays[id] = now.Sub(*lm).Hours() / 24
		}
		if st.activeToday(now) {
			activeTrucks++
		}
		st.mu.Unlock()
	}

	// Fleet-wide patterns only exist at aggregation time.
	fleetEvents := p.correlator.EvaluateFleet(perTruckCorrelations, len(truckIDs), now)
	for _, ev := range fleetEvents {
		all = append(all, p.synth.FromCorrelation(ev))
	}

	deduped := p.prioritizer.Deduplicate(all)

	risks := make([]models.TruckRiskScore, 0, len(truckIDs))
	riskByTruck := make(map[string]models.TruckRiskScore, len(truckIDs))
	for _, id := range truckIDs {
		rs := p.scorer.Score(id, deduped, maintenanceDays[id], now)
		risks = append(risks, rs)
		riskByTruck[id] = rs
	}

	fleet := p.fleet.Compute(deduped, risks, len(truckIDs), activeTrucks, now)

	snapshot := DashboardSnapshot{
		GeneratedAt: now,
		Fleet:       fleet,
		Actions:     deduped,
		Risks:       risks,
		Insights:    fleethealth.Insights(deduped),
		UptimeSec:   p.Uptime().Seconds(),
	}
	if p.gateway != nil {
		snapshot.DataQuality = p.gateway.Health()
	} else {
		snapshot.DataQuality = models.DataQuality{StoreHealthy: false, DegradedSystems: []string{"store"}}
	}

	for _, id := range truckIDs {
		st := p.truck(id)
		st.mu.Lock()
		snapshot.Trucks = append(snapshot.Trucks, TruckSummary{
			Truck:       st.truck,
			Idle:        st.lastIdle,
			Risk:        riskByTruck[id],
			ActiveToday: st.activeToday(now),
			LateDropped: st.lateDropped,
		})
		st.mu.Unlock()
	}

	p.persistAggregates(ctx, fleet, risks)
	return snapshot
}

func (p *Pipeline) persistAggregates(ctx context.Context, fleet models.FleetHealthSnapshot, risks []models.TruckRiskScore) {
	if p.gateway == nil {
		return
	}
	if err := p.gateway.SaveFleetHealth(ctx, fleet); err != nil {
		telemetry.StoreErrors.Inc()
		log.Warn().Err(err).Msg("Fleet health write failed")
	}
	for _, rs := range risks {
		if err := p.gateway.SaveRiskScore(ctx, rs); err != nil {
			telemetry.StoreErrors.Inc()
		}
	}
}

// Sweep transitions silent trucks to OFFLINE and raises the offline alert.
// Cooldown suppresses repeats while the truck stays dark.
func (p *Pipeline) Sweep(ctx context.Context, now time.Time) {
	cfg := p.config()
	cutoff := time.Duration(cfg.Alerts.OfflineWarningHours * float64(time.Hour))

	p.trucksMu.RLock()
	states := make([]*truckState, 0, len(p.trucks))
	for _, st := range p.trucks {
		states = append(states, st)
	}
	p.trucksMu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		silent := !st.truck.LastSeen.IsZero() && now.Sub(st.truck.LastSeen) >= cutoff
		alreadyOffline := st.truck.Status == models.StatusOffline
		if silent && !alreadyOffline {
			st.truck.Status = models.StatusOffline
			log.Warn().
				Str("truckID", st.truck.ID).
				Time("lastSeen", st.truck.LastSeen).
				Msg("Truck offline")
		}
		truckID := st.truck.ID
		lastSeen := st.truck.LastSeen
		st.mu.Unlock()

		if silent && p.dispatcher != nil {
			sent := p.dispatcher.Dispatch(ctx, alerts.Alert{
				TruckID:   truckID,
				Type:      "offline",
				Severity:  models.SeverityMedium,
				Message:   "No telemetry received since " + lastSeen.UTC().Format(time.RFC3339),
				Timestamp: now,
			})
			if sent {
				telemetry.AlertsSent.Inc()
			} else {
				telemetry.AlertsSuppressed.Inc()
			}
		}
	}
}

// TruckDetail is the per-truck endpoint payload.
type TruckDetail struct {
	Truck          models.Truck                 `json:"truck"`
	LastSample     *models.TelemetrySample      `json:"last_sample,omitempty"`
	Idle           models.IdleReading           `json:"idle"`
	Items          []models.ActionItem          `json:"action_items"`
	Correlations   []models.CorrelationEvent    `json:"correlations,omitempty"`
	IdleValidation *models.IdleValidationResult `json:"idle_validation,omitempty"`
}

// Truck returns the detail view for one truck, or false when unknown.
func (p *Pipeline) Truck(truckID string) (TruckDetail, bool) {
	p.trucksMu.RLock()
	st, ok := p.trucks[truckID]
	p.trucksMu.RUnlock()
	if !ok {
		return TruckDetail{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	detail := TruckDetail{
		Truck: st.truck,
		Idle:  st.lastIdle,
	}
	if st.last != nil {
		s := *st.last
		detail.LastSample = &s
	}
	for _, item := range st.items {
		detail.Items = append(detail.Items, *item.Clone())
	}
	detail.Correlations = append(detail.Correlations, st.correlations...)
	if st.idleValidation != nil {
		v := *st.idleValidation
		detail.IdleValidation = &v
	}
	return detail, true
}

// IdleValidations returns the latest idle cross-check per truck.
func (p *Pipeline) IdleValidations(onlyIssues bool) []models.IdleValidationResult {
	p.trucksMu.RLock()
	defer p.trucksMu.RUnlock()

	var out []models.IdleValidationResult
	for _, st := range p.trucks {
		st.mu.Lock()
		if st.idleValidation != nil && (!onlyIssues || st.idleValidation.NeedsInvestigation) {
			out = append(out, *st.idleValidation)
		}
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TruckID < out[j].TruckID })
	return out
}

// GPSQualityEntry is one row of the GPS quality endpoint.
type GPSQualityEntry struct {
	TruckID string   `json:"truck_id"`
	Quality *float64 `json:"gps_quality,omitempty"`
}

// GPSQuality reports the last observed GPS quality per truck.
func (p *Pipeline) GPSQuality() []GPSQualityEntry {
	p.trucksMu.RLock()
	defer p.trucksMu.RUnlock()

	var out []GPSQualityEntry
	for id, st := range p.trucks {
		st.mu.Lock()
		entry := GPSQualityEntry{TruckID: id}
		if st.last != nil && st.last.GPSQuality != nil {
			q := *st.last.GPSQuality
			entry.Quality = &q
		}
		st.mu.Unlock()
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TruckID < out[j].TruckID })
	return out
}

// SensorHealthSummary aggregates the sensor-health counters across the fleet.
type SensorHealthSummary struct {
	TotalTrucks       int `json:"total_trucks"`
	OfflineTrucks     int `json:"offline_trucks"`
	LowVoltageTrucks  int `json:"low_voltage_trucks"`
	PoorGPSTrucks     int `json:"poor_gps_trucks"`
	ActiveDTCs        int `json:"active_dtcs"`
	IdleMismatches    int `json:"idle_mismatches"`
	LateSamplesTotal  int64 `json:"late_samples_total"`
}

// SensorHealth computes the fleet-wide sensor health counters.
func (p *Pipeline) SensorHealth() SensorHealthSummary {
	cfg := p.config()
	lowVoltage := cfg.Detection.Thresholds[models.SensorBatteryVoltage].Warning

	p.trucksMu.RLock()
	defer p.trucksMu.RUnlock()

	var sum SensorHealthSummary
	for _, st := range p.trucks {
		st.mu.Lock()
		sum.TotalTrucks++
		if st.truck.Status == models.StatusOffline {
			sum.OfflineTrucks++
		}
		if st.last != nil {
			if st.last.BatteryVoltage != nil && lowVoltage > 0 && *st.last.BatteryVoltage <= lowVoltage {
				sum.LowVoltageTrucks++
			}
			if st.last.GPSQuality != nil && *st.last.GPSQuality < gpsQualityFloor {
				sum.PoorGPSTrucks++
			}
			sum.ActiveDTCs += len(st.last.ActiveDTCs)
		}
		if st.idleValidation != nil && st.idleValidation.NeedsInvestigation {
			sum.IdleMismatches++
		}
		sum.LateSamplesTotal += st.lateDropped
		st.mu.Unlock()
	}
	return sum
}

// FleetHistory exposes the health ring for the trends endpoint.
func (p *Pipeline) FleetHistory(since time.Time) []models.FleetHealthSnapshot {
	return p.fleet.Since(since)
}

// RecordTrendPoint forces a snapshot now; used by the trends/record endpoint.
func (p *Pipeline) RecordTrendPoint(ctx context.Context) models.FleetHealthSnapshot {
	return p.Snapshot(ctx, p.now()).Fleet
}

// Package report builds and renders the fleet daily summary.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelsight/internal/fleethealth"
	"github.com/fleetops/fuelsight/internal/models"
	"github.com/fleetops/fuelsight/internal/store"
)

const litersPerGallon = 3.78541

// topActionLimit caps how many actions the report carries.
const topActionLimit = 10

// Builder assembles a FleetDailySummary from persisted state.
type Builder struct {
	gateway *store.Gateway
}

// NewBuilder creates a report builder over the persistence gateway.
func NewBuilder(gateway *store.Gateway) *Builder {
	return &Builder{gateway: gateway}
}

// Build assembles the summary for the UTC day starting at date. actions may
// be nil when no live snapshot is available (standalone CLI runs).
func (b *Builder) Build(ctx context.Context, date time.Time, actions []models.ActionItem) (models.FleetDailySummary, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	summary := models.FleetDailySummary{
		Date:        dayStart.Format("2006-01-02"),
		GeneratedAt: time.Now().UTC(),
	}

	snaps, err := b.gateway.FleetHealthSince(ctx, dayStart)
	if err != nil {
		return summary, fmt.Errorf("load fleet health: %w", err)
	}
	for _, snap := range snaps {
		if snap.Timestamp.Before(dayEnd) {
			summary.HealthScore = snap.Score
			summary.HealthStatus = snap.Status
			summary.Trend = snap.Trend
			summary.TotalTrucks = snap.TotalTrucks
			summary.ActiveTrucks = snap.ActiveTrucks
			summary.Urgency = models.UrgencySummary{
				Critical: snap.Urgency.Critical,
				High:     snap.Urgency.High,
				Medium:   snap.Urgency.Medium,
				Low:      snap.Urgency.Low,
			}
		}
	}
	if len(snaps) == 0 {
		summary.HealthScore = 100
		summary.HealthStatus = "Sin datos"
		summary.Trend = models.FleetStable
	}

	refuels, err := b.gateway.RefuelsBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return summary, fmt.Errorf("load refuels: %w", err)
	}
	summary.Refuels = refuels
	for _, ev := range refuels {
		summary.TotalRefuelGal += ev.GallonsAdded
	}

	spans, err := b.gateway.FuelSpans(ctx, dayStart, dayEnd)
	if err != nil {
		log.Warn().Err(err).Msg("Fuel span query failed, net fuel omitted")
	} else {
		for _, span := range spans {
			burnedL := span.FirstLiters - span.LastLiters
			summary.NetFuelUsedGal += burnedL / litersPerGallon
		}
		// Refueled gallons were consumed too; levels alone undercount.
		summary.NetFuelUsedGal += summary.TotalRefuelGal
		if summary.NetFuelUsedGal < 0 {
			summary.NetFuelUsedGal = 0
		}
	}

	risks, err := b.gateway.LatestRiskScores(ctx, dayStart, dayEnd)
	if err != nil {
		return summary, fmt.Errorf("load risk scores: %w", err)
	}
	summary.RiskScores = risks

	if len(actions) > topActionLimit {
		actions = actions[:topActionLimit]
	}
	summary.TopActions = actions
	summary.Insights = fleethealth.Insights(actions)

	return summary, nil
}

// WriteFile renders the summary as JSON into dir, named by date, atomically.
func WriteFile(dir string, summary models.FleetDailySummary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("daily_report_%s.json", summary.Date))
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("replace report: %w", err)
	}
	return path, nil
}

// RenderEmail produces the subject and plain-text body for the report email.
func RenderEmail(summary models.FleetDailySummary) (string, string) {
	subject := fmt.Sprintf("Fleet daily report %s — %s (%.0f)",
		summary.Date, summary.HealthStatus, summary.HealthScore)

	var b strings.Builder
	fmt.Fprintf(&b, "Fleet report for %s\n\n", summary.Date)
	fmt.Fprintf(&b, "Health: %.0f/100 (%s), trend %s\n", summary.HealthScore, summary.HealthStatus, summary.Trend)
	fmt.Fprintf(&b, "Trucks: %d active of %d\n", summary.ActiveTrucks, summary.TotalTrucks)
	fmt.Fprintf(&b, "Open items: %d critical, %d high, %d medium, %d low\n",
		summary.Urgency.Critical, summary.Urgency.High, summary.Urgency.Medium, summary.Urgency.Low)
	fmt.Fprintf(&b, "Fuel: %.1f gal added across %d refuels, %.1f gal net burned\n\n",
		summary.TotalRefuelGal, len(summary.Refuels), summary.NetFuelUsedGal)

	if len(summary.TopActions) > 0 {
		b.WriteString("Top actions:\n")
		for _, item := range summary.TopActions {
			fmt.Fprintf(&b, "  [%s] %s %s — %s\n", item.Priority, item.TruckID, item.Component, item.Title)
		}
		b.WriteString("\n")
	}

	if len(summary.RiskScores) > 0 {
		b.WriteString("Highest-risk trucks:\n")
		limit := 5
		if len(summary.RiskScores) < limit {
			limit = len(summary.RiskScores)
		}
		for _, rs := range summary.RiskScores[:limit] {
			fmt.Fprintf(&b, "  %s: %.0f (%s)\n", rs.TruckID, rs.RiskScore, rs.RiskLevel)
		}
		b.WriteString("\n")
	}

	if len(summary.Insights) > 0 {
		b.WriteString("Insights:\n")
		for _, insight := range summary.Insights {
			fmt.Fprintf(&b, "  - %s\n", insight)
		}
	}
	return subject, b.String()
}

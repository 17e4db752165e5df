package fleethealth

import (
	"fmt"
	"sort"

	"github.com/fleetops/fuelsight/internal/models"
)

// Insights renders rule-templated operator phrases from the current action
// list. Output strings are es-MX to match the operator console.
func Insights(items []models.ActionItem) []string {
	if len(items) == 0 {
		return []string{"Flota en excelente estado."}
	}

	var insights []string

	// Critical trucks, named.
	criticalTrucks := make(map[string]bool)
	for _, item := range items {
		if item.Priority == models.PriorityCritical && item.TruckID != models.FleetTruckID {
			criticalTrucks[item.TruckID] = true
		}
	}
	if len(criticalTrucks) > 0 {
		names := make([]string, 0, len(criticalTrucks))
		for id := range criticalTrucks {
			names = append(names, id)
		}
		sort.Strings(names)
		insights = append(insights, fmt.Sprintf(
			"%d camiones requieren atención inmediata, incluyendo %s",
			len(names), names[0]))
	}

	// Imminent transmission failures carry the highest repair bill.
	for _, item := range items {
		if item.Component == "transmission" && item.DaysToCritical != nil && *item.DaysToCritical <= 7 {
			cost := item.CostDisplay
			if cost == "" {
				cost = "$8,000 – $15,000"
			}
			insights = append(insights, fmt.Sprintf(
				"Falla de transmisión inminente en %s: reparar ahora evita un costo de %s",
				item.TruckID, cost))
			break
		}
	}

	// DEF depletion triggers engine derate.
	for _, item := range items {
		if item.Component == "def_system" && item.Priority == models.PriorityCritical {
			insights = append(insights, fmt.Sprintf(
				"Nivel DEF crítico en %s: riesgo de derate del motor", item.TruckID))
			break
		}
	}

	// Systemic component patterns.
	byComponent := make(map[string]int)
	for _, item := range items {
		if item.TruckID != models.FleetTruckID {
			byComponent[item.Component]++
		}
	}
	for component, count := range byComponent {
		if count >= 3 {
			insights = append(insights, fmt.Sprintf(
				"Patrón sistémico: %d camiones con problemas de %s — revisar causa común",
				count, component))
		}
	}
	if len(insights) > 1 {
		sort.Strings(insights[1:])
	}

	// Items escalating faster than their current priority suggests.
	for _, item := range items {
		if item.Priority != models.PriorityCritical && item.DaysToCritical != nil && *item.DaysToCritical < 7 {
			insights = append(insights, fmt.Sprintf(
				"Advertencia de escalación: %s en %s llega a crítico en %.1f días",
				item.Component, item.TruckID, *item.DaysToCritical))
			break
		}
	}

	if len(insights) == 0 {
		insights = append(insights, "Flota estable: sin problemas urgentes")
	}
	return insights
}

package actions

import (
	"fmt"
	"sort"

	"github.com/fleetops/fuelsight/internal/models"
)

// Deduplicate merges items that describe the same (truck, component) and
// returns the merged list ranked by priority score, highest first. Fleet
// items additionally key on category so unrelated fleet patterns never merge.
func (p *Prioritizer) Deduplicate(items []models.ActionItem) []models.ActionItem {
	groups := make(map[string][]models.ActionItem)
	var order []string

	for _, item := range items {
		key := dedupKey(&item)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}

	merged := make([]models.ActionItem, 0, len(order))
	for _, key := range order {
		merged = append(merged, p.mergeGroup(groups[key]))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].PriorityScore != merged[j].PriorityScore {
			return merged[i].PriorityScore > merged[j].PriorityScore
		}
		return strongestWeight(merged[i].Sources) > strongestWeight(merged[j].Sources)
	})
	return merged
}

func dedupKey(item *models.ActionItem) string {
	component := NormalizeComponent(item.Component)
	if item.TruckID == models.FleetTruckID {
		return fmt.Sprintf("%s|%s|%s", models.FleetTruckID, component, item.Category)
	}
	return fmt.Sprintf("%s|%s", item.TruckID, component)
}

// mergeGroup folds a group of duplicate items into its primary: the item
// with the highest priority score, ties broken by the strongest source.
func (p *Prioritizer) mergeGroup(group []models.ActionItem) models.ActionItem {
	if len(group) == 1 {
		return group[0]
	}

	primaryIdx := 0
	for i := 1; i < len(group); i++ {
		a, b := &group[i], &group[primaryIdx]
		if a.PriorityScore > b.PriorityScore ||
			(a.PriorityScore == b.PriorityScore && strongestWeight(a.Sources) > strongestWeight(b.Sources)) {
			primaryIdx = i
		}
	}

	primary := *group[primaryIdx].Clone()

	for i, item := range group {
		if i == primaryIdx {
			continue
		}
		primary.Sources = unionSources(primary.Sources, item.Sources)

		// Most urgent days-to-critical wins.
		if item.DaysToCritical != nil &&
			(primary.DaysToCritical == nil || *item.DaysToCritical < *primary.DaysToCritical) {
			d := *item.DaysToCritical
			primary.DaysToCritical = &d
		}

		if primary.Cost == nil && item.Cost != nil {
			c := *item.Cost
			primary.Cost = &c
			primary.CostDisplay = item.CostDisplay
		}
		if item.AnomalyScore != nil &&
			(primary.AnomalyScore == nil || *item.AnomalyScore > *primary.AnomalyScore) {
			s := *item.AnomalyScore
			primary.AnomalyScore = &s
		}
	}

	if len(primary.Sources) >= 3 {
		primary.Description = fmt.Sprintf(
			"Multiple systems flagged %s on %s: corroborated by %d independent detectors",
			NormalizeComponent(primary.Component), primary.TruckID, len(primary.Sources))
	}

	// Merging may have tightened days-to-critical; recompute the blend.
	p.Score(&primary)
	return primary
}

func unionSources(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, lists := range [][]string{a, b} {
		for _, s := range lists {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	// Strongest source first for display.
	sort.SliceStable(out, func(i, j int) bool {
		return SourceWeight(out[i]) > SourceWeight(out[j])
	})
	return out
}

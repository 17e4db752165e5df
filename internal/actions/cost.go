package actions

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/fleetops/fuelsight/internal/models"
)

var costNumberRe = regexp.MustCompile(`[\d][\d,\.]*`)

// ParseCost extracts a cost range from a display string such as
// "$8,000 – $15,000" or "$5k". Source systems drift between numbers and
// strings; the core stores the parsed form and renders at the edge.
func ParseCost(raw string) (*models.CostRange, bool) {
	matches := costNumberRe.FindAllString(raw, -1)
	if len(matches) == 0 {
		return nil, false
	}

	lower := strings.ToLower(raw)
	values := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, false
	}
	// A bare "5k" style suffix scales every parsed number.
	if strings.Contains(lower, "k") && values[len(values)-1] < 1000 {
		for i := range values {
			values[i] *= 1000
		}
	}

	cr := &models.CostRange{Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		if v < cr.Min {
			cr.Min = v
		}
		if v > cr.Max {
			cr.Max = v
		}
	}
	cr.Avg = (cr.Min + cr.Max) / 2
	return cr, true
}

// RenderCost formats a cost range for display.
func RenderCost(cr *models.CostRange) string {
	if cr == nil {
		return ""
	}
	if cr.Min == cr.Max {
		return fmt.Sprintf("$%s", formatThousands(cr.Min))
	}
	return fmt.Sprintf("$%s – $%s", formatThousands(cr.Min), formatThousands(cr.Max))
}

func formatThousands(v float64) string {
	s := strconv.FormatFloat(math.Round(v), 'f', -1, 64)
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// costScore maps an average cost to 0-100 on a piecewise log scale anchored
// at $500→10, $5k→50, $15k→100.
func costScore(cr *models.CostRange) float64 {
	if cr == nil || cr.Avg <= 0 {
		return 0
	}
	logC := math.Log10(cr.Avg)

	type anchor struct{ logCost, score float64 }
	anchors := []anchor{
		{math.Log10(500), 10},
		{math.Log10(5000), 50},
		{math.Log10(15000), 100},
	}

	if logC <= anchors[0].logCost {
		// Scale down proportionally below the first anchor.
		score := anchors[0].score * logC / anchors[0].logCost
		return clampScore(score)
	}
	for i := 1; i < len(anchors); i++ {
		if logC <= anchors[i].logCost {
			lo, hi := anchors[i-1], anchors[i]
			frac := (logC - lo.logCost) / (hi.logCost - lo.logCost)
			return clampScore(lo.score + frac*(hi.score-lo.score))
		}
	}
	return 100
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

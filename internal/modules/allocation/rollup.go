package allocation

import "sort"

// buildRollups aggregates per-holding results into category and country
// totals, in both absolute and percentage form.
func buildRollups(results []HoldingResult, investableAmount float64) ([]GroupRollup, []GroupRollup, float64) {
	totalCurrent := 0.0
	for _, r := range results {
		totalCurrent += r.CurrentValue
	}

	categories := rollupBy(results, totalCurrent, investableAmount, func(r HoldingResult) string { return r.Category })
	countries := rollupBy(results, totalCurrent, investableAmount, func(r HoldingResult) string { return r.Country })

	return categories, countries, round2(totalCurrent)
}

func rollupBy(results []HoldingResult, totalCurrent, investableAmount float64, key func(HoldingResult) string) []GroupRollup {
	currentValues := make(map[string]float64)
	targetValues := make(map[string]float64)
	targetPcts := make(map[string]float64)

	for _, r := range results {
		k := key(r)
		if k == "" {
			continue
		}
		currentValues[k] += r.CurrentValue
		targetValues[k] += r.TargetValue
		targetPcts[k] += r.TargetWeightPct
	}

	rollups := make([]GroupRollup, 0, len(currentValues))
	for name := range currentValues {
		currentPct := 0.0
		if totalCurrent > 0 {
			currentPct = currentValues[name] / totalCurrent * 100
		}
		rollups = append(rollups, GroupRollup{
			Name:         name,
			CurrentValue: round2(currentValues[name]),
			CurrentPct:   round4(currentPct),
			TargetValue:  round2(targetValues[name]),
			TargetPct:    round4(targetPcts[name]),
		})
	}

	sort.Slice(rollups, func(i, j int) bool {
		return rollups[i].Name < rollups[j].Name
	})

	return rollups
}

package allocation

import (
	"math"

	"github.com/aristath/rebalancer/pkg/formulas"
)

// Deviation beyond this many percentage points counts as under/overweight.
const driftThresholdPct = 2.0

// HoldingDrift describes how far one holding's current weight sits from
// its computed target.
type HoldingDrift struct {
	HoldingID    string  `json:"holding_id"`
	Symbol       string  `json:"symbol"`
	CurrentPct   float64 `json:"current_pct"`
	TargetPct    float64 `json:"target_pct"`
	DeviationPct float64 `json:"deviation_pct"`
	Status       string  `json:"status"` // "underweight", "overweight", "balanced"
}

// DriftReport summarizes portfolio drift relative to an engine result.
type DriftReport struct {
	MeanAbsDeviationPct float64        `json:"mean_abs_deviation_pct"`
	StdDevDeviationPct  float64        `json:"std_dev_deviation_pct"`
	MaxAbsDeviationPct  float64        `json:"max_abs_deviation_pct"`
	Holdings            []HoldingDrift `json:"holdings"`
}

// DeviationStatus classifies a deviation in percentage points.
func DeviationStatus(deviationPct float64) string {
	if deviationPct < -driftThresholdPct {
		return "underweight"
	} else if deviationPct > driftThresholdPct {
		return "overweight"
	}
	return "balanced"
}

// BuildDriftReport compares each holding's current share of the portfolio
// against the engine's target weight. It only reads the result - the
// engine output stays authoritative.
func BuildDriftReport(res *Result) DriftReport {
	drifts := make([]HoldingDrift, 0, len(res.Holdings))
	deviations := make([]float64, 0, len(res.Holdings))
	absDeviations := make([]float64, 0, len(res.Holdings))
	maxAbs := 0.0

	for _, h := range res.Holdings {
		currentPct := 0.0
		if res.TotalCurrentValue > 0 {
			currentPct = h.CurrentValue / res.TotalCurrentValue * 100
		}
		deviation := currentPct - h.TargetWeightPct

		deviations = append(deviations, deviation)
		absDeviations = append(absDeviations, math.Abs(deviation))
		if math.Abs(deviation) > maxAbs {
			maxAbs = math.Abs(deviation)
		}

		drifts = append(drifts, HoldingDrift{
			HoldingID:    h.HoldingID,
			Symbol:       h.Symbol,
			CurrentPct:   round4(currentPct),
			TargetPct:    round4(h.TargetWeightPct),
			DeviationPct: round4(deviation),
			Status:       DeviationStatus(deviation),
		})
	}

	return DriftReport{
		MeanAbsDeviationPct: round4(formulas.Mean(absDeviations)),
		StdDevDeviationPct:  round4(formulas.StdDev(deviations)),
		MaxAbsDeviationPct:  round4(maxAbs),
		Holdings:            drifts,
	}
}

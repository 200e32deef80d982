package allocation

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
)

// weightTolerance is the comparison tolerance on percentage points. Keeps
// floating-point noise from producing false capped/uncapped flags.
const weightTolerance = 1e-6

// Engine computes constrained target allocations. It is a pure function
// of its inputs: no I/O, no shared state, safe for concurrent use.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new allocation engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("service", "allocation_engine").Logger(),
	}
}

// Compute runs the full allocation pipeline: validate inputs, resolve
// initial weights for the mode, normalize to 100%, run the cap and
// redistribute fixed point, then format results and rollups.
//
// Inputs are never mutated. On saturation the result carries the
// unallocated percentage instead of an error.
func (e *Engine) Compute(
	holdings []domain.Holding,
	rules domain.RuleSet,
	investableAmount float64,
	mode Mode,
) (*Result, error) {
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	if investableAmount <= 0 {
		return nil, apperrors.NewValidation("investable_amount", "must be positive")
	}

	real := make([]domain.Holding, 0, len(holdings))
	for _, h := range holdings {
		if !h.IsPlaceholder {
			real = append(real, h)
		}
	}
	if len(real) == 0 {
		return nil, apperrors.NewValidation("holdings", "at least one non-placeholder holding is required")
	}

	initial, err := initialWeights(mode, real, holdings, rules)
	if err != nil {
		return nil, err
	}

	normalized, err := normalize(initial)
	if err != nil {
		return nil, err
	}

	st := capWeights(real, normalized, rules)

	results := make([]HoldingResult, len(real))
	allocated := 0.0
	for i, h := range real {
		w := st.weights[i]
		allocated += w
		results[i] = HoldingResult{
			HoldingID:                h.ID,
			Symbol:                   h.Symbol,
			DisplayName:              h.DisplayName,
			InstrumentType:           h.InstrumentType,
			Category:                 h.Category,
			Country:                  h.Country,
			CurrentValue:             h.CurrentValue,
			TargetWeightPct:          w,
			TargetValue:              round2(w / 100 * investableAmount),
			UnconstrainedTargetValue: round2(normalized[i] / 100 * investableAmount),
			BindingCapPct:            st.binding[i],
			IsCapped:                 st.capped[i] || math.Abs(w-st.binding[i]) <= weightTolerance,
		}
	}

	unallocated := 100.0 - allocated
	if unallocated < weightTolerance {
		unallocated = 0
	}

	categories, countries, totalCurrent := buildRollups(results, investableAmount)

	res := &Result{
		Holdings:          results,
		Mode:              mode,
		InvestableAmount:  investableAmount,
		Rounds:            st.rounds,
		Saturated:         st.saturated,
		UnallocatedPct:    unallocated,
		CategoryRollups:   categories,
		CountryRollups:    countries,
		TotalCurrentValue: totalCurrent,
	}

	e.log.Debug().
		Str("mode", string(mode)).
		Int("holdings", len(real)).
		Int("rounds", st.rounds).
		Bool("saturated", st.saturated).
		Float64("unallocated_pct", unallocated).
		Msg("Allocation computed")

	return res, nil
}

// validateRules rejects malformed rule sets before any computation.
func validateRules(rules domain.RuleSet) error {
	if rules.MaxPerStockPct < 0 || rules.MaxPerStockPct > 100 {
		return apperrors.NewValidation("max_per_stock_pct", "must be between 0 and 100")
	}
	if rules.MaxPerEtfPct < 0 || rules.MaxPerEtfPct > 100 {
		return apperrors.NewValidation("max_per_etf_pct", "must be between 0 and 100")
	}
	if rules.MaxPerCategoryPct != nil && (*rules.MaxPerCategoryPct < 0 || *rules.MaxPerCategoryPct > 100) {
		return apperrors.NewValidation("max_per_category_pct", "must be between 0 and 100")
	}
	if rules.MaxPerCountryPct != nil && (*rules.MaxPerCountryPct < 0 || *rules.MaxPerCountryPct > 100) {
		return apperrors.NewValidation("max_per_country_pct", "must be between 0 and 100")
	}
	return nil
}

// capState is the immutable-per-round state of the capping fixed point.
type capState struct {
	weights   []float64
	binding   []float64
	capped    []bool
	rounds    int
	saturated bool
}

// capWeights pins every holding that exceeds its binding cap and
// redistributes the removed excess proportionally across the holdings
// still uncapped, repeating until a fixed point. Each non-terminal round
// caps at least one new holding, so the loop runs at most N rounds.
//
// Caps are always percentages of the total investable amount, never of
// the remaining uncapped amount. When every holding is capped before the
// excess is absorbed, the loop stops and leaves the remainder
// unallocated.
func capWeights(holdings []domain.Holding, weights []float64, rules domain.RuleSet) capState {
	n := len(holdings)
	st := capState{
		weights: append([]float64(nil), weights...),
		binding: make([]float64, n),
		capped:  make([]bool, n),
	}

	for range holdings {
		newly := st.findViolations(holdings, rules)
		if len(newly) == 0 {
			break
		}
		st.rounds++

		excess := 0.0
		for _, i := range newly {
			excess += st.weights[i] - st.binding[i]
			st.weights[i] = st.binding[i]
			st.capped[i] = true
		}

		uncappedTotal := 0.0
		for i := range st.weights {
			if !st.capped[i] {
				uncappedTotal += st.weights[i]
			}
		}
		if uncappedTotal <= weightTolerance {
			st.saturated = true
			break
		}

		// Each uncapped holding grows in proportion to its share of the
		// uncapped total, so the excess is conserved exactly.
		for i := range st.weights {
			if !st.capped[i] {
				st.weights[i] += excess * st.weights[i] / uncappedTotal
			}
		}
	}

	// Refresh binding caps once more so uncapped holdings report the cap
	// that applied to their final weight.
	st.computeBindings(holdings, rules)

	return st
}

// findViolations recomputes binding caps for all uncapped holdings and
// returns the indices whose current weight exceeds them.
func (st *capState) findViolations(holdings []domain.Holding, rules domain.RuleSet) []int {
	st.computeBindings(holdings, rules)

	var newly []int
	for i := range holdings {
		if st.capped[i] {
			continue
		}
		if st.weights[i] > st.binding[i]+weightTolerance {
			newly = append(newly, i)
		}
	}
	return newly
}

// computeBindings derives each uncapped holding's binding cap: the
// minimum of its type cap and, when a category or country group exceeds
// its group cap, the holding's proportional share of that group cap.
func (st *capState) computeBindings(holdings []domain.Holding, rules domain.RuleSet) {
	var catSums, ctySums map[string]float64
	if rules.MaxPerCategoryPct != nil {
		catSums = groupSums(holdings, st.weights, func(h domain.Holding) string { return h.Category })
	}
	if rules.MaxPerCountryPct != nil {
		ctySums = groupSums(holdings, st.weights, func(h domain.Holding) string { return h.Country })
	}

	for i, h := range holdings {
		if st.capped[i] {
			continue
		}

		limit := typeCap(h.InstrumentType, rules)

		if rules.MaxPerCategoryPct != nil && h.Category != "" {
			if sum := catSums[h.Category]; sum > *rules.MaxPerCategoryPct+weightTolerance {
				share := st.weights[i] * *rules.MaxPerCategoryPct / sum
				if share < limit {
					limit = share
				}
			}
		}
		if rules.MaxPerCountryPct != nil && h.Country != "" {
			if sum := ctySums[h.Country]; sum > *rules.MaxPerCountryPct+weightTolerance {
				share := st.weights[i] * *rules.MaxPerCountryPct / sum
				if share < limit {
					limit = share
				}
			}
		}

		st.binding[i] = limit
	}
}

// typeCap returns the per-holding cap for an instrument type. Instruments
// that are neither stocks nor ETFs fall under the stock cap.
func typeCap(t domain.InstrumentType, rules domain.RuleSet) float64 {
	if t == domain.InstrumentETF {
		return rules.MaxPerEtfPct
	}
	return rules.MaxPerStockPct
}

// groupSums totals current weights per group key.
func groupSums(holdings []domain.Holding, weights []float64, key func(domain.Holding) string) map[string]float64 {
	sums := make(map[string]float64)
	for i, h := range holdings {
		if k := key(h); k != "" {
			sums[k] += weights[i]
		}
	}
	return sums
}

// round2 rounds a monetary value to 2 decimal places.
func round2(val float64) float64 {
	return math.Round(val*100) / 100
}

// round4 rounds a percentage to 4 decimal places.
func round4(val float64) float64 {
	return math.Round(val*10000) / 10000
}

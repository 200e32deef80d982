package allocation

import (
	"fmt"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
)

// categoryGroup tracks the weight signals present in one category.
type categoryGroup struct {
	hasExplicit    bool
	hasPlaceholder bool
	placeholderPct float64
	realCount      int
}

// equalShareEligible reports whether real members of this group inherit
// the placeholder's equal share. That happens only when the group carries
// a placeholder and no member anywhere in the group has an explicit
// weight. A group mixing explicit and placeholder entries is NOT
// eligible: its non-explicit members fall back to the type default.
func (g *categoryGroup) equalShareEligible() bool {
	return g.hasPlaceholder && !g.hasExplicit
}

// groupByCategory scans all holdings (placeholders included) and collects
// per-category weight signals.
func groupByCategory(all []domain.Holding) map[string]*categoryGroup {
	groups := make(map[string]*categoryGroup)
	for _, h := range all {
		g := groups[h.Category]
		if g == nil {
			g = &categoryGroup{}
			groups[h.Category] = g
		}
		if h.IsPlaceholder {
			g.hasPlaceholder = true
			if h.PlaceholderWeightPct > 0 {
				g.placeholderPct = h.PlaceholderWeightPct
			}
		} else {
			g.realCount++
		}
		if h.HasExplicitWeight() {
			g.hasExplicit = true
		}
	}
	return groups
}

// resolveInitialWeights determines each real holding's pre-cap target
// weight. Precedence, strictly in this order:
//
//  1. explicit weight set by the user
//  2. placeholder equal share, when the whole category group is governed
//     by a placeholder
//  3. the rule set's default for the instrument type
//
// The sum need not equal 100; normalization happens later. Deterministic
// and side-effect free.
func resolveInitialWeights(real, all []domain.Holding, rules domain.RuleSet) []float64 {
	groups := groupByCategory(all)

	weights := make([]float64, len(real))
	for i, h := range real {
		g := groups[h.Category]
		switch {
		case h.HasExplicitWeight():
			weights[i] = *h.TargetWeightPct
		case g != nil && g.equalShareEligible():
			if g.placeholderPct > 0 {
				weights[i] = g.placeholderPct
			} else {
				weights[i] = 100.0 / float64(g.realCount)
			}
		default:
			weights[i] = typeDefault(h.InstrumentType, rules)
		}
	}
	return weights
}

// typeDefault returns the rule set's default weight for an instrument type.
func typeDefault(t domain.InstrumentType, rules domain.RuleSet) float64 {
	switch t {
	case domain.InstrumentStock:
		return rules.MaxPerStockPct
	case domain.InstrumentETF:
		return rules.MaxPerEtfPct
	default:
		return domain.DefaultOtherWeightPct
	}
}

// initialWeights derives the naive pre-cap weights for the selected mode.
// Only this step varies between modes; the capping algorithm is shared.
func initialWeights(mode Mode, real, all []domain.Holding, rules domain.RuleSet) ([]float64, error) {
	switch mode {
	case ModeTargetWeights:
		return resolveInitialWeights(real, all, rules), nil

	case ModeProportional:
		total := 0.0
		for _, h := range real {
			total += h.CurrentValue
		}
		if total <= 0 {
			return nil, apperrors.NewValidation("holdings", "proportional mode requires a positive total current value")
		}
		weights := make([]float64, len(real))
		for i, h := range real {
			weights[i] = h.CurrentValue / total * 100
		}
		return weights, nil

	case ModeEqualWeight:
		weights := make([]float64, len(real))
		share := 100.0 / float64(len(real))
		for i := range weights {
			weights[i] = share
		}
		return weights, nil
	}

	return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidMode, mode)
}

// normalize scales weights so they sum to exactly 100.
func normalize(weights []float64) ([]float64, error) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return nil, apperrors.NewValidation("holdings", "resolved weights sum to zero")
	}

	out := make([]float64, len(weights))
	scale := 100.0 / sum
	for i, w := range weights {
		out[i] = w * scale
	}
	return out, nil
}

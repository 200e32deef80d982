package allocation

import (
	"fmt"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
)

// Mode selects how the naive pre-cap weights are derived.
type Mode string

const (
	// ModeProportional scales the existing current-value distribution to 100%.
	ModeProportional Mode = "proportional"
	// ModeTargetWeights resolves weights from explicit targets, placeholder
	// equal shares and type defaults.
	ModeTargetWeights Mode = "target_weights"
	// ModeEqualWeight gives every non-placeholder holding 100/N.
	ModeEqualWeight Mode = "equal_weight"
)

// ParseMode converts a mode string into a Mode. Unknown names fail with
// apperrors.ErrInvalidMode - there is no fallback mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeProportional, ModeTargetWeights, ModeEqualWeight:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidMode, s)
}

// HoldingResult is the engine output for one holding.
type HoldingResult struct {
	HoldingID      string                `json:"holding_id"`
	Symbol         string                `json:"symbol"`
	DisplayName    string                `json:"display_name"`
	InstrumentType domain.InstrumentType `json:"instrument_type"`
	Category       string                `json:"category"`
	Country        string                `json:"country"`
	CurrentValue   float64               `json:"current_value"`

	// TargetWeightPct is the final percentage after capping and
	// redistribution, always within [0, binding cap].
	TargetWeightPct float64 `json:"target_weight_pct"`
	TargetValue     float64 `json:"target_value"`

	// UnconstrainedTargetValue is what this holding would have received
	// from its normalized natural share before any capping. Kept so a UI
	// can explain why a value differs from the naive proportional share.
	UnconstrainedTargetValue float64 `json:"unconstrained_target_value"`

	BindingCapPct float64 `json:"binding_cap_pct"`
	IsCapped      bool    `json:"is_capped"`
}

// GroupRollup aggregates current and target values for one category or
// country.
type GroupRollup struct {
	Name         string  `json:"name"`
	CurrentValue float64 `json:"current_value"`
	CurrentPct   float64 `json:"current_pct"`
	TargetValue  float64 `json:"target_value"`
	TargetPct    float64 `json:"target_pct"`
}

// Result is the full engine output. Produced fresh on every call; the
// engine keeps no state between invocations.
type Result struct {
	Holdings         []HoldingResult `json:"holdings"`
	Mode             Mode            `json:"mode"`
	InvestableAmount float64         `json:"investable_amount"`

	// Rounds is the number of capping rounds the fixed-point loop ran.
	Rounds int `json:"rounds"`

	// Saturated is true when every holding hit its cap before the full
	// 100% could be allocated. UnallocatedPct then carries the shortfall
	// instead of silently redistributing it in violation of the caps.
	Saturated      bool    `json:"saturated"`
	UnallocatedPct float64 `json:"unallocated_pct"`

	CategoryRollups   []GroupRollup `json:"category_rollups"`
	CountryRollups    []GroupRollup `json:"country_rollups"`
	TotalCurrentValue float64       `json:"total_current_value"`
}

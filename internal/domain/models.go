package domain

import "time"

// InstrumentType classifies a holding for rule purposes
type InstrumentType string

const (
	InstrumentStock InstrumentType = "stock"
	InstrumentETF   InstrumentType = "etf"
	InstrumentOther InstrumentType = "other"
)

// Account represents a brokerage account. Every operation takes the
// account ID explicitly - there is no ambient "current account".
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"base_currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Holding represents one tradable position in an account.
//
// A placeholder holding is a synthetic "N remaining positions" entry used
// to request equal distribution across a category when individual weights
// were not specified. Placeholders never appear in engine output.
type Holding struct {
	ID             string         `json:"id"`
	AccountID      string         `json:"account_id"`
	Symbol         string         `json:"symbol"`
	DisplayName    string         `json:"display_name"`
	InstrumentType InstrumentType `json:"instrument_type"`
	Category       string         `json:"category"`
	Country        string         `json:"country"`
	Shares         float64        `json:"shares"`
	CurrentValue   float64        `json:"current_value"`

	// TargetWeightPct is the user-specified individual target (0-100).
	// Nil when the user never set one.
	TargetWeightPct *float64 `json:"target_weight_pct,omitempty"`

	IsPlaceholder        bool    `json:"is_placeholder"`
	PlaceholderWeightPct float64 `json:"placeholder_weight_pct,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// HasExplicitWeight reports whether the user set an individual target
// weight for this holding.
func (h Holding) HasExplicitWeight() bool {
	return h.TargetWeightPct != nil && *h.TargetWeightPct > 0
}

// Default caps applied when a rule set leaves them unset.
const (
	DefaultMaxPerStockPct = 2.0
	DefaultMaxPerEtfPct   = 5.0
	DefaultOtherWeightPct = 1.0
)

// RuleSet holds the user-configured allocation caps for one account.
// Caps are percentages of the total investable amount.
type RuleSet struct {
	AccountID      string  `json:"account_id"`
	MaxPerStockPct float64 `json:"max_per_stock_pct"`
	MaxPerEtfPct   float64 `json:"max_per_etf_pct"`

	// Optional group caps. Nil means unconstrained.
	MaxPerCategoryPct *float64 `json:"max_per_category_pct,omitempty"`
	MaxPerCountryPct  *float64 `json:"max_per_country_pct,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultRuleSet returns the rule set used when an account has not
// configured one.
func DefaultRuleSet(accountID string) RuleSet {
	return RuleSet{
		AccountID:      accountID,
		MaxPerStockPct: DefaultMaxPerStockPct,
		MaxPerEtfPct:   DefaultMaxPerEtfPct,
	}
}

// PricePoint is one cached market price observation.
type PricePoint struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	FetchedAt time.Time `json:"fetched_at"`
}

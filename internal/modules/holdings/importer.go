package holdings

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
)

// Importer parses brokerage CSV exports and upserts the rows into an
// account. Rows are matched by symbol, so re-importing the same file is
// idempotent.
type Importer struct {
	repo *Repository
	log  zerolog.Logger
}

// NewImporter creates a new CSV importer
func NewImporter(repo *Repository, log zerolog.Logger) *Importer {
	return &Importer{
		repo: repo,
		log:  log.With().Str("service", "holdings_importer").Logger(),
	}
}

// ImportResult summarizes one CSV import run.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Accepted header aliases, lowercased. Brokerage exports disagree on
// column naming so each logical column maps from several spellings.
var columnAliases = map[string]string{
	"symbol":            "symbol",
	"ticker":            "symbol",
	"name":              "display_name",
	"display_name":      "display_name",
	"description":       "display_name",
	"type":              "instrument_type",
	"instrument_type":   "instrument_type",
	"category":          "category",
	"sector":            "category",
	"country":           "country",
	"shares":            "shares",
	"quantity":          "shares",
	"value":             "current_value",
	"current_value":     "current_value",
	"market_value":      "current_value",
	"target_weight":     "target_weight_pct",
	"target_weight_pct": "target_weight_pct",
}

// Import reads CSV from r and upserts each row into accountID. The
// header row is mandatory and must contain at least symbol and value
// columns. Bad rows are skipped and reported, never fatal.
func (im *Importer) Import(accountID string, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header row", apperrors.ErrInvalidCSVHeaders)
	}

	cols := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if logical, ok := columnAliases[key]; ok {
			cols[logical] = i
		}
	}

	if _, ok := cols["symbol"]; !ok {
		return nil, fmt.Errorf("%w: missing symbol column", apperrors.ErrInvalidCSVHeaders)
	}
	if _, ok := cols["current_value"]; !ok {
		return nil, fmt.Errorf("%w: missing value column", apperrors.ErrInvalidCSVHeaders)
	}

	result := &ImportResult{}
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		holding, err := im.parseRow(accountID, cols, record)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		if err := im.repo.Upsert(*holding); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Imported++
	}

	im.log.Info().
		Str("account_id", accountID).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("CSV import finished")

	return result, nil
}

func (im *Importer) parseRow(accountID string, cols map[string]int, record []string) (*domain.Holding, error) {
	get := func(logical string) string {
		if i, ok := cols[logical]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	symbol := get("symbol")
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	// Monetary columns go through decimal so "1,234.56" style exports
	// parse exactly before the float64 storage boundary.
	value, err := parseDecimal(get("current_value"))
	if err != nil {
		return nil, fmt.Errorf("bad value column: %w", err)
	}

	shares := 0.0
	if s := get("shares"); s != "" {
		shares, err = parseDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("bad shares column: %w", err)
		}
	}

	h := &domain.Holding{
		AccountID:      accountID,
		Symbol:         symbol,
		DisplayName:    get("display_name"),
		InstrumentType: parseInstrumentType(get("instrument_type")),
		Category:       get("category"),
		Country:        get("country"),
		Shares:         shares,
		CurrentValue:   value,
	}
	if h.DisplayName == "" {
		h.DisplayName = symbol
	}

	if tw := get("target_weight_pct"); tw != "" {
		weight, err := parseDecimal(strings.TrimSuffix(tw, "%"))
		if err != nil {
			return nil, fmt.Errorf("bad target weight column: %w", err)
		}
		h.TargetWeightPct = &weight
	}

	// Rows like "12 remaining positions" are placeholders asking for
	// equal distribution across their category.
	if count, ok := parsePlaceholder(h.DisplayName); ok {
		h.IsPlaceholder = true
		if count > 0 {
			h.PlaceholderWeightPct = 100.0 / float64(count)
		}
	}

	return h, nil
}

func parseDecimal(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

func parseInstrumentType(s string) domain.InstrumentType {
	switch strings.ToLower(s) {
	case "etf", "fund":
		return domain.InstrumentETF
	case "stock", "equity", "":
		return domain.InstrumentStock
	default:
		return domain.InstrumentOther
	}
}

// parsePlaceholder detects "<N> remaining positions" display names.
func parsePlaceholder(displayName string) (int, bool) {
	fields := strings.Fields(strings.ToLower(displayName))
	if len(fields) != 3 || fields[1] != "remaining" || fields[2] != "positions" {
		return 0, false
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return count, true
}

package yahoo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a Yahoo Finance API client
type Client struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client. baseURL is normally
// "https://query1.finance.yahoo.com" and is overridable for tests.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// GetYahooSymbol converts a broker symbol to a Yahoo Finance symbol.
// An explicit override always wins.
//
// Examples:
//
//	AAPL.US -> AAPL
//	BASF.DE -> BASF.DE
//	7203.JP -> 7203.T
func GetYahooSymbol(symbol string, yahooSymbolOverride *string) string {
	if yahooSymbolOverride != nil && *yahooSymbolOverride != "" {
		return *yahooSymbolOverride
	}

	if strings.HasSuffix(symbol, ".US") {
		return strings.TrimSuffix(symbol, ".US")
	}

	if strings.HasSuffix(symbol, ".JP") {
		// Japanese stocks use .T suffix on Yahoo
		base := strings.TrimSuffix(symbol, ".JP")
		return base + ".T"
	}

	// Default: use as-is for European stocks
	return symbol
}

// yahooQuoteResponse represents the response from Yahoo Finance quote API
type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []map[string]interface{} `json:"result"`
		Error  interface{}              `json:"error"`
	} `json:"quoteResponse"`
}

// GetCurrentPrice gets the current price for a symbol with retry logic
// and exponential backoff.
func (c *Client) GetCurrentPrice(symbol string, yahooSymbolOverride *string, maxRetries int) (*float64, error) {
	if maxRetries == 0 {
		maxRetries = 3 // default
	}

	yfSymbol := GetYahooSymbol(symbol, yahooSymbolOverride)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		info, err := c.getQuoteInfo(yfSymbol)
		if err != nil {
			lastErr = err
			if attempt < maxRetries-1 {
				waitTime := time.Duration(1<<uint(attempt)) * time.Second // exponential backoff
				c.log.Warn().Err(err).
					Str("symbol", symbol).
					Int("attempt", attempt+1).
					Dur("wait", waitTime).
					Msg("Failed to get price, retrying")
				time.Sleep(waitTime)
				continue
			}
			break
		}

		// Try currentPrice first, then regularMarketPrice
		if price := getFloat64(info, "currentPrice"); price != nil && *price > 0 {
			return price, nil
		}

		if price := getFloat64(info, "regularMarketPrice"); price != nil && *price > 0 {
			return price, nil
		}

		// Price was 0 or nil, retry
		if attempt < maxRetries-1 {
			waitTime := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn().
				Str("symbol", symbol).
				Int("attempt", attempt+1).
				Dur("wait", waitTime).
				Msg("Price was invalid, retrying")
			time.Sleep(waitTime)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
	}

	return nil, fmt.Errorf("failed to get valid price after %d attempts", maxRetries)
}

// getQuoteInfo fetches quote information from Yahoo Finance API
func (c *Client) getQuoteInfo(symbol string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,regularMarketPrice,currentPrice,quoteType,longName,shortName")

	reqURL := c.baseURL + "/v7/finance/quote?" + params.Encode()

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result yahooQuoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("Yahoo Finance API error: %v", result.QuoteResponse.Error)
	}

	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data returned for symbol %s", symbol)
	}

	return result.QuoteResponse.Result[0], nil
}

// GetHistoricalPrices fetches historical OHLCV data from the chart API.
//
// Supported periods: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max
func (c *Client) GetHistoricalPrices(symbol string, yahooSymbolOverride *string, period string) ([]HistoricalPrice, error) {
	yfSymbol := GetYahooSymbol(symbol, yahooSymbolOverride)

	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", period)

	reqURL := c.baseURL + "/v8/finance/chart/" + url.QueryEscape(yfSymbol) + "?" + params.Encode()

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Yahoo Finance chart API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result yahooChartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}

	if result.Chart.Error != nil {
		return nil, fmt.Errorf("Yahoo Finance chart API error: %v", result.Chart.Error)
	}

	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart data returned for symbol %s", symbol)
	}

	chart := result.Chart.Result[0]
	if len(chart.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart response missing quote indicators for symbol %s", symbol)
	}
	quote := chart.Indicators.Quote[0]

	prices := make([]HistoricalPrice, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		// Yahoo uses null for non-trading timestamps, skip those rows
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		p := HistoricalPrice{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			p.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			p.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			p.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			p.Volume = *quote.Volume[i]
		}
		prices = append(prices, p)
	}

	return prices, nil
}

// Helper functions to safely extract values from map

func getFloat64(m map[string]interface{}, key string) *float64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}
